package domain

import (
	"context"

	"gorm.io/gorm"
)

// TimeSlot is a row of the time dimension at minute resolution.
type TimeSlot struct {
	TimeID int64 `gorm:"column:time_id;primaryKey;autoIncrement" json:"time_id"`
	Day    int   `gorm:"column:day;not null;uniqueIndex:ux_time_slot,priority:1" json:"day"`
	Month  int   `gorm:"column:month;not null;uniqueIndex:ux_time_slot,priority:2" json:"month"`
	Year   int   `gorm:"column:year;not null;uniqueIndex:ux_time_slot,priority:3" json:"year"`
	Hour   int   `gorm:"column:hour;not null;uniqueIndex:ux_time_slot,priority:4" json:"hour"`
	Minute int   `gorm:"column:minute;not null;uniqueIndex:ux_time_slot,priority:5" json:"minute"`
}

func (TimeSlot) TableName() string { return "time" }

// Key identifies a slot independent of its surrogate id.
type Key struct {
	Day, Month, Year, Hour, Minute int
}

func (s TimeSlot) Key() Key {
	return Key{Day: s.Day, Month: s.Month, Year: s.Year, Hour: s.Hour, Minute: s.Minute}
}

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, keys []Key) (int64, error)
	// ResolveKeys returns the stored id of every key that exists, including
	// slots written by earlier loads.
	ResolveKeys(ctx context.Context, db *gorm.DB, keys []Key) (map[Key]int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
