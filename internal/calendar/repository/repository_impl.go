package repository

import (
	"context"

	"github.com/smallbiznis/retaillens/internal/calendar/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultBatchSize = 500

// slotRow has no primary key field so inserts never ask the store to
// return generated ids.
type slotRow struct {
	Day    int `gorm:"column:day"`
	Month  int `gorm:"column:month"`
	Year   int `gorm:"column:year"`
	Hour   int `gorm:"column:hour"`
	Minute int `gorm:"column:minute"`
}

func (slotRow) TableName() string { return "time" }

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, keys []domain.Key) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	rows := make([]slotRow, len(keys))
	for i, k := range keys {
		rows[i] = slotRow{Day: k.Day, Month: k.Month, Year: k.Year, Hour: k.Hour, Minute: k.Minute}
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "day"}, {Name: "month"}, {Name: "year"}, {Name: "hour"}, {Name: "minute"},
			},
			DoNothing: true,
		}).
		CreateInBatches(&rows, batchSize(db))
	return res.RowsAffected, res.Error
}

func (r *repo) ResolveKeys(ctx context.Context, db *gorm.DB, keys []domain.Key) (map[domain.Key]int64, error) {
	resolved := make(map[domain.Key]int64, len(keys))
	if len(keys) == 0 {
		return resolved, nil
	}

	wanted := make(map[domain.Key]struct{}, len(keys))
	years := make(map[int]struct{})
	for _, k := range keys {
		wanted[k] = struct{}{}
		years[k.Year] = struct{}{}
	}
	yearList := make([]int, 0, len(years))
	for y := range years {
		yearList = append(yearList, y)
	}

	// Narrow by year, then match the full tuple in memory. This keeps the
	// query free of large composite IN lists.
	var slots []domain.TimeSlot
	err := db.WithContext(ctx).
		Model(&domain.TimeSlot{}).
		Where("year IN ?", yearList).
		FindInBatches(&slots, 5000, func(tx *gorm.DB, batch int) error {
			for _, s := range slots {
				if _, ok := wanted[s.Key()]; ok {
					resolved[s.Key()] = s.TimeID
				}
			}
			return nil
		}).Error
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.TimeSlot{}).Count(&n).Error
	return n, err
}

// batchSize honours a CreateBatchSize set on the session by the caller.
func batchSize(db *gorm.DB) int {
	if db.CreateBatchSize > 0 {
		return db.CreateBatchSize
	}
	return defaultBatchSize
}
