package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// InsertIfAbsent inserts rows whose id is not yet stored and leaves
	// existing rows untouched. It returns the number of rows written.
	InsertIfAbsent(ctx context.Context, db *gorm.DB, customers []Customer) (int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
