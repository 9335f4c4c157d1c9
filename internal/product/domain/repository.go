package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, products []Product) (int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
