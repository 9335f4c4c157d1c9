package repository

import (
	"context"

	"github.com/smallbiznis/retaillens/internal/product/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultBatchSize = 500

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertIfAbsent keeps the stored description when a stock code already exists.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, products []domain.Product) (int64, error) {
	if len(products) == 0 {
		return 0, nil
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stock_code"}},
			DoNothing: true,
		}).
		CreateInBatches(&products, batchSize(db))
	return res.RowsAffected, res.Error
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Product{}).Count(&n).Error
	return n, err
}

// batchSize honours a CreateBatchSize set on the session by the caller.
func batchSize(db *gorm.DB) int {
	if db.CreateBatchSize > 0 {
		return db.CreateBatchSize
	}
	return defaultBatchSize
}
