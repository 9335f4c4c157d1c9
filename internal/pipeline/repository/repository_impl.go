package repository

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retaillens/internal/pipeline/domain"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) Finish(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).
		Model(&domain.Run{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":      run.Status,
			"stats":       run.Stats,
			"error":       run.Error,
			"finished_at": run.FinishedAt,
		}).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Run, error) {
	var run domain.Run
	err := db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// List returns runs newest first. It fetches one row past the page size so
// the caller can tell whether another page exists.
func (r *repo) List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*domain.Run, error) {
	stmt := db.WithContext(ctx).Model(&domain.Run{})
	if page.PageToken != "" {
		cursor, err := pagination.DecodeCursor(page.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidID
		}
		stmt = stmt.Where("id < ?", id)
	}

	size := page.Size()

	var runs []*domain.Run
	err := stmt.Order("id desc").Limit(size + 1).Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}
