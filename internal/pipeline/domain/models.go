package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	KindClean = "clean"
	KindLoad  = "load"
	KindRun   = "run"

	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

const (
	StageIngest = "ingest"
	StageClean  = "clean"
	StageWrite  = "write"
	StageRead   = "read"
	StageLoad   = "load"
)

var (
	ErrRunNotFound = errors.New("run_not_found")
	ErrInvalidID   = errors.New("invalid_id")
)

// Run is one row of the etl_runs ledger.
type Run struct {
	ID            snowflake.ID      `gorm:"primaryKey" json:"id"`
	Kind          string            `gorm:"size:16;not null;index" json:"kind"`
	Status        string            `gorm:"size:16;not null" json:"status"`
	Source        string            `gorm:"type:text" json:"source,omitempty"`
	CorrelationID string            `gorm:"size:32" json:"correlation_id"`
	Stats         datatypes.JSONMap `gorm:"type:jsonb" json:"stats,omitempty"`
	Error         string            `gorm:"type:text" json:"error,omitempty"`
	StartedAt     time.Time         `gorm:"not null;index" json:"started_at"`
	FinishedAt    *time.Time        `json:"finished_at,omitempty"`
}

func (Run) TableName() string { return "etl_runs" }

//go:generate mockgen -destination=mocks/repository.go -package=mocks . Repository

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, run *Run) error
	Finish(ctx context.Context, db *gorm.DB, run *Run) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Run, error)
	List(ctx context.Context, db *gorm.DB, page pagination.Pagination) ([]*Run, error)
}

// StageError names the pipeline stage a fatal error came from.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage returns the stage of err, or "" when err carries none.
func Stage(err error) string {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}
	return ""
}
