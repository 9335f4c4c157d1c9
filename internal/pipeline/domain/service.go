package domain

import (
	"context"
	"time"

	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
	warehousedomain "github.com/smallbiznis/retaillens/internal/warehouse/domain"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
)

type CleanRequest struct {
	InputPath   string
	Sheet       string
	CleanedPath string
}

// Report summarises one pipeline invocation.
type Report struct {
	RunID         string                     `json:"run_id"`
	Kind          string                     `json:"kind"`
	CorrelationID string                     `json:"correlation_id"`
	Read          *ingestdomain.ReadStats    `json:"read,omitempty"`
	Clean         *cleaningdomain.Stats      `json:"clean,omitempty"`
	CleanedPath   string                     `json:"cleaned_path,omitempty"`
	SkippedRows   int                        `json:"skipped_rows"`
	Load          *warehousedomain.LoadStats `json:"load,omitempty"`
	Duration      time.Duration              `json:"duration"`
}

type ListRunsRequest struct {
	PageToken string
	PageSize  int
}

type ListRunsResponse struct {
	pagination.PageInfo
	Runs []Run `json:"runs"`
}

type Service interface {
	// Clean reads the raw source, filters it and writes the cleaned file.
	Clean(ctx context.Context, req CleanRequest) (Report, error)
	// Load reads a cleaned file into the warehouse.
	Load(ctx context.Context, cleanedPath string) (Report, error)
	// Run cleans and then loads. Source errors surface before any store write.
	Run(ctx context.Context, req CleanRequest) (Report, error)
	ListRuns(ctx context.Context, req ListRunsRequest) (ListRunsResponse, error)
}
