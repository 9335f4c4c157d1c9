package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrArtifactNotFound = errors.New("artifact_not_found")
	ErrInvalidArtifact  = errors.New("invalid_artifact")
)

// ArtifactError locates a malformed entry inside an artifact.
type ArtifactError struct {
	Path   string
	Index  int
	Reason string
}

func (e *ArtifactError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s: %s", ErrInvalidArtifact, e.Path, e.Reason)
	}
	return fmt.Sprintf("%s: %s: entry %d: %s", ErrInvalidArtifact, e.Path, e.Index, e.Reason)
}

func (e *ArtifactError) Unwrap() error { return ErrInvalidArtifact }

type Prediction struct {
	Date           string  `json:"date" yaml:"date"`
	PredictedSales float64 `json:"predicted_sales" yaml:"predicted_sales"`
	LowerBound     float64 `json:"lower_bound" yaml:"lower_bound"`
	UpperBound     float64 `json:"upper_bound" yaml:"upper_bound"`
}

// Forecast is produced by an external model and only ever read here.
type Forecast struct {
	GeneratedAt time.Time    `json:"generated_at" yaml:"generated_at"`
	Model       string       `json:"model" yaml:"model"`
	HorizonDays int          `json:"horizon_days" yaml:"horizon_days"`
	Predictions []Prediction `json:"predictions" yaml:"predictions"`
}

type Segment struct {
	CustomerID  string  `json:"customer_id" yaml:"customer_id"`
	Segment     string  `json:"segment" yaml:"segment"`
	RecencyDays int     `json:"recency_days" yaml:"recency_days"`
	Frequency   int     `json:"frequency" yaml:"frequency"`
	Monetary    float64 `json:"monetary" yaml:"monetary"`
}

type Segmentation struct {
	GeneratedAt time.Time `json:"generated_at" yaml:"generated_at"`
	Model       string    `json:"model" yaml:"model"`
	Segments    []Segment `json:"segments" yaml:"segments"`
}

// Repository reads pre-computed artifacts.
type Repository interface {
	Forecast(ctx context.Context) (Forecast, error)
	Segmentation(ctx context.Context) (Segmentation, error)
}
