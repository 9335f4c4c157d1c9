package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/smallbiznis/retaillens/internal/config"
	"github.com/smallbiznis/retaillens/internal/forecast/domain"
	"github.com/smallbiznis/retaillens/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

type Params struct {
	fx.In

	Cfg config.Config
	Log *zap.Logger
}

type repo struct {
	forecastPath     string
	segmentationPath string
	log              *zap.Logger
}

func Provide(p Params) domain.Repository {
	return New(p.Cfg.ForecastPath, p.Cfg.SegmentationPath, p.Log)
}

func New(forecastPath, segmentationPath string, log *zap.Logger) domain.Repository {
	if log == nil {
		log = zap.NewNop()
	}
	return &repo{
		forecastPath:     forecastPath,
		segmentationPath: segmentationPath,
		log:              log.Named("forecast.repository"),
	}
}

func (r *repo) Forecast(ctx context.Context) (domain.Forecast, error) {
	var doc domain.Forecast
	if err := readJSON(r.forecastPath, &doc); err != nil {
		return domain.Forecast{}, err
	}
	if err := ValidateForecast(r.forecastPath, &doc); err != nil {
		return domain.Forecast{}, err
	}
	logger.WithContext(ctx, r.log).Debug("forecast loaded",
		zap.String("model", doc.Model),
		zap.Int("predictions", len(doc.Predictions)),
	)
	return doc, nil
}

func (r *repo) Segmentation(ctx context.Context) (domain.Segmentation, error) {
	var doc domain.Segmentation
	if err := readJSON(r.segmentationPath, &doc); err != nil {
		return domain.Segmentation{}, err
	}
	if err := ValidateSegmentation(r.segmentationPath, &doc); err != nil {
		return domain.Segmentation{}, err
	}
	logger.WithContext(ctx, r.log).Debug("segmentation loaded",
		zap.String("model", doc.Model),
		zap.Int("segments", len(doc.Segments)),
	)
	return doc, nil
}

func readJSON(path string, dest any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactNotFound, path)
		}
		return err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return &domain.ArtifactError{Path: path, Index: -1, Reason: err.Error()}
	}
	return nil
}

// ValidateForecast checks required fields and sorts predictions by date.
func ValidateForecast(path string, doc *domain.Forecast) error {
	if strings.TrimSpace(doc.Model) == "" {
		return &domain.ArtifactError{Path: path, Index: -1, Reason: "model is required"}
	}
	if doc.HorizonDays < 0 {
		return &domain.ArtifactError{Path: path, Index: -1, Reason: "horizon_days must not be negative"}
	}
	dates := make(map[string]time.Time, len(doc.Predictions))
	for i, p := range doc.Predictions {
		d, err := time.Parse(dateLayout, p.Date)
		if err != nil {
			return &domain.ArtifactError{Path: path, Index: i, Reason: "date must be YYYY-MM-DD"}
		}
		if p.LowerBound > p.UpperBound {
			return &domain.ArtifactError{Path: path, Index: i, Reason: "lower_bound exceeds upper_bound"}
		}
		dates[p.Date] = d
	}
	sort.SliceStable(doc.Predictions, func(i, j int) bool {
		return dates[doc.Predictions[i].Date].Before(dates[doc.Predictions[j].Date])
	})
	return nil
}

func ValidateSegmentation(path string, doc *domain.Segmentation) error {
	if strings.TrimSpace(doc.Model) == "" {
		return &domain.ArtifactError{Path: path, Index: -1, Reason: "model is required"}
	}
	for i, s := range doc.Segments {
		switch {
		case strings.TrimSpace(s.CustomerID) == "":
			return &domain.ArtifactError{Path: path, Index: i, Reason: "customer_id is required"}
		case strings.TrimSpace(s.Segment) == "":
			return &domain.ArtifactError{Path: path, Index: i, Reason: "segment is required"}
		case s.RecencyDays < 0 || s.Frequency < 0:
			return &domain.ArtifactError{Path: path, Index: i, Reason: "recency_days and frequency must not be negative"}
		}
	}
	return nil
}
