package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/retaillens/internal/cache"
	"github.com/smallbiznis/retaillens/internal/cleaning/cleanfile"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	"github.com/smallbiznis/retaillens/internal/clock"
	"github.com/smallbiznis/retaillens/internal/config"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
	"github.com/smallbiznis/retaillens/internal/ingest/source"
	obscontext "github.com/smallbiznis/retaillens/internal/observability/context"
	"github.com/smallbiznis/retaillens/internal/observability/logger"
	"github.com/smallbiznis/retaillens/internal/observability/metrics"
	"github.com/smallbiznis/retaillens/internal/observability/tracing"
	"github.com/smallbiznis/retaillens/internal/pipeline/domain"
	warehousedomain "github.com/smallbiznis/retaillens/internal/warehouse/domain"
	"github.com/smallbiznis/retaillens/pkg/db/pagination"
	"github.com/smallbiznis/retaillens/pkg/telemetry"
	"github.com/smallbiznis/retaillens/pkg/telemetry/correlation"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tracerName = "retaillens/pipeline"

type Params struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
	Cfg config.PipelineConfig
	// Holder, when present, supplies paths and layouts reloaded from pipeline.yml.
	Holder  *config.PipelineConfigHolder `optional:"true"`
	GenID   *snowflake.Node
	Repo    domain.Repository
	Cleaner cleaningdomain.Service
	Loader  warehousedomain.Loader

	Cache    cache.Cache              `optional:"true"`
	Clock    clock.Clock              `optional:"true"`
	Metrics  *metrics.Metrics         `optional:"true"`
	Pipeline *metrics.PipelineMetrics `optional:"true"`
	Pusher   telemetry.Pusher         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	settings func() config.PipelineConfig
	genID    *snowflake.Node
	repo     domain.Repository
	cleaner  cleaningdomain.Service
	loader   warehousedomain.Loader

	cache    cache.Cache
	clock    clock.Clock
	metrics  *metrics.Metrics
	pipeline *metrics.PipelineMetrics
	pusher   telemetry.Pusher
}

func New(p Params) domain.Service {
	svc := &Service{
		db:       p.DB,
		log:      p.Log.Named("pipeline.service"),
		settings: func() config.PipelineConfig { return p.Cfg },
		genID:    p.GenID,
		repo:     p.Repo,
		cleaner:  p.Cleaner,
		loader:   p.Loader,
		cache:    p.Cache,
		clock:    p.Clock,
		metrics:  p.Metrics,
		pipeline: p.Pipeline,
		pusher:   p.Pusher,
	}
	if p.Holder != nil {
		svc.settings = p.Holder.Get
	}
	if svc.cache == nil {
		svc.cache = cache.Noop()
	}
	if svc.clock == nil {
		svc.clock = clock.SystemClock{}
	}
	return svc
}

func (s *Service) Clean(ctx context.Context, req domain.CleanRequest) (domain.Report, error) {
	req = s.withDefaults(req)
	return s.execute(ctx, domain.KindClean, req.InputPath, func(ctx context.Context, rep *domain.Report) error {
		_, err := s.clean(ctx, req, rep)
		return err
	})
}

func (s *Service) Load(ctx context.Context, cleanedPath string) (domain.Report, error) {
	if strings.TrimSpace(cleanedPath) == "" {
		cleanedPath = s.settings().CleanedPath
	}
	return s.execute(ctx, domain.KindLoad, cleanedPath, func(ctx context.Context, rep *domain.Report) error {
		rep.CleanedPath = cleanedPath

		var records []cleaningdomain.CleanedRecord
		err := s.stage(ctx, domain.StageRead, func(ctx context.Context) error {
			result, err := cleanfile.ReadFile(cleanedPath)
			if err != nil {
				return err
			}
			records = result.Records
			rep.SkippedRows = result.Skipped
			s.metrics.RecordRead(ctx, "cleaned", len(records))
			s.pipeline.AddRowsProcessed(domain.StageRead, len(records))
			s.pipeline.AddRowsDropped("malformed_cleaned_row", result.Skipped)
			return nil
		})
		if err != nil {
			return err
		}
		return s.load(ctx, records, rep)
	})
}

// Run cleans then loads the cleaned records. The warehouse is only touched
// once the source has been read and cleaned successfully.
func (s *Service) Run(ctx context.Context, req domain.CleanRequest) (domain.Report, error) {
	req = s.withDefaults(req)
	return s.execute(ctx, domain.KindRun, req.InputPath, func(ctx context.Context, rep *domain.Report) error {
		records, err := s.clean(ctx, req, rep)
		if err != nil {
			return err
		}
		return s.load(ctx, records, rep)
	})
}

func (s *Service) ListRuns(ctx context.Context, req domain.ListRunsRequest) (domain.ListRunsResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}

	items, err := s.repo.List(ctx, s.db, page)
	if err != nil {
		return domain.ListRunsResponse{}, err
	}

	items, info, err := pagination.Trim(items, page.Size(), func(run *domain.Run) pagination.Cursor {
		return pagination.Cursor{
			ID:        run.ID.String(),
			StartedAt: run.StartedAt.Format(time.RFC3339),
		}
	})
	if err != nil {
		return domain.ListRunsResponse{}, err
	}

	runs := make([]domain.Run, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		runs = append(runs, *item)
	}
	return domain.ListRunsResponse{PageInfo: info, Runs: runs}, nil
}

func (s *Service) withDefaults(req domain.CleanRequest) domain.CleanRequest {
	if strings.TrimSpace(req.InputPath) == "" {
		req.InputPath = s.settings().InputPath
	}
	if strings.TrimSpace(req.Sheet) == "" {
		req.Sheet = s.settings().Sheet
	}
	if strings.TrimSpace(req.CleanedPath) == "" {
		req.CleanedPath = s.settings().CleanedPath
	}
	return req
}

func (s *Service) clean(ctx context.Context, req domain.CleanRequest, rep *domain.Report) ([]cleaningdomain.CleanedRecord, error) {
	var lines []ingestdomain.RawOrderLine
	err := s.stage(ctx, domain.StageIngest, func(ctx context.Context) error {
		reader, err := source.New(source.Options{
			Path:             req.InputPath,
			Sheet:            req.Sheet,
			TimestampLayouts: s.settings().TimestampLayouts,
		})
		if err != nil {
			return err
		}
		read, stats, err := reader.Read(ctx)
		if err != nil {
			return err
		}
		lines = read
		rep.Read = &stats
		s.metrics.RecordRead(ctx, "raw", stats.Rows)
		s.pipeline.AddRowsProcessed(domain.StageIngest, stats.Rows)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var records []cleaningdomain.CleanedRecord
	err = s.stage(ctx, domain.StageClean, func(ctx context.Context) error {
		result := s.cleaner.Clean(ctx, lines)
		records = result.Records
		rep.Clean = &result.Stats
		for reason, n := range result.Stats.Dropped() {
			s.metrics.RecordDropped(ctx, reason, n)
			s.pipeline.AddRowsDropped(reason, n)
		}
		s.pipeline.AddRowsProcessed(domain.StageClean, result.Stats.Output)
		return nil
	})
	if err != nil {
		return nil, err
	}

	err = s.stage(ctx, domain.StageWrite, func(ctx context.Context) error {
		rep.CleanedPath = req.CleanedPath
		return cleanfile.WriteFile(req.CleanedPath, records)
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Service) load(ctx context.Context, records []cleaningdomain.CleanedRecord, rep *domain.Report) error {
	return s.stage(ctx, domain.StageLoad, func(ctx context.Context) error {
		stats, err := s.loader.Load(ctx, records)
		rep.Load = &stats

		inserted := map[string]int64{
			"customer": stats.Customers.Inserted,
			"product":  stats.Products.Inserted,
			"time":     stats.TimeSlots.Inserted,
			"sales":    stats.Facts.Inserted,
		}
		var total int64
		for entity, n := range inserted {
			s.metrics.RecordInserted(ctx, entity, n)
			s.pipeline.AddRowsInserted(entity, n)
			total += n
		}
		s.pipeline.AddRowsDropped("unresolved_time_key", stats.FactsDropped)

		if total > 0 {
			if cacheErr := s.cache.Invalidate(ctx); cacheErr != nil {
				logger.WithContext(ctx, s.log).Warn("query cache invalidation failed", zap.Error(cacheErr))
			}
		}
		return err
	})
}

// stage runs fn inside a span and tags any error with the stage name.
func (s *Service) stage(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	if err := ctx.Err(); err != nil {
		return &domain.StageError{Stage: name, Err: err}
	}

	ctx = obscontext.WithStage(ctx, name)
	ctx, span := tracing.StartSpan(ctx, tracerName, "pipeline.stage."+name, attribute.String("stage", name))
	defer func() { tracing.EndSpan(span, err) }()

	log := logger.WithContext(ctx, s.log)
	started := time.Now()
	if err = fn(ctx); err != nil {
		log.Error("stage failed", zap.Error(err))
		return &domain.StageError{Stage: name, Err: err}
	}
	log.Debug("stage finished", zap.Duration("duration", time.Since(started)))
	return nil
}

// execute records the run in the etl_runs ledger before fn starts. Source
// errors still surface before any warehouse table is touched; the ledger row
// is the only write that precedes them.
func (s *Service) execute(ctx context.Context, kind, src string, fn func(context.Context, *domain.Report) error) (domain.Report, error) {
	ctx, correlationID := correlation.EnsureCorrelationID(ctx)
	run := &domain.Run{
		ID:            s.genID.Generate(),
		Kind:          kind,
		Status:        domain.StatusRunning,
		Source:        src,
		CorrelationID: correlationID,
		StartedAt:     s.clock.Now(),
	}
	ctx = obscontext.WithRunID(ctx, run.ID.String())
	log := logger.WithContext(ctx, s.log)

	ctx, span := tracing.StartSpan(ctx, tracerName, "pipeline."+kind, attribute.String("kind", kind))

	report := domain.Report{
		RunID:         run.ID.String(),
		Kind:          kind,
		CorrelationID: correlationID,
	}

	if err := s.repo.Insert(ctx, s.db, run); err != nil {
		log.Warn("run ledger insert failed", zap.Error(err))
	}
	log.Info("run started", zap.String("kind", kind), zap.String("source", src))

	started := time.Now()
	err := fn(ctx, &report)
	report.Duration = time.Since(started)

	finished := s.clock.Now()
	run.FinishedAt = &finished
	run.Status = domain.StatusSucceeded
	if err != nil {
		run.Status = domain.StatusFailed
		run.Error = err.Error()
	}
	run.Stats = statsMap(report)
	if ledgerErr := s.repo.Finish(context.WithoutCancel(ctx), s.db, run); ledgerErr != nil {
		log.Warn("run ledger update failed", zap.Error(ledgerErr))
	}

	s.metrics.RecordRun(ctx, kind, run.Status)
	s.pipeline.ObserveJob(kind, report.Duration, err, finished)
	if err != nil {
		s.pipeline.IncJobError(kind, domain.Stage(err), err)
	}
	s.push(ctx, log)
	tracing.EndSpan(span, err)

	if err != nil {
		log.Error("run failed",
			zap.String("kind", kind),
			zap.String("stage", domain.Stage(err)),
			zap.Duration("duration", report.Duration),
			zap.Error(err),
		)
		return report, err
	}
	log.Info("run succeeded", zap.String("kind", kind), zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *Service) push(ctx context.Context, log *zap.Logger) {
	if s.pusher == nil || s.pipeline == nil {
		return
	}
	if err := s.pusher.Push(context.WithoutCancel(ctx), s.pipeline.Gatherer()); err != nil {
		log.Warn("metrics push failed", zap.Error(err))
	}
}

func statsMap(report domain.Report) datatypes.JSONMap {
	payload, err := json.Marshal(struct {
		Read        *ingestdomain.ReadStats    `json:"read,omitempty"`
		Clean       *cleaningdomain.Stats      `json:"clean,omitempty"`
		SkippedRows int                        `json:"skipped_rows,omitempty"`
		Load        *warehousedomain.LoadStats `json:"load,omitempty"`
		DurationMs  int64                      `json:"duration_ms"`
	}{report.Read, report.Clean, report.SkippedRows, report.Load, report.Duration.Milliseconds()})
	if err != nil {
		return datatypes.JSONMap{}
	}
	out := datatypes.JSONMap{}
	if err := json.Unmarshal(payload, &out); err != nil {
		return datatypes.JSONMap{}
	}
	return out
}

// IsSourceError reports whether err came from reading an input file.
func IsSourceError(err error) bool {
	return errors.Is(err, ingestdomain.ErrSourceUnavailable) ||
		errors.Is(err, ingestdomain.ErrMissingColumn) ||
		errors.Is(err, ingestdomain.ErrUnsupportedFormat)
}
