package service

import (
	"context"
	"fmt"
	"time"

	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	"github.com/smallbiznis/retaillens/internal/config"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	"github.com/smallbiznis/retaillens/internal/observability/logger"
	"github.com/smallbiznis/retaillens/internal/observability/tracing"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	salesdomain "github.com/smallbiznis/retaillens/internal/sales/domain"
	"github.com/smallbiznis/retaillens/internal/warehouse/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tracerName = "retaillens/warehouse"

type Params struct {
	fx.In

	DB           *gorm.DB
	Log          *zap.Logger
	Cfg          config.PipelineConfig
	CustomerRepo customerdomain.Repository
	ProductRepo  productdomain.Repository
	CalendarRepo calendardomain.Repository
	SalesRepo    salesdomain.Repository
}

type Service struct {
	db             *gorm.DB
	log            *zap.Logger
	unknownCountry string
	batchSize      int

	customerRepo customerdomain.Repository
	productRepo  productdomain.Repository
	calendarRepo calendardomain.Repository
	salesRepo    salesdomain.Repository
}

func New(p Params) domain.Loader {
	defaults := config.DefaultPipelineConfig()
	unknown := p.Cfg.UnknownCountry
	if unknown == "" {
		unknown = defaults.UnknownCountry
	}
	batchSize := p.Cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaults.BatchSize
	}
	return &Service{
		db:             p.DB,
		log:            p.Log.Named("warehouse.service"),
		unknownCountry: unknown,
		batchSize:      batchSize,
		customerRepo:   p.CustomerRepo,
		productRepo:    p.ProductRepo,
		calendarRepo:   p.CalendarRepo,
		salesRepo:      p.SalesRepo,
	}
}

// Load writes customers, products, time slots and facts in that order. Each
// phase commits on its own; the first failing phase stops the load.
func (s *Service) Load(ctx context.Context, records []cleaningdomain.CleanedRecord) (domain.LoadStats, error) {
	batches := Decompose(records, s.unknownCountry)
	log := logger.WithContext(ctx, s.log)

	var (
		stats   domain.LoadStats
		timeIDs map[calendardomain.Key]int64
	)

	phases := []struct {
		name string
		run  func(ctx context.Context, tx *gorm.DB) error
	}{
		{domain.PhaseCustomers, func(ctx context.Context, tx *gorm.DB) error {
			stats.Customers.Candidates = len(batches.Customers)
			n, err := s.customerRepo.InsertIfAbsent(ctx, tx, batches.Customers)
			stats.Customers.Inserted = n
			return err
		}},
		{domain.PhaseProducts, func(ctx context.Context, tx *gorm.DB) error {
			stats.Products.Candidates = len(batches.Products)
			n, err := s.productRepo.InsertIfAbsent(ctx, tx, batches.Products)
			stats.Products.Inserted = n
			return err
		}},
		{domain.PhaseTimes, func(ctx context.Context, tx *gorm.DB) error {
			stats.TimeSlots.Candidates = len(batches.TimeKeys)
			n, err := s.calendarRepo.InsertIfAbsent(ctx, tx, batches.TimeKeys)
			if err != nil {
				return err
			}
			stats.TimeSlots.Inserted = n

			ids, err := s.calendarRepo.ResolveKeys(ctx, tx, batches.TimeKeys)
			if err != nil {
				return err
			}
			if missing := len(batches.TimeKeys) - len(ids); missing > 0 {
				return fmt.Errorf("%w: %d keys", domain.ErrUnresolvedTimeKey, missing)
			}
			timeIDs = ids
			return nil
		}},
		{domain.PhaseFacts, func(ctx context.Context, tx *gorm.DB) error {
			facts, dropped := buildFacts(batches.Records, timeIDs)
			stats.Facts.Candidates = len(facts)
			stats.FactsDropped = dropped
			if dropped > 0 {
				log.Warn("facts without time key dropped", zap.Int("count", dropped))
			}
			n, err := s.salesRepo.InsertIfAbsent(ctx, tx, facts)
			stats.Facts.Inserted = n
			return err
		}},
	}

	for _, phase := range phases {
		if err := s.runPhase(ctx, log, phase.name, phase.run); err != nil {
			return stats, err
		}
	}

	log.Info("load finished",
		zap.Int64("customers_inserted", stats.Customers.Inserted),
		zap.Int64("products_inserted", stats.Products.Inserted),
		zap.Int64("time_slots_inserted", stats.TimeSlots.Inserted),
		zap.Int64("facts_inserted", stats.Facts.Inserted),
		zap.Int("facts_dropped", stats.FactsDropped),
	)
	return stats, nil
}

func (s *Service) runPhase(ctx context.Context, log *zap.Logger, name string, run func(context.Context, *gorm.DB) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, tracerName, "warehouse.load."+name, attribute.String("phase", name))
	defer func() { tracing.EndSpan(span, err) }()

	started := time.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return run(ctx, tx.Session(&gorm.Session{CreateBatchSize: s.batchSize}))
	})
	if err != nil {
		log.Error("load phase failed", zap.String("phase", name), zap.Error(err))
		return &domain.PhaseError{Phase: name, Err: err}
	}
	log.Debug("load phase committed", zap.String("phase", name), zap.Duration("duration", time.Since(started)))
	return nil
}

func buildFacts(records []cleaningdomain.CleanedRecord, timeIDs map[calendardomain.Key]int64) ([]salesdomain.Sale, int) {
	facts := make([]salesdomain.Sale, 0, len(records))
	dropped := 0
	for _, r := range records {
		id, ok := timeIDs[TimeKey(r)]
		if !ok {
			dropped++
			continue
		}
		facts = append(facts, salesdomain.Sale{
			InvoiceNo:  r.InvoiceNo,
			CustomerID: r.CustomerID,
			StockCode:  r.StockCode,
			TimeID:     id,
			Quantity:   r.Quantity,
			UnitPrice:  r.UnitPrice,
			TotalPrice: r.TotalPrice,
		})
	}
	return facts, dropped
}

// Verify reports the row count of every warehouse table.
func (s *Service) Verify(ctx context.Context) (domain.TableCounts, error) {
	var (
		counts domain.TableCounts
		err    error
	)
	if counts.Customers, err = s.customerRepo.Count(ctx, s.db); err != nil {
		return counts, fmt.Errorf("count customer: %w", err)
	}
	if counts.Products, err = s.productRepo.Count(ctx, s.db); err != nil {
		return counts, fmt.Errorf("count product: %w", err)
	}
	if counts.TimeSlots, err = s.calendarRepo.Count(ctx, s.db); err != nil {
		return counts, fmt.Errorf("count time: %w", err)
	}
	if counts.Sales, err = s.salesRepo.Count(ctx, s.db); err != nil {
		return counts, fmt.Errorf("count sales: %w", err)
	}
	return counts, nil
}
