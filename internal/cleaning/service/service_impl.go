package service

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/cleaning/domain"
	"github.com/smallbiznis/retaillens/internal/config"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
	"github.com/smallbiznis/retaillens/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log *zap.Logger
	Cfg config.PipelineConfig
}

type Service struct {
	log        *zap.Logger
	multiplier decimal.Decimal
}

func New(p Params) domain.Service {
	return &Service{
		log:        p.Log.Named("cleaning.service"),
		multiplier: decimal.NewFromFloat(p.Cfg.IQRMultiplier),
	}
}

// Clean never fails on data shape. Rows that cannot be used are dropped and counted.
func (s *Service) Clean(ctx context.Context, lines []ingestdomain.RawOrderLine) domain.Result {
	result := Clean(lines, s.multiplier)

	stats := result.Stats
	logger.WithContext(ctx, s.log).Info("cleaning finished",
		zap.Int("input", stats.Input),
		zap.Int("output", stats.Output),
		zap.Int("dropped_missing_customer", stats.DroppedMissingCustomer),
		zap.Int("dropped_missing_description", stats.DroppedMissingDesc),
		zap.Int("dropped_invalid_date", stats.DroppedInvalidDate),
		zap.Int("dropped_non_positive_quantity", stats.DroppedNonPositiveQty),
		zap.Int("dropped_non_positive_price", stats.DroppedNonPositivePrice),
		zap.Int("dropped_quantity_outlier", stats.DroppedQuantityOutlier),
		zap.Int("dropped_price_outlier", stats.DroppedPriceOutlier),
		zap.String("quantity_upper", stats.QuantityBounds.Upper.String()),
		zap.String("unit_price_upper", stats.UnitPriceBounds.Upper.String()),
	)
	return result
}

// Clean applies the validity filter, the quantity IQR filter, then the unit
// price IQR filter on the quantity-filtered rows, and derives the total and
// calendar fields. Input order is preserved.
func Clean(lines []ingestdomain.RawOrderLine, multiplier decimal.Decimal) domain.Result {
	stats := domain.Stats{Input: len(lines)}

	valid := make([]ingestdomain.RawOrderLine, 0, len(lines))
	for _, line := range lines {
		switch {
		case line.CustomerID == nil:
			stats.DroppedMissingCustomer++
		case line.Description == nil:
			stats.DroppedMissingDesc++
		case line.InvoiceDate.IsZero():
			stats.DroppedInvalidDate++
		case line.Quantity <= 0:
			stats.DroppedNonPositiveQty++
		case !line.UnitPrice.IsPositive():
			stats.DroppedNonPositivePrice++
		default:
			valid = append(valid, line)
		}
	}

	quantities := make([]decimal.Decimal, len(valid))
	for i, line := range valid {
		quantities[i] = decimal.NewFromInt(line.Quantity)
	}
	stats.QuantityBounds = IQRBounds(quantities, multiplier)

	byQuantity := make([]ingestdomain.RawOrderLine, 0, len(valid))
	for i, line := range valid {
		if !within(stats.QuantityBounds, quantities[i]) {
			stats.DroppedQuantityOutlier++
			continue
		}
		byQuantity = append(byQuantity, line)
	}

	prices := make([]decimal.Decimal, len(byQuantity))
	for i, line := range byQuantity {
		prices[i] = line.UnitPrice
	}
	stats.UnitPriceBounds = IQRBounds(prices, multiplier)

	records := make([]domain.CleanedRecord, 0, len(byQuantity))
	for _, line := range byQuantity {
		if !within(stats.UnitPriceBounds, line.UnitPrice) {
			stats.DroppedPriceOutlier++
			continue
		}
		records = append(records, derive(line))
	}

	stats.Output = len(records)
	return domain.Result{Records: records, Stats: stats}
}

func derive(line ingestdomain.RawOrderLine) domain.CleanedRecord {
	ts := line.InvoiceDate
	return domain.CleanedRecord{
		InvoiceNo:   line.InvoiceNo,
		StockCode:   line.StockCode,
		Description: *line.Description,
		Quantity:    line.Quantity,
		UnitPrice:   line.UnitPrice,
		TotalPrice:  line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity)),
		InvoiceDate: ts,
		CustomerID:  *line.CustomerID,
		Country:     line.Country,
		Day:         ts.Day(),
		Month:       int(ts.Month()),
		Year:        ts.Year(),
		Hour:        ts.Hour(),
		Minute:      ts.Minute(),
	}
}
