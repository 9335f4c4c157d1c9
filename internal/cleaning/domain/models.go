package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
)

// CleanedRecord is a validated order line with its derived fields.
type CleanedRecord struct {
	InvoiceNo   string
	StockCode   string
	Description string
	Quantity    int64
	UnitPrice   decimal.Decimal
	TotalPrice  decimal.Decimal
	InvoiceDate time.Time
	CustomerID  string
	// Country stays nil when the source had none; the loader substitutes
	// the configured sentinel.
	Country *string
	Day     int
	Month   int
	Year    int
	Hour    int
	Minute  int
}

// Bounds describes one IQR filter pass. Values inside [Lower, Upper] are kept.
type Bounds struct {
	Q1    decimal.Decimal `json:"q1"`
	Q3    decimal.Decimal `json:"q3"`
	IQR   decimal.Decimal `json:"iqr"`
	Lower decimal.Decimal `json:"lower"`
	Upper decimal.Decimal `json:"upper"`
}

type Stats struct {
	Input                   int    `json:"input"`
	DroppedMissingCustomer  int    `json:"dropped_missing_customer"`
	DroppedMissingDesc      int    `json:"dropped_missing_description"`
	DroppedInvalidDate      int    `json:"dropped_invalid_date"`
	DroppedNonPositiveQty   int    `json:"dropped_non_positive_quantity"`
	DroppedNonPositivePrice int    `json:"dropped_non_positive_price"`
	DroppedQuantityOutlier  int    `json:"dropped_quantity_outlier"`
	DroppedPriceOutlier     int    `json:"dropped_price_outlier"`
	Output                  int    `json:"output"`
	QuantityBounds          Bounds `json:"quantity_bounds"`
	UnitPriceBounds         Bounds `json:"unit_price_bounds"`
}

// Dropped returns drop counts keyed by reason.
func (s Stats) Dropped() map[string]int {
	return map[string]int{
		"missing_customer":      s.DroppedMissingCustomer,
		"missing_description":   s.DroppedMissingDesc,
		"invalid_date":          s.DroppedInvalidDate,
		"non_positive_quantity": s.DroppedNonPositiveQty,
		"non_positive_price":    s.DroppedNonPositivePrice,
		"quantity_outlier":      s.DroppedQuantityOutlier,
		"price_outlier":         s.DroppedPriceOutlier,
	}
}

type Result struct {
	Records []CleanedRecord
	Stats   Stats
}

type Service interface {
	Clean(ctx context.Context, lines []ingestdomain.RawOrderLine) Result
}
