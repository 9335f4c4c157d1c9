package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const DateLayout = "2006-01-02"

var (
	ErrInvalidRange  = errors.New("invalid_date_range")
	ErrInvalidLimit  = errors.New("invalid_limit")
	ErrInvalidSortBy = errors.New("invalid_sort_by")

	ErrInvalidGranularity = errors.New("invalid_granularity")
)

// DateRange is inclusive on both ends. A zero bound is open.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Validate() error {
	if !r.Start.IsZero() && !r.End.IsZero() && r.End.Before(r.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Bounded reports whether both ends are set.
func (r DateRange) Bounded() bool {
	return !r.Start.IsZero() && !r.End.IsZero()
}

// Previous returns the range of equal length that ends the day before Start.
func (r DateRange) Previous() DateRange {
	days := int(r.End.Sub(r.Start).Hours()/24) + 1
	return DateRange{
		Start: r.Start.AddDate(0, 0, -days),
		End:   r.Start.AddDate(0, 0, -1),
	}
}

type SalesFilter struct {
	Range   DateRange
	Country string
	Limit   int
}

// SalesRow is one row of the downstream read query.
type SalesRow struct {
	ProductName     string          `json:"product_name" yaml:"product_name"`
	StockCode       string          `json:"stockcode" gorm:"column:stockcode" yaml:"stockcode"`
	Quantity        int64           `json:"quantity" yaml:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitprice" gorm:"column:unitprice" yaml:"unitprice"`
	TotalPrice      decimal.Decimal `json:"totalprice" gorm:"column:totalprice" yaml:"totalprice"`
	Country         string          `json:"country" yaml:"country"`
	Year            int             `json:"year" yaml:"year"`
	Month           int             `json:"month" yaml:"month"`
	Day             int             `json:"day" yaml:"day"`
	TotalOrders     int64           `json:"total_orders" yaml:"total_orders"`
	UniqueCustomers int64           `json:"unique_customers" yaml:"unique_customers"`
}

type KPIValue struct {
	Current  decimal.Decimal `json:"current" yaml:"current"`
	Previous decimal.Decimal `json:"previous" yaml:"previous"`
	// DeltaPct is nil when the previous value is zero.
	DeltaPct *float64 `json:"delta_pct" yaml:"delta_pct"`
}

type KPIs struct {
	Range           DateRange `json:"-" yaml:"-"`
	TotalRevenue    KPIValue  `json:"total_revenue" yaml:"total_revenue"`
	TotalOrders     KPIValue  `json:"total_orders" yaml:"total_orders"`
	AvgOrderValue   KPIValue  `json:"avg_order_value" yaml:"avg_order_value"`
	UniqueCustomers KPIValue  `json:"unique_customers" yaml:"unique_customers"`
}

const (
	SortByRevenue  = "revenue"
	SortByQuantity = "quantity"
	SortByOrders   = "orders"
)

type ProductRank struct {
	StockCode   string          `json:"stock_code" yaml:"stock_code"`
	ProductName string          `json:"product_name" yaml:"product_name"`
	Revenue     decimal.Decimal `json:"revenue" yaml:"revenue"`
	Quantity    int64           `json:"quantity" yaml:"quantity"`
	Orders      int64           `json:"orders" yaml:"orders"`
}

type CountryRank struct {
	Country   string          `json:"country" yaml:"country"`
	Slug      string          `json:"slug" yaml:"slug"`
	Revenue   decimal.Decimal `json:"revenue" yaml:"revenue"`
	Orders    int64           `json:"orders" yaml:"orders"`
	Customers int64           `json:"customers" yaml:"customers"`
}

type MonthlyRevenue struct {
	Year    int             `json:"year" yaml:"year"`
	Month   int             `json:"month" yaml:"month"`
	Revenue decimal.Decimal `json:"revenue" yaml:"revenue"`
	Orders  int64           `json:"orders" yaml:"orders"`
}

const (
	GranularityDay   = "day"
	GranularityWeek  = "week"
	GranularityMonth = "month"
	GranularityYear  = "year"
)

// TrendPoint is one revenue bucket. Period is 2011-01-10, 2011-W02, 2011-01
// or 2011 depending on the granularity; Start is the first calendar day of
// the bucket.
type TrendPoint struct {
	Period  string          `json:"period" yaml:"period"`
	Start   string          `json:"start" yaml:"start"`
	Revenue decimal.Decimal `json:"revenue" yaml:"revenue"`
	Orders  int64           `json:"orders" yaml:"orders"`
}

type Service interface {
	SalesOverview(ctx context.Context, filter SalesFilter) ([]SalesRow, error)
	KPIs(ctx context.Context, r DateRange) (KPIs, error)
	TopProducts(ctx context.Context, r DateRange, n int, sortBy string) ([]ProductRank, error)
	TopCountries(ctx context.Context, r DateRange, n int) ([]CountryRank, error)
	MonthlyRevenue(ctx context.Context, r DateRange) ([]MonthlyRevenue, error)
	RevenueTrend(ctx context.Context, r DateRange, granularity string) ([]TrendPoint, error)
}
