package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosimple/slug"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/cache"
	"github.com/smallbiznis/retaillens/internal/insights/domain"
	"github.com/smallbiznis/retaillens/internal/observability/logger"
	"github.com/smallbiznis/retaillens/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultTopN = 10
	maxTopN     = 100
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Cache   cache.Cache      `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	cache   cache.Cache
	metrics *metrics.Metrics
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.Noop()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("insights.service"),
		cache:   c,
		metrics: p.Metrics,
	}
}

const salesOverviewQuery = `
SELECT
    pd.description AS product_name,
    pd.stock_code AS stockcode,
    sls.quantity AS quantity,
    sls.unit_price AS unitprice,
    sls.total_price AS totalprice,
    c.country AS country,
    t.year AS year,
    t.month AS month,
    t.day AS day,
    COUNT(DISTINCT sls.invoice_no) AS total_orders,
    COUNT(DISTINCT sls.customer_id) AS unique_customers
FROM sales sls
JOIN product pd ON sls.stock_code = pd.stock_code
JOIN customer c ON c.customer_id = sls.customer_id
JOIN time t ON t.time_id = sls.time_id
%s
GROUP BY pd.description, pd.stock_code, sls.quantity, sls.unit_price,
    sls.total_price, c.country, t.year, t.month, t.day
ORDER BY t.year, t.month, t.day, pd.stock_code`

// SalesOverview runs the downstream read query: one row per product, country,
// day and price point, with distinct order and customer counts.
func (s *Service) SalesOverview(ctx context.Context, filter domain.SalesFilter) ([]domain.SalesRow, error) {
	if err := filter.Range.Validate(); err != nil {
		return nil, err
	}
	if filter.Limit < 0 {
		return nil, domain.ErrInvalidLimit
	}
	filter.Country = strings.TrimSpace(filter.Country)

	key := fmt.Sprintf("sales:%s:%s:%d", rangeKey(filter.Range), strings.ToLower(filter.Country), filter.Limit)
	return cached(ctx, s, "sales", key, func() ([]domain.SalesRow, error) {
		conds, args := rangeConditions(filter.Range)
		if filter.Country != "" {
			conds = append(conds, "c.country = ?")
			args = append(args, filter.Country)
		}
		query := fmt.Sprintf(salesOverviewQuery, where(conds))
		if filter.Limit > 0 {
			query += " LIMIT ?"
			args = append(args, filter.Limit)
		}

		rows := []domain.SalesRow{}
		if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		return rows, nil
	})
}

type totals struct {
	Revenue   decimal.Decimal
	Orders    int64
	Customers int64
}

func (s *Service) totals(ctx context.Context, r domain.DateRange) (totals, error) {
	conds, args := rangeConditions(r)
	query := `
SELECT
    COALESCE(SUM(s.total_price), 0) AS revenue,
    COUNT(DISTINCT s.invoice_no) AS orders,
    COUNT(DISTINCT s.customer_id) AS customers
FROM sales s
JOIN time t ON t.time_id = s.time_id
` + where(conds)

	var out totals
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return totals{}, err
	}
	out.Revenue = out.Revenue.Round(2)
	return out, nil
}

// KPIs compares r with the period of equal length right before it. Without
// both bounds there is no previous period and every delta is nil.
func (s *Service) KPIs(ctx context.Context, r domain.DateRange) (domain.KPIs, error) {
	if err := r.Validate(); err != nil {
		return domain.KPIs{}, err
	}
	return cached(ctx, s, "kpis", "kpis:"+rangeKey(r), func() (domain.KPIs, error) {
		current, err := s.totals(ctx, r)
		if err != nil {
			return domain.KPIs{}, err
		}
		var previous totals
		if r.Bounded() {
			if previous, err = s.totals(ctx, r.Previous()); err != nil {
				return domain.KPIs{}, err
			}
		}

		return domain.KPIs{
			Range:        r,
			TotalRevenue: kpi(current.Revenue, previous.Revenue),
			TotalOrders:  kpi(decimal.NewFromInt(current.Orders), decimal.NewFromInt(previous.Orders)),
			AvgOrderValue: kpi(
				avgOrderValue(current.Revenue, current.Orders),
				avgOrderValue(previous.Revenue, previous.Orders),
			),
			UniqueCustomers: kpi(decimal.NewFromInt(current.Customers), decimal.NewFromInt(previous.Customers)),
		}, nil
	})
}

var productSortColumns = map[string]string{
	domain.SortByRevenue:  "revenue",
	domain.SortByQuantity: "quantity",
	domain.SortByOrders:   "orders",
}

func (s *Service) TopProducts(ctx context.Context, r domain.DateRange, n int, sortBy string) ([]domain.ProductRank, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n, err := normalizeTopN(n)
	if err != nil {
		return nil, err
	}
	if sortBy == "" {
		sortBy = domain.SortByRevenue
	}
	column, ok := productSortColumns[sortBy]
	if !ok {
		return nil, domain.ErrInvalidSortBy
	}

	key := fmt.Sprintf("top-products:%s:%d:%s", rangeKey(r), n, sortBy)
	return cached(ctx, s, "top_products", key, func() ([]domain.ProductRank, error) {
		conds, args := rangeConditions(r)
		query := `
SELECT
    p.stock_code AS stock_code,
    p.description AS product_name,
    COALESCE(SUM(s.total_price), 0) AS revenue,
    COALESCE(SUM(s.quantity), 0) AS quantity,
    COUNT(DISTINCT s.invoice_no) AS orders
FROM sales s
JOIN product p ON p.stock_code = s.stock_code
JOIN time t ON t.time_id = s.time_id
` + where(conds) + `
GROUP BY p.stock_code, p.description
ORDER BY ` + column + ` DESC, p.stock_code
LIMIT ?`

		rows := []domain.ProductRank{}
		if err := s.db.WithContext(ctx).Raw(query, append(args, n)...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].Revenue = rows[i].Revenue.Round(2)
		}
		return rows, nil
	})
}

func (s *Service) TopCountries(ctx context.Context, r domain.DateRange, n int) ([]domain.CountryRank, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n, err := normalizeTopN(n)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("top-countries:%s:%d", rangeKey(r), n)
	return cached(ctx, s, "top_countries", key, func() ([]domain.CountryRank, error) {
		conds, args := rangeConditions(r)
		query := `
SELECT
    c.country AS country,
    COALESCE(SUM(s.total_price), 0) AS revenue,
    COUNT(DISTINCT s.invoice_no) AS orders,
    COUNT(DISTINCT s.customer_id) AS customers
FROM sales s
JOIN customer c ON c.customer_id = s.customer_id
JOIN time t ON t.time_id = s.time_id
` + where(conds) + `
GROUP BY c.country
ORDER BY revenue DESC, c.country
LIMIT ?`

		rows := []domain.CountryRank{}
		if err := s.db.WithContext(ctx).Raw(query, append(args, n)...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].Revenue = rows[i].Revenue.Round(2)
			rows[i].Slug = slug.Make(rows[i].Country)
		}
		return rows, nil
	})
}

func (s *Service) MonthlyRevenue(ctx context.Context, r domain.DateRange) ([]domain.MonthlyRevenue, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return cached(ctx, s, "monthly_revenue", "monthly:"+rangeKey(r), func() ([]domain.MonthlyRevenue, error) {
		conds, args := rangeConditions(r)
		query := `
SELECT
    t.year AS year,
    t.month AS month,
    COALESCE(SUM(s.total_price), 0) AS revenue,
    COUNT(DISTINCT s.invoice_no) AS orders
FROM sales s
JOIN time t ON t.time_id = s.time_id
` + where(conds) + `
GROUP BY t.year, t.month
ORDER BY t.year, t.month`

		rows := []domain.MonthlyRevenue{}
		if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		for i := range rows {
			rows[i].Revenue = rows[i].Revenue.Round(2)
		}
		return rows, nil
	})
}

var trendGranularities = map[string]bool{
	domain.GranularityDay:   true,
	domain.GranularityWeek:  true,
	domain.GranularityMonth: true,
	domain.GranularityYear:  true,
}

type dayInvoice struct {
	Year      int
	Month     int
	Day       int
	InvoiceNo string
	Revenue   decimal.Decimal
}

// RevenueTrend buckets revenue and distinct orders by day, ISO week, month or
// year. An empty granularity means month.
func (s *Service) RevenueTrend(ctx context.Context, r domain.DateRange, granularity string) ([]domain.TrendPoint, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	granularity = strings.ToLower(strings.TrimSpace(granularity))
	if granularity == "" {
		granularity = domain.GranularityMonth
	}
	if !trendGranularities[granularity] {
		return nil, domain.ErrInvalidGranularity
	}

	key := fmt.Sprintf("trend:%s:%s", granularity, rangeKey(r))
	return cached(ctx, s, "revenue_trend", key, func() ([]domain.TrendPoint, error) {
		conds, args := rangeConditions(r)
		// ISO weeks are not portable across SQL dialects, so rows come back per
		// day and invoice and are bucketed here.
		query := `
SELECT
    t.year AS year,
    t.month AS month,
    t.day AS day,
    s.invoice_no AS invoice_no,
    COALESCE(SUM(s.total_price), 0) AS revenue
FROM sales s
JOIN time t ON t.time_id = s.time_id
` + where(conds) + `
GROUP BY t.year, t.month, t.day, s.invoice_no
ORDER BY t.year, t.month, t.day, s.invoice_no`

		var rows []dayInvoice
		if err := s.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
			return nil, err
		}
		return bucketTrend(rows, granularity), nil
	})
}

// bucketTrend expects rows in date order.
func bucketTrend(rows []dayInvoice, granularity string) []domain.TrendPoint {
	points := []domain.TrendPoint{}
	index := map[string]int{}
	invoices := map[string]map[string]struct{}{}

	for _, row := range rows {
		day := time.Date(row.Year, time.Month(row.Month), row.Day, 0, 0, 0, 0, time.UTC)
		period, start := trendPeriod(day, granularity)

		i, ok := index[period]
		if !ok {
			i = len(points)
			index[period] = i
			invoices[period] = map[string]struct{}{}
			points = append(points, domain.TrendPoint{
				Period:  period,
				Start:   start.Format(domain.DateLayout),
				Revenue: decimal.Zero,
			})
		}
		points[i].Revenue = points[i].Revenue.Add(row.Revenue)
		invoices[period][row.InvoiceNo] = struct{}{}
	}

	for i := range points {
		points[i].Revenue = points[i].Revenue.Round(2)
		points[i].Orders = int64(len(invoices[points[i].Period]))
	}
	return points
}

func trendPeriod(day time.Time, granularity string) (string, time.Time) {
	switch granularity {
	case domain.GranularityDay:
		return day.Format(domain.DateLayout), day
	case domain.GranularityWeek:
		year, week := day.ISOWeek()
		monday := day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
		return fmt.Sprintf("%d-W%02d", year, week), monday
	case domain.GranularityYear:
		return day.Format("2006"), time.Date(day.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	default:
		return day.Format("2006-01"), time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
}

// cached serves from the query cache and fills it on a miss. Cache failures
// never fail the query.
func cached[T any](ctx context.Context, s *Service, query, key string, load func() (T, error)) (T, error) {
	log := logger.WithContext(ctx, s.log)

	var hit T
	ok, err := s.cache.Get(ctx, key, &hit)
	if err != nil {
		log.Warn("cache read failed", zap.String("key", key), zap.Error(err))
	}
	s.metrics.RecordCacheLookup(ctx, query, ok)
	if ok {
		return hit, nil
	}

	value, err := load()
	if err != nil {
		return value, err
	}
	if err := s.cache.Set(ctx, key, value); err != nil {
		log.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
	return value, nil
}

func dateKey(year, month, day int) int {
	return year*10000 + month*100 + day
}

// rangeConditions filters on the calendar fields of the time dimension.
func rangeConditions(r domain.DateRange) ([]string, []any) {
	var (
		conds []string
		args  []any
	)
	expr := "(t.year * 10000 + t.month * 100 + t.day)"
	if !r.Start.IsZero() {
		conds = append(conds, expr+" >= ?")
		args = append(args, dateKey(r.Start.Year(), int(r.Start.Month()), r.Start.Day()))
	}
	if !r.End.IsZero() {
		conds = append(conds, expr+" <= ?")
		args = append(args, dateKey(r.End.Year(), int(r.End.Month()), r.End.Day()))
	}
	return conds, args
}

func where(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(conds, " AND ")
}

func rangeKey(r domain.DateRange) string {
	bound := func(t time.Time) string {
		if t.IsZero() {
			return "*"
		}
		return t.Format(domain.DateLayout)
	}
	return bound(r.Start) + ":" + bound(r.End)
}

func normalizeTopN(n int) (int, error) {
	switch {
	case n == 0:
		return defaultTopN, nil
	case n < 0 || n > maxTopN:
		return 0, domain.ErrInvalidLimit
	default:
		return n, nil
	}
}

func avgOrderValue(revenue decimal.Decimal, orders int64) decimal.Decimal {
	if orders <= 0 {
		return decimal.Zero
	}
	return revenue.DivRound(decimal.NewFromInt(orders), 2)
}

func kpi(current, previous decimal.Decimal) domain.KPIValue {
	v := domain.KPIValue{Current: current, Previous: previous}
	if !previous.IsZero() {
		delta := current.Sub(previous).Div(previous).Mul(decimal.NewFromInt(100)).Round(1).InexactFloat64()
		v.DeltaPct = &delta
	}
	return v
}
