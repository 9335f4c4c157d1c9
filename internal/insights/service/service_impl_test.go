package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/cache"
	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	"github.com/smallbiznis/retaillens/internal/insights/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	salesdomain "github.com/smallbiznis/retaillens/internal/sales/domain"
	"github.com/smallbiznis/retaillens/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seedWarehouse(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&calendardomain.TimeSlot{},
		&salesdomain.Sale{},
	))

	require.NoError(t, conn.Create(&[]customerdomain.Customer{
		{CustomerID: "C1", Country: "United Kingdom"},
		{CustomerID: "C2", Country: "France"},
		{CustomerID: "C3", Country: "United Kingdom"},
	}).Error)
	require.NoError(t, conn.Create(&[]productdomain.Product{
		{StockCode: "A1", Description: "Widget"},
		{StockCode: "B2", Description: "Gadget"},
	}).Error)

	slots := []calendardomain.TimeSlot{
		{TimeID: 1, Day: 25, Month: 12, Year: 2010, Hour: 9, Minute: 0},
		{TimeID: 2, Day: 10, Month: 1, Year: 2011, Hour: 10, Minute: 0},
		{TimeID: 3, Day: 20, Month: 1, Year: 2011, Hour: 11, Minute: 0},
		{TimeID: 4, Day: 5, Month: 2, Year: 2011, Hour: 9, Minute: 30},
	}
	require.NoError(t, conn.Create(&slots).Error)

	sale := func(invoice, customer, stock string, timeID, qty int64, price string) salesdomain.Sale {
		p := dec(price)
		return salesdomain.Sale{
			InvoiceNo:  invoice,
			CustomerID: customer,
			StockCode:  stock,
			TimeID:     timeID,
			Quantity:   qty,
			UnitPrice:  p,
			TotalPrice: p.Mul(decimal.NewFromInt(qty)),
		}
	}
	require.NoError(t, conn.Create(&[]salesdomain.Sale{
		sale("inv0", "C1", "A1", 1, 1, "5"),
		sale("inv1", "C1", "A1", 2, 2, "5"),
		sale("inv1", "C1", "B2", 2, 1, "3"),
		sale("inv2", "C2", "A1", 3, 4, "5"),
		sale("inv3", "C3", "B2", 4, 10, "3"),
	}).Error)
	return conn
}

func newService(conn *gorm.DB, c cache.Cache) domain.Service {
	return New(Params{DB: conn, Log: zap.NewNop(), Cache: c})
}

func TestKPIsComparePreviousPeriod(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)

	kpis, err := svc.KPIs(context.Background(), domain.DateRange{Start: day(2011, 1, 1), End: day(2011, 1, 31)})
	require.NoError(t, err)

	assert.True(t, kpis.TotalRevenue.Current.Equal(dec("33")), kpis.TotalRevenue.Current.String())
	assert.True(t, kpis.TotalRevenue.Previous.Equal(dec("5")))
	require.NotNil(t, kpis.TotalRevenue.DeltaPct)
	assert.InDelta(t, 560.0, *kpis.TotalRevenue.DeltaPct, 0.001)

	assert.True(t, kpis.TotalOrders.Current.Equal(dec("2")))
	require.NotNil(t, kpis.TotalOrders.DeltaPct)
	assert.InDelta(t, 100.0, *kpis.TotalOrders.DeltaPct, 0.001)

	assert.True(t, kpis.AvgOrderValue.Current.Equal(dec("16.5")))
	assert.True(t, kpis.UniqueCustomers.Current.Equal(dec("2")))
}

func TestKPIsWithoutPreviousData(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)

	kpis, err := svc.KPIs(context.Background(), domain.DateRange{Start: day(2010, 12, 1), End: day(2010, 12, 31)})
	require.NoError(t, err)
	assert.True(t, kpis.TotalRevenue.Current.Equal(dec("5")))
	assert.Nil(t, kpis.TotalRevenue.DeltaPct)

	unbounded, err := svc.KPIs(context.Background(), domain.DateRange{})
	require.NoError(t, err)
	assert.True(t, unbounded.TotalRevenue.Current.Equal(dec("68")))
	assert.Nil(t, unbounded.TotalOrders.DeltaPct)
}

func TestKPIsRejectsInvertedRange(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)
	_, err := svc.KPIs(context.Background(), domain.DateRange{Start: day(2011, 2, 1), End: day(2011, 1, 1)})
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestTopProducts(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)
	ctx := context.Background()

	byRevenue, err := svc.TopProducts(ctx, domain.DateRange{}, 5, domain.SortByRevenue)
	require.NoError(t, err)
	require.Len(t, byRevenue, 2)
	assert.Equal(t, "A1", byRevenue[0].StockCode)
	assert.Equal(t, "Widget", byRevenue[0].ProductName)
	assert.True(t, byRevenue[0].Revenue.Equal(dec("35")))
	assert.Equal(t, int64(3), byRevenue[0].Orders)

	byQuantity, err := svc.TopProducts(ctx, domain.DateRange{}, 1, domain.SortByQuantity)
	require.NoError(t, err)
	require.Len(t, byQuantity, 1)
	assert.Equal(t, "B2", byQuantity[0].StockCode)
	assert.Equal(t, int64(11), byQuantity[0].Quantity)

	_, err = svc.TopProducts(ctx, domain.DateRange{}, 5, "margin")
	assert.ErrorIs(t, err, domain.ErrInvalidSortBy)
	_, err = svc.TopProducts(ctx, domain.DateRange{}, 1000, "")
	assert.ErrorIs(t, err, domain.ErrInvalidLimit)
}

func TestTopCountriesCarrySlug(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)

	rows, err := svc.TopCountries(context.Background(), domain.DateRange{}, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "United Kingdom", rows[0].Country)
	assert.Equal(t, "united-kingdom", rows[0].Slug)
	assert.True(t, rows[0].Revenue.Equal(dec("48")))
	assert.Equal(t, int64(2), rows[0].Customers)
	assert.Equal(t, "france", rows[1].Slug)
}

func TestMonthlyRevenue(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)

	rows, err := svc.MonthlyRevenue(context.Background(), domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2010, rows[0].Year)
	assert.Equal(t, 12, rows[0].Month)
	assert.True(t, rows[1].Revenue.Equal(dec("33")))
	assert.Equal(t, int64(2), rows[1].Orders)
	assert.Equal(t, 2, rows[2].Month)
}

func TestRevenueTrendBuckets(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)
	ctx := context.Background()

	type point struct {
		period, start, revenue string
		orders                 int64
	}
	cases := []struct {
		granularity string
		r           domain.DateRange
		want        []point
	}{
		{
			granularity: domain.GranularityDay,
			want: []point{
				{"2010-12-25", "2010-12-25", "5", 1},
				{"2011-01-10", "2011-01-10", "13", 1},
				{"2011-01-20", "2011-01-20", "20", 1},
				{"2011-02-05", "2011-02-05", "30", 1},
			},
		},
		{
			granularity: domain.GranularityWeek,
			want: []point{
				{"2010-W51", "2010-12-20", "5", 1},
				{"2011-W02", "2011-01-10", "13", 1},
				{"2011-W03", "2011-01-17", "20", 1},
				{"2011-W05", "2011-01-31", "30", 1},
			},
		},
		{
			granularity: domain.GranularityMonth,
			want: []point{
				{"2010-12", "2010-12-01", "5", 1},
				{"2011-01", "2011-01-01", "33", 2},
				{"2011-02", "2011-02-01", "30", 1},
			},
		},
		{
			granularity: domain.GranularityYear,
			want: []point{
				{"2010", "2010-01-01", "5", 1},
				{"2011", "2011-01-01", "63", 3},
			},
		},
		{
			granularity: "",
			r:           domain.DateRange{Start: day(2011, 1, 1), End: day(2011, 1, 31)},
			want: []point{
				{"2011-01", "2011-01-01", "33", 2},
			},
		},
	}

	for _, tc := range cases {
		t.Run("granularity="+tc.granularity, func(t *testing.T) {
			rows, err := svc.RevenueTrend(ctx, tc.r, tc.granularity)
			require.NoError(t, err)
			require.Len(t, rows, len(tc.want))
			for i, want := range tc.want {
				assert.Equal(t, want.period, rows[i].Period)
				assert.Equal(t, want.start, rows[i].Start)
				assert.True(t, rows[i].Revenue.Equal(dec(want.revenue)), rows[i].Revenue.String())
				assert.Equal(t, want.orders, rows[i].Orders)
			}
		})
	}
}

func TestRevenueTrendRejectsUnknownGranularity(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)

	_, err := svc.RevenueTrend(context.Background(), domain.DateRange{}, "quarter")
	assert.ErrorIs(t, err, domain.ErrInvalidGranularity)

	_, err = svc.RevenueTrend(context.Background(), domain.DateRange{Start: day(2011, 2, 1), End: day(2011, 1, 1)}, "day")
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestTrendPeriodUsesISOWeekYear(t *testing.T) {
	period, start := trendPeriod(day(2011, 1, 1), domain.GranularityWeek)
	assert.Equal(t, "2010-W52", period)
	assert.Equal(t, day(2010, 12, 27), start)

	period, start = trendPeriod(day(2011, 1, 2), domain.GranularityWeek)
	assert.Equal(t, "2010-W52", period)
	assert.Equal(t, day(2010, 12, 27), start)
}

func TestSalesOverview(t *testing.T) {
	svc := newService(seedWarehouse(t), nil)
	ctx := context.Background()

	rows, err := svc.SalesOverview(ctx, domain.SalesFilter{
		Range: domain.DateRange{Start: day(2011, 1, 1), End: day(2011, 1, 31)},
	})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	first := rows[0]
	assert.Equal(t, "Widget", first.ProductName)
	assert.Equal(t, "A1", first.StockCode)
	assert.Equal(t, int64(2), first.Quantity)
	assert.True(t, first.TotalPrice.Equal(dec("10")))
	assert.Equal(t, "United Kingdom", first.Country)
	assert.Equal(t, 10, first.Day)
	assert.Equal(t, int64(1), first.TotalOrders)
	assert.Equal(t, int64(1), first.UniqueCustomers)
	assert.Equal(t, "B2", rows[1].StockCode)
	assert.Equal(t, 20, rows[2].Day)

	france, err := svc.SalesOverview(ctx, domain.SalesFilter{Country: "France"})
	require.NoError(t, err)
	require.Len(t, france, 1)
	assert.Equal(t, "France", france[0].Country)

	limited, err := svc.SalesOverview(ctx, domain.SalesFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestResultsAreCachedUntilInvalidated(t *testing.T) {
	conn := seedWarehouse(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	c := cache.NewRedisCache(client, cache.DefaultTTL, zap.NewNop())

	svc := newService(conn, c)
	ctx := context.Background()

	before, err := svc.MonthlyRevenue(ctx, domain.DateRange{})
	require.NoError(t, err)
	require.Len(t, before, 3)

	require.NoError(t, conn.Where("invoice_no = ?", "inv3").Delete(&salesdomain.Sale{}).Error)

	cached, err := svc.MonthlyRevenue(ctx, domain.DateRange{})
	require.NoError(t, err)
	assert.Len(t, cached, 3)

	require.NoError(t, c.Invalidate(ctx))
	fresh, err := svc.MonthlyRevenue(ctx, domain.DateRange{})
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
