package service

import (
	"context"
	"errors"
	"testing"
	"time"

	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	calendarrepo "github.com/smallbiznis/retaillens/internal/calendar/repository"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	"github.com/smallbiznis/retaillens/internal/config"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	customerrepo "github.com/smallbiznis/retaillens/internal/customer/repository"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	productrepo "github.com/smallbiznis/retaillens/internal/product/repository"
	salesdomain "github.com/smallbiznis/retaillens/internal/sales/domain"
	salesrepo "github.com/smallbiznis/retaillens/internal/sales/repository"
	"github.com/smallbiznis/retaillens/internal/warehouse/domain"
	"github.com/smallbiznis/retaillens/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingProductRepo struct {
	mock.Mock
}

func (m *failingProductRepo) InsertIfAbsent(ctx context.Context, db *gorm.DB, products []productdomain.Product) (int64, error) {
	args := m.Called(ctx, db, products)
	return args.Get(0).(int64), args.Error(1)
}

func (m *failingProductRepo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	args := m.Called(ctx, db)
	return args.Get(0).(int64), args.Error(1)
}

func setupWarehouse(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := conn.AutoMigrate(
		&customerdomain.Customer{},
		&productdomain.Product{},
		&calendardomain.TimeSlot{},
		&salesdomain.Sale{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func newLoader(conn *gorm.DB, products productdomain.Repository) domain.Loader {
	if products == nil {
		products = productrepo.Provide()
	}
	return New(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		Cfg:          config.DefaultPipelineConfig(),
		CustomerRepo: customerrepo.Provide(),
		ProductRepo:  products,
		CalendarRepo: calendarrepo.Provide(),
		SalesRepo:    salesrepo.Provide(),
	})
}

func sampleRecords() []cleaningdomain.CleanedRecord {
	t1 := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	t2 := time.Date(2010, 12, 1, 9, 2, 0, 0, time.UTC)
	return []cleaningdomain.CleanedRecord{
		record("536365", "17850", "A1", "Widget", strPtr("United Kingdom"), t1),
		record("536365", "17850", "B2", "Gadget", strPtr("United Kingdom"), t1),
		record("536370", "12583", "A1", "Widget v2", nil, t2),
	}
}

func TestLoadWritesAllTables(t *testing.T) {
	conn := setupWarehouse(t)
	loader := newLoader(conn, nil)
	ctx := context.Background()

	stats, err := loader.Load(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Customers.Inserted)
	assert.Equal(t, int64(2), stats.Products.Inserted)
	assert.Equal(t, int64(2), stats.TimeSlots.Inserted)
	assert.Equal(t, int64(3), stats.Facts.Inserted)
	assert.Zero(t, stats.FactsDropped)

	var product productdomain.Product
	require.NoError(t, conn.First(&product, "stock_code = ?", "A1").Error)
	assert.Equal(t, "Widget", product.Description)

	var customer customerdomain.Customer
	require.NoError(t, conn.First(&customer, "customer_id = ?", "12583").Error)
	assert.Equal(t, "Unknown", customer.Country)

	counts, err := loader.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.TableCounts{Customers: 2, Products: 2, TimeSlots: 2, Sales: 3}, counts)
}

func TestLoadTwiceIsIdempotent(t *testing.T) {
	conn := setupWarehouse(t)
	loader := newLoader(conn, nil)
	ctx := context.Background()

	_, err := loader.Load(ctx, sampleRecords())
	require.NoError(t, err)

	stats, err := loader.Load(ctx, sampleRecords())
	require.NoError(t, err)
	assert.Zero(t, stats.Customers.Inserted)
	assert.Zero(t, stats.Products.Inserted)
	assert.Zero(t, stats.TimeSlots.Inserted)
	assert.Zero(t, stats.Facts.Inserted)
	assert.Equal(t, 3, stats.Facts.Candidates)

	counts, err := loader.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), counts.Sales)
}

func TestLoadResolvesPreexistingTimeSlots(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	ts := time.Date(2011, 2, 3, 14, 5, 0, 0, time.UTC)
	existing := calendardomain.TimeSlot{Day: 3, Month: 2, Year: 2011, Hour: 14, Minute: 5}
	require.NoError(t, conn.Create(&existing).Error)

	stats, err := newLoader(conn, nil).Load(ctx, []cleaningdomain.CleanedRecord{
		record("540001", "14000", "C3", "Lamp", strPtr("Germany"), ts),
	})
	require.NoError(t, err)
	assert.Zero(t, stats.TimeSlots.Inserted)
	assert.Equal(t, int64(1), stats.Facts.Inserted)

	var sale salesdomain.Sale
	require.NoError(t, conn.First(&sale, "invoice_no = ?", "540001").Error)
	assert.Equal(t, existing.TimeID, sale.TimeID)
}

func TestLoadStopsAtFailingPhase(t *testing.T) {
	conn := setupWarehouse(t)
	ctx := context.Background()

	boom := errors.New("disk full")
	products := &failingProductRepo{}
	products.On("InsertIfAbsent", mock.Anything, mock.Anything, mock.Anything).Return(int64(0), boom)

	stats, err := newLoader(conn, products).Load(ctx, sampleRecords())
	require.Error(t, err)

	var phaseErr *domain.PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, domain.PhaseProducts, phaseErr.Phase)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, int64(2), stats.Customers.Inserted)

	// Customers committed before the failure; later phases never ran.
	var customers, slots, sales int64
	require.NoError(t, conn.Model(&customerdomain.Customer{}).Count(&customers).Error)
	require.NoError(t, conn.Model(&calendardomain.TimeSlot{}).Count(&slots).Error)
	require.NoError(t, conn.Model(&salesdomain.Sale{}).Count(&sales).Error)
	assert.Equal(t, int64(2), customers)
	assert.Zero(t, slots)
	assert.Zero(t, sales)
	products.AssertExpectations(t)
}

func TestBuildFactsDropsUnresolvedKeys(t *testing.T) {
	records := sampleRecords()
	ids := map[calendardomain.Key]int64{TimeKey(records[0]): 7}

	facts, dropped := buildFacts(records, ids)
	assert.Len(t, facts, 2)
	assert.Equal(t, 1, dropped)
	assert.Equal(t, int64(7), facts[0].TimeID)
}

func TestLoadEmpty(t *testing.T) {
	conn := setupWarehouse(t)
	stats, err := newLoader(conn, nil).Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, domain.LoadStats{}, stats)
}
