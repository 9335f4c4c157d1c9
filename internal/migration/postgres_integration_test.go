package migration

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	calendarrepo "github.com/smallbiznis/retaillens/internal/calendar/repository"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	"github.com/smallbiznis/retaillens/internal/config"
	customerrepo "github.com/smallbiznis/retaillens/internal/customer/repository"
	productrepo "github.com/smallbiznis/retaillens/internal/product/repository"
	salesrepo "github.com/smallbiznis/retaillens/internal/sales/repository"
	warehouseservice "github.com/smallbiznis/retaillens/internal/warehouse/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func startPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode (requires Docker)")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_DB":       "retail",
				"POSTGRES_USER":     "retail",
				"POSTGRES_PASSWORD": "retail",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=retail password=retail dbname=retail sslmode=disable TimeZone=UTC", host, port.Port())
	conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	return conn
}

func TestPostgresMigrationsAndLoad(t *testing.T) {
	conn := startPostgres(t)
	require.NoError(t, Apply(conn))
	require.NoError(t, Apply(conn))

	loader := warehouseservice.New(warehouseservice.Params{
		DB:           conn,
		Log:          zap.NewNop(),
		Cfg:          config.DefaultPipelineConfig(),
		CustomerRepo: customerrepo.Provide(),
		ProductRepo:  productrepo.Provide(),
		CalendarRepo: calendarrepo.Provide(),
		SalesRepo:    salesrepo.Provide(),
	})

	ts := time.Date(2011, 12, 9, 12, 50, 0, 0, time.UTC)
	price := decimal.RequireFromString("4.95")
	records := []cleaningdomain.CleanedRecord{{
		InvoiceNo:   "581587",
		StockCode:   "23256",
		Description: "CHILDRENS CUTLERY SPACEBOY",
		Quantity:    4,
		UnitPrice:   price,
		TotalPrice:  price.Mul(decimal.NewFromInt(4)),
		InvoiceDate: ts,
		CustomerID:  "12680",
		Day:         9,
		Month:       12,
		Year:        2011,
		Hour:        12,
		Minute:      50,
	}}

	ctx := context.Background()
	stats, err := loader.Load(ctx, records)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Facts.Inserted)

	stats, err = loader.Load(ctx, records)
	require.NoError(t, err)
	assert.Zero(t, stats.Facts.Inserted)

	counts, err := loader.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Sales)
	assert.Equal(t, int64(1), counts.TimeSlots)
}
