package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	"github.com/smallbiznis/retaillens/internal/sales/domain"
	"github.com/smallbiznis/retaillens/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func sale(invoice string, timeID int64, qty int64) domain.Sale {
	price := decimal.RequireFromString("2.50")
	return domain.Sale{
		InvoiceNo:  invoice,
		CustomerID: "12345",
		StockCode:  "A1",
		TimeID:     timeID,
		Quantity:   qty,
		UnitPrice:  price,
		TotalPrice: price.Mul(decimal.NewFromInt(qty)),
	}
}

func newStore(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&domain.Sale{}))

	require.NoError(t, conn.Create(&customerdomain.Customer{CustomerID: "12345", Country: "France"}).Error)
	require.NoError(t, conn.Create(&productdomain.Product{StockCode: "A1", Description: "Widget"}).Error)
	require.NoError(t, conn.Create(&[]calendardomain.TimeSlot{
		{TimeID: 1, Day: 1, Month: 1, Year: 2011, Hour: 9},
		{TimeID: 2, Day: 2, Month: 1, Year: 2011, Hour: 9},
	}).Error)
	return conn
}

func TestInsertIfAbsentUsesNaturalKey(t *testing.T) {
	conn := newStore(t)

	repo := Provide()
	ctx := context.Background()

	n, err := repo.InsertIfAbsent(ctx, conn, []domain.Sale{sale("1", 1, 2), sale("1", 2, 2)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Same key with a different quantity is not an update.
	n, err = repo.InsertIfAbsent(ctx, conn, []domain.Sale{sale("1", 1, 9), sale("2", 1, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var stored domain.Sale
	require.NoError(t, conn.Where("invoice_no = ? AND time_id = ?", "1", 1).First(&stored).Error)
	assert.Equal(t, int64(2), stored.Quantity)
	assert.True(t, stored.TotalPrice.Equal(decimal.RequireFromString("5")))

	count, err := repo.Count(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestInsertRejectsUnknownDimensionKeys(t *testing.T) {
	conn := newStore(t)
	repo := Provide()
	ctx := context.Background()

	orphan := sale("9", 1, 1)
	orphan.CustomerID = "99999"
	_, err := repo.InsertIfAbsent(ctx, conn, []domain.Sale{orphan})
	assert.Error(t, err)

	_, err = repo.InsertIfAbsent(ctx, conn, []domain.Sale{sale("9", 42, 1)})
	assert.Error(t, err)

	count, err := repo.Count(ctx, conn)
	require.NoError(t, err)
	assert.Zero(t, count)
}
