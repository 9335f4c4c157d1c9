package repository

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/sales/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const defaultBatchSize = 500

type saleRow struct {
	InvoiceNo  string          `gorm:"column:invoice_no"`
	CustomerID string          `gorm:"column:customer_id"`
	StockCode  string          `gorm:"column:stock_code"`
	TimeID     int64           `gorm:"column:time_id"`
	Quantity   int64           `gorm:"column:quantity"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price"`
	TotalPrice decimal.Decimal `gorm:"column:total_price"`
}

func (saleRow) TableName() string { return "sales" }

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

// InsertIfAbsent writes facts whose natural key is not stored yet. A repeated
// load of the same cleaned file therefore adds nothing.
func (r *repo) InsertIfAbsent(ctx context.Context, db *gorm.DB, sales []domain.Sale) (int64, error) {
	if len(sales) == 0 {
		return 0, nil
	}
	rows := make([]saleRow, len(sales))
	for i, s := range sales {
		rows[i] = saleRow{
			InvoiceNo:  s.InvoiceNo,
			CustomerID: s.CustomerID,
			StockCode:  s.StockCode,
			TimeID:     s.TimeID,
			Quantity:   s.Quantity,
			UnitPrice:  s.UnitPrice,
			TotalPrice: s.TotalPrice,
		}
	}
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "invoice_no"}, {Name: "customer_id"}, {Name: "stock_code"}, {Name: "time_id"},
			},
			DoNothing: true,
		}).
		CreateInBatches(&rows, batchSize(db))
	return res.RowsAffected, res.Error
}

func (r *repo) Count(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Sale{}).Count(&n).Error
	return n, err
}

// batchSize honours a CreateBatchSize set on the session by the caller.
func batchSize(db *gorm.DB) int {
	if db.CreateBatchSize > 0 {
		return db.CreateBatchSize
	}
	return defaultBatchSize
}
