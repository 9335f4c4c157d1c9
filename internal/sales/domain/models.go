package domain

import (
	"context"

	"github.com/shopspring/decimal"
	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
	"gorm.io/gorm"
)

// Sale is one fact row. A fact is identified by invoice, customer, product
// and time slot; the surrogate id is only used for ordering.
type Sale struct {
	ID         int64           `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	InvoiceNo  string          `gorm:"column:invoice_no;size:32;not null;uniqueIndex:ux_sales_natural,priority:1" json:"invoice_no"`
	CustomerID string          `gorm:"column:customer_id;size:32;not null;index;uniqueIndex:ux_sales_natural,priority:2" json:"customer_id"`
	StockCode  string          `gorm:"column:stock_code;size:32;not null;index;uniqueIndex:ux_sales_natural,priority:3" json:"stock_code"`
	TimeID     int64           `gorm:"column:time_id;not null;index;uniqueIndex:ux_sales_natural,priority:4" json:"time_id"`
	Quantity   int64           `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice  decimal.Decimal `gorm:"column:unit_price;type:numeric(12,4);not null" json:"unit_price"`
	TotalPrice decimal.Decimal `gorm:"column:total_price;type:numeric(14,4);not null" json:"total_price"`

	// Only carried so AutoMigrate declares the foreign keys; never loaded.
	Customer *customerdomain.Customer `gorm:"foreignKey:CustomerID;references:CustomerID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Product  *productdomain.Product   `gorm:"foreignKey:StockCode;references:StockCode;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
	Time     *calendardomain.TimeSlot `gorm:"foreignKey:TimeID;references:TimeID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT" json:"-"`
}

func (Sale) TableName() string { return "sales" }

type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, sales []Sale) (int64, error)
	Count(ctx context.Context, db *gorm.DB) (int64, error)
}
