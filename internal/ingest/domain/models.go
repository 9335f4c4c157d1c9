package domain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// RawOrderLine is one row of the transactional export before cleaning.
// Nil pointers are missing values.
type RawOrderLine struct {
	InvoiceNo   string
	StockCode   string
	Description *string
	Quantity    int64
	UnitPrice   decimal.Decimal
	InvoiceDate time.Time
	CustomerID  *string
	Country     *string
}

// ReadStats counts cell-level problems that were coerced rather than raised.
type ReadStats struct {
	Rows               int `json:"rows"`
	InvalidQuantity    int `json:"invalid_quantity"`
	InvalidUnitPrice   int `json:"invalid_unit_price"`
	InvalidInvoiceDate int `json:"invalid_invoice_date"`
}

type Reader interface {
	Read(ctx context.Context) ([]RawOrderLine, ReadStats, error)
}

const (
	ColumnInvoiceNo   = "InvoiceNo"
	ColumnStockCode   = "StockCode"
	ColumnDescription = "Description"
	ColumnQuantity    = "Quantity"
	ColumnUnitPrice   = "UnitPrice"
	ColumnInvoiceDate = "InvoiceDate"
	ColumnCustomerID  = "CustomerID"
	ColumnCountry     = "Country"
)

// RequiredColumns lists the source columns the cleaner depends on.
var RequiredColumns = []string{
	ColumnInvoiceNo,
	ColumnStockCode,
	ColumnDescription,
	ColumnQuantity,
	ColumnUnitPrice,
	ColumnInvoiceDate,
	ColumnCustomerID,
	ColumnCountry,
}

var (
	ErrSourceUnavailable = errors.New("source_unavailable")
	ErrMissingColumn     = errors.New("missing_column")
	ErrUnsupportedFormat = errors.New("unsupported_format")
)
