package service

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	calendardomain "github.com/smallbiznis/retaillens/internal/calendar/domain"
	cleaningdomain "github.com/smallbiznis/retaillens/internal/cleaning/domain"
	customerdomain "github.com/smallbiznis/retaillens/internal/customer/domain"
	productdomain "github.com/smallbiznis/retaillens/internal/product/domain"
)

func strPtr(s string) *string { return &s }

func record(invoice, customer, stock, desc string, country *string, ts time.Time) cleaningdomain.CleanedRecord {
	price := decimal.RequireFromString("1.25")
	return cleaningdomain.CleanedRecord{
		InvoiceNo:   invoice,
		StockCode:   stock,
		Description: desc,
		Quantity:    4,
		UnitPrice:   price,
		TotalPrice:  price.Mul(decimal.NewFromInt(4)),
		InvoiceDate: ts,
		CustomerID:  customer,
		Country:     country,
		Day:         ts.Day(),
		Month:       int(ts.Month()),
		Year:        ts.Year(),
		Hour:        ts.Hour(),
		Minute:      ts.Minute(),
	}
}

func TestDecomposeFirstSeenWins(t *testing.T) {
	t1 := time.Date(2011, 1, 5, 10, 30, 0, 0, time.UTC)
	t2 := time.Date(2011, 1, 5, 10, 31, 0, 0, time.UTC)

	records := []cleaningdomain.CleanedRecord{
		record("1", "100", "A1", "Widget", strPtr("France"), t1),
		record("2", "100", "A1", "Widget v2", strPtr("Spain"), t2),
		record("3", "200", "B2", "Gadget", nil, t1),
		record("4", "300", "B2", "Gadget", strPtr(""), t1.Add(30*time.Second)),
	}

	got := Decompose(records, "Unknown")

	wantCustomers := []customerdomain.Customer{
		{CustomerID: "100", Country: "France"},
		{CustomerID: "200", Country: "Unknown"},
		{CustomerID: "300", Country: "Unknown"},
	}
	if diff := cmp.Diff(wantCustomers, got.Customers); diff != "" {
		t.Fatalf("customers mismatch (-want +got):\n%s", diff)
	}

	wantProducts := []productdomain.Product{
		{StockCode: "A1", Description: "Widget"},
		{StockCode: "B2", Description: "Gadget"},
	}
	if diff := cmp.Diff(wantProducts, got.Products); diff != "" {
		t.Fatalf("products mismatch (-want +got):\n%s", diff)
	}

	// Seconds are not part of the key, so record 4 shares record 1's slot.
	wantKeys := []calendardomain.Key{
		{Day: 5, Month: 1, Year: 2011, Hour: 10, Minute: 30},
		{Day: 5, Month: 1, Year: 2011, Hour: 10, Minute: 31},
	}
	if diff := cmp.Diff(wantKeys, got.TimeKeys); diff != "" {
		t.Fatalf("time keys mismatch (-want +got):\n%s", diff)
	}
	if len(got.Records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(got.Records))
	}
}

func TestDecomposeEmpty(t *testing.T) {
	got := Decompose(nil, "Unknown")
	if len(got.Customers)+len(got.Products)+len(got.TimeKeys) != 0 {
		t.Fatalf("expected empty batches, got %+v", got)
	}
}
