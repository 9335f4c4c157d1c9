package source

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/ingest/domain"
	"github.com/xuri/excelize/v2"
)

// rowDecoder maps positional cells to RawOrderLine fields. Cell-level
// problems are counted and coerced to values the cleaner will drop.
type rowDecoder struct {
	index   map[string]int
	layouts []string
	stats   domain.ReadStats
}

func newRowDecoder(header []string, layouts []string) (*rowDecoder, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		key := normalizeColumn(name)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			index[key] = i
		}
	}

	resolved := make(map[string]int, len(domain.RequiredColumns))
	for _, column := range domain.RequiredColumns {
		pos, ok := index[normalizeColumn(column)]
		if !ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingColumn, column)
		}
		resolved[column] = pos
	}

	return &rowDecoder{index: resolved, layouts: layouts}, nil
}

func (d *rowDecoder) decode(cells []string) domain.RawOrderLine {
	d.stats.Rows++

	line := domain.RawOrderLine{
		InvoiceNo:   strings.TrimSpace(d.cell(cells, domain.ColumnInvoiceNo)),
		StockCode:   strings.TrimSpace(d.cell(cells, domain.ColumnStockCode)),
		Description: optionalText(d.cell(cells, domain.ColumnDescription)),
		CustomerID:  normalizeCustomerID(d.cell(cells, domain.ColumnCustomerID)),
		Country:     optionalText(d.cell(cells, domain.ColumnCountry)),
	}

	quantity, ok := parseQuantity(d.cell(cells, domain.ColumnQuantity))
	if !ok {
		d.stats.InvalidQuantity++
	}
	line.Quantity = quantity

	price, err := decimal.NewFromString(strings.TrimSpace(d.cell(cells, domain.ColumnUnitPrice)))
	if err != nil {
		d.stats.InvalidUnitPrice++
		price = decimal.Zero
	}
	line.UnitPrice = price

	invoiceDate, ok := parseTimestamp(d.cell(cells, domain.ColumnInvoiceDate), d.layouts)
	if !ok {
		d.stats.InvalidInvoiceDate++
	}
	line.InvoiceDate = invoiceDate

	return line
}

func (d *rowDecoder) cell(cells []string, column string) string {
	pos := d.index[column]
	if pos >= len(cells) {
		return ""
	}
	return cells[pos]
}

func normalizeColumn(name string) string {
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "")
	return strings.ReplaceAll(name, "_", "")
}

func optionalText(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "nan") {
		return nil
	}
	return &value
}

// normalizeCustomerID turns spreadsheet floats such as "17850.0" into "17850".
func normalizeCustomerID(value string) *string {
	id := optionalText(value)
	if id == nil {
		return nil
	}
	if f, err := strconv.ParseFloat(*id, 64); err == nil && f == math.Trunc(f) && !strings.ContainsAny(*id, "eE") {
		normalized := strconv.FormatInt(int64(f), 10)
		return &normalized
	}
	return id
}

func parseQuantity(value string) (int64, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which no int64 holds.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// parseTimestamp accepts the configured layouts and raw Excel serial dates.
func parseTimestamp(value string, layouts []string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	if serial, err := strconv.ParseFloat(value, 64); err == nil && serial > 0 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Round(time.Second), true
		}
	}
	return time.Time{}, false
}
