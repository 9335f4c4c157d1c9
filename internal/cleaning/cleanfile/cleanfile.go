package cleanfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/cleaning/domain"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
)

const timestampLayout = "2006-01-02 15:04:05"

// Header is the column order of the cleaned flat file.
var Header = []string{
	"InvoiceNo",
	"StockCode",
	"Description",
	"Quantity",
	"UnitPrice",
	"TotalPrice",
	"InvoiceDate",
	"CustomerID",
	"Country",
	"Day",
	"Month",
	"Year",
	"Hour",
	"Minute",
}

// Write encodes records with a header row.
func Write(w io.Writer, records []domain.CleanedRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		country := ""
		if r.Country != nil {
			country = *r.Country
		}
		row := []string{
			r.InvoiceNo,
			r.StockCode,
			r.Description,
			strconv.FormatInt(r.Quantity, 10),
			r.UnitPrice.String(),
			r.TotalPrice.String(),
			r.InvoiceDate.Format(timestampLayout),
			r.CustomerID,
			country,
			strconv.Itoa(r.Day),
			strconv.Itoa(r.Month),
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Hour),
			strconv.Itoa(r.Minute),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile replaces path atomically so a failed run never leaves a
// truncated cleaned file behind.
func WriteFile(path string, records []domain.CleanedRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".cleaned-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := Write(tmp, records); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadResult carries decoded records and rows that could not be decoded.
type ReadResult struct {
	Records []domain.CleanedRecord
	Skipped int
}

// Read decodes a cleaned file. A missing column is fatal; a malformed row is skipped.
func Read(r io.Reader) (ReadResult, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return ReadResult{}, fmt.Errorf("%w: empty file", ingestdomain.ErrMissingColumn)
		}
		return ReadResult{}, fmt.Errorf("%w: read header: %v", ingestdomain.ErrSourceUnavailable, err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, column := range Header {
		if _, ok := index[column]; !ok {
			return ReadResult{}, fmt.Errorf("%w: %s", ingestdomain.ErrMissingColumn, column)
		}
	}

	result := ReadResult{Records: []domain.CleanedRecord{}}
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return ReadResult{}, fmt.Errorf("%w: %v", ingestdomain.ErrSourceUnavailable, err)
		}
		record, ok := decodeRow(row, index)
		if !ok {
			result.Skipped++
			continue
		}
		result.Records = append(result.Records, record)
	}
	return result, nil
}

// ReadFile opens and decodes a cleaned file.
func ReadFile(path string) (ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ReadResult{}, fmt.Errorf("%w: %v", ingestdomain.ErrSourceUnavailable, err)
	}
	defer f.Close()
	return Read(f)
}

func decodeRow(row []string, index map[string]int) (domain.CleanedRecord, bool) {
	get := func(column string) string {
		pos := index[column]
		if pos >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[pos])
	}

	record := domain.CleanedRecord{
		InvoiceNo:   get("InvoiceNo"),
		StockCode:   get("StockCode"),
		Description: get("Description"),
		CustomerID:  get("CustomerID"),
	}
	if record.CustomerID == "" || record.StockCode == "" || record.Description == "" {
		return domain.CleanedRecord{}, false
	}
	if country := get("Country"); country != "" {
		record.Country = &country
	}

	var err error
	if record.Quantity, err = strconv.ParseInt(get("Quantity"), 10, 64); err != nil {
		return domain.CleanedRecord{}, false
	}
	if record.UnitPrice, err = decimal.NewFromString(get("UnitPrice")); err != nil {
		return domain.CleanedRecord{}, false
	}
	if record.TotalPrice, err = decimal.NewFromString(get("TotalPrice")); err != nil {
		return domain.CleanedRecord{}, false
	}
	if record.InvoiceDate, err = time.Parse(timestampLayout, get("InvoiceDate")); err != nil {
		return domain.CleanedRecord{}, false
	}

	parts := []*int{&record.Day, &record.Month, &record.Year, &record.Hour, &record.Minute}
	for i, column := range []string{"Day", "Month", "Year", "Hour", "Minute"} {
		v, err := strconv.Atoi(get(column))
		if err != nil {
			return domain.CleanedRecord{}, false
		}
		*parts[i] = v
	}
	return record, true
}
