package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallbiznis/retaillens/internal/ingest/domain"
	"github.com/xuri/excelize/v2"
)

const ctxCheckEvery = 1000

// Options configures a file source.
type Options struct {
	Path             string
	Sheet            string
	TimestampLayouts []string
}

// New picks a reader from the file extension.
func New(opts Options) (domain.Reader, error) {
	switch strings.ToLower(filepath.Ext(opts.Path)) {
	case ".csv":
		return &CSVReader{opts: opts}, nil
	case ".xlsx", ".xlsm":
		return &XLSXReader{opts: opts}, nil
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, opts.Path)
	}
}

// CSVReader reads a comma-separated export with a header row.
type CSVReader struct {
	opts Options
}

func NewCSVReader(opts Options) *CSVReader {
	return &CSVReader{opts: opts}
}

func (r *CSVReader) Read(ctx context.Context) ([]domain.RawOrderLine, domain.ReadStats, error) {
	f, err := os.Open(r.opts.Path)
	if err != nil {
		return nil, domain.ReadStats{}, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	return ReadCSV(ctx, f, r.opts.TimestampLayouts)
}

// ReadCSV decodes raw order lines from any CSV stream.
func ReadCSV(ctx context.Context, in io.Reader, layouts []string) ([]domain.RawOrderLine, domain.ReadStats, error) {
	reader := csv.NewReader(in)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, domain.ReadStats{}, fmt.Errorf("%w: empty file", domain.ErrMissingColumn)
		}
		return nil, domain.ReadStats{}, fmt.Errorf("%w: read header: %v", domain.ErrSourceUnavailable, err)
	}

	decoder, err := newRowDecoder(header, layouts)
	if err != nil {
		return nil, domain.ReadStats{}, err
	}

	lines := []domain.RawOrderLine{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, decoder.stats, fmt.Errorf("%w: read row %d: %v", domain.ErrSourceUnavailable, decoder.stats.Rows+2, err)
		}
		if decoder.stats.Rows%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, decoder.stats, err
			}
		}
		lines = append(lines, decoder.decode(record))
	}
	return lines, decoder.stats, nil
}

// XLSXReader streams rows from one sheet of a workbook.
type XLSXReader struct {
	opts Options
}

func NewXLSXReader(opts Options) *XLSXReader {
	return &XLSXReader{opts: opts}
}

func (r *XLSXReader) Read(ctx context.Context) ([]domain.RawOrderLine, domain.ReadStats, error) {
	f, err := excelize.OpenFile(r.opts.Path)
	if err != nil {
		return nil, domain.ReadStats{}, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer f.Close()

	sheet := strings.TrimSpace(r.opts.Sheet)
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return nil, domain.ReadStats{}, fmt.Errorf("%w: sheet %q: %v", domain.ErrSourceUnavailable, sheet, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, domain.ReadStats{}, fmt.Errorf("%w: sheet %q is empty", domain.ErrMissingColumn, sheet)
	}
	header, err := rows.Columns()
	if err != nil {
		return nil, domain.ReadStats{}, fmt.Errorf("%w: read header: %v", domain.ErrSourceUnavailable, err)
	}

	decoder, err := newRowDecoder(header, r.opts.TimestampLayouts)
	if err != nil {
		return nil, domain.ReadStats{}, err
	}

	lines := []domain.RawOrderLine{}
	for rows.Next() {
		cells, err := rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, decoder.stats, fmt.Errorf("%w: read row %d: %v", domain.ErrSourceUnavailable, decoder.stats.Rows+2, err)
		}
		if len(cells) == 0 {
			continue
		}
		if decoder.stats.Rows%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, decoder.stats, err
			}
		}
		lines = append(lines, decoder.decode(cells))
	}
	if err := rows.Error(); err != nil {
		return nil, decoder.stats, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return lines, decoder.stats, nil
}
