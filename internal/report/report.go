package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/smallbiznis/retaillens/internal/insights/domain"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

var ErrUnsupportedFormat = errors.New("unsupported_format")

func ParseFormat(value string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(value))); f {
	case FormatJSON, FormatYAML, FormatCSV, FormatPDF:
		return f, nil
	case "yml":
		return FormatYAML, nil
	case "":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, value)
	}
}

// Summary bundles the aggregates exported by the report command.
type Summary struct {
	GeneratedAt  time.Time               `json:"generated_at" yaml:"generated_at"`
	Start        string                  `json:"start,omitempty" yaml:"start,omitempty"`
	End          string                  `json:"end,omitempty" yaml:"end,omitempty"`
	KPIs         domain.KPIs             `json:"kpis" yaml:"kpis"`
	TopProducts  []domain.ProductRank    `json:"top_products" yaml:"top_products"`
	TopCountries []domain.CountryRank    `json:"top_countries" yaml:"top_countries"`
	Monthly      []domain.MonthlyRevenue `json:"monthly_revenue" yaml:"monthly_revenue"`
}

// Build collects a Summary for r from the insights service.
func Build(ctx context.Context, svc domain.Service, r domain.DateRange, topN int, now time.Time) (Summary, error) {
	kpis, err := svc.KPIs(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("kpis: %w", err)
	}
	products, err := svc.TopProducts(ctx, r, topN, domain.SortByRevenue)
	if err != nil {
		return Summary{}, fmt.Errorf("top products: %w", err)
	}
	countries, err := svc.TopCountries(ctx, r, topN)
	if err != nil {
		return Summary{}, fmt.Errorf("top countries: %w", err)
	}
	monthly, err := svc.MonthlyRevenue(ctx, r)
	if err != nil {
		return Summary{}, fmt.Errorf("monthly revenue: %w", err)
	}

	s := Summary{
		GeneratedAt:  now.UTC(),
		KPIs:         kpis,
		TopProducts:  products,
		TopCountries: countries,
		Monthly:      monthly,
	}
	if !r.Start.IsZero() {
		s.Start = r.Start.Format(domain.DateLayout)
	}
	if !r.End.IsZero() {
		s.End = r.End.Format(domain.DateLayout)
	}
	return s, nil
}

// Render writes s to w in the requested format.
func Render(w io.Writer, s Summary, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	case FormatCSV:
		return renderCSV(w, s)
	case FormatPDF:
		return renderPDF(w, s)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

var csvHeader = []string{"section", "label", "metric", "value"}

// renderCSV flattens every section into section,label,metric,value rows.
func renderCSV(w io.Writer, s Summary) error {
	writer := csv.NewWriter(w)
	rows := [][]string{csvHeader}

	kpi := func(label string, v domain.KPIValue) {
		rows = append(rows,
			[]string{"kpi", label, "current", v.Current.String()},
			[]string{"kpi", label, "previous", v.Previous.String()},
			[]string{"kpi", label, "delta_pct", formatDelta(v.DeltaPct)},
		)
	}
	kpi("total_revenue", s.KPIs.TotalRevenue)
	kpi("total_orders", s.KPIs.TotalOrders)
	kpi("avg_order_value", s.KPIs.AvgOrderValue)
	kpi("unique_customers", s.KPIs.UniqueCustomers)

	for _, p := range s.TopProducts {
		label := p.StockCode + " " + p.ProductName
		rows = append(rows,
			[]string{"top_product", label, "revenue", p.Revenue.String()},
			[]string{"top_product", label, "quantity", strconv.FormatInt(p.Quantity, 10)},
			[]string{"top_product", label, "orders", strconv.FormatInt(p.Orders, 10)},
		)
	}
	for _, c := range s.TopCountries {
		rows = append(rows,
			[]string{"top_country", c.Slug, "revenue", c.Revenue.String()},
			[]string{"top_country", c.Slug, "orders", strconv.FormatInt(c.Orders, 10)},
			[]string{"top_country", c.Slug, "customers", strconv.FormatInt(c.Customers, 10)},
		)
	}
	for _, m := range s.Monthly {
		label := monthLabel(m)
		rows = append(rows,
			[]string{"monthly_revenue", label, "revenue", m.Revenue.String()},
			[]string{"monthly_revenue", label, "orders", strconv.FormatInt(m.Orders, 10)},
		)
	}

	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	return writer.Error()
}

func formatDelta(delta *float64) string {
	if delta == nil {
		return ""
	}
	return strconv.FormatFloat(*delta, 'f', 1, 64)
}

func monthLabel(m domain.MonthlyRevenue) string {
	return fmt.Sprintf("%04d-%02d", m.Year, m.Month)
}
