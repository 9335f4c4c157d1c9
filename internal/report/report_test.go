package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/retaillens/internal/insights/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleSummary() Summary {
	delta := 560.0
	return Summary{
		GeneratedAt: time.Date(2011, 12, 10, 8, 0, 0, 0, time.UTC),
		Start:       "2011-01-01",
		End:         "2011-01-31",
		KPIs: domain.KPIs{
			TotalRevenue: domain.KPIValue{
				Current:  decimal.RequireFromString("33"),
				Previous: decimal.RequireFromString("5"),
				DeltaPct: &delta,
			},
			TotalOrders: domain.KPIValue{Current: decimal.NewFromInt(2)},
		},
		TopProducts: []domain.ProductRank{
			{StockCode: "A1", ProductName: "Widget", Revenue: decimal.RequireFromString("35"), Quantity: 7, Orders: 3},
		},
		TopCountries: []domain.CountryRank{
			{Country: "United Kingdom", Slug: "united-kingdom", Revenue: decimal.RequireFromString("48"), Orders: 3, Customers: 2},
		},
		Monthly: []domain.MonthlyRevenue{
			{Year: 2011, Month: 1, Revenue: decimal.RequireFromString("33"), Orders: 2},
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("YML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	_, err = ParseFormat("docx")
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSummary(), FormatJSON))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2011-01-01", decoded["start"])
	kpis := decoded["kpis"].(map[string]any)
	revenue := kpis["total_revenue"].(map[string]any)
	assert.Equal(t, 560.0, revenue["delta_pct"])
	assert.Nil(t, kpis["total_orders"].(map[string]any)["delta_pct"])
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSummary(), FormatYAML))

	var decoded struct {
		End          string `yaml:"end"`
		TopCountries []struct {
			Slug string `yaml:"slug"`
		} `yaml:"top_countries"`
	}
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "2011-01-31", decoded.End)
	require.Len(t, decoded.TopCountries, 1)
	assert.Equal(t, "united-kingdom", decoded.TopCountries[0].Slug)
}

func TestRenderCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSummary(), FormatCSV))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, csvHeader, rows[0])
	assert.Contains(t, rows, []string{"kpi", "total_revenue", "delta_pct", "560.0"})
	assert.Contains(t, rows, []string{"kpi", "total_orders", "delta_pct", ""})
	assert.Contains(t, rows, []string{"top_product", "A1 Widget", "quantity", "7"})
	assert.Contains(t, rows, []string{"top_country", "united-kingdom", "customers", "2"})
	assert.Contains(t, rows, []string{"monthly_revenue", "2011-01", "revenue", "33"})
}

func TestRenderPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, sampleSummary(), FormatPDF))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
}

func TestRenderUnknownFormat(t *testing.T) {
	err := Render(&bytes.Buffer{}, sampleSummary(), Format("docx"))
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
}

type stubInsights struct {
	domain.Service
	kpisErr error
}

func (s stubInsights) KPIs(context.Context, domain.DateRange) (domain.KPIs, error) {
	return sampleSummary().KPIs, s.kpisErr
}

func (stubInsights) TopProducts(context.Context, domain.DateRange, int, string) ([]domain.ProductRank, error) {
	return sampleSummary().TopProducts, nil
}

func (stubInsights) TopCountries(context.Context, domain.DateRange, int) ([]domain.CountryRank, error) {
	return sampleSummary().TopCountries, nil
}

func (stubInsights) MonthlyRevenue(context.Context, domain.DateRange) ([]domain.MonthlyRevenue, error) {
	return sampleSummary().Monthly, nil
}

func TestBuild(t *testing.T) {
	now := time.Date(2011, 12, 10, 15, 0, 0, 0, time.FixedZone("WIB", 7*3600))
	r := domain.DateRange{Start: time.Date(2011, 1, 1, 0, 0, 0, 0, time.UTC)}

	s, err := Build(context.Background(), stubInsights{}, r, 5, now)
	require.NoError(t, err)
	assert.Equal(t, "2011-01-01", s.Start)
	assert.Empty(t, s.End)
	assert.Equal(t, time.UTC, s.GeneratedAt.Location())
	assert.Len(t, s.TopProducts, 1)

	boom := errors.New("boom")
	_, err = Build(context.Background(), stubInsights{kpisErr: boom}, r, 5, now)
	assert.ErrorIs(t, err, boom)
}
