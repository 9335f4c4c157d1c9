package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
	"gorm.io/gorm"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("reason", "price_outlier"),
		attribute.String("customer_id", "17850"),
		attribute.String("entity", "sales"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	for _, attr := range attrs {
		if attr.Key == "customer_id" {
			t.Fatalf("expected customer_id to be dropped")
		}
	}
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "retaillens"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordRead(ctx, "csv", 10)
	m.RecordDropped(ctx, "price_outlier", 2)
	m.RecordInserted(ctx, "sales", 8)
	m.RecordRun(ctx, "run", "succeeded")
	m.RecordCacheLookup(ctx, "kpis", true)

	var nilMetrics *Metrics
	nilMetrics.RecordRead(ctx, "csv", 1)
}

func TestPipelineMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewPipelineMetrics(registry, registry, Config{ServiceName: "retaillens", Environment: "test"})

	m.AddRowsDropped("quantity_outlier", 3)
	m.AddRowsDropped("custom_reason", 1)
	m.AddRowsInserted("customer", 5)
	m.AddRowsProcessed("clean", 0)

	if got := testutil.ToFloat64(m.rowsDropped.WithLabelValues("quantity_outlier")); got != 3 {
		t.Fatalf("expected 3 dropped, got %v", got)
	}
	if got := testutil.ToFloat64(m.rowsDropped.WithLabelValues("custom_reason")); got != 1 {
		t.Fatalf("expected 1 dropped, got %v", got)
	}
	if got := testutil.ToFloat64(m.rowsInserted.WithLabelValues("customer")); got != 5 {
		t.Fatalf("expected 5 inserted, got %v", got)
	}

	finished := time.Date(2011, 12, 9, 12, 50, 0, 0, time.UTC)
	m.ObserveJob("run", time.Second, nil, finished)
	m.ObserveJob("run", time.Second, errors.New("boom"), finished)
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("run")); got != float64(finished.Unix()) {
		t.Fatalf("expected last success %v, got %v", finished.Unix(), got)
	}
	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("run", "failed")); got != 1 {
		t.Fatalf("expected 1 failed run, got %v", got)
	}
	if m.Gatherer() != registry {
		t.Fatalf("expected gatherer to be the test registry")
	}
}

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: JobReasonDeadlineExceeded},
		{name: "source", err: fmt.Errorf("open: %w", ingestdomain.ErrSourceUnavailable), want: JobReasonSourceUnavailable},
		{name: "connectivity", err: &pgconn.PgError{Code: "08006"}, want: JobReasonConnectivity},
		{name: "unique_violation", err: gorm.ErrDuplicatedKey, want: JobReasonUniqueViolation},
		{name: "db", err: &pgconn.PgError{Code: "42P01"}, want: JobReasonDB},
		{name: "unknown", err: errors.New("boom"), want: JobReasonUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}
