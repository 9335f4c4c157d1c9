package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	ingestdomain "github.com/smallbiznis/retaillens/internal/ingest/domain"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded  = "deadline_exceeded"
	JobReasonSourceUnavailable = "source_unavailable"
	JobReasonConnectivity      = "connectivity"
	JobReasonUniqueViolation   = "unique_violation"
	JobReasonDB                = "db"
	JobReasonUnknown           = "unknown"
)

// PipelineMetrics captures batch-job health for the ETL runs.
type PipelineMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobErrors      *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
	rowsProcessed  *prometheus.CounterVec
	rowsDropped    *prometheus.CounterVec
	rowsInserted   *prometheus.CounterVec
	registry       prometheus.Gatherer
	droppedReasons map[string]prometheus.Counter
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registered on the default registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = NewPipelineMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer, cfg)
	})
	return pipelineMetrics
}

// NewPipelineMetrics registers pipeline collectors on the given registerer.
func NewPipelineMetrics(registerer prometheus.Registerer, gatherer prometheus.Gatherer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "retaillens"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "retaillens_etl_job_runs_total",
		Help:        "ETL job runs by kind and status.",
		ConstLabels: constLabels,
	}, []string{"job", "status"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "retaillens_etl_job_duration_seconds",
		Help:        "ETL job latency by kind.",
		Buckets:     []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600, 1800},
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "retaillens_etl_job_errors_total",
		Help:        "ETL job errors by stage and low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "stage", "reason"})
	lastSuccess := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "retaillens_etl_last_success_timestamp_seconds",
		Help:        "Unix time of the last successful ETL job.",
		ConstLabels: constLabels,
	}, []string{"job"})
	rowsProcessed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "retaillens_etl_rows_processed_total",
		Help:        "Rows handled by stage.",
		ConstLabels: constLabels,
	}, []string{"stage"})
	rowsDropped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "retaillens_etl_rows_dropped_total",
		Help:        "Rows dropped by the cleaner and loader by reason.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	rowsInserted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "retaillens_warehouse_rows_inserted_total",
		Help:        "Warehouse rows inserted by entity.",
		ConstLabels: constLabels,
	}, []string{"entity"})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobErrors,
		lastSuccess,
		rowsProcessed,
		rowsDropped,
		rowsInserted,
	)

	droppedReasons := map[string]prometheus.Counter{}
	for _, reason := range []string{
		"missing_customer",
		"missing_description",
		"non_positive_quantity",
		"non_positive_price",
		"quantity_outlier",
		"price_outlier",
		"unresolved_time_key",
	} {
		droppedReasons[reason] = rowsDropped.WithLabelValues(reason)
	}

	return &PipelineMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobErrors:      jobErrors,
		lastSuccess:    lastSuccess,
		rowsProcessed:  rowsProcessed,
		rowsDropped:    rowsDropped,
		rowsInserted:   rowsInserted,
		registry:       gatherer,
		droppedReasons: droppedReasons,
	}
}

// Gatherer returns the gatherer the collectors were registered with.
func (m *PipelineMetrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.DefaultGatherer
	}
	return m.registry
}

// ObserveJob records a finished job run.
func (m *PipelineMetrics) ObserveJob(job string, duration time.Duration, err error, finishedAt time.Time) {
	if m == nil {
		return
	}
	status := "succeeded"
	if err != nil {
		status = "failed"
	}
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

// IncJobError increments the job error counter with classification.
func (m *PipelineMetrics) IncJobError(job, stage string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, stage, ClassifyJobReason(err)).Inc()
}

// AddRowsProcessed adds to the processed counter of a stage.
func (m *PipelineMetrics) AddRowsProcessed(stage string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsProcessed.WithLabelValues(stage).Add(float64(count))
}

// AddRowsDropped adds to the dropped counter of a reason.
func (m *PipelineMetrics) AddRowsDropped(reason string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if counter, ok := m.droppedReasons[reason]; ok {
		counter.Add(float64(count))
		return
	}
	m.rowsDropped.WithLabelValues(reason).Add(float64(count))
}

// AddRowsInserted adds to the inserted counter of a warehouse entity.
func (m *PipelineMetrics) AddRowsInserted(entity string, count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.rowsInserted.WithLabelValues(entity).Add(float64(count))
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if errors.Is(err, ingestdomain.ErrSourceUnavailable) || errors.Is(err, ingestdomain.ErrMissingColumn) {
		return JobReasonSourceUnavailable
	}
	if isConnectivityError(err) {
		return JobReasonConnectivity
	}
	if isUniqueViolation(err) {
		return JobReasonUniqueViolation
	}
	if isDBError(err) {
		return JobReasonDB
	}
	return JobReasonUnknown
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func isConnectivityError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var connectErr *pgconn.ConnectError
	return errors.As(err, &connectErr)
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}
	return errors.Is(err, gorm.ErrInvalidTransaction) || errors.Is(err, gorm.ErrInvalidDB)
}
