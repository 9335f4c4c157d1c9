package telemetry

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/retaillens/internal/config"
	"go.uber.org/zap"
)

const defaultPushTimeout = 5 * time.Second

// Pusher ships batch-job metrics after a run. Implementations must not start
// background goroutines.
type Pusher interface {
	Push(ctx context.Context, gatherer prometheus.Gatherer) error
}

// NewPusher returns nil when no Pushgateway is configured.
func NewPusher(cfg config.Config, logger *zap.Logger) Pusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	endpoint := strings.TrimSpace(cfg.PushgatewayURL)
	if endpoint == "" {
		return nil
	}
	return NewPushgatewayPusher(endpoint, cfg.AppName, map[string]string{
		"environment": strings.TrimSpace(cfg.Environment),
	}, logger)
}

// PushgatewayPusher sends metrics to a Prometheus Pushgateway.
type PushgatewayPusher struct {
	endpoint string
	job      string
	grouping map[string]string
	log      *zap.Logger
}

// NewPushgatewayPusher returns a pusher for Prometheus Pushgateway.
func NewPushgatewayPusher(endpoint, job string, grouping map[string]string, logger *zap.Logger) *PushgatewayPusher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushgatewayPusher{
		endpoint: endpoint,
		job:      strings.TrimSpace(job),
		grouping: grouping,
		log:      logger.Named("telemetry.pushgateway"),
	}
}

// Push sends the current gatherer metrics to the Pushgateway, replacing the
// previous push of the same job and grouping.
func (p *PushgatewayPusher) Push(ctx context.Context, gatherer prometheus.Gatherer) error {
	if p == nil || gatherer == nil {
		return nil
	}
	if strings.TrimSpace(p.endpoint) == "" {
		return errors.New("pushgateway endpoint is required")
	}
	if p.job == "" {
		return errors.New("pushgateway job is required")
	}

	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	if len(families) == 0 {
		return nil
	}

	pusher := push.New(p.endpoint, p.job).Gatherer(gatherer)
	for key, value := range p.grouping {
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		pusher = pusher.Grouping(key, value)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	if err := pusher.PushContext(ctx); err != nil {
		return err
	}
	p.log.Debug("metrics pushed",
		zap.String("job", p.job),
		zap.Int("families", len(families)),
		zap.Int("series", CountSeries(families)),
	)
	return nil
}

// CountSeries returns the number of samples across the gathered families.
func CountSeries(families []*dto.MetricFamily) int {
	total := 0
	for _, family := range families {
		total += len(family.GetMetric())
	}
	return total
}
