// Package datadog provides a DataDog StatsD metrics publisher.
package datadog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"

	"github.com/DataDog/datadog-go/v5/statsd"
)

// Publisher sends cache metrics to a DataDog agent over StatsD.
type Publisher struct {
	baseTags []string
	client   *statsd.Client
	logger   *slog.Logger
}

// NewPublisher creates a DataDog publisher, or a NoOpPublisher when DataDog
// is disabled.
func NewPublisher(cfg *config.DataDogConfig, logger *slog.Logger) (types.Publisher, error) {
	if !cfg.Enabled {
		return &NoOpPublisher{}, nil
	}

	if logger == nil {
		logger = slog.Default()
	}

	addr := fmt.Sprintf("%s:%d", cfg.AgentHost, cfg.Port)

	client, err := statsd.New(addr,
		statsd.WithNamespace(cfg.Prefix+"."),
		statsd.WithTags(cfg.Tags),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create statsd client: %w", err)
	}

	logger.Info("DataDog publisher initialized",
		"address", addr,
		"prefix", cfg.Prefix,
		"tags", cfg.Tags,
	)

	return &Publisher{
		client:   client,
		baseTags: cfg.Tags,
		logger:   logger.With("component", "datadog"),
	}, nil
}

// Gauge records a point-in-time value.
func (p *Publisher) Gauge(name string, value float64, tags ...string) {
	p.report("gauge", name, p.client.Gauge(name, value, p.mergeTags(tags), 1))
}

// Incr increments a counter by one.
func (p *Publisher) Incr(name string, tags ...string) {
	p.report("incr", name, p.client.Incr(name, p.mergeTags(tags), 1))
}

func (p *Publisher) Count(name string, value int64, tags ...string) {
	p.report("count", name, p.client.Count(name, value, p.mergeTags(tags), 1))
}

func (p *Publisher) Histogram(name string, value float64, tags ...string) {
	p.report("histogram", name, p.client.Histogram(name, value, p.mergeTags(tags), 1))
}

func (p *Publisher) Timing(name string, duration time.Duration, tags ...string) {
	p.report("timing", name, p.client.Timing(name, duration, p.mergeTags(tags), 1))
}

// Event sends a DataDog event. alertType is one of info, warning, error or
// success.
func (p *Publisher) Event(title, text, alertType string, tags ...string) {
	p.report("event", title, p.client.Event(&statsd.Event{
		Title:     title,
		Text:      text,
		AlertType: statsd.EventAlertType(alertType),
		Tags:      p.mergeTags(tags),
	}))
}

// report logs send failures at Debug. StatsD is best effort.
func (p *Publisher) report(kind, name string, err error) {
	if err != nil {
		p.logger.Debug("Failed to send metric", "kind", kind, "name", name, "error", err)
	}
}

// PublishHealthMetrics publishes the aggregate gauges and one gauge set per
// tier, tagged with the tier name.
func (p *Publisher) PublishHealthMetrics(m *types.PublisherHealthMetrics) {
	if m == nil {
		return
	}

	p.Gauge("entries.total", float64(m.TotalEntries))
	p.Gauge("performance.hit_ratio", clamp(m.HitRatio, 0, 1))
	p.Gauge("performance.average_latency_ms", maxFloat(0, m.AverageLatencyMs))
	p.Gauge("performance.p99_latency_ms", maxFloat(0, m.P99LatencyMs))
	p.Gauge("temperature.hot_keys", float64(m.HotKeys))
	p.Gauge("temperature.cold_keys", float64(m.ColdKeys))
	p.Gauge("coherency.pending_repairs", float64(m.PendingRepairs))

	for _, t := range m.Tiers {
		tier := "tier:" + t.Name
		available := 0.0
		if t.Available {
			available = 1.0
		}
		p.Gauge("tier.available", available, tier, "circuit_state:"+t.CircuitState)
		p.Gauge("tier.entries", float64(t.Entries), tier)
		p.Gauge("tier.used_bytes", float64(t.SizeBytes), tier)
		p.Gauge("tier.hit_ratio", clamp(t.HitRatio, 0, 1), tier)
		if t.MaxSizeBytes > 0 {
			p.Gauge("tier.limit_bytes", float64(t.MaxSizeBytes), tier)
			p.Gauge("tier.usage_percentage", clamp(float64(t.SizeBytes)/float64(t.MaxSizeBytes)*100, 0, 100), tier)
		}
	}
}

// Close releases resources held by the publisher.
func (p *Publisher) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

func (p *Publisher) mergeTags(tags []string) []string {
	if len(tags) == 0 {
		return p.baseTags
	}
	if len(p.baseTags) == 0 {
		return tags
	}
	merged := make([]string, 0, len(p.baseTags)+len(tags))
	merged = append(merged, p.baseTags...)
	return append(merged, tags...)
}

func clamp(val, minVal, maxVal float64) float64 {
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Ensure Publisher implements the interface
var _ types.Publisher = (*Publisher)(nil)
