package metrics

import (
	"log/slog"
	"sync/atomic"

	"github.com/LavishGent/tiercache/internal/types"
)

// Reporter turns a metrics collection into a health payload and hands it to
// a publisher. It owns no goroutine; the analytics task calls Publish.
type Reporter struct {
	publisher types.Publisher
	logger    *slog.Logger
	collect   func() *types.DetailedMetrics
	published atomic.Int64
}

// NewReporter creates a reporter. collect is called once per Publish.
func NewReporter(
	publisher types.Publisher,
	collect func() *types.DetailedMetrics,
	logger *slog.Logger,
) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = NewNoOpPublisher()
	}

	return &Reporter{
		publisher: publisher,
		collect:   collect,
		logger:    logger.With("component", "metrics-reporter"),
	}
}

// Publish collects and publishes one health sample. Panics in the collector
// or the publisher are logged and swallowed.
func (r *Reporter) Publish() {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Recovered from panic in metrics reporter", "panic", rec)
		}
	}()

	if r.collect == nil {
		return
	}

	timer := NewTimer(r.publisher, "analytics.collect")
	detailed := r.collect()
	timer.Stop()
	if detailed == nil {
		return
	}

	r.publisher.PublishHealthMetrics(HealthPayload(detailed))
	r.published.Add(1)
}

// Published returns how many samples have been handed to the publisher.
func (r *Reporter) Published() int64 {
	return r.published.Load()
}

// HealthPayload flattens detailed metrics into the publisher payload.
func HealthPayload(d *types.DetailedMetrics) *types.PublisherHealthMetrics {
	m := &types.PublisherHealthMetrics{
		Tiers:            make([]types.TierHealthSample, 0, len(d.Tiers)),
		HitRatio:         d.Operations.HitRatio(),
		AverageLatencyMs: d.Operations.AvgLatencyMs,
		P99LatencyMs:     d.Operations.P99LatencyMs,
		HotKeys:          d.Temperature.Hot,
		ColdKeys:         d.Temperature.Cold,
		PendingRepairs:   d.PendingReconciliation,
	}
	for _, t := range d.Tiers {
		m.TotalEntries += t.Stats.Entries
		m.Tiers = append(m.Tiers, types.TierHealthSample{
			Name:         t.Name,
			Available:    t.Available,
			CircuitState: t.CircuitState,
			Entries:      t.Stats.Entries,
			SizeBytes:    t.Stats.SizeBytes,
			MaxSizeBytes: t.Stats.MaxSizeBytes,
			HitRatio:     t.Stats.HitRatio(),
		})
	}
	return m
}
