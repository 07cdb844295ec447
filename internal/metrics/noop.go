package metrics

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// NoOpTracker discards every metric.
type NoOpTracker struct{}

func NewNoOpTracker() *NoOpTracker {
	return &NoOpTracker{}
}

func (t *NoOpTracker) RecordHit(tier string, key string, latency time.Duration)              {}
func (t *NoOpTracker) RecordMiss(key string, latency time.Duration)                          {}
func (t *NoOpTracker) RecordSet(tiers []string, key string, size int, latency time.Duration) {}
func (t *NoOpTracker) RecordDelete(key string, latency time.Duration)                        {}
func (t *NoOpTracker) RecordError(tier string, operation string, err error)                  {}
func (t *NoOpTracker) RecordPromotion(from, to string)                                       {}
func (t *NoOpTracker) RecordEviction(tier string)                                            {}
func (t *NoOpTracker) RecordCircuitBreakerStateChange(tier, from, to string)                 {}

// Snapshot returns empty metrics.
func (t *NoOpTracker) Snapshot() types.MetricsSnapshot { return types.MetricsSnapshot{} }

// NoOpPublisher is the publisher used when no backend is configured.
type NoOpPublisher struct{}

// NewNoOpPublisher creates a new no-op publisher.
func NewNoOpPublisher() *NoOpPublisher {
	return &NoOpPublisher{}
}

func (p *NoOpPublisher) Gauge(name string, value float64, tags ...string)           {}
func (p *NoOpPublisher) Incr(name string, tags ...string)                           {}
func (p *NoOpPublisher) Count(name string, value int64, tags ...string)             {}
func (p *NoOpPublisher) Histogram(name string, value float64, tags ...string)       {}
func (p *NoOpPublisher) Timing(name string, duration time.Duration, tags ...string) {}
func (p *NoOpPublisher) Event(title, text, alertType string, tags ...string)        {}
func (p *NoOpPublisher) PublishHealthMetrics(metrics *types.PublisherHealthMetrics) {}
func (p *NoOpPublisher) Close() error                                               { return nil }

var _ types.MetricsRecorder = (*NoOpTracker)(nil)
var _ types.Publisher = (*NoOpPublisher)(nil)
