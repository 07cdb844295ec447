package metrics

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// PublisherRecorder forwards each operation event to a Publisher as a
// StatsD-style counter or timing.
type PublisherRecorder struct {
	publisher types.Publisher
}

func NewPublisherRecorder(publisher types.Publisher) *PublisherRecorder {
	return &PublisherRecorder{publisher: publisher}
}

func (r *PublisherRecorder) RecordHit(tier string, key string, latency time.Duration) {
	r.publisher.Incr("cache.get", TierTag(tier), StatusTag("hit"))
	r.publisher.Timing("cache.get.latency", latency, StatusTag("hit"))
}

func (r *PublisherRecorder) RecordMiss(key string, latency time.Duration) {
	r.publisher.Incr("cache.get", StatusTag("miss"))
	r.publisher.Timing("cache.get.latency", latency, StatusTag("miss"))
}

func (r *PublisherRecorder) RecordSet(tiers []string, key string, size int, latency time.Duration) {
	for _, tier := range tiers {
		r.publisher.Incr("cache.set", TierTag(tier))
	}
	r.publisher.Count("cache.set.bytes", int64(size))
	r.publisher.Timing("cache.set.latency", latency)
}

func (r *PublisherRecorder) RecordDelete(key string, latency time.Duration) {
	r.publisher.Incr("cache.delete")
	r.publisher.Timing("cache.delete.latency", latency)
}

func (r *PublisherRecorder) RecordError(tier string, operation string, err error) {
	r.publisher.Incr("cache.error", TierTag(tier), OperationTag(operation))
}

func (r *PublisherRecorder) RecordPromotion(from, to string) {
	r.publisher.Incr("cache.promotion", Tag("from", from), Tag("to", to))
}

func (r *PublisherRecorder) RecordEviction(tier string) {
	r.publisher.Incr("cache.eviction", TierTag(tier))
}

// RecordCircuitBreakerStateChange also raises an event so breaker trips
// show up on dashboards.
func (r *PublisherRecorder) RecordCircuitBreakerStateChange(tier, from, to string) {
	tags := transitionTags(tier, from, to)
	r.publisher.Incr("circuit.transition", tags...)

	alert := "info"
	if to == "open" {
		alert = "warning"
	}
	r.publisher.Event("Circuit breaker "+to, "tier "+tier+" moved from "+from+" to "+to, alert, tags...)
}

var _ types.MetricsRecorder = (*PublisherRecorder)(nil)
