package metrics

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// MultiRecorder fans every event out to several recorders in order.
type MultiRecorder []types.MetricsRecorder

// NewMultiRecorder drops nil recorders. With a single recorder left it is
// returned as is.
func NewMultiRecorder(recorders ...types.MetricsRecorder) types.MetricsRecorder {
	var out MultiRecorder
	for _, r := range recorders {
		if r != nil {
			out = append(out, r)
		}
	}
	switch len(out) {
	case 0:
		return NewNoOpTracker()
	case 1:
		return out[0]
	}
	return out
}

func (m MultiRecorder) RecordHit(tier string, key string, latency time.Duration) {
	for _, r := range m {
		r.RecordHit(tier, key, latency)
	}
}

func (m MultiRecorder) RecordMiss(key string, latency time.Duration) {
	for _, r := range m {
		r.RecordMiss(key, latency)
	}
}

func (m MultiRecorder) RecordSet(tiers []string, key string, size int, latency time.Duration) {
	for _, r := range m {
		r.RecordSet(tiers, key, size, latency)
	}
}

func (m MultiRecorder) RecordDelete(key string, latency time.Duration) {
	for _, r := range m {
		r.RecordDelete(key, latency)
	}
}

func (m MultiRecorder) RecordError(tier string, operation string, err error) {
	for _, r := range m {
		r.RecordError(tier, operation, err)
	}
}

func (m MultiRecorder) RecordPromotion(from, to string) {
	for _, r := range m {
		r.RecordPromotion(from, to)
	}
}

func (m MultiRecorder) RecordEviction(tier string) {
	for _, r := range m {
		r.RecordEviction(tier)
	}
}

func (m MultiRecorder) RecordCircuitBreakerStateChange(tier, from, to string) {
	for _, r := range m {
		r.RecordCircuitBreakerStateChange(tier, from, to)
	}
}

var _ types.MetricsRecorder = MultiRecorder(nil)
