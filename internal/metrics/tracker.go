// Package metrics collects cache operation metrics and publishes them.
package metrics

import (
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

const (
	defaultLatencyBufferSize = 10000
)

// Tracker keeps monotonic in-process counters for every cache operation.
// Counters are never reset while the process runs.
type Tracker struct {
	hitsMu   sync.RWMutex
	tierHits map[string]*atomic.Int64
	misses   atomic.Int64

	getCount    atomic.Int64
	setCount    atomic.Int64
	deleteCount atomic.Int64

	errorCount atomic.Int64

	promotions     atomic.Int64
	evictions      atomic.Int64
	cbStateChanges atomic.Int64

	latencyMu     sync.RWMutex
	latencyBuffer []time.Duration
	latencyIndex  int
	latencyCount  int

	totalBytesWritten atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{
		tierHits:      make(map[string]*atomic.Int64),
		latencyBuffer: make([]time.Duration, defaultLatencyBufferSize),
	}
}

func (t *Tracker) hitCounter(tier string) *atomic.Int64 {
	t.hitsMu.RLock()
	c, ok := t.tierHits[tier]
	t.hitsMu.RUnlock()
	if ok {
		return c
	}

	t.hitsMu.Lock()
	defer t.hitsMu.Unlock()
	if c, ok = t.tierHits[tier]; !ok {
		c = &atomic.Int64{}
		t.tierHits[tier] = c
	}
	return c
}

func (t *Tracker) RecordHit(tier string, key string, latency time.Duration) {
	t.hitCounter(tier).Add(1)
	t.getCount.Add(1)
	t.recordLatency(latency)
}

func (t *Tracker) RecordMiss(key string, latency time.Duration) {
	t.misses.Add(1)
	t.getCount.Add(1)
	t.recordLatency(latency)
}

func (t *Tracker) RecordSet(tiers []string, key string, size int, latency time.Duration) {
	t.setCount.Add(1)
	t.totalBytesWritten.Add(int64(size))
	t.recordLatency(latency)
}

// RecordDelete records a delete operation.
func (t *Tracker) RecordDelete(key string, latency time.Duration) {
	t.deleteCount.Add(1)
	t.recordLatency(latency)
}

// RecordError records a tier failure.
func (t *Tracker) RecordError(tier string, operation string, err error) {
	t.errorCount.Add(1)
}

func (t *Tracker) RecordPromotion(from, to string) {
	t.promotions.Add(1)
}

func (t *Tracker) RecordEviction(tier string) {
	t.evictions.Add(1)
}

// RecordCircuitBreakerStateChange records a breaker transition on any tier.
func (t *Tracker) RecordCircuitBreakerStateChange(tier, from, to string) {
	t.cbStateChanges.Add(1)
}

// recordLatency writes into a fixed ring; old samples are overwritten.
func (t *Tracker) recordLatency(latency time.Duration) {
	t.latencyMu.Lock()
	t.latencyBuffer[t.latencyIndex] = latency
	t.latencyIndex = (t.latencyIndex + 1) % len(t.latencyBuffer)
	if t.latencyCount < len(t.latencyBuffer) {
		t.latencyCount++
	}
	t.latencyMu.Unlock()
}

func (t *Tracker) latencies() []time.Duration {
	t.latencyMu.RLock()
	defer t.latencyMu.RUnlock()

	out := make([]time.Duration, t.latencyCount)
	if t.latencyCount < len(t.latencyBuffer) {
		copy(out, t.latencyBuffer[:t.latencyCount])
		return out
	}
	n := copy(out, t.latencyBuffer[t.latencyIndex:])
	copy(out[n:], t.latencyBuffer[:t.latencyIndex])
	return out
}

// Snapshot returns the current counters.
func (t *Tracker) Snapshot() types.MetricsSnapshot {
	samples := latencyMs(t.latencies())

	t.hitsMu.RLock()
	hits := make(map[string]int64, len(t.tierHits))
	for tier, c := range t.tierHits {
		hits[tier] = c.Load()
	}
	t.hitsMu.RUnlock()

	snapshot := types.MetricsSnapshot{
		Timestamp:          time.Now(),
		TierHits:           hits,
		Misses:             t.misses.Load(),
		GetCount:           t.getCount.Load(),
		SetCount:           t.setCount.Load(),
		DeleteCount:        t.deleteCount.Load(),
		ErrorCount:         t.errorCount.Load(),
		Promotions:         t.promotions.Load(),
		Evictions:          t.evictions.Load(),
		CircuitTransitions: t.cbStateChanges.Load(),
		BytesWritten:       t.totalBytesWritten.Load(),
	}

	if len(samples) > 0 {
		slices.Sort(samples)
		snapshot.AvgLatencyMs = mean(samples)
		snapshot.P50LatencyMs = percentile(samples, 50)
		snapshot.P95LatencyMs = percentile(samples, 95)
		snapshot.P99LatencyMs = percentile(samples, 99)
	}

	return snapshot
}

func latencyMs(durations []time.Duration) []float64 {
	out := make([]float64, len(durations))
	for i, d := range durations {
		out[i] = float64(d) / float64(time.Millisecond)
	}
	return out
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var total float64
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// percentile expects sorted input.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return sorted[(len(sorted)-1)*p/100]
}

var _ types.MetricsRecorder = (*Tracker)(nil)
