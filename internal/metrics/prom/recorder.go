// Package prom exposes cache operation metrics as Prometheus collectors.
package prom

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/LavishGent/tiercache/internal/types"
)

// DefaultNamespace prefixes every metric name when none is configured.
const DefaultNamespace = "tiercache"

// Recorder implements types.MetricsRecorder on Prometheus counters and
// histograms. Key names are never used as labels.
type Recorder struct {
	hits        *prometheus.CounterVec
	misses      prometheus.Counter
	sets        *prometheus.CounterVec
	bytes       prometheus.Counter
	deletes     prometheus.Counter
	errors      *prometheus.CounterVec
	promotions  *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. Collectors
// already registered under the same name are reused.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	rg := &registrar{reg: reg}
	r := &Recorder{
		hits: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hits_total",
			Help:      "Reads answered, by serving tier",
		}, []string{"tier"})),
		misses: use(rg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "misses_total",
			Help:      "Reads no tier could answer",
		})),
		sets: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_writes_total",
			Help:      "Successful writes, by tier",
		}, []string{"tier"})),
		bytes: use(rg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "written_bytes_total",
			Help:      "Serialized bytes accepted by Set",
		})),
		deletes: use(rg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deletes_total",
			Help:      "Delete operations",
		})),
		errors: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_errors_total",
			Help:      "Tier failures, by tier and operation",
		}, []string{"tier", "operation"})),
		promotions: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promotions_total",
			Help:      "Entries copied into a faster tier",
		}, []string{"from", "to"})),
		evictions: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Entries evicted for capacity",
		}, []string{"tier"})),
		transitions: use(rg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_transitions_total",
			Help:      "Circuit breaker state changes",
		}, []string{"tier", "from", "to"})),
		latency: use(rg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of cache operations",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"operation"})),
	}

	if rg.err != nil {
		return nil, rg.err
	}
	return r, nil
}

type registrar struct {
	reg prometheus.Registerer
	err error
}

// use registers c, or returns the collector already registered under the
// same descriptor. After the first failure it is a no-op.
func use[T prometheus.Collector](rg *registrar, c T) T {
	if rg.err != nil {
		return c
	}
	err := rg.reg.Register(c)
	if err == nil {
		return c
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(T); ok {
			return existing
		}
	}
	rg.err = err
	return c
}

func (r *Recorder) RecordHit(tier string, key string, latency time.Duration) {
	r.hits.WithLabelValues(tier).Inc()
	r.latency.WithLabelValues("get").Observe(latency.Seconds())
}

func (r *Recorder) RecordMiss(key string, latency time.Duration) {
	r.misses.Inc()
	r.latency.WithLabelValues("get").Observe(latency.Seconds())
}

func (r *Recorder) RecordSet(tiers []string, key string, size int, latency time.Duration) {
	for _, tier := range tiers {
		r.sets.WithLabelValues(tier).Inc()
	}
	r.bytes.Add(float64(size))
	r.latency.WithLabelValues("set").Observe(latency.Seconds())
}

func (r *Recorder) RecordDelete(key string, latency time.Duration) {
	r.deletes.Inc()
	r.latency.WithLabelValues("delete").Observe(latency.Seconds())
}

func (r *Recorder) RecordError(tier string, operation string, err error) {
	r.errors.WithLabelValues(tier, operation).Inc()
}

func (r *Recorder) RecordPromotion(from, to string) {
	r.promotions.WithLabelValues(from, to).Inc()
}

func (r *Recorder) RecordEviction(tier string) {
	r.evictions.WithLabelValues(tier).Inc()
}

func (r *Recorder) RecordCircuitBreakerStateChange(tier, from, to string) {
	r.transitions.WithLabelValues(tier, from, to).Inc()
}

var _ types.MetricsRecorder = (*Recorder)(nil)
