package types

import "time"

// HealthStatus represents the overall health state.
type HealthStatus int

const (
	// HealthStatusHealthy indicates all configured tiers are operating normally.
	HealthStatusHealthy HealthStatus = iota + 1
	// HealthStatusDegraded indicates partial functionality (e.g., remote tier down).
	HealthStatusDegraded
	// HealthStatusUnhealthy indicates the fast tier itself is unusable.
	HealthStatusUnhealthy
)

// String returns the string representation of health status.
func (s HealthStatus) String() string {
	switch s {
	case HealthStatusHealthy:
		return "healthy"
	case HealthStatusDegraded:
		return "degraded"
	case HealthStatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// HealthMetrics contains overall cache health information.
type HealthMetrics struct {
	Timestamp time.Time
	Tiers     []TierHealth
	Status    HealthStatus
}

// TierHealth contains one tier's health details.
type TierHealth struct {
	Name                string
	Status              HealthStatus
	Available           bool
	Enabled             bool
	CircuitBreakerState string
	Stats               TierStats
}

// MetricsSnapshot contains a point-in-time view of aggregate operation metrics.
//
//nolint:govet // Metrics struct with many counters - grouping by category improves readability
type MetricsSnapshot struct {
	Timestamp time.Time
	// Hits per serving tier and global misses
	TierHits map[string]int64
	Misses   int64
	// Operation counters
	GetCount    int64
	SetCount    int64
	DeleteCount int64
	ErrorCount  int64

	Promotions         int64
	Evictions          int64
	CircuitTransitions int64
	BytesWritten       int64

	// Latency metrics (milliseconds)
	AvgLatencyMs float64
	P50LatencyMs float64
	P95LatencyMs float64
	P99LatencyMs float64
}

// Hits sums hits across all tiers.
func (s *MetricsSnapshot) Hits() int64 {
	var total int64
	for _, h := range s.TierHits {
		total += h
	}
	return total
}

// HitRatio calculates the overall hit ratio across tiers.
func (s *MetricsSnapshot) HitRatio() float64 {
	hits := s.Hits()
	total := hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

// TierMetrics combines a tier's own counters with its breaker state.
type TierMetrics struct {
	Name         string
	Available    bool
	CircuitState string
	Stats        TierStats
}

// TemperatureMetrics summarises the hot/cold classification.
type TemperatureMetrics struct {
	Tracked int
	Hot     int
	Cold    int
}

// DetailedMetrics is the aggregated view returned by the engine.
type DetailedMetrics struct {
	Timestamp             time.Time
	Operations            MetricsSnapshot
	Tiers                 []TierMetrics
	Temperature           TemperatureMetrics
	PendingReconciliation int
}

// Tier returns the metrics for the named tier.
func (d *DetailedMetrics) Tier(name string) (TierMetrics, bool) {
	for _, t := range d.Tiers {
		if t.Name == name {
			return t, true
		}
	}
	return TierMetrics{}, false
}
