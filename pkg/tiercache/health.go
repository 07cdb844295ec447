package tiercache

import (
	"github.com/LavishGent/tiercache/internal/types"
)

type (
	// HealthStatus represents the overall health state.
	HealthStatus = types.HealthStatus

	// HealthMetrics contains overall cache health information.
	HealthMetrics = types.HealthMetrics

	// TierHealth contains one tier's health details.
	TierHealth = types.TierHealth

	// MetricsSnapshot contains a point-in-time view of operation counters.
	MetricsSnapshot = types.MetricsSnapshot

	// DetailedMetrics combines operation counters, tier stats and the
	// temperature picture.
	DetailedMetrics = types.DetailedMetrics

	// TierMetrics is one tier's counters and breaker state.
	TierMetrics = types.TierMetrics
)

const (
	HealthStatusHealthy   = types.HealthStatusHealthy
	HealthStatusDegraded  = types.HealthStatusDegraded
	HealthStatusUnhealthy = types.HealthStatusUnhealthy
)
