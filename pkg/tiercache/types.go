package tiercache

import (
	"github.com/LavishGent/tiercache/internal/types"
)

type (
	// CachePriority influences eviction order and shared-tier placement.
	CachePriority = types.CachePriority
	// Entry is a cached value with metadata.
	Entry = types.Entry
	// CacheOptions contains options for cache operations.
	CacheOptions = types.CacheOptions
	// TierStats contains one tier's counters.
	TierStats = types.TierStats
	// Tier is the contract every storage tier implements.
	Tier = types.Tier
	// Serializer provides serialization and deserialization operations.
	Serializer = types.Serializer
	// MetricsRecorder receives operation events.
	MetricsRecorder = types.MetricsRecorder
	// Publisher pushes analytics to an external sink.
	Publisher = types.Publisher
	// PublisherHealthMetrics is the periodic analytics payload.
	PublisherHealthMetrics = types.PublisherHealthMetrics
	// Logger provides logging operations.
	Logger = types.Logger
)

const (
	TierFast    = types.TierFast
	TierShared  = types.TierShared
	TierDurable = types.TierDurable
	TierRemote  = types.TierRemote
)

const (
	// PriorityLow entries are evicted first.
	PriorityLow = types.PriorityLow
	// PriorityNormal is the default.
	PriorityNormal = types.PriorityNormal
	// PriorityHigh entries are evicted last and also go to the shared tier.
	PriorityHigh = types.PriorityHigh
)

// DefaultOptions returns a default CacheOptions configuration.
func DefaultOptions() *CacheOptions {
	return types.DefaultOptions()
}
