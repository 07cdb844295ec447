package types

import (
	"context"
	"time"
)

type TierInfo interface {
	Name() string
	IsAvailable() bool
}

type TierReader interface {
	// Get returns a clone of the stored entry or ErrCacheMiss.
	Get(ctx context.Context, key string) (*Entry, error)
	Contains(ctx context.Context, key string) (bool, error)
}

type TierWriter interface {
	Set(ctx context.Context, key string, value []byte, opts *CacheOptions) error
	// Delete removes key and reports whether it was present.
	Delete(ctx context.Context, key string) (bool, error)
}

type TierMaintainer interface {
	// Cleanup purges expired entries and returns how many were removed.
	Cleanup(ctx context.Context) (int, error)
	// DeleteByPattern removes every key matching the glob pattern.
	DeleteByPattern(ctx context.Context, pattern string) (int, error)
	Clear(ctx context.Context) error
}

type TierCloser interface {
	Close() error
}

// Tier is the contract every storage tier implements.
type Tier interface {
	TierInfo
	TierReader
	TierWriter
	TierMaintainer
	TierCloser
	Stats() TierStats
}

// KeyLister is implemented by tiers that can enumerate resident keys cheaply.
type KeyLister interface {
	Keys(pattern string) []string
}

// BatchGetter is implemented by tiers that fetch many keys in one round trip.
// Missing and unreadable keys are left out of the result.
type BatchGetter interface {
	GetMany(ctx context.Context, keys []string) (map[string]*Entry, error)
}

// Peeker reads an entry without counting it as an access.
type Peeker interface {
	Peek(key string) (*Entry, bool)
}

// Revisioner is implemented by tiers that number every write of a key, so a
// caller can act on exactly the entry it observed.
type Revisioner interface {
	// Revision returns the revision of key's live entry.
	Revision(key string) (uint64, bool)
	// DeleteRevision removes key only while rev is still its revision.
	DeleteRevision(key string, rev uint64) bool
}

type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, dest any) error
}

type MetricsRecorder interface {
	RecordHit(tier string, key string, latency time.Duration)
	RecordMiss(key string, latency time.Duration)
	RecordSet(tiers []string, key string, size int, latency time.Duration)
	RecordDelete(key string, latency time.Duration)
	RecordError(tier string, operation string, err error)
	RecordPromotion(from, to string)
	RecordEviction(tier string)
	RecordCircuitBreakerStateChange(tier, from, to string)
}

// Publisher pushes analytics to an external sink.
type Publisher interface {
	Gauge(name string, value float64, tags ...string)
	Incr(name string, tags ...string)
	Count(name string, value int64, tags ...string)
	Histogram(name string, value float64, tags ...string)
	Timing(name string, duration time.Duration, tags ...string)
	Event(title, text string, alertType string, tags ...string)
	PublishHealthMetrics(metrics *PublisherHealthMetrics)
	Close() error
}

// PublisherHealthMetrics is the periodic analytics payload.
type PublisherHealthMetrics struct {
	Tiers            []TierHealthSample
	TotalEntries     int64
	HitRatio         float64
	AverageLatencyMs float64
	P99LatencyMs     float64
	HotKeys          int
	ColdKeys         int
	PendingRepairs   int
}

// TierHealthSample is one tier's slice of PublisherHealthMetrics.
type TierHealthSample struct {
	Name         string
	Available    bool
	CircuitState string
	Entries      int64
	SizeBytes    int64
	MaxSizeBytes int64
	HitRatio     float64
}

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}
