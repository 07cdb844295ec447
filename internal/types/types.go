// Package types provides shared types for the tiercache engine.
// This package breaks import cycles between pkg/tiercache and the internal packages.
package types

import "time"

// Tier names, fastest first.
const (
	TierFast    = "fast"
	TierShared  = "shared"
	TierDurable = "durable"
	TierRemote  = "remote"
)

type CachePriority int

const (
	PriorityLow CachePriority = iota + 1
	PriorityNormal
	PriorityHigh
)

func (p CachePriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	default:
		return "unknown"
	}
}

// Weight is the multiplier used by priority-aware eviction scoring.
func (p CachePriority) Weight() float64 {
	switch p {
	case PriorityLow:
		return 1
	case PriorityHigh:
		return 5
	default:
		return 2
	}
}

// ParsePriority maps a config or wire string to a priority. Unknown values
// fall back to PriorityNormal.
func ParsePriority(s string) CachePriority {
	switch s {
	case "low", "LOW":
		return PriorityLow
	case "high", "HIGH":
		return PriorityHigh
	default:
		return PriorityNormal
	}
}

type CacheOptions struct {
	TTL      time.Duration
	Priority CachePriority
	// Compress forces compression in the durable tier for payloads above the
	// compression threshold even when the tier default is off.
	Compress bool
	// NoCompress disables compression for this call.
	NoCompress bool
	// Persistent forces a copy into the durable tier.
	Persistent bool
	// SkipRemote keeps the write out of the remote tier.
	SkipRemote bool
	// FireAndForget queues remote writes instead of waiting for them.
	FireAndForget bool
}

func DefaultOptions() *CacheOptions {
	return &CacheOptions{
		TTL: 5 * time.Minute,
	}
}

// Entry is a stored value plus the metadata every tier keeps for it.
// Tiers hand out clones, never their own copy.
type Entry struct {
	Key        string
	Value      []byte
	Compressed bool
	SizeBytes  int64
	Checksum   uint64
	Priority   CachePriority
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// IsExpired reports whether the entry has expired at now. Entries without an
// expiry never expire.
func (e *Entry) IsExpired(now time.Time) bool {
	if e.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(e.ExpiresAt)
}

// RemainingTTL returns the time left before expiry, or 0 for entries that
// never expire.
func (e *Entry) RemainingTTL(now time.Time) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	return e.ExpiresAt.Sub(now)
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	if e.Value != nil {
		c.Value = append([]byte(nil), e.Value...)
	}
	return &c
}

// TierStats contains per-tier counters. Counters only grow.
type TierStats struct {
	Hits              int64
	Misses            int64
	Sets              int64
	Deletes           int64
	Evictions         int64
	Expirations       int64
	Compressions      int64
	IntegrityFailures int64
	Entries           int64
	SizeBytes         int64
	MaxSizeBytes      int64
}

// HitRatio returns hits / (hits + misses).
func (s TierStats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
