package tiercache

import (
	"context"

	"github.com/LavishGent/tiercache/internal/cache"
)

// PrefetchLoader produces the value for a key that should be warmed.
type PrefetchLoader = cache.PrefetchLoader

// Background task names accepted by Cache.Trigger.
const (
	TaskAnalytics = cache.TaskAnalytics
	TaskPrefetch  = cache.TaskPrefetch
	TaskCleanup   = cache.TaskCleanup
	TaskRebalance = cache.TaskRebalance
	TaskCoherency = cache.TaskCoherency
)

// Cache is a hierarchy of tiers behind one key/value interface.
type Cache interface {
	Initialize(ctx context.Context) error

	Get(ctx context.Context, key string, dest any) error
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, opts ...Option) error
	SetBytes(ctx context.Context, key string, data []byte, opts ...Option) error
	GetOrCreate(ctx context.Context, key string, dest any, factory func() (any, error), opts ...Option) error
	Delete(ctx context.Context, key string) (bool, error)
	Contains(ctx context.Context, key string) (bool, error)
	MGet(ctx context.Context, keys []string) (map[string][]byte, error)
	Invalidate(ctx context.Context, pattern string) (map[string]int, error)
	Clear(ctx context.Context) error

	RegisterPrefetch(pattern string, loader PrefetchLoader) error
	Prefetch(ctx context.Context, keys ...string) (int, error)
	Trigger(task string) bool

	Health(ctx context.Context) (*HealthMetrics, error)
	IsHealthy(ctx context.Context) bool
	GetDetailedMetrics() *DetailedMetrics

	Shutdown(ctx context.Context) error
	Close() error
}

var _ Cache = (*cache.Engine)(nil)
