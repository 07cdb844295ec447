package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/allegro/bigcache/v3"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

// SharedTier is the segment backend of the shared tier. Values are stored as
// entry envelopes in a bigcache segment which evicts oldest-inserted first.
// Per-entry TTLs live in the envelope and are enforced on read; bigcache's
// life window bounds them from above.
type SharedTier struct {
	cache  *bigcache.BigCache
	config config.SharedConfig
	maxTTL time.Duration
	logger *slog.Logger
	now    func() time.Time

	hits              atomic.Int64
	misses            atomic.Int64
	sets              atomic.Int64
	deletes           atomic.Int64
	evictions         atomic.Int64
	expirations       atomic.Int64
	integrityFailures atomic.Int64

	closed atomic.Bool
}

// NewSharedTier creates the bigcache-backed shared tier.
func NewSharedTier(cfg config.SharedConfig, logger *slog.Logger) (*SharedTier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st := &SharedTier{
		config: cfg,
		logger: logger.With("component", "shared-tier"),
		now:    time.Now,
	}

	lifeWindow := max(cfg.DefaultTTL, cfg.MaxTTL)
	if lifeWindow <= 0 {
		lifeWindow = 10 * time.Minute
	}
	st.maxTTL = lifeWindow

	bcConfig := bigcache.Config{
		Shards:             cfg.Shards,
		LifeWindow:         lifeWindow,
		CleanWindow:        cfg.CleanupInterval,
		MaxEntriesInWindow: 1000 * 10 * 60,
		MaxEntrySize:       cfg.MaxEntrySize,
		HardMaxCacheSize:   cfg.MaxSizeMB,
		Verbose:            false,
		Logger:             &bigcacheLogger{logger: st.logger},
		OnRemoveWithReason: func(key string, entry []byte, reason bigcache.RemoveReason) {
			switch reason {
			case bigcache.NoSpace:
				st.evictions.Add(1)
			case bigcache.Expired:
				st.expirations.Add(1)
			}
		},
	}

	bc, err := bigcache.New(context.Background(), bcConfig)
	if err != nil {
		return nil, err
	}

	st.cache = bc
	return st, nil
}

func (t *SharedTier) Name() string {
	return types.TierShared
}

func (t *SharedTier) IsAvailable() bool {
	return !t.closed.Load()
}

func (t *SharedTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	if t.closed.Load() {
		return nil, types.ErrClosed
	}

	data, err := t.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			t.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		return nil, types.NewIOError("Get", key, types.TierShared, err)
	}

	e, err := decodeEntry(key, data)
	if err != nil {
		t.integrityFailures.Add(1)
		t.misses.Add(1)
		_ = t.cache.Delete(key)
		t.logger.Warn("Purged corrupt entry", "key", key, "error", err)
		return nil, types.NewCacheError("Get", key, types.TierShared, err)
	}

	if e.IsExpired(t.now()) {
		_ = t.cache.Delete(key)
		t.expirations.Add(1)
		t.misses.Add(1)
		return nil, types.ErrCacheMiss
	}

	t.hits.Add(1)
	return e, nil
}

func (t *SharedTier) Contains(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}

	data, err := t.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return false, nil
		}
		return false, types.NewIOError("Contains", key, types.TierShared, err)
	}
	e, err := decodeEntry(key, data)
	if err != nil {
		return false, nil
	}
	return !e.IsExpired(t.now()), nil
}

func (t *SharedTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	ttl := resolveTTL(opts, t.config.DefaultTTL)
	if ttl <= 0 || ttl > t.maxTTL {
		ttl = t.maxTTL
	}
	e := newEntry(key, value, priorityOf(opts), t.now(), ttl)
	// bigcache only rejects entries that cannot fit in a shard.
	if err := t.cache.Set(key, encodeEntry(e)); err != nil {
		return types.NewCacheError("Set", key, types.TierShared,
			fmt.Errorf("%w: %w", types.ErrCapacityExceeded, err))
	}

	t.sets.Add(1)
	return nil
}

func (t *SharedTier) Delete(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}

	if err := t.cache.Delete(key); err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return false, nil
		}
		return false, types.NewIOError("Delete", key, types.TierShared, err)
	}

	t.deletes.Add(1)
	return true, nil
}

// Cleanup removes envelopes whose own TTL has passed. bigcache only expires
// by its global life window.
func (t *SharedTier) Cleanup(ctx context.Context) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}
	now := t.now()

	var expired []string
	t.each(func(key string, data []byte) {
		e, err := decodeEntry(key, data)
		if err != nil || e.IsExpired(now) {
			expired = append(expired, key)
		}
	})

	removed := 0
	for _, key := range expired {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if t.cache.Delete(key) == nil {
			removed++
		}
	}
	t.expirations.Add(int64(removed))
	return removed, nil
}

func (t *SharedTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}

	keys := t.Keys(pattern)
	removed := 0
	for _, key := range keys {
		if t.cache.Delete(key) == nil {
			removed++
		}
	}

	t.deletes.Add(int64(removed))
	t.logger.Debug("Deleted entries by pattern",
		"pattern", pattern,
		"deleted", removed,
	)
	return removed, nil
}

// Keys returns the keys matching pattern in sorted order. Expired entries
// still resident in the segment are included until read or cleaned up.
func (t *SharedTier) Keys(pattern string) []string {
	if t.closed.Load() {
		return nil
	}
	var keys []string
	t.each(func(key string, _ []byte) {
		if MatchPattern(key, pattern) {
			keys = append(keys, key)
		}
	})
	sort.Strings(keys)
	return keys
}

func (t *SharedTier) each(fn func(key string, data []byte)) {
	iter := t.cache.Iterator()
	for iter.SetNext() {
		info, err := iter.Value()
		if err != nil {
			continue
		}
		fn(info.Key(), info.Value())
	}
}

func (t *SharedTier) Clear(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	return t.cache.Reset()
}

func (t *SharedTier) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	return t.cache.Close()
}

func (t *SharedTier) Stats() types.TierStats {
	s := types.TierStats{
		Hits:              t.hits.Load(),
		Misses:            t.misses.Load(),
		Sets:              t.sets.Load(),
		Deletes:           t.deletes.Load(),
		Evictions:         t.evictions.Load(),
		Expirations:       t.expirations.Load(),
		IntegrityFailures: t.integrityFailures.Load(),
		MaxSizeBytes:      int64(t.config.MaxSizeMB) * 1024 * 1024,
	}
	if !t.closed.Load() {
		s.Entries = int64(t.cache.Len())
		s.SizeBytes = int64(t.cache.Capacity())
	}
	return s
}

type bigcacheLogger struct {
	logger *slog.Logger
}

func (l *bigcacheLogger) Printf(format string, args ...any) {
	l.logger.Debug("bigcache: "+format, args...)
}

var (
	_ types.Tier      = (*SharedTier)(nil)
	_ types.KeyLister = (*SharedTier)(nil)
)
