package cache

import (
	"container/list"
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

// EvictionHandler is called, outside the tier lock, with a copy of every
// entry removed to make room for a new one.
type EvictionHandler func(entry *types.Entry)

type fastEntry struct {
	entry       *types.Entry
	elem        *list.Element
	timer       *time.Timer
	lastAccess  time.Time
	gen         uint64
	size        int64
	accessCount int64
}

// FastTier is the in-process tier: a byte-bounded map with a pluggable
// eviction policy and per-entry expiry timers.
type FastTier struct {
	mu       sync.Mutex
	entries  map[string]*fastEntry
	policy   evictionPolicy
	curBytes int64
	nextGen  uint64
	onEvict  EvictionHandler

	cfg    config.FastConfig
	logger *slog.Logger
	now    func() time.Time

	hits        atomic.Int64
	misses      atomic.Int64
	sets        atomic.Int64
	deletes     atomic.Int64
	evictions   atomic.Int64
	expirations atomic.Int64

	closed atomic.Bool
}

// NewFastTier creates the fast tier.
func NewFastTier(cfg config.FastConfig, logger *slog.Logger) (*FastTier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := newEvictionPolicy(cfg.EvictionPolicy)
	if err != nil {
		return nil, err
	}

	return &FastTier{
		entries: make(map[string]*fastEntry),
		policy:  policy,
		cfg:     cfg,
		logger:  logger.With("component", "fast-tier"),
		now:     time.Now,
	}, nil
}

// SetEvictionHandler registers h for capacity evictions. Expiry and explicit
// deletes do not call it.
func (t *FastTier) SetEvictionHandler(h EvictionHandler) {
	t.mu.Lock()
	t.onEvict = h
	t.mu.Unlock()
}

func (t *FastTier) Name() string {
	return types.TierFast
}

func (t *FastTier) IsAvailable() bool {
	return !t.closed.Load()
}

func (t *FastTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	if t.closed.Load() {
		return nil, types.ErrClosed
	}
	now := t.now()

	t.mu.Lock()
	fe, ok := t.entries[key]
	if !ok {
		t.mu.Unlock()
		t.misses.Add(1)
		return nil, types.ErrCacheMiss
	}
	if fe.entry.IsExpired(now) {
		t.removeLocked(fe)
		t.mu.Unlock()
		t.expirations.Add(1)
		t.misses.Add(1)
		return nil, types.ErrCacheMiss
	}
	fe.lastAccess = now
	fe.accessCount++
	t.policy.accessed(fe)
	e := fe.entry.Clone()
	t.mu.Unlock()

	t.hits.Add(1)
	return e, nil
}

// Peek returns a copy of key's entry without touching recency or counters.
func (t *FastTier) Peek(key string) (*types.Entry, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	fe, ok := t.entries[key]
	if !ok || fe.entry.IsExpired(now) {
		return nil, false
	}
	return fe.entry.Clone(), true
}

// Revision returns the generation of key's live entry. Every Set of the key
// gets a new one.
func (t *FastTier) Revision(key string) (uint64, bool) {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	fe, ok := t.entries[key]
	if !ok || fe.entry.IsExpired(now) {
		return 0, false
	}
	return fe.gen, true
}

// DeleteRevision removes key only if its entry is still generation rev.
func (t *FastTier) DeleteRevision(key string, rev uint64) bool {
	if t.closed.Load() {
		return false
	}

	t.mu.Lock()
	fe, ok := t.entries[key]
	ok = ok && fe.gen == rev
	if ok {
		t.removeLocked(fe)
	}
	t.mu.Unlock()

	if ok {
		t.deletes.Add(1)
	}
	return ok
}

func (t *FastTier) Contains(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}
	_, ok := t.Peek(key)
	return ok, nil
}

// Set inserts or replaces key. Entries are sized as len(key)+len(value);
// one that could never fit is rejected with ErrCapacityExceeded.
func (t *FastTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	if t.closed.Load() {
		return types.ErrClosed
	}

	size := int64(len(key) + len(value))
	if size > t.cfg.MaxBytes {
		return types.NewCacheError("Set", key, types.TierFast, types.ErrCapacityExceeded)
	}

	now := t.now()
	ttl := resolveTTL(opts, t.cfg.DefaultTTL)
	e := newEntry(key, value, priorityOf(opts), now, ttl)

	t.mu.Lock()
	if old, ok := t.entries[key]; ok {
		t.removeLocked(old)
	}

	var evicted []*types.Entry
	for t.curBytes+size > t.cfg.MaxBytes {
		v := t.policy.victim(t.entries, now)
		if v == nil {
			break
		}
		t.removeLocked(v)
		evicted = append(evicted, v.entry)
	}

	t.nextGen++
	fe := &fastEntry{
		entry:      e,
		lastAccess: now,
		gen:        t.nextGen,
		size:       size,
	}
	if ttl > 0 {
		gen := fe.gen
		fe.timer = time.AfterFunc(ttl, func() { t.expire(key, gen) })
	}
	t.entries[key] = fe
	t.curBytes += size
	t.policy.added(fe)
	handler := t.onEvict
	t.mu.Unlock()

	t.sets.Add(1)
	if len(evicted) > 0 {
		t.evictions.Add(int64(len(evicted)))
		t.logger.Debug("Evicted entries", "count", len(evicted), "for", key)
		if handler != nil {
			for _, v := range evicted {
				handler(v)
			}
		}
	}
	return nil
}

// expire is the timer callback. The generation check keeps a stale timer
// from removing a newer value stored under the same key.
func (t *FastTier) expire(key string, gen uint64) {
	t.mu.Lock()
	fe, ok := t.entries[key]
	if !ok || fe.gen != gen {
		t.mu.Unlock()
		return
	}
	t.removeLocked(fe)
	t.mu.Unlock()
	t.expirations.Add(1)
}

func (t *FastTier) removeLocked(fe *fastEntry) {
	if fe.timer != nil {
		fe.timer.Stop()
	}
	t.policy.removed(fe)
	delete(t.entries, fe.entry.Key)
	t.curBytes -= fe.size
}

func (t *FastTier) Delete(ctx context.Context, key string) (bool, error) {
	if t.closed.Load() {
		return false, types.ErrClosed
	}

	t.mu.Lock()
	fe, ok := t.entries[key]
	if ok {
		t.removeLocked(fe)
	}
	t.mu.Unlock()

	if ok {
		t.deletes.Add(1)
	}
	return ok, nil
}

func (t *FastTier) Cleanup(ctx context.Context) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}
	now := t.now()

	t.mu.Lock()
	removed := 0
	for _, fe := range t.entries {
		if fe.entry.IsExpired(now) {
			t.removeLocked(fe)
			removed++
		}
	}
	t.mu.Unlock()

	t.expirations.Add(int64(removed))
	return removed, nil
}

func (t *FastTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if t.closed.Load() {
		return 0, types.ErrClosed
	}

	t.mu.Lock()
	removed := 0
	for key, fe := range t.entries {
		if MatchPattern(key, pattern) {
			t.removeLocked(fe)
			removed++
		}
	}
	t.mu.Unlock()

	t.deletes.Add(int64(removed))
	return removed, nil
}

// Keys returns the live keys matching pattern in sorted order.
func (t *FastTier) Keys(pattern string) []string {
	now := t.now()

	t.mu.Lock()
	keys := make([]string, 0, len(t.entries))
	for key, fe := range t.entries {
		if !fe.entry.IsExpired(now) && MatchPattern(key, pattern) {
			keys = append(keys, key)
		}
	}
	t.mu.Unlock()

	sort.Strings(keys)
	return keys
}

func (t *FastTier) Clear(ctx context.Context) error {
	if t.closed.Load() {
		return types.ErrClosed
	}
	t.clear()
	return nil
}

func (t *FastTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, fe := range t.entries {
		t.removeLocked(fe)
	}
}

func (t *FastTier) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	t.clear()
	return nil
}

func (t *FastTier) Stats() types.TierStats {
	t.mu.Lock()
	entries, size := int64(len(t.entries)), t.curBytes
	t.mu.Unlock()

	return types.TierStats{
		Hits:         t.hits.Load(),
		Misses:       t.misses.Load(),
		Sets:         t.sets.Load(),
		Deletes:      t.deletes.Load(),
		Evictions:    t.evictions.Load(),
		Expirations:  t.expirations.Load(),
		Entries:      entries,
		SizeBytes:    size,
		MaxSizeBytes: t.cfg.MaxBytes,
	}
}

var (
	_ types.Tier       = (*FastTier)(nil)
	_ types.KeyLister  = (*FastTier)(nil)
	_ types.Peeker     = (*FastTier)(nil)
	_ types.Revisioner = (*FastTier)(nil)
)
