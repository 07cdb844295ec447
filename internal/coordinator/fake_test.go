package coordinator

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// fakeTier is an in-memory tier with switchable failures.
type fakeTier struct {
	name string

	mu          sync.Mutex
	data        map[string]*types.Entry
	revs        map[string]uint64
	rev         uint64
	corrupt     map[string]bool
	err         error
	unavailable bool
	beforeSet   func()

	gets atomic.Int64
	sets atomic.Int64
}

func newFakeTier(name string) *fakeTier {
	return &fakeTier{
		name:    name,
		data:    make(map[string]*types.Entry),
		revs:    make(map[string]uint64),
		corrupt: make(map[string]bool),
	}
}

func (f *fakeTier) failWith(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// onNextSet runs fn at the start of the next Set, before anything is stored.
func (f *fakeTier) onNextSet(fn func()) {
	f.mu.Lock()
	f.beforeSet = fn
	f.mu.Unlock()
}

func (f *fakeTier) failure() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeTier) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	return ok
}

func (f *fakeTier) value(key string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.data[key]; ok {
		return e.Value
	}
	return nil
}

func (f *fakeTier) put(key string, value []byte, priority types.CachePriority) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = &types.Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		SizeBytes: int64(len(value)),
		Priority:  priority,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	f.rev++
	f.revs[key] = f.rev
}

func (f *fakeTier) Name() string { return f.name }

func (f *fakeTier) IsAvailable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.unavailable
}

func (f *fakeTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	f.gets.Add(1)
	if err := f.failure(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.corrupt[key] {
		delete(f.corrupt, key)
		delete(f.data, key)
		return nil, types.NewCacheError("Get", key, f.name, types.ErrIntegrityFailure)
	}
	e, ok := f.data[key]
	if !ok {
		return nil, types.ErrCacheMiss
	}
	return e.Clone(), nil
}

func (f *fakeTier) Contains(ctx context.Context, key string) (bool, error) {
	if err := f.failure(); err != nil {
		return false, err
	}
	return f.has(key), nil
}

func (f *fakeTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	f.sets.Add(1)
	f.mu.Lock()
	hook := f.beforeSet
	f.beforeSet = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := f.failure(); err != nil {
		return err
	}

	now := time.Now()
	e := &types.Entry{
		Key:       key,
		Value:     append([]byte(nil), value...),
		SizeBytes: int64(len(value)),
		Priority:  types.PriorityNormal,
		CreatedAt: now,
	}
	if opts != nil {
		if opts.Priority != 0 {
			e.Priority = opts.Priority
		}
		if opts.TTL > 0 {
			e.ExpiresAt = now.Add(opts.TTL)
		}
	}

	f.mu.Lock()
	f.data[key] = e
	f.rev++
	f.revs[key] = f.rev
	f.mu.Unlock()
	return nil
}

func (f *fakeTier) Delete(ctx context.Context, key string) (bool, error) {
	if err := f.failure(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.data[key]
	delete(f.data, key)
	return ok, nil
}

func (f *fakeTier) Cleanup(ctx context.Context) (int, error) {
	return 0, f.failure()
}

// DeleteByPattern understands exact keys and a single trailing '*'.
func (f *fakeTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if err := f.failure(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for k := range f.data {
		if matches(k, pattern) {
			delete(f.data, k)
			n++
		}
	}
	return n, nil
}

func matches(key, pattern string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return key == pattern
}

func (f *fakeTier) Clear(ctx context.Context) error {
	if err := f.failure(); err != nil {
		return err
	}
	f.mu.Lock()
	f.data = make(map[string]*types.Entry)
	f.mu.Unlock()
	return nil
}

func (f *fakeTier) Close() error { return nil }

func (f *fakeTier) Stats() types.TierStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return types.TierStats{Entries: int64(len(f.data))}
}

// listingTier adds key listing, peeking and revisions, like the in-process
// tier.
type listingTier struct {
	*fakeTier
}

func (l listingTier) Keys(pattern string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var keys []string
	for k := range l.data {
		if matches(k, pattern) {
			keys = append(keys, k)
		}
	}
	return keys
}

func (l listingTier) Peek(key string) (*types.Entry, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.data[key]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

func (l listingTier) Revision(key string) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.data[key]; !ok {
		return 0, false
	}
	return l.revs[key], true
}

func (l listingTier) DeleteRevision(key string, rev uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.data[key]; !ok || l.revs[key] != rev {
		return false
	}
	delete(l.data, key)
	return true
}

// batchTier answers MGet with one call per batch.
type batchTier struct {
	*fakeTier
	batches atomic.Int64
}

func (b *batchTier) GetMany(ctx context.Context, keys []string) (map[string]*types.Entry, error) {
	b.batches.Add(1)
	if err := b.failure(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]*types.Entry)
	for _, k := range keys {
		if e, ok := b.data[k]; ok {
			out[k] = e.Clone()
		}
	}
	return out, nil
}

// recorder captures metric events.
type recorder struct {
	mu         sync.Mutex
	hits       map[string]int
	misses     int
	promotions int
	evictions  int
	errors     int
	sets       [][]string
}

func newRecorder() *recorder {
	return &recorder{hits: make(map[string]int)}
}

func (r *recorder) RecordHit(tier, key string, latency time.Duration) {
	r.mu.Lock()
	r.hits[tier]++
	r.mu.Unlock()
}

func (r *recorder) RecordMiss(key string, latency time.Duration) {
	r.mu.Lock()
	r.misses++
	r.mu.Unlock()
}

func (r *recorder) RecordSet(tiers []string, key string, size int, latency time.Duration) {
	r.mu.Lock()
	r.sets = append(r.sets, tiers)
	r.mu.Unlock()
}

func (r *recorder) RecordDelete(key string, latency time.Duration) {}

func (r *recorder) RecordError(tier, operation string, err error) {
	r.mu.Lock()
	r.errors++
	r.mu.Unlock()
}

func (r *recorder) RecordPromotion(from, to string) {
	r.mu.Lock()
	r.promotions++
	r.mu.Unlock()
}

func (r *recorder) RecordEviction(tier string) {
	r.mu.Lock()
	r.evictions++
	r.mu.Unlock()
}

func (r *recorder) RecordCircuitBreakerStateChange(tier, from, to string) {}
