// Package coordinator routes cache operations across the tier hierarchy:
// hierarchical reads with promotion, placement-driven parallel writes,
// pattern invalidation, coherency repair and hot/cold rebalancing.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/resilience"
	"github.com/LavishGent/tiercache/internal/temperature"
	"github.com/LavishGent/tiercache/internal/types"
)

// DefaultBackgroundOpTimeout bounds a single promotion or spill.
const DefaultBackgroundOpTimeout = 5 * time.Second

const (
	defaultBatchSize  = 100
	maxPendingRepairs = 10000
)

// repairOp is what the coherency sweep owes a tier for one key.
type repairOp uint8

const (
	// repairSync copies the current value into the tier.
	repairSync repairOp = iota
	// repairDrop removes the key from the tier.
	repairDrop
)

// Binding pairs a tier with the resilience policy its calls go through.
type Binding struct {
	Tier   types.Tier
	Policy resilience.Executor
}

// Options holds the collaborators of a Coordinator. Everything except
// Placement is optional.
type Options struct {
	Placement  config.PlacementConfig
	Classifier *temperature.Classifier
	Metrics    types.MetricsRecorder
	Logger     *slog.Logger
	// SpillHighPriority copies high-priority entries evicted from the
	// fastest tier into the durable tier.
	SpillHighPriority bool
}

type layer struct {
	name   string
	tier   types.Tier
	policy resilience.Executor
}

func (l *layer) get(ctx context.Context, key string) (*types.Entry, error) {
	res, err := l.policy.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
		return l.tier.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	e, ok := res.(*types.Entry)
	if !ok || e == nil {
		return nil, fmt.Errorf("unexpected result type: %T", res)
	}
	return e, nil
}

func (l *layer) set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	return l.policy.Execute(ctx, func(ctx context.Context) error {
		return l.tier.Set(ctx, key, value, opts)
	})
}

func (l *layer) delete(ctx context.Context, key string) (bool, error) {
	res, err := l.policy.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
		return l.tier.Delete(ctx, key)
	})
	if err != nil {
		return false, err
	}
	removed, _ := res.(bool)
	return removed, nil
}

func (l *layer) contains(ctx context.Context, key string) (bool, error) {
	res, err := l.policy.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
		return l.tier.Contains(ctx, key)
	})
	if err != nil {
		return false, err
	}
	ok, _ := res.(bool)
	return ok, nil
}

// Coordinator drives a fixed, fastest-first list of tiers.
type Coordinator struct {
	layers []*layer
	byName map[string]*layer

	placement         config.PlacementConfig
	classifier        *temperature.Classifier
	metrics           types.MetricsRecorder
	logger            *slog.Logger
	spillHighPriority bool

	repairMu sync.Mutex
	repairs  map[string]map[string]repairOp

	promotions atomic.Int64
	spills     atomic.Int64

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	bgWg           sync.WaitGroup
	bgMu           sync.Mutex
	closed         atomic.Bool

	now func() time.Time
}

// New creates a coordinator over bindings, which must be ordered fastest
// first. The first binding is the tier every write lands in.
func New(opts Options, bindings ...Binding) (*Coordinator, error) {
	if len(bindings) == 0 {
		return nil, errors.New("coordinator: at least one tier is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	classifier := opts.Classifier
	if classifier == nil {
		classifier = temperature.New(config.TemperatureConfig{})
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	c := &Coordinator{
		byName:            make(map[string]*layer, len(bindings)),
		placement:         opts.Placement,
		classifier:        classifier,
		metrics:           opts.Metrics,
		logger:            logger.With("component", "coordinator"),
		spillHighPriority: opts.SpillHighPriority,
		repairs:           make(map[string]map[string]repairOp),
		shutdownCtx:       shutdownCtx,
		shutdownCancel:    shutdownCancel,
		now:               time.Now,
	}

	for _, b := range bindings {
		if b.Tier == nil {
			shutdownCancel()
			return nil, errors.New("coordinator: nil tier")
		}
		name := b.Tier.Name()
		if _, dup := c.byName[name]; dup {
			shutdownCancel()
			return nil, fmt.Errorf("coordinator: duplicate tier %q", name)
		}
		policy := b.Policy
		if policy == nil {
			policy = resilience.NewDisabledPolicy(name)
		}
		l := &layer{name: name, tier: b.Tier, policy: policy}
		c.layers = append(c.layers, l)
		c.byName[name] = l
	}

	return c, nil
}

// TierNames returns the tier names, fastest first.
func (c *Coordinator) TierNames() []string {
	names := make([]string, len(c.layers))
	for i, l := range c.layers {
		names[i] = l.name
	}
	return names
}

// Tier returns the named tier.
func (c *Coordinator) Tier(name string) (types.Tier, bool) {
	l, ok := c.byName[name]
	if !ok {
		return nil, false
	}
	return l.tier, true
}

func (c *Coordinator) Classifier() *temperature.Classifier {
	return c.classifier
}

// Get walks the tiers fastest first and returns the first hit together with
// the name of the tier that served it. Unavailable tiers and tiers whose
// breaker is open are skipped. A corrupt entry reads as a miss.
//
// The value is copied into every faster tier: the fastest tier inline,
// the others in the background.
func (c *Coordinator) Get(ctx context.Context, key string) (*types.Entry, string, error) {
	start := time.Now()
	c.classifier.RecordAccess(key)

	var errs []error
	answered := 0
	for i, l := range c.layers {
		if !l.tier.IsAvailable() {
			continue
		}

		e, err := l.get(ctx, key)
		if err == nil {
			if c.metrics != nil {
				c.metrics.RecordHit(l.name, key, time.Since(start))
			}
			c.promote(ctx, i, e)
			return e, l.name, nil
		}

		switch {
		case isMiss(err):
			answered++
		case types.IsCircuitOpen(err):
		case ctx.Err() != nil:
			return nil, "", ctx.Err()
		default:
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
			c.recordError(l.name, "get", key, err)
		}
	}

	if c.metrics != nil {
		c.metrics.RecordMiss(key, time.Since(start))
	}

	if answered == 0 && len(errs) > 0 {
		return nil, "", errors.Join(append([]error{types.ErrAllTiersFailed}, errs...)...)
	}
	return nil, "", types.ErrCacheMiss
}

func isMiss(err error) bool {
	return types.IsCacheMiss(err) || types.IsIntegrityFailure(err)
}

// needsRepair reports whether a failed write or delete left the tier out of
// step with the others.
func needsRepair(err error) bool {
	return types.IsTierFailure(err) || types.IsCircuitOpen(err)
}

func (c *Coordinator) promote(ctx context.Context, from int, e *types.Entry) {
	if from == 0 || !c.placement.PromoteOnHit {
		return
	}
	opts, ok := c.carryOptions(e)
	if !ok {
		return
	}

	fast := c.layers[0]
	source := c.layers[from].name
	promoted := c.promoteTo(context.WithoutCancel(ctx), fast, source, e, opts)

	if from == 1 {
		return
	}

	// A newer write or delete changes the fast tier's revision. Promotion
	// into the middle tiers stops there, and a copy that raced it is dropped.
	var rev uint64
	guarded := false
	if r, ok := fast.tier.(types.Revisioner); ok && promoted {
		rev, guarded = r.Revision(e.Key)
	}
	unchanged := func() bool {
		if !guarded {
			return true
		}
		cur, ok := fast.tier.(types.Revisioner).Revision(e.Key)
		return ok && cur == rev
	}

	targets := c.layers[1:from]
	entry := e.Clone()
	c.runBackground(func(ctx context.Context) {
		for _, l := range targets {
			if !unchanged() {
				return
			}
			if c.promoteTo(ctx, l, source, entry, opts) && !unchanged() {
				c.requeue(entry.Key, map[string]repairOp{l.name: repairDrop})
				return
			}
		}
	})
}

func (c *Coordinator) promoteTo(ctx context.Context, l *layer, from string, e *types.Entry, opts *types.CacheOptions) bool {
	if !l.tier.IsAvailable() {
		return false
	}
	if err := l.set(ctx, e.Key, e.Value, opts); err != nil {
		c.logger.Debug("Promotion failed", "key", e.Key, "from", from, "to", l.name, "error", err)
		return false
	}
	c.promotions.Add(1)
	if c.metrics != nil {
		c.metrics.RecordPromotion(from, l.name)
	}
	return true
}

// carryOptions returns the options that reproduce e in another tier, or
// false when e has already expired.
func (c *Coordinator) carryOptions(e *types.Entry) (*types.CacheOptions, bool) {
	opts := &types.CacheOptions{Priority: e.Priority}
	if !e.ExpiresAt.IsZero() {
		ttl := e.RemainingTTL(c.now())
		if ttl <= 0 {
			return nil, false
		}
		opts.TTL = ttl
	}
	return opts, true
}

// SetResult reports the outcome of a write on each tier it targeted.
type SetResult struct {
	Written []string
	Failed  map[string]error
}

// Set writes value to every tier placement selects, in parallel. Tiers it
// does not target drop any older copy of the key so that a later read
// cannot fall through to it. Set fails only when every target failed; tiers
// that missed the write are queued for the coherency sweep.
func (c *Coordinator) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) (*SetResult, error) {
	if opts == nil {
		opts = &types.CacheOptions{}
	}
	start := time.Now()
	targets := c.targets(key, len(value), opts)

	errs := make([]error, len(c.layers))
	var g errgroup.Group
	for i, l := range c.layers {
		if targets[i] {
			g.Go(func() error {
				err := l.set(ctx, key, value, opts)
				if errors.Is(err, types.ErrCapacityExceeded) {
					_, _ = l.delete(ctx, key)
				}
				errs[i] = err
				return nil
			})
			continue
		}
		g.Go(func() error {
			_, errs[i] = l.delete(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	res := &SetResult{Failed: make(map[string]error)}
	var failures, stale []error
	repair := make(map[string]repairOp)
	for i, l := range c.layers {
		err := errs[i]
		if err == nil {
			if targets[i] {
				res.Written = append(res.Written, l.name)
			}
			continue
		}
		op := repairSync
		if targets[i] {
			res.Failed[l.name] = err
			failures = append(failures, fmt.Errorf("%s: %w", l.name, err))
			c.recordError(l.name, "set", key, err)
		} else {
			stale = append(stale, err)
			op = repairDrop
		}
		if needsRepair(err) {
			repair[l.name] = op
		}
	}
	c.trackRepair(key, repair)

	if len(res.Written) == 0 {
		return res, errors.Join(append([]error{types.ErrAllTiersFailed}, failures...)...)
	}
	if c.metrics != nil {
		c.metrics.RecordSet(res.Written, key, len(value), time.Since(start))
	}
	if len(failures) > 0 || len(stale) > 0 {
		c.logger.Warn("Partial write", "key", key, "written", res.Written,
			"failed", len(failures), "staleCopies", len(stale))
	}
	return res, nil
}

// targets applies placement: the fastest tier always; shared for hot keys
// or high priority; durable for large or persistent values; remote unless
// the caller opted out.
func (c *Coordinator) targets(key string, size int, opts *types.CacheOptions) []bool {
	t := make([]bool, len(c.layers))
	for i, l := range c.layers {
		if i == 0 {
			t[i] = true
			continue
		}
		switch l.name {
		case types.TierShared:
			t[i] = opts.Priority == types.PriorityHigh || c.classifier.IsHot(key)
		case types.TierDurable:
			t[i] = opts.Persistent || size > c.placement.DurableSizeThreshold
		case types.TierRemote:
			t[i] = !opts.SkipRemote
		default:
			t[i] = true
		}
	}
	return t
}

// DeleteResult reports which tiers held the key and which could not be
// reached.
type DeleteResult struct {
	Removed []string
	Failed  map[string]error
}

// Found reports whether any tier held the key.
func (r *DeleteResult) Found() bool {
	return len(r.Removed) > 0
}

// Delete removes key from every tier in parallel. It fails only when every
// tier failed.
func (c *Coordinator) Delete(ctx context.Context, key string) (*DeleteResult, error) {
	start := time.Now()

	removed := make([]bool, len(c.layers))
	errs := make([]error, len(c.layers))
	var g errgroup.Group
	for i, l := range c.layers {
		g.Go(func() error {
			removed[i], errs[i] = l.delete(ctx, key)
			return nil
		})
	}
	_ = g.Wait()

	c.classifier.Forget(key)

	res := &DeleteResult{Failed: make(map[string]error)}
	var failures []error
	repair := make(map[string]repairOp)
	for i, l := range c.layers {
		if err := errs[i]; err != nil {
			res.Failed[l.name] = err
			failures = append(failures, fmt.Errorf("%s: %w", l.name, err))
			c.recordError(l.name, "delete", key, err)
			if needsRepair(err) {
				repair[l.name] = repairDrop
			}
			continue
		}
		if removed[i] {
			res.Removed = append(res.Removed, l.name)
		}
	}
	c.trackRepair(key, repair)

	if c.metrics != nil {
		c.metrics.RecordDelete(key, time.Since(start))
	}

	if len(failures) == len(c.layers) {
		return res, errors.Join(append([]error{types.ErrAllTiersFailed}, failures...)...)
	}
	if len(failures) > 0 {
		c.logger.Warn("Partial delete", "key", key, "failed", len(failures))
	}
	return res, nil
}

// Contains reports whether any available tier holds key.
func (c *Coordinator) Contains(ctx context.Context, key string) (bool, error) {
	var errs []error
	for _, l := range c.layers {
		if !l.tier.IsAvailable() {
			continue
		}
		ok, err := l.contains(ctx, key)
		if err != nil {
			if !types.IsCircuitOpen(err) {
				errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
			}
			continue
		}
		if ok {
			return true, nil
		}
	}
	if len(errs) == len(c.layers) {
		return false, errors.Join(append([]error{types.ErrAllTiersFailed}, errs...)...)
	}
	return false, nil
}

// MGet looks keys up in batches of the configured size. Within a batch each
// tier is asked once for every key still missing, through GetMany when the
// tier supports it. Only keys that were found appear in the result.
func (c *Coordinator) MGet(ctx context.Context, keys []string) (map[string]*types.Entry, error) {
	out := make(map[string]*types.Entry, len(keys))
	keys = dedupe(keys)

	size := c.batchSize()
	for start := 0; start < len(keys); start += size {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		end := min(start+size, len(keys))
		c.getBatch(ctx, keys[start:end], out)
	}
	return out, nil
}

func (c *Coordinator) batchSize() int {
	if c.placement.MGetBatchSize > 0 {
		return c.placement.MGetBatchSize
	}
	return defaultBatchSize
}

func (c *Coordinator) getBatch(ctx context.Context, batch []string, out map[string]*types.Entry) {
	start := time.Now()
	for _, k := range batch {
		c.classifier.RecordAccess(k)
	}

	remaining := batch
	for i, l := range c.layers {
		if len(remaining) == 0 {
			break
		}
		if !l.tier.IsAvailable() {
			continue
		}

		found := c.fetch(ctx, l, remaining)
		if len(found) == 0 {
			continue
		}

		next := make([]string, 0, len(remaining)-len(found))
		for _, k := range remaining {
			e, ok := found[k]
			if !ok {
				next = append(next, k)
				continue
			}
			out[k] = e
			if c.metrics != nil {
				c.metrics.RecordHit(l.name, k, time.Since(start))
			}
			c.promote(ctx, i, e)
		}
		remaining = next
	}

	if c.metrics != nil {
		for _, k := range remaining {
			c.metrics.RecordMiss(k, time.Since(start))
		}
	}
}

func (c *Coordinator) fetch(ctx context.Context, l *layer, keys []string) map[string]*types.Entry {
	if bg, ok := l.tier.(types.BatchGetter); ok {
		res, err := l.policy.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
			return bg.GetMany(ctx, keys)
		})
		if err != nil {
			if !types.IsCircuitOpen(err) {
				c.recordError(l.name, "mget", "", err)
			}
			return nil
		}
		found, _ := res.(map[string]*types.Entry)
		return found
	}

	var mu sync.Mutex
	found := make(map[string]*types.Entry)
	var g errgroup.Group
	g.SetLimit(c.batchSize())
	for _, k := range keys {
		g.Go(func() error {
			e, err := l.get(ctx, k)
			if err != nil {
				if !isMiss(err) && !types.IsCircuitOpen(err) {
					c.recordError(l.name, "mget", k, err)
				}
				return nil
			}
			mu.Lock()
			found[k] = e
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return found
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// Invalidate removes every key matching the glob pattern from every tier
// and returns how many entries each tier removed. '*' matches any run of
// characters and '?' exactly one.
func (c *Coordinator) Invalidate(ctx context.Context, pattern string) (map[string]int, error) {
	counts := make([]int, len(c.layers))
	errs := make([]error, len(c.layers))
	var g errgroup.Group
	for i, l := range c.layers {
		g.Go(func() error {
			res, err := l.policy.ExecuteWithResult(ctx, func(ctx context.Context) (any, error) {
				return l.tier.DeleteByPattern(ctx, pattern)
			})
			if err != nil {
				errs[i] = err
				return nil
			}
			counts[i], _ = res.(int)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]int, len(c.layers))
	var failures []error
	for i, l := range c.layers {
		if errs[i] != nil {
			failures = append(failures, fmt.Errorf("%s: %w", l.name, errs[i]))
			c.recordError(l.name, "invalidate", pattern, errs[i])
			continue
		}
		out[l.name] = counts[i]
	}

	if len(failures) == len(c.layers) {
		return out, errors.Join(append([]error{types.ErrAllTiersFailed}, failures...)...)
	}
	if len(failures) > 0 {
		c.logger.Warn("Partial invalidation", "pattern", pattern, "failed", len(failures))
	}
	return out, nil
}

// Clear empties every tier and drops queued repairs.
func (c *Coordinator) Clear(ctx context.Context) error {
	errs := make([]error, len(c.layers))
	var g errgroup.Group
	for i, l := range c.layers {
		g.Go(func() error {
			errs[i] = l.policy.Execute(ctx, l.tier.Clear)
			if errs[i] != nil {
				errs[i] = fmt.Errorf("%s: %w", l.name, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()

	c.repairMu.Lock()
	c.repairs = make(map[string]map[string]repairOp)
	c.repairMu.Unlock()

	return errors.Join(errs...)
}

// Cleanup runs every available tier's expiry sweep and returns how many
// entries each removed.
func (c *Coordinator) Cleanup(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int, len(c.layers))
	var errs []error
	for _, l := range c.layers {
		if !l.tier.IsAvailable() {
			continue
		}
		n, err := l.tier.Cleanup(ctx)
		out[l.name] = n
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", l.name, err))
		}
	}
	return out, errors.Join(errs...)
}

// trackRepair replaces the queued repair for key. An empty ops map means the
// latest operation reached every tier.
func (c *Coordinator) trackRepair(key string, ops map[string]repairOp) {
	c.repairMu.Lock()
	defer c.repairMu.Unlock()

	if len(ops) == 0 {
		delete(c.repairs, key)
		return
	}
	if _, ok := c.repairs[key]; !ok && len(c.repairs) >= maxPendingRepairs {
		c.logger.Warn("Repair queue full, dropping", "key", key)
		return
	}
	c.repairs[key] = ops
}

// requeue adds ops for key. A tier already queued by a later operation keeps
// that operation.
func (c *Coordinator) requeue(key string, ops map[string]repairOp) {
	c.repairMu.Lock()
	defer c.repairMu.Unlock()

	merged, ok := c.repairs[key]
	if !ok {
		merged = make(map[string]repairOp, len(ops))
		c.repairs[key] = merged
	}
	for tier, op := range ops {
		if _, queued := merged[tier]; !queued {
			merged[tier] = op
		}
	}
}

// PendingRepairs returns the number of keys waiting for the coherency sweep.
func (c *Coordinator) PendingRepairs() int {
	c.repairMu.Lock()
	defer c.repairMu.Unlock()
	return len(c.repairs)
}

// Reconcile is the coherency sweep. Tiers that missed a write they were
// targeted by get the current value, copied from the fastest tier outside
// the queued set, or lose the key when no such tier holds it. Tiers that
// only missed a delete lose the key. Tiers that fail again stay queued.
func (c *Coordinator) Reconcile(ctx context.Context) (int, error) {
	c.repairMu.Lock()
	pending := c.repairs
	c.repairs = make(map[string]map[string]repairOp)
	c.repairMu.Unlock()

	repaired := 0
	for key, ops := range pending {
		if err := ctx.Err(); err != nil {
			c.requeue(key, ops)
			continue
		}
		if failed := c.repairKey(ctx, key, ops); len(failed) > 0 {
			c.requeue(key, failed)
			continue
		}
		repaired++
	}

	if repaired > 0 {
		c.logger.Debug("Coherency sweep repaired keys", "count", repaired)
	}
	return repaired, ctx.Err()
}

func (c *Coordinator) repairKey(ctx context.Context, key string, ops map[string]repairOp) map[string]repairOp {
	needSource := false
	for _, op := range ops {
		needSource = needSource || op == repairSync
	}

	var source *types.Entry
	for _, l := range c.layers {
		if !needSource {
			break
		}
		if _, queued := ops[l.name]; queued || !l.tier.IsAvailable() {
			continue
		}
		if e, ok := c.peek(ctx, l, key); ok {
			source = e
			break
		}
	}

	var opts *types.CacheOptions
	if source != nil {
		var ok bool
		if opts, ok = c.carryOptions(source); !ok {
			source = nil
		}
	}

	failed := make(map[string]repairOp)
	for name, op := range ops {
		l, ok := c.byName[name]
		if !ok {
			continue
		}
		var err error
		if op == repairSync && source != nil {
			err = l.set(ctx, key, source.Value, opts)
		} else {
			_, err = l.delete(ctx, key)
		}
		if err != nil {
			c.logger.Debug("Repair failed", "key", key, "tier", name, "error", err)
			failed[name] = op
		}
	}
	return failed
}

// peek reads key without refreshing its recency where the tier allows it.
func (c *Coordinator) peek(ctx context.Context, l *layer, key string) (*types.Entry, bool) {
	if p, ok := l.tier.(types.Peeker); ok {
		return p.Peek(key)
	}
	e, err := l.get(ctx, key)
	return e, err == nil
}

// RebalanceResult summarises one rebalancing pass.
type RebalanceResult struct {
	Demoted  int
	Promoted int
	Pruned   int
}

// Rebalance demotes cold keys out of the fastest tier and promotes hot keys
// back into it, then prunes stale temperature records. A cold key that no
// slower tier holds is written to the durable tier before it leaves the
// fastest one; without a durable tier it stays where it is.
func (c *Coordinator) Rebalance(ctx context.Context) (RebalanceResult, error) {
	var res RebalanceResult
	fast := c.layers[0]

	if lister, ok := fast.tier.(types.KeyLister); ok && len(c.layers) > 1 {
		for _, key := range lister.Keys("*") {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if c.classifier.IsCold(key) && c.demote(ctx, key) {
				res.Demoted++
			}
		}
	}

	for _, key := range c.classifier.HotKeys() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if c.promoteHot(ctx, key) {
			res.Promoted++
		}
	}

	res.Pruned = c.classifier.Prune(0)

	if res.Demoted > 0 || res.Promoted > 0 {
		c.logger.Debug("Rebalanced", "demoted", res.Demoted, "promoted", res.Promoted, "pruned", res.Pruned)
	}
	return res, nil
}

// demote moves key out of the fastest tier. When that tier numbers its
// writes, only the revision that was copied is removed; a newer write stays
// and the durable copy is queued to catch up with it.
func (c *Coordinator) demote(ctx context.Context, key string) bool {
	fast := c.layers[0]
	var rev uint64
	r, guarded := fast.tier.(types.Revisioner)
	if guarded {
		var ok bool
		if rev, ok = r.Revision(key); !ok {
			return false
		}
	}
	e, ok := c.peek(ctx, fast, key)
	if !ok {
		return false
	}

	held := false
	for _, l := range c.layers[1:] {
		if !l.tier.IsAvailable() {
			continue
		}
		if ok, err := l.contains(ctx, key); err == nil && ok {
			held = true
			break
		}
	}

	if !held {
		durable, ok := c.byName[types.TierDurable]
		if !ok || !durable.tier.IsAvailable() {
			return false
		}
		opts, ok := c.carryOptions(e)
		if !ok {
			return false
		}
		if err := durable.set(ctx, key, e.Value, opts); err != nil {
			c.logger.Debug("Demotion failed", "key", key, "error", err)
			return false
		}
	}

	if !guarded {
		_, err := fast.delete(ctx, key)
		return err == nil
	}
	if r.DeleteRevision(key, rev) {
		return true
	}
	if !held {
		c.requeue(key, map[string]repairOp{types.TierDurable: repairSync})
	}
	c.logger.Debug("Demotion skipped, key was rewritten", "key", key)
	return false
}

func (c *Coordinator) promoteHot(ctx context.Context, key string) bool {
	fast := c.layers[0]
	if ok, err := fast.contains(ctx, key); err != nil || ok {
		return false
	}

	for _, l := range c.layers[1:] {
		if !l.tier.IsAvailable() {
			continue
		}
		e, err := l.get(ctx, key)
		if err != nil {
			continue
		}
		opts, ok := c.carryOptions(e)
		if !ok {
			return false
		}
		return c.promoteTo(ctx, fast, l.name, e, opts)
	}
	return false
}

// HandleEviction is the fastest tier's eviction hook. High-priority entries
// are copied to the durable tier in the background when spilling is on.
func (c *Coordinator) HandleEviction(e *types.Entry) {
	if c.metrics != nil {
		c.metrics.RecordEviction(c.layers[0].name)
	}
	if !c.spillHighPriority || e.Priority != types.PriorityHigh {
		return
	}
	durable, ok := c.byName[types.TierDurable]
	if !ok || durable == c.layers[0] {
		return
	}
	opts, ok := c.carryOptions(e)
	if !ok {
		return
	}
	opts.Persistent = true

	entry := e.Clone()
	c.runBackground(func(ctx context.Context) {
		if err := durable.set(ctx, entry.Key, entry.Value, opts); err != nil {
			c.logger.Debug("Spill to durable tier failed", "key", entry.Key, "error", err)
			return
		}
		c.spills.Add(1)
	})
}

// Promotions returns how many promotions have succeeded.
func (c *Coordinator) Promotions() int64 {
	return c.promotions.Load()
}

// Spills returns how many evicted entries were copied to the durable tier.
func (c *Coordinator) Spills() int64 {
	return c.spills.Load()
}

// TierMetrics returns each tier's counters and breaker state, fastest first.
func (c *Coordinator) TierMetrics() []types.TierMetrics {
	out := make([]types.TierMetrics, len(c.layers))
	for i, l := range c.layers {
		out[i] = types.TierMetrics{
			Name:         l.name,
			Available:    l.tier.IsAvailable(),
			CircuitState: l.policy.CircuitState().String(),
			Stats:        l.tier.Stats(),
		}
	}
	return out
}

func (c *Coordinator) recordError(tier, op, key string, err error) {
	c.logger.Debug("Tier operation failed", "tier", tier, "op", op, "key", key, "error", err)
	if c.metrics != nil {
		c.metrics.RecordError(tier, op, err)
	}
}

// runBackground executes fn in a goroutine tracked for shutdown. It does
// nothing once Close has started.
func (c *Coordinator) runBackground(fn func(ctx context.Context)) {
	// bgMu orders Add against the Wait in Close.
	c.bgMu.Lock()
	if c.closed.Load() {
		c.bgMu.Unlock()
		return
	}
	c.bgWg.Add(1)
	c.bgMu.Unlock()

	go func() {
		defer c.bgWg.Done()
		ctx, cancel := context.WithTimeout(c.shutdownCtx, DefaultBackgroundOpTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// Close stops new background work and waits for running promotions and
// spills until ctx is done. It does not close the tiers.
func (c *Coordinator) Close(ctx context.Context) error {
	c.bgMu.Lock()
	if c.closed.Swap(true) {
		c.bgMu.Unlock()
		return nil
	}
	c.bgMu.Unlock()

	done := make(chan struct{})
	go func() {
		c.bgWg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.shutdownCancel()
		return nil
	case <-ctx.Done():
		c.shutdownCancel()
		<-done
		return types.ErrShutdownTimeout
	}
}
