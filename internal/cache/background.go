package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// PrefetchLoader produces the value for a key that should be warmed.
type PrefetchLoader func(ctx context.Context, key string) (any, error)

type prefetchRule struct {
	pattern string
	loader  PrefetchLoader
}

func (e *Engine) registerTasks() error {
	bg := e.config.Background
	interval := func(d time.Duration) time.Duration {
		if !bg.Enabled {
			return 0
		}
		return d
	}

	tasks := []struct {
		name     string
		interval time.Duration
		fn       func(ctx context.Context)
	}{
		{TaskAnalytics, interval(bg.AnalyticsInterval), func(context.Context) { e.reporter.Publish() }},
		{TaskPrefetch, interval(bg.PrefetchInterval), e.runPrefetch},
		{TaskCleanup, interval(bg.CleanupInterval), e.runCleanup},
		{TaskRebalance, interval(bg.RebalanceInterval), e.runRebalance},
		{TaskCoherency, interval(bg.CoherencyInterval), e.runCoherency},
	}
	for _, t := range tasks {
		if err := e.scheduler.Add(t.name, t.interval, t.fn); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runCleanup(ctx context.Context) {
	removed, err := e.coord.Cleanup(ctx)
	if err != nil {
		e.logger.Warn("Cleanup sweep failed", "error", err)
	}
	e.logger.Debug("Cleanup sweep finished", "removed", removed)
}

func (e *Engine) runRebalance(ctx context.Context) {
	res, err := e.coord.Rebalance(ctx)
	if err != nil {
		e.logger.Warn("Rebalance failed", "error", err)
		return
	}
	e.logger.Debug("Rebalance finished",
		"demoted", res.Demoted,
		"promoted", res.Promoted,
		"pruned", res.Pruned,
	)
}

func (e *Engine) runCoherency(ctx context.Context) {
	repaired, err := e.coord.Reconcile(ctx)
	if err != nil {
		e.logger.Warn("Coherency sweep failed", "error", err)
	}
	if repaired > 0 {
		e.logger.Info("Coherency sweep repaired keys",
			"repaired", repaired,
			"pending", e.coord.PendingRepairs(),
		)
	}
}

// RegisterPrefetch installs loader for keys matching the glob pattern. The
// first matching rule wins.
func (e *Engine) RegisterPrefetch(pattern string, loader PrefetchLoader) error {
	if pattern == "" || loader == nil {
		return errors.New("prefetch: pattern and loader are required")
	}
	e.prefetchMu.Lock()
	e.prefetch = append(e.prefetch, prefetchRule{pattern: pattern, loader: loader})
	e.prefetchMu.Unlock()
	return nil
}

func (e *Engine) loaderFor(key string) PrefetchLoader {
	e.prefetchMu.RLock()
	defer e.prefetchMu.RUnlock()
	for _, r := range e.prefetch {
		if MatchPattern(key, r.pattern) {
			return r.loader
		}
	}
	return nil
}

// Prefetch loads and stores the given keys through their registered
// loaders. It returns how many were stored.
func (e *Engine) Prefetch(ctx context.Context, keys ...string) (int, error) {
	if e.closed.Load() {
		return 0, types.ErrClosed
	}

	var errs []error
	loaded := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return loaded, err
		}
		loader := e.loaderFor(key)
		if loader == nil {
			errs = append(errs, fmt.Errorf("prefetch %q: no loader registered", key))
			continue
		}
		if err := e.load(ctx, key, loader); err != nil {
			errs = append(errs, err)
			continue
		}
		loaded++
	}
	return loaded, errors.Join(errs...)
}

// runPrefetch reloads hot keys that have a loader but are no longer held by
// any tier.
func (e *Engine) runPrefetch(ctx context.Context) {
	e.prefetchMu.RLock()
	empty := len(e.prefetch) == 0
	e.prefetchMu.RUnlock()
	if empty {
		return
	}

	loaded := 0
	for _, key := range e.coord.Classifier().HotKeys() {
		if ctx.Err() != nil {
			return
		}
		loader := e.loaderFor(key)
		if loader == nil {
			continue
		}
		if held, err := e.coord.Contains(ctx, key); err != nil || held {
			continue
		}
		if err := e.load(ctx, key, loader); err != nil {
			e.logger.Debug("Prefetch failed", "key", key, "error", err)
			continue
		}
		loaded++
	}
	if loaded > 0 {
		e.logger.Debug("Prefetched hot keys", "count", loaded)
	}
}

func (e *Engine) load(ctx context.Context, key string, loader PrefetchLoader) error {
	value, err := loader(ctx, key)
	if err != nil {
		return fmt.Errorf("prefetch %q: %w", key, err)
	}
	return e.Set(ctx, key, value)
}
