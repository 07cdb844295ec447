package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/coordinator"
	"github.com/LavishGent/tiercache/internal/metrics"
	"github.com/LavishGent/tiercache/internal/metrics/datadog"
	"github.com/LavishGent/tiercache/internal/metrics/prom"
	"github.com/LavishGent/tiercache/internal/resilience"
	"github.com/LavishGent/tiercache/internal/temperature"
	"github.com/LavishGent/tiercache/internal/types"
)

// DefaultShutdownTimeout bounds Close when the config does not set one.
const DefaultShutdownTimeout = 30 * time.Second

// inactiveTier is a tier slot that is not part of the hierarchy, either
// because config disables it or because it could not be built.
type inactiveTier struct {
	tier       *DisabledTier
	configured bool
}

// Engine is the cache façade. It owns the tiers, the coordinator that
// drives them, metrics and the background scheduler.
type Engine struct {
	config       *config.Config
	coord        *coordinator.Coordinator
	tiers        []types.Tier
	inactive     []inactiveTier
	serializer   types.Serializer
	tracker      *metrics.Tracker
	recorder     types.MetricsRecorder
	publisher    types.Publisher
	reporter     *metrics.Reporter
	scheduler    *Scheduler
	logger       *slog.Logger
	keyValidator *types.KeyValidator
	sfGroup      singleflight.Group

	prefetchMu sync.RWMutex
	prefetch   []prefetchRule

	initialized atomic.Bool
	closed      atomic.Bool
}

// NewEngine builds every configured tier and wires it into a coordinator.
// A tier that cannot be built is logged and left out; only a broken fast
// tier is fatal. cfg is modified in place by opts overrides.
//
//nolint:gocyclo // Configuration initialization requires multiple conditional checks
func NewEngine(cfg *config.Config, opts *types.EngineOptions) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if opts == nil {
		opts = &types.EngineOptions{}
	}

	logger := slog.Default()
	if opts.Logger != nil {
		logger = slog.New(slogAdapter{logger: opts.Logger})
	}

	if opts.RemoteAddress != "" {
		cfg.Remote.Address = opts.RemoteAddress
	}
	if !opts.RemotePassword.IsEmpty() {
		cfg.Remote.Password = opts.RemotePassword
	}
	if opts.DurableDirectory != "" {
		cfg.Durable.Directory = opts.DurableDirectory
	}
	if opts.DisableRemote {
		cfg.Remote.Enabled = false
	}
	if opts.DisableResilience {
		cfg.CircuitBreaker.Enabled = false
		cfg.Retry.Enabled = false
		cfg.Bulkhead.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:     cfg,
		logger:     logger.With("component", "engine"),
		serializer: NewJSONSerializer(),
		tracker:    metrics.NewTracker(),
	}
	if opts.Serializer != nil {
		e.serializer = opts.Serializer
	}
	if cfg.KeyValidation.Enabled {
		e.keyValidator = types.NewKeyValidator(cfg.KeyValidation.ToTypesConfig())
	}

	if err := e.buildMetrics(opts, logger); err != nil {
		return nil, err
	}

	fast, err := NewFastTier(cfg.Fast, logger)
	if err != nil {
		_ = e.publisher.Close()
		return nil, err
	}
	e.tiers = append(e.tiers, fast)
	e.addOptional(types.TierShared, cfg.Shared.Enabled, func() (types.Tier, error) {
		if cfg.Shared.Backend == "redis" {
			return NewRemoteTier(types.TierShared, cfg.Shared.Redis, logger)
		}
		return NewSharedTier(cfg.Shared, logger)
	})
	e.addOptional(types.TierDurable, cfg.Durable.Enabled, func() (types.Tier, error) {
		return NewDurableTier(cfg.Durable, logger)
	})
	e.addOptional(types.TierRemote, opts.RemoteTier != nil || cfg.Remote.Enabled, func() (types.Tier, error) {
		if opts.RemoteTier != nil {
			return opts.RemoteTier, nil
		}
		return NewRemoteTier(types.TierRemote, cfg.Remote, logger)
	})

	bindings := make([]coordinator.Binding, 0, len(e.tiers))
	for _, t := range e.tiers {
		bindings = append(bindings, coordinator.Binding{Tier: t, Policy: e.newPolicy(t.Name())})
	}

	e.coord, err = coordinator.New(coordinator.Options{
		Placement:         cfg.Placement,
		Classifier:        temperature.New(cfg.Temperature),
		Metrics:           e.recorder,
		Logger:            logger,
		SpillHighPriority: cfg.Fast.SpillHighPriority,
	}, bindings...)
	if err != nil {
		e.closeTiers()
		_ = e.publisher.Close()
		return nil, err
	}
	fast.SetEvictionHandler(e.coord.HandleEviction)

	e.reporter = metrics.NewReporter(e.publisher, e.GetDetailedMetrics, logger)
	e.scheduler = NewScheduler(logger)
	if err := e.registerTasks(); err != nil {
		e.closeTiers()
		_ = e.publisher.Close()
		return nil, err
	}

	e.logger.Info("Engine created", "tiers", e.coord.TierNames())
	return e, nil
}

// buildMetrics picks the publisher and assembles the recorder chain. The
// built-in tracker always records; it backs GetDetailedMetrics.
func (e *Engine) buildMetrics(opts *types.EngineOptions, logger *slog.Logger) error {
	cfg := e.config.Metrics
	recorders := []types.MetricsRecorder{e.tracker, opts.Metrics}

	switch {
	case opts.Publisher != nil:
		e.publisher = opts.Publisher
	case cfg.Enabled && cfg.DataDog.Enabled:
		pub, err := datadog.NewPublisher(&cfg.DataDog, logger)
		if err != nil {
			return err
		}
		e.publisher = pub
		recorders = append(recorders, metrics.NewPublisherRecorder(pub))
	case cfg.Enabled:
		e.publisher = metrics.NewLoggingPublisher(logger)
	default:
		e.publisher = metrics.NewNoOpPublisher()
	}

	if cfg.Enabled && cfg.Prometheus.Enabled {
		rec, err := prom.NewRecorder(cfg.Prometheus.Namespace, prometheus.DefaultRegisterer)
		if err != nil {
			_ = e.publisher.Close()
			return fmt.Errorf("prometheus recorder: %w", err)
		}
		recorders = append(recorders, rec)
	}

	e.recorder = metrics.NewMultiRecorder(recorders...)
	return nil
}

func (e *Engine) addOptional(name string, enabled bool, build func() (types.Tier, error)) {
	if !enabled {
		e.inactive = append(e.inactive, inactiveTier{tier: NewDisabledTier(name)})
		return
	}
	t, err := build()
	if err != nil {
		e.logger.Warn("Tier unavailable, continuing without it", "tier", name, "error", err)
		e.inactive = append(e.inactive, inactiveTier{tier: NewDisabledTier(name), configured: true})
		return
	}
	e.tiers = append(e.tiers, t)
}

func (e *Engine) newPolicy(tier string) resilience.Executor {
	cfg := e.config
	if !cfg.CircuitBreaker.Enabled && !cfg.Retry.Enabled && !cfg.Bulkhead.Enabled {
		return resilience.NewDisabledPolicy(tier)
	}
	p := resilience.NewPolicy(tier, cfg)
	p.SetOnCircuitStateChange(func(from, to resilience.State) {
		level := slog.LevelInfo
		if to == resilience.StateOpen {
			level = slog.LevelWarn
		}
		e.logger.Log(context.Background(), level, "Circuit breaker state changed",
			"tier", tier,
			"from", from.String(),
			"to", to.String(),
		)
		e.recorder.RecordCircuitBreakerStateChange(tier, from.String(), to.String())
	})
	return p
}

// Initialize starts the background tasks. Calling it again is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.closed.Load() {
		return types.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.initialized.Swap(true) {
		return nil
	}
	if e.config.Background.Enabled {
		e.scheduler.Start()
	}
	e.logger.Info("Engine initialized", "background", e.config.Background.Enabled)
	return nil
}

// Get reads key from the fastest tier holding it and decodes it into dest.
func (e *Engine) Get(ctx context.Context, key string, dest any) error {
	data, err := e.GetBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := e.serializer.Unmarshal(data, dest); err != nil {
		e.logger.Debug("Deserialization failed", "key", key, "error", err)
		return err
	}
	return nil
}

// GetBytes returns the raw stored payload.
func (e *Engine) GetBytes(ctx context.Context, key string) ([]byte, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return nil, err
	}

	entry, _, err := e.coord.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return entry.Value, nil
}

// Set encodes value and writes it to the tiers placement selects.
func (e *Engine) Set(ctx context.Context, key string, value any, opts ...types.Option) error {
	if e.closed.Load() {
		return types.ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return err
	}
	data, err := e.serializer.Marshal(value)
	if err != nil {
		return err
	}
	return e.SetBytes(ctx, key, data, opts...)
}

// SetBytes writes a raw payload. It fails only when every target tier
// failed.
func (e *Engine) SetBytes(ctx context.Context, key string, data []byte, opts ...types.Option) error {
	if e.closed.Load() {
		return types.ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return err
	}
	_, err := e.coord.Set(ctx, key, data, e.applyDefaults(opts...))
	return err
}

// GetOrCreate reads key, or runs factory once across concurrent callers and
// caches its result.
func (e *Engine) GetOrCreate(ctx context.Context, key string, dest any, factory func() (any, error), opts ...types.Option) error {
	err := e.Get(ctx, key, dest)
	if err == nil || !types.IsCacheMiss(err) {
		return err
	}

	result, err, _ := e.sfGroup.Do(key, func() (any, error) {
		if data, getErr := e.GetBytes(ctx, key); getErr == nil {
			return data, nil
		}

		value, factoryErr := factory()
		if factoryErr != nil {
			return nil, factoryErr
		}
		data, marshalErr := e.serializer.Marshal(value)
		if marshalErr != nil {
			return nil, marshalErr
		}
		if setErr := e.SetBytes(ctx, key, data, opts...); setErr != nil {
			e.logger.Debug("Failed to cache factory result", "key", key, "error", setErr)
		}
		return data, nil
	})
	if err != nil {
		return err
	}

	data, ok := result.([]byte)
	if !ok {
		return fmt.Errorf("unexpected result type: %T", result)
	}
	return e.serializer.Unmarshal(data, dest)
}

// Delete removes key from every tier and reports whether any tier held it.
// Deleting an absent key is not an error.
func (e *Engine) Delete(ctx context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, types.ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return false, err
	}
	res, err := e.coord.Delete(ctx, key)
	if err != nil {
		return false, err
	}
	return res.Found(), nil
}

// Contains reports whether any available tier holds key.
func (e *Engine) Contains(ctx context.Context, key string) (bool, error) {
	if e.closed.Load() {
		return false, types.ErrClosed
	}
	if err := e.validateKey(key); err != nil {
		return false, err
	}
	return e.coord.Contains(ctx, key)
}

// MGet looks keys up in fixed-size batches. Missing keys are left out of
// the result.
func (e *Engine) MGet(ctx context.Context, keys []string) (map[string][]byte, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}
	if len(keys) == 0 {
		return make(map[string][]byte), nil
	}
	if err := e.validateKeys(keys); err != nil {
		return nil, err
	}

	entries, err := e.coord.MGet(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(entries))
	for k, entry := range entries {
		out[k] = entry.Value
	}
	return out, nil
}

// Invalidate removes every key matching the glob pattern from every tier
// and returns the per-tier counts. '*' matches any run of characters and
// '?' exactly one.
func (e *Engine) Invalidate(ctx context.Context, pattern string) (map[string]int, error) {
	if e.closed.Load() {
		return nil, types.ErrClosed
	}
	if pattern == "" {
		return nil, types.NewCacheError("Invalidate", "", "engine", types.ErrInvalidKey)
	}
	return e.coord.Invalidate(ctx, pattern)
}

// Clear empties every tier.
func (e *Engine) Clear(ctx context.Context) error {
	if e.closed.Load() {
		return types.ErrClosed
	}
	return e.coord.Clear(ctx)
}

// Trigger runs a background task now, bypassing its interval.
func (e *Engine) Trigger(task string) bool {
	return e.scheduler.Trigger(task)
}

// GetDetailedMetrics aggregates operation counters, per-tier stats and the
// temperature picture.
func (e *Engine) GetDetailedMetrics() *types.DetailedMetrics {
	return &types.DetailedMetrics{
		Timestamp:             time.Now(),
		Operations:            e.tracker.Snapshot(),
		Tiers:                 e.coord.TierMetrics(),
		Temperature:           e.coord.Classifier().Stats(),
		PendingReconciliation: e.coord.PendingRepairs(),
	}
}

// Health reports per-tier status. The engine is unhealthy when the fast
// tier is down and degraded when any other configured tier is.
func (e *Engine) Health(ctx context.Context) (*types.HealthMetrics, error) {
	h := &types.HealthMetrics{
		Timestamp: time.Now(),
		Status:    types.HealthStatusHealthy,
	}

	for i, tm := range e.coord.TierMetrics() {
		th := types.TierHealth{
			Name:                tm.Name,
			Status:              types.HealthStatusHealthy,
			Available:           tm.Available && tm.CircuitState != resilience.StateOpen.String(),
			Enabled:             true,
			CircuitBreakerState: tm.CircuitState,
			Stats:               tm.Stats,
		}
		if !th.Available {
			th.Status = types.HealthStatusUnhealthy
			if i == 0 {
				h.Status = types.HealthStatusUnhealthy
			} else if h.Status == types.HealthStatusHealthy {
				h.Status = types.HealthStatusDegraded
			}
		}
		h.Tiers = append(h.Tiers, th)
	}

	for _, it := range e.inactive {
		th := types.TierHealth{
			Name:                it.tier.Name(),
			Status:              types.HealthStatusHealthy,
			Enabled:             it.configured,
			CircuitBreakerState: resilience.StateClosed.String(),
		}
		if it.configured {
			th.Status = types.HealthStatusUnhealthy
			if h.Status == types.HealthStatusHealthy {
				h.Status = types.HealthStatusDegraded
			}
		}
		h.Tiers = append(h.Tiers, th)
	}

	return h, nil
}

// IsHealthy reports whether the fast tier can serve requests.
func (e *Engine) IsHealthy(ctx context.Context) bool {
	return !e.closed.Load() && e.tiers[0].IsAvailable()
}

// Close shuts down with the configured shutdown timeout.
func (e *Engine) Close() error {
	timeout := e.config.Background.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return e.Shutdown(ctx)
}

// Shutdown stops background tasks, waits for in-flight promotions, closes
// the tiers fastest first and finally the publisher. Every step runs even
// when an earlier one fails; the errors are joined.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.closed.Swap(true) {
		return nil
	}
	e.logger.Info("Shutting down engine")

	var errs []error
	if err := e.scheduler.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}
	if err := e.coord.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("coordinator: %w", err))
	}

	if e.config.Metrics.Enabled {
		e.reporter.Publish()
	}

	errs = append(errs, e.closeTiers()...)

	if err := e.publisher.Close(); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}

	if len(errs) > 0 {
		e.logger.Warn("Shutdown finished with errors", "errors", len(errs))
		return errors.Join(errs...)
	}
	e.logger.Info("Engine shut down")
	return nil
}

func (e *Engine) closeTiers() []error {
	var errs []error
	for _, t := range e.tiers {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s tier: %w", t.Name(), err))
		}
	}
	return errs
}

func (e *Engine) validateKey(key string) error {
	if e.keyValidator == nil {
		return nil
	}
	return e.keyValidator.Validate(key)
}

func (e *Engine) validateKeys(keys []string) error {
	for _, key := range keys {
		if err := e.validateKey(key); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) applyDefaults(opts ...types.Option) *types.CacheOptions {
	options := types.ApplyOptions(opts...)

	if options.TTL == 0 {
		options.TTL = e.config.Defaults.TTL
	}
	if options.Priority == 0 {
		options.Priority = types.ParsePriority(e.config.Defaults.Priority)
	}
	if e.config.Defaults.FireAndForget {
		options.FireAndForget = true
	}

	return options
}
