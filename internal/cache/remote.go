package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/LavishGent/tiercache/internal/config"
	"github.com/LavishGent/tiercache/internal/types"
)

const (
	disconnectErrorThreshold = 5
	reconnectProbeInterval   = time.Second
	asyncWriteTimeout        = 2 * time.Second
	scanBatchSize            = 100
)

// RemoteTier stores entry envelopes in Redis. It serves the remote tier and,
// pointed at a host-local instance, the redis backend of the shared tier.
type RemoteTier struct {
	name   string
	client *redis.Client
	config config.RedisConfig
	logger *slog.Logger

	mu            sync.RWMutex
	connected     atomic.Bool
	lastError     error
	lastErrorTime time.Time
	errorCount    atomic.Int64
	lastProbe     atomic.Int64

	writeQueue    chan writeOp
	pendingWrites atomic.Int32
	droppedWrites atomic.Int64
	stopCh        chan struct{}
	wg            sync.WaitGroup

	healthCheckStopCh chan struct{}
	healthCheckWg     sync.WaitGroup
	closeOnce         sync.Once

	hits              atomic.Int64
	misses            atomic.Int64
	sets              atomic.Int64
	deletes           atomic.Int64
	integrityFailures atomic.Int64
}

type writeOp struct {
	key   string
	value []byte
	ttl   time.Duration
}

// NewRemoteTier connects to Redis. A failed initial ping is logged and the
// tier starts unavailable; the health check reconnects it later. Without a
// health check interval the tier probes the server itself, at most once per
// second, whenever it is asked to do work while disconnected.
func NewRemoteTier(name string, cfg config.RedisConfig, logger *slog.Logger) (*RemoteTier, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", name+"-tier")

	opts := &redis.Options{
		Network:      cfg.Network,
		Addr:         cfg.Address,
		Password:     cfg.Password.Value(),
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolTimeout:  cfg.PoolTimeout,
	}

	if cfg.EnableTLS {
		opts.TLSConfig = &tls.Config{
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec // opt-in via config
		}
		if cfg.TLSSkipVerify {
			logger.Warn("TLS certificate verification is disabled - this is insecure for production use")
		}
	}

	queueSize := cfg.MaxPendingWrites
	if queueSize <= 0 {
		queueSize = 1000
	}

	rt := &RemoteTier{
		name:              name,
		client:            redis.NewClient(opts),
		config:            cfg,
		logger:            logger,
		writeQueue:        make(chan writeOp, queueSize),
		stopCh:            make(chan struct{}),
		healthCheckStopCh: make(chan struct{}),
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	if err := rt.client.Ping(ctx).Err(); err != nil {
		rt.logger.Warn("Initial connection failed", "address", cfg.Address, "error", err)
		rt.setError(err)
		rt.lastProbe.Store(time.Now().UnixNano())
	} else {
		rt.connected.Store(true)
		rt.logger.Info("Connected", "address", cfg.Address)
	}

	rt.wg.Add(1)
	go rt.asyncWriteWorker()

	if cfg.HealthCheckInterval > 0 {
		rt.healthCheckWg.Add(1)
		go rt.healthCheckWorker()
	}

	return rt, nil
}

func (t *RemoteTier) Name() string {
	return t.name
}

func (t *RemoteTier) IsAvailable() bool {
	return t.ready()
}

// ready reports whether the tier is connected. A disconnected tier with no
// health check worker pings the server when the last probe is old enough.
func (t *RemoteTier) ready() bool {
	if t.connected.Load() {
		return true
	}
	if t.config.HealthCheckInterval > 0 {
		return false
	}
	now := time.Now().UnixNano()
	last := t.lastProbe.Load()
	if now-last < int64(reconnectProbeInterval) || !t.lastProbe.CompareAndSwap(last, now) {
		return false
	}
	t.performHealthCheck()
	return t.connected.Load()
}

func (t *RemoteTier) prefixKey(key string) string {
	return t.config.KeyPrefix + key
}

func (t *RemoteTier) unavailable(op, key string) error {
	return types.NewCacheError(op, key, t.name, types.ErrTierUnavailable)
}

func (t *RemoteTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	if !t.ready() {
		return nil, t.unavailable("Get", key)
	}

	data, err := t.client.Get(ctx, t.prefixKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			t.misses.Add(1)
			return nil, types.ErrCacheMiss
		}
		t.handleError(err)
		return nil, types.NewIOError("Get", key, t.name, err)
	}
	t.clearError()

	e, err := decodeEntry(key, data)
	if err != nil {
		t.purgeCorrupt(ctx, key, err)
		return nil, types.NewCacheError("Get", key, t.name, err)
	}

	t.hits.Add(1)
	return e, nil
}

func (t *RemoteTier) purgeCorrupt(ctx context.Context, key string, cause error) {
	t.integrityFailures.Add(1)
	t.misses.Add(1)
	if err := t.client.Del(ctx, t.prefixKey(key)).Err(); err != nil {
		t.logger.Debug("Failed to purge corrupt entry", "key", key, "error", err)
	}
	t.logger.Warn("Purged corrupt entry", "key", key, "error", cause)
}

// GetMany fetches keys with a single MGET. Missing and corrupt keys are
// absent from the result.
func (t *RemoteTier) GetMany(ctx context.Context, keys []string) (map[string]*types.Entry, error) {
	if !t.ready() {
		return nil, t.unavailable("GetMany", "")
	}
	if len(keys) == 0 {
		return make(map[string]*types.Entry), nil
	}

	prefixed := make([]string, len(keys))
	for i, key := range keys {
		prefixed[i] = t.prefixKey(key)
	}

	results, err := t.client.MGet(ctx, prefixed...).Result()
	if err != nil {
		t.handleError(err)
		return nil, types.NewIOError("GetMany", "", t.name, err)
	}
	t.clearError()

	out := make(map[string]*types.Entry, len(keys))
	for i, result := range results {
		str, ok := result.(string)
		if !ok {
			t.misses.Add(1)
			continue
		}
		e, err := decodeEntry(keys[i], []byte(str))
		if err != nil {
			t.purgeCorrupt(ctx, keys[i], err)
			continue
		}
		out[keys[i]] = e
		t.hits.Add(1)
	}
	return out, nil
}

func (t *RemoteTier) Contains(ctx context.Context, key string) (bool, error) {
	if !t.ready() {
		return false, t.unavailable("Contains", key)
	}

	exists, err := t.client.Exists(ctx, t.prefixKey(key)).Result()
	if err != nil {
		t.handleError(err)
		return false, types.NewIOError("Contains", key, t.name, err)
	}

	t.clearError()
	return exists > 0, nil
}

// Set writes key with the call's TTL. FireAndForget writes are queued and
// return ErrWriteQueueFull when the queue is saturated.
func (t *RemoteTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	fireAndForget := opts != nil && opts.FireAndForget
	if !fireAndForget && !t.ready() {
		return t.unavailable("Set", key)
	}

	ttl := resolveTTL(opts, t.config.DefaultTTL)
	data := encodeEntry(newEntry(key, value, priorityOf(opts), time.Now(), ttl))

	if fireAndForget {
		return t.setAsync(key, data, ttl)
	}

	if err := t.client.Set(ctx, t.prefixKey(key), data, ttl).Err(); err != nil {
		t.handleError(err)
		return types.NewIOError("Set", key, t.name, err)
	}

	t.sets.Add(1)
	t.clearError()
	return nil
}

func (t *RemoteTier) setAsync(key string, data []byte, ttl time.Duration) error {
	select {
	case t.writeQueue <- writeOp{key: t.prefixKey(key), value: data, ttl: ttl}:
		t.pendingWrites.Add(1)
		return nil
	default:
		t.droppedWrites.Add(1)
		t.logger.Warn("Write queue full, dropping SET",
			"key", key,
			"dropped_total", t.droppedWrites.Load(),
		)
		return types.NewCacheError("Set", key, t.name, types.ErrWriteQueueFull)
	}
}

func (t *RemoteTier) asyncWriteWorker() {
	defer t.wg.Done()

	for {
		select {
		case <-t.stopCh:
			for {
				select {
				case op := <-t.writeQueue:
					t.executeWrite(op)
				default:
					return
				}
			}
		case op := <-t.writeQueue:
			t.executeWrite(op)
		}
	}
}

func (t *RemoteTier) executeWrite(op writeOp) {
	defer t.pendingWrites.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), asyncWriteTimeout)
	defer cancel()

	if err := t.client.Set(ctx, op.key, op.value, op.ttl).Err(); err != nil {
		t.handleError(err)
		t.logger.Debug("Async SET failed", "key", op.key, "error", err)
		return
	}
	t.sets.Add(1)
	t.clearError()
}

func (t *RemoteTier) healthCheckWorker() {
	defer t.healthCheckWg.Done()

	ticker := time.NewTicker(t.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.healthCheckStopCh:
			return
		case <-ticker.C:
			t.performHealthCheck()
		}
	}
}

func (t *RemoteTier) performHealthCheck() {
	wasConnected := t.connected.Load()

	timeout := t.config.DialTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := t.client.Ping(ctx).Err(); err != nil {
		if wasConnected {
			t.logger.Warn("Health check failed", "error", err)
			t.setError(err)
		}
		return
	}

	if !wasConnected {
		t.connected.Store(true)
		t.errorCount.Store(0)
		t.logger.Info("Connection restored via health check")
	}
}

func (t *RemoteTier) Delete(ctx context.Context, key string) (bool, error) {
	if !t.ready() {
		return false, t.unavailable("Delete", key)
	}

	n, err := t.client.Del(ctx, t.prefixKey(key)).Result()
	if err != nil {
		t.handleError(err)
		return false, types.NewIOError("Delete", key, t.name, err)
	}

	t.clearError()
	if n > 0 {
		t.deletes.Add(1)
	}
	return n > 0, nil
}

// Cleanup is a no-op: Redis expires keys itself.
func (t *RemoteTier) Cleanup(ctx context.Context) (int, error) {
	return 0, nil
}

func (t *RemoteTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	if !t.ready() {
		return 0, t.unavailable("DeleteByPattern", pattern)
	}
	n, err := t.deleteMatching(ctx, t.prefixKey(redisGlob(pattern)))
	t.deletes.Add(int64(n))
	return n, err
}

func (t *RemoteTier) Clear(ctx context.Context) error {
	if !t.ready() {
		return t.unavailable("Clear", "")
	}
	_, err := t.deleteMatching(ctx, t.prefixKey("*"))
	return err
}

func (t *RemoteTier) deleteMatching(ctx context.Context, match string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)

	for {
		keys, next, err := t.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			t.handleError(err)
			return deleted, types.NewIOError("DeleteByPattern", match, t.name, err)
		}

		if len(keys) > 0 {
			n, err := t.client.Del(ctx, keys...).Result()
			if err != nil {
				t.handleError(err)
				return deleted, types.NewIOError("DeleteByPattern", match, t.name, err)
			}
			deleted += int(n)
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	t.logger.Debug("Deleted keys by pattern", "match", match, "deleted", deleted)
	t.clearError()
	return deleted, nil
}

// Close drains queued writes and closes the client. Safe to call twice.
func (t *RemoteTier) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.connected.Store(false)

		close(t.healthCheckStopCh)
		t.healthCheckWg.Wait()

		close(t.stopCh)
		t.wg.Wait()

		err = t.client.Close()
	})
	return err
}

func (t *RemoteTier) Stats() types.TierStats {
	return types.TierStats{
		Hits:              t.hits.Load(),
		Misses:            t.misses.Load(),
		Sets:              t.sets.Load(),
		Deletes:           t.deletes.Load(),
		IntegrityFailures: t.integrityFailures.Load(),
	}
}

func (t *RemoteTier) PendingWrites() int {
	return int(t.pendingWrites.Load())
}

func (t *RemoteTier) DroppedWrites() int64 {
	return t.droppedWrites.Load()
}

func (t *RemoteTier) handleError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.lastError = err
	t.lastErrorTime = time.Now()
	count := t.errorCount.Add(1)

	if count >= disconnectErrorThreshold {
		if t.connected.CompareAndSwap(true, false) {
			t.logger.Warn("Marked as disconnected after errors",
				"error_count", count,
				"last_error", err,
			)
		}
	}
}

func (t *RemoteTier) clearError() {
	if t.errorCount.Swap(0) > 0 {
		if t.connected.CompareAndSwap(false, true) {
			t.logger.Info("Connection restored")
		}
	}
}

func (t *RemoteTier) setError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastError = err
	t.lastErrorTime = time.Now()
	t.connected.Store(false)
}

// LastError returns the most recent transport error and when it happened.
func (t *RemoteTier) LastError() (time.Time, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErrorTime, t.lastError
}

var _ types.Tier = (*RemoteTier)(nil)
