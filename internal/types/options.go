package types

import "time"

// Option is a functional option for configuring cache operations.
type Option func(*CacheOptions)

// ApplyOptions applies functional options to create CacheOptions.
// TTL and Priority stay zero unless an option sets them so the engine can
// fill in configured defaults.
func ApplyOptions(opts ...Option) *CacheOptions {
	options := &CacheOptions{}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// EngineOptions holds injectable collaborators for the engine.
type EngineOptions struct {
	// Logger is the structured logger to use.
	Logger Logger

	// Metrics receives operation events in addition to the built-in tracker.
	Metrics MetricsRecorder

	// Publisher overrides the analytics publisher built from config.
	Publisher Publisher

	// Serializer is the value serializer.
	Serializer Serializer

	// RemoteAddress overrides the remote tier address from config.
	RemoteAddress string

	// RemotePassword overrides the remote tier password from config.
	// Uses SecretString to prevent accidental logging of sensitive values.
	RemotePassword SecretString

	// DurableDirectory overrides the durable tier directory from config.
	DurableDirectory string

	// RemoteTier replaces the Redis remote tier with a custom implementation.
	RemoteTier Tier

	// DisableRemote disables the remote tier entirely.
	DisableRemote bool

	// DisableResilience disables circuit breaker, retry and bulkhead.
	DisableResilience bool
}

func WithTTL(ttl time.Duration) Option {
	return func(o *CacheOptions) {
		o.TTL = ttl
	}
}

func WithPriority(priority CachePriority) Option {
	return func(o *CacheOptions) {
		o.Priority = priority
	}
}

func WithHighPriority() Option {
	return WithPriority(PriorityHigh)
}

func WithLowPriority() Option {
	return WithPriority(PriorityLow)
}

// WithCompression forces (true) or suppresses (false) durable-tier
// compression for this write.
func WithCompression(enabled bool) Option {
	return func(o *CacheOptions) {
		o.Compress = enabled
		o.NoCompress = !enabled
	}
}

// WithPersistent makes the write land in the durable tier regardless of size.
func WithPersistent() Option {
	return func(o *CacheOptions) {
		o.Persistent = true
	}
}

// WithDistributed(false) keeps the write out of the remote tier.
func WithDistributed(distributed bool) Option {
	return func(o *CacheOptions) {
		o.SkipRemote = !distributed
	}
}

func WithFireAndForget() Option {
	return func(o *CacheOptions) {
		o.FireAndForget = true
	}
}
