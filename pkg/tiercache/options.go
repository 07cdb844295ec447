package tiercache

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

type (
	Option        = types.Option
	EngineOptions = types.EngineOptions
)

func ApplyOptions(opts ...Option) *CacheOptions {
	return types.ApplyOptions(opts...)
}

func WithTTL(ttl time.Duration) Option {
	return types.WithTTL(ttl)
}

func WithPriority(priority CachePriority) Option {
	return types.WithPriority(priority)
}

func WithHighPriority() Option {
	return types.WithHighPriority()
}

func WithLowPriority() Option {
	return types.WithLowPriority()
}

// WithCompression forces durable-tier compression on or off for one write.
func WithCompression(enabled bool) Option {
	return types.WithCompression(enabled)
}

// WithPersistent stores the value in the durable tier regardless of size.
func WithPersistent() Option {
	return types.WithPersistent()
}

// WithDistributed controls whether the write reaches the remote tier.
func WithDistributed(distributed bool) Option {
	return types.WithDistributed(distributed)
}

func WithFireAndForget() Option {
	return types.WithFireAndForget()
}

type EngineOption func(*EngineOptions)

func WithLogger(logger Logger) EngineOption {
	return func(o *EngineOptions) {
		o.Logger = logger
	}
}

func WithMetrics(metrics MetricsRecorder) EngineOption {
	return func(o *EngineOptions) {
		o.Metrics = metrics
	}
}

// WithPublisher replaces the analytics publisher chosen by config.
func WithPublisher(publisher Publisher) EngineOption {
	return func(o *EngineOptions) {
		o.Publisher = publisher
	}
}

func WithSerializer(serializer Serializer) EngineOption {
	return func(o *EngineOptions) {
		o.Serializer = serializer
	}
}

func WithRemoteAddress(addr string) EngineOption {
	return func(o *EngineOptions) {
		o.RemoteAddress = addr
	}
}

func WithRemotePassword(password string) EngineOption {
	return func(o *EngineOptions) {
		o.RemotePassword = types.NewSecretString(password)
	}
}

// WithRemoteTier plugs in a custom remote tier in place of Redis.
func WithRemoteTier(tier Tier) EngineOption {
	return func(o *EngineOptions) {
		o.RemoteTier = tier
	}
}

func WithDurableDirectory(dir string) EngineOption {
	return func(o *EngineOptions) {
		o.DurableDirectory = dir
	}
}

func WithoutRemote() EngineOption {
	return func(o *EngineOptions) {
		o.DisableRemote = true
	}
}

func WithoutResilience() EngineOption {
	return func(o *EngineOptions) {
		o.DisableResilience = true
	}
}
