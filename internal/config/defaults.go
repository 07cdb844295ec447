package config

import (
	"os"
	"path/filepath"
	"time"
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Fast: FastConfig{
			DefaultTTL:        5 * time.Minute,
			MaxBytes:          100 * 1024 * 1024,
			EvictionPolicy:    "lru",
			SpillHighPriority: true,
		},
		Shared: SharedConfig{
			Enabled:         false,
			Backend:         "segment",
			DefaultTTL:      15 * time.Minute,
			MaxTTL:          24 * time.Hour,
			CleanupInterval: 30 * time.Second,
			MaxSizeMB:       256,
			Shards:          1024,
			MaxEntrySize:    1024 * 1024,
			Redis:           defaultRedisConfig("tiercache:shared:"),
		},
		Durable: DurableConfig{
			Enabled:              true,
			Directory:            filepath.Join(os.TempDir(), "tiercache"),
			IndexFile:            "index.json",
			DefaultTTL:           time.Hour,
			MaxSizeMB:            1000,
			CompressionEnabled:   true,
			CompressionThreshold: 1024,
			CompressionLevel:     "default",
		},
		Remote: defaultRedisConfig("tiercache:"),
		Placement: PlacementConfig{
			DurableSizeThreshold: 1024,
			MGetBatchSize:        100,
			PromoteOnHit:         true,
		},
		Temperature: TemperatureConfig{
			HotAccessThreshold:  10,
			HotRecencyWindow:    time.Minute,
			ColdAccessThreshold: 2,
			ColdStalenessWindow: 5 * time.Minute,
			MaxTrackedKeys:      100000,
		},
		Background: BackgroundConfig{
			Enabled:           true,
			AnalyticsInterval: time.Minute,
			PrefetchInterval:  30 * time.Second,
			CleanupInterval:   5 * time.Minute,
			RebalanceInterval: time.Minute,
			CoherencyInterval: 30 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Defaults: DefaultsConfig{
			TTL:           5 * time.Minute,
			Priority:      "normal",
			FireAndForget: false,
		},
		CircuitBreaker: CircuitBreakerConfig{
			Enabled:             true,
			FailureThreshold:    5,
			FailureWindow:       time.Minute,
			SuccessThreshold:    1,
			OpenDuration:        30 * time.Second,
			HalfOpenMaxRequests: 1,
		},
		Retry: RetryConfig{
			Enabled:        true,
			MaxAttempts:    3,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     2 * time.Second,
			Multiplier:     2.0,
			Jitter:         true,
		},
		Bulkhead: BulkheadConfig{
			Enabled:        true,
			MaxConcurrent:  100,
			MaxQueue:       50,
			AcquireTimeout: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			DataDog: DataDogConfig{
				Enabled:   false,
				AgentHost: "127.0.0.1",
				Port:      8125,
				Prefix:    "tiercache",
				Tags:      []string{},
			},
			Prometheus: PrometheusConfig{
				Enabled:   false,
				Namespace: "tiercache",
			},
		},
		KeyValidation: KeyValidationConfig{
			Enabled:           true,
			MaxKeyLength:      1024,
			AllowEmpty:        false,
			AllowControlChars: false,
			AllowWhitespace:   true,
		},
	}
}

func defaultRedisConfig(prefix string) RedisConfig {
	return RedisConfig{
		Enabled:             false,
		Network:             "tcp",
		Address:             "localhost:6379",
		Password:            SecretString{},
		DB:                  0,
		KeyPrefix:           prefix,
		DefaultTTL:          15 * time.Minute,
		PoolSize:            100,
		MinIdleConns:        10,
		DialTimeout:         5 * time.Second,
		ReadTimeout:         3 * time.Second,
		WriteTimeout:        3 * time.Second,
		PoolTimeout:         4 * time.Second,
		MaxPendingWrites:    500,
		HealthCheckInterval: 5 * time.Second,
	}
}

// ForTesting returns a minimal configuration suitable for unit tests. The
// durable tier is disabled because it needs a directory; use
// ForTestingWithDurable to get one rooted in a temp dir.
func ForTesting() *Config {
	cfg := DefaultConfig()

	cfg.Fast.MaxBytes = 16 * 1024 * 1024
	cfg.Fast.DefaultTTL = time.Minute

	cfg.Shared.Enabled = false
	cfg.Shared.MaxSizeMB = 16
	cfg.Shared.Shards = 64
	cfg.Shared.CleanupInterval = time.Second

	cfg.Durable.Enabled = false

	cfg.Remote.Enabled = false
	cfg.Remote.KeyPrefix = "test:"
	cfg.Remote.PoolSize = 10
	cfg.Remote.MinIdleConns = 1
	cfg.Remote.DialTimeout = time.Second
	cfg.Remote.ReadTimeout = time.Second
	cfg.Remote.WriteTimeout = time.Second
	cfg.Remote.PoolTimeout = time.Second
	cfg.Remote.MaxPendingWrites = 50
	cfg.Remote.HealthCheckInterval = 0

	cfg.Defaults.TTL = time.Minute

	cfg.Background.Enabled = false
	cfg.Background.ShutdownTimeout = 5 * time.Second

	cfg.CircuitBreaker.FailureThreshold = 3
	cfg.CircuitBreaker.OpenDuration = time.Second

	cfg.Retry.Enabled = false
	cfg.Retry.MaxAttempts = 1
	cfg.Retry.InitialBackoff = 10 * time.Millisecond
	cfg.Retry.MaxBackoff = 100 * time.Millisecond
	cfg.Retry.Jitter = false

	cfg.Bulkhead.Enabled = false

	cfg.Metrics.Enabled = false

	return cfg
}

// ForTestingWithDurable returns a test config with the durable tier rooted at dir.
func ForTestingWithDurable(dir string) *Config {
	cfg := ForTesting()
	cfg.Durable.Enabled = true
	cfg.Durable.Directory = dir
	return cfg
}

// ForTestingWithRemote returns a test config with the remote tier enabled.
func ForTestingWithRemote(addr string) *Config {
	cfg := ForTesting()
	cfg.Remote.Enabled = true
	cfg.Remote.Address = addr
	return cfg
}
