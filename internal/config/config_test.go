package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	t.Run("fast defaults", func(t *testing.T) {
		if cfg.Fast.MaxBytes != 100*1024*1024 {
			t.Errorf("Fast.MaxBytes = %d, want 100MiB", cfg.Fast.MaxBytes)
		}
		if cfg.Fast.EvictionPolicy != "lru" {
			t.Errorf("Fast.EvictionPolicy = %s, want lru", cfg.Fast.EvictionPolicy)
		}
		if cfg.Fast.DefaultTTL != 5*time.Minute {
			t.Errorf("Fast.DefaultTTL = %v, want 5m", cfg.Fast.DefaultTTL)
		}
	})

	t.Run("shared defaults", func(t *testing.T) {
		if cfg.Shared.Enabled {
			t.Error("Shared.Enabled = true, want false")
		}
		if cfg.Shared.Backend != "segment" {
			t.Errorf("Shared.Backend = %s, want segment", cfg.Shared.Backend)
		}
		if cfg.Shared.Shards != 1024 {
			t.Errorf("Shared.Shards = %d, want 1024", cfg.Shared.Shards)
		}
	})

	t.Run("durable defaults", func(t *testing.T) {
		if !cfg.Durable.Enabled {
			t.Error("Durable.Enabled = false, want true")
		}
		if cfg.Durable.IndexFile != "index.json" {
			t.Errorf("Durable.IndexFile = %s, want index.json", cfg.Durable.IndexFile)
		}
		if cfg.Durable.CompressionThreshold != 1024 {
			t.Errorf("Durable.CompressionThreshold = %d, want 1024", cfg.Durable.CompressionThreshold)
		}
	})

	t.Run("remote defaults", func(t *testing.T) {
		if cfg.Remote.Enabled {
			t.Error("Remote.Enabled = true, want false")
		}
		if cfg.Remote.Address != "localhost:6379" {
			t.Errorf("Remote.Address = %s, want localhost:6379", cfg.Remote.Address)
		}
		if cfg.Remote.KeyPrefix != "tiercache:" {
			t.Errorf("Remote.KeyPrefix = %s, want tiercache:", cfg.Remote.KeyPrefix)
		}
		if cfg.Remote.PoolSize != 100 {
			t.Errorf("Remote.PoolSize = %d, want 100", cfg.Remote.PoolSize)
		}
	})

	t.Run("placement defaults", func(t *testing.T) {
		if cfg.Placement.DurableSizeThreshold != 1024 {
			t.Errorf("Placement.DurableSizeThreshold = %d, want 1024", cfg.Placement.DurableSizeThreshold)
		}
		if cfg.Placement.MGetBatchSize != 100 {
			t.Errorf("Placement.MGetBatchSize = %d, want 100", cfg.Placement.MGetBatchSize)
		}
	})

	t.Run("circuit breaker defaults", func(t *testing.T) {
		if !cfg.CircuitBreaker.Enabled {
			t.Error("CircuitBreaker.Enabled = false, want true")
		}
		if cfg.CircuitBreaker.FailureThreshold != 5 {
			t.Errorf("CircuitBreaker.FailureThreshold = %d, want 5", cfg.CircuitBreaker.FailureThreshold)
		}
		if cfg.CircuitBreaker.FailureWindow != time.Minute {
			t.Errorf("CircuitBreaker.FailureWindow = %v, want 1m", cfg.CircuitBreaker.FailureWindow)
		}
		if cfg.CircuitBreaker.OpenDuration != 30*time.Second {
			t.Errorf("CircuitBreaker.OpenDuration = %v, want 30s", cfg.CircuitBreaker.OpenDuration)
		}
	})

	t.Run("retry defaults", func(t *testing.T) {
		if cfg.Retry.MaxAttempts != 3 {
			t.Errorf("Retry.MaxAttempts = %d, want 3", cfg.Retry.MaxAttempts)
		}
		if cfg.Retry.Multiplier != 2.0 {
			t.Errorf("Retry.Multiplier = %f, want 2.0", cfg.Retry.Multiplier)
		}
	})

	t.Run("valid", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

func TestForTesting(t *testing.T) {
	cfg := ForTesting()

	t.Run("has smaller resource limits", func(t *testing.T) {
		if cfg.Fast.MaxBytes != 16*1024*1024 {
			t.Errorf("Fast.MaxBytes = %d, want 16MiB", cfg.Fast.MaxBytes)
		}
		if cfg.Remote.PoolSize != 10 {
			t.Errorf("Remote.PoolSize = %d, want 10", cfg.Remote.PoolSize)
		}
	})

	t.Run("optional tiers disabled", func(t *testing.T) {
		if cfg.Shared.Enabled || cfg.Durable.Enabled || cfg.Remote.Enabled {
			t.Error("optional tiers should be disabled")
		}
	})

	t.Run("background and metrics disabled", func(t *testing.T) {
		if cfg.Background.Enabled {
			t.Error("Background.Enabled = true, want false")
		}
		if cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled = true, want false")
		}
	})

	t.Run("valid", func(t *testing.T) {
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

func TestForTestingWithTiers(t *testing.T) {
	dir := t.TempDir()
	cfg := ForTestingWithDurable(dir)
	if !cfg.Durable.Enabled || cfg.Durable.Directory != dir {
		t.Errorf("Durable = %+v, want enabled at %s", cfg.Durable, dir)
	}

	addr := "redis.test.local:6380"
	cfg = ForTestingWithRemote(addr)
	if !cfg.Remote.Enabled {
		t.Error("Remote.Enabled = false, want true")
	}
	if cfg.Remote.Address != addr {
		t.Errorf("Remote.Address = %s, want %s", cfg.Remote.Address, addr)
	}
}

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := Load("")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Fast.EvictionPolicy != "lru" {
			t.Errorf("Fast.EvictionPolicy = %s, want lru", cfg.Fast.EvictionPolicy)
		}
	})

	t.Run("non-existent file returns defaults", func(t *testing.T) {
		cfg, err := Load("/non/existent/path/config.json")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if cfg.Placement.DurableSizeThreshold != 1024 {
			t.Errorf("Placement.DurableSizeThreshold = %d, want 1024", cfg.Placement.DurableSizeThreshold)
		}
	})

	t.Run("loads valid JSON file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")

		jsonContent := `{
			"fast": {"maxBytes": 1048576, "evictionPolicy": "lfu"},
			"shared": {"enabled": true, "maxSizeMB": 64, "shards": 512},
			"remote": {"enabled": true, "address": "redis.prod:6379", "poolSize": 200}
		}`

		if err := os.WriteFile(configPath, []byte(jsonContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Fast.EvictionPolicy != "lfu" {
			t.Errorf("Fast.EvictionPolicy = %s, want lfu", cfg.Fast.EvictionPolicy)
		}
		if cfg.Shared.Shards != 512 {
			t.Errorf("Shared.Shards = %d, want 512", cfg.Shared.Shards)
		}
		if cfg.Remote.Address != "redis.prod:6379" {
			t.Errorf("Remote.Address = %s, want redis.prod:6379", cfg.Remote.Address)
		}
		if cfg.Remote.PoolSize != 200 {
			t.Errorf("Remote.PoolSize = %d, want 200", cfg.Remote.PoolSize)
		}
	})

	t.Run("loads valid YAML file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")

		yamlContent := `
fast:
  maxBytes: 2097152
  evictionPolicy: hybrid
durable:
  enabled: true
  directory: /var/cache/tiercache
  defaultTTL: 2h
temperature:
  hotAccessThreshold: 20
  hotRecencyWindow: 30s
  coldAccessThreshold: 3
  coldStalenessWindow: 10m
remote:
  password: hunter2
`
		if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		cfg, err := Load(configPath)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}

		if cfg.Fast.EvictionPolicy != "hybrid" {
			t.Errorf("Fast.EvictionPolicy = %s, want hybrid", cfg.Fast.EvictionPolicy)
		}
		if cfg.Durable.DefaultTTL != 2*time.Hour {
			t.Errorf("Durable.DefaultTTL = %v, want 2h", cfg.Durable.DefaultTTL)
		}
		if cfg.Temperature.HotRecencyWindow != 30*time.Second {
			t.Errorf("Temperature.HotRecencyWindow = %v, want 30s", cfg.Temperature.HotRecencyWindow)
		}
		if cfg.Remote.Password.Value() != "hunter2" {
			t.Errorf("Remote.Password.Value() = %s, want hunter2", cfg.Remote.Password.Value())
		}
	})

	t.Run("returns error for invalid JSON", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid.json")

		if err := os.WriteFile(configPath, []byte("not valid json"), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := Load(configPath); err == nil {
			t.Error("Load() error = nil, want error")
		}
	})

	t.Run("returns error for invalid config values", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "invalid-values.json")

		jsonContent := `{"shared": {"enabled": true, "maxSizeMB": 100, "shards": 100}}`

		if err := os.WriteFile(configPath, []byte(jsonContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := Load(configPath); err == nil {
			t.Error("Load() error = nil, want validation error")
		}
	})
}

func TestLoadWithEnv(t *testing.T) {
	t.Run("applies environment overrides", func(t *testing.T) {
		t.Setenv("TIERCACHE_REMOTE_ADDRESS", "redis.env:6380")
		t.Setenv("TIERCACHE_REMOTE_ENABLED", "true")
		t.Setenv("TIERCACHE_BULKHEAD_MAX_CONCURRENT", "200")

		cfg, err := LoadWithEnv("")
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}

		if cfg.Remote.Address != "redis.env:6380" {
			t.Errorf("Remote.Address = %s, want redis.env:6380", cfg.Remote.Address)
		}
		if !cfg.Remote.Enabled {
			t.Error("Remote.Enabled = false, want true")
		}
		if cfg.Bulkhead.MaxConcurrent != 200 {
			t.Errorf("Bulkhead.MaxConcurrent = %d, want 200", cfg.Bulkhead.MaxConcurrent)
		}
	})

	t.Run("env overrides file values", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.json")

		jsonContent := `{"remote": {"enabled": true, "address": "redis.json:6379", "poolSize": 100}}`
		if err := os.WriteFile(configPath, []byte(jsonContent), 0o644); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		t.Setenv("TIERCACHE_REMOTE_ADDRESS", "redis.override:6380")

		cfg, err := LoadWithEnv(configPath)
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}

		if cfg.Remote.Address != "redis.override:6380" {
			t.Errorf("Remote.Address = %s, want redis.override:6380", cfg.Remote.Address)
		}
	})

	t.Run("reads env file", func(t *testing.T) {
		envPath := filepath.Join(t.TempDir(), "tiercache.env")
		content := "TIERCACHE_FAST_EVICTION_POLICY=fifo\nTIERCACHE_DURABLE_MAX_SIZE_MB=42\n"
		if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write env file: %v", err)
		}
		t.Setenv(EnvFileVar, envPath)
		// Registered so t.Setenv restores the pre-test state after godotenv sets them.
		t.Setenv("TIERCACHE_FAST_EVICTION_POLICY", "")
		t.Setenv("TIERCACHE_DURABLE_MAX_SIZE_MB", "")
		os.Unsetenv("TIERCACHE_FAST_EVICTION_POLICY")
		os.Unsetenv("TIERCACHE_DURABLE_MAX_SIZE_MB")

		cfg, err := LoadWithEnv("")
		if err != nil {
			t.Fatalf("LoadWithEnv() error = %v", err)
		}

		if cfg.Fast.EvictionPolicy != "fifo" {
			t.Errorf("Fast.EvictionPolicy = %s, want fifo", cfg.Fast.EvictionPolicy)
		}
		if cfg.Durable.MaxSizeMB != 42 {
			t.Errorf("Durable.MaxSizeMB = %d, want 42", cfg.Durable.MaxSizeMB)
		}
	})

	t.Run("missing explicit env file is an error", func(t *testing.T) {
		t.Setenv(EnvFileVar, filepath.Join(t.TempDir(), "missing.env"))

		if _, err := LoadWithEnv(""); err == nil {
			t.Error("LoadWithEnv() error = nil, want error")
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"fast.maxBytes must be positive", func(c *Config) { c.Fast.MaxBytes = 0 }},
		{"fast.evictionPolicy must be known", func(c *Config) { c.Fast.EvictionPolicy = "random" }},
		{"shared.shards must be power of 2", func(c *Config) { c.Shared.Enabled = true; c.Shared.Shards = 100 }},
		{"shared.backend must be known", func(c *Config) { c.Shared.Enabled = true; c.Shared.Backend = "memcached" }},
		{"shared.maxTTL must not be negative", func(c *Config) { c.Shared.Enabled = true; c.Shared.MaxTTL = -time.Second }},
		{"shared.redis.address required", func(c *Config) {
			c.Shared.Enabled = true
			c.Shared.Backend = "redis"
			c.Shared.Redis.Address = ""
		}},
		{"durable.directory required", func(c *Config) { c.Durable.Directory = "" }},
		{"remote.address required when enabled", func(c *Config) { c.Remote.Enabled = true; c.Remote.Address = "" }},
		{"remote.poolSize must be positive", func(c *Config) { c.Remote.Enabled = true; c.Remote.PoolSize = 0 }},
		{"cold threshold above hot+1", func(c *Config) {
			c.Temperature.HotAccessThreshold = 2
			c.Temperature.ColdAccessThreshold = 4
		}},
		{"hot window above cold window", func(c *Config) {
			c.Temperature.HotRecencyWindow = time.Hour
			c.Temperature.ColdStalenessWindow = time.Minute
		}},
		{"circuitBreaker.failureThreshold must be positive", func(c *Config) { c.CircuitBreaker.FailureThreshold = 0 }},
		{"circuitBreaker.openDuration must be positive", func(c *Config) { c.CircuitBreaker.OpenDuration = 0 }},
		{"retry.maxAttempts must be positive", func(c *Config) { c.Retry.MaxAttempts = 0 }},
		{"bulkhead.maxConcurrent must be positive", func(c *Config) { c.Bulkhead.MaxConcurrent = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() error = nil, want error")
			}
		})
	}

	t.Run("disabled components skip validation", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Shared.Enabled = false
		cfg.Shared.Shards = 100
		cfg.Durable.Enabled = false
		cfg.Durable.Directory = ""
		cfg.Remote.Enabled = false
		cfg.Remote.Address = ""
		cfg.CircuitBreaker.Enabled = false
		cfg.CircuitBreaker.FailureThreshold = 0
		cfg.Retry.Enabled = false
		cfg.Retry.MaxAttempts = 0
		cfg.Bulkhead.Enabled = false
		cfg.Bulkhead.MaxConcurrent = 0

		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})

	t.Run("cold threshold equal to hot+1 is allowed", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Temperature.HotAccessThreshold = 3
		cfg.Temperature.ColdAccessThreshold = 4
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() error = %v, want nil", err)
		}
	})
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"off", false},
		{"invalid", false},
		{"", false},
		{"  true  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseBool(tt.input); result != tt.expected {
				t.Errorf("parseBool(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input      string
		defaultVal int
		expected   int
	}{
		{"42", 0, 42},
		{"0", 10, 0},
		{"-5", 0, -5},
		{"invalid", 99, 99},
		{"", 99, 99},
		{"  100  ", 0, 100},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseInt(tt.input, tt.defaultVal); result != tt.expected {
				t.Errorf("parseInt(%q, %d) = %d, want %d", tt.input, tt.defaultVal, result, tt.expected)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	defaultDur := 5 * time.Second

	tests := []struct {
		input    string
		expected time.Duration
	}{
		{"30s", 30 * time.Second},
		{"5m", 5 * time.Minute},
		{"100ms", 100 * time.Millisecond},
		{"60", 60 * time.Second},
		{"invalid", defaultDur},
		{"", defaultDur},
		{"  30s  ", 30 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if result := parseDuration(tt.input, defaultDur); result != tt.expected {
				t.Errorf("parseDuration(%q, %v) = %v, want %v", tt.input, defaultDur, result, tt.expected)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Run("tier overrides", func(t *testing.T) {
		t.Setenv("TIERCACHE_FAST_MAX_BYTES", "4096")
		t.Setenv("TIERCACHE_FAST_EVICTION_POLICY", " Priority ")
		t.Setenv("TIERCACHE_SHARED_ENABLED", "true")
		t.Setenv("TIERCACHE_SHARED_BACKEND", "redis")
		t.Setenv("TIERCACHE_DURABLE_DIRECTORY", "/data/cache")
		t.Setenv("TIERCACHE_DURABLE_COMPRESSION_ENABLED", "false")

		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if cfg.Fast.MaxBytes != 4096 {
			t.Errorf("Fast.MaxBytes = %d, want 4096", cfg.Fast.MaxBytes)
		}
		if cfg.Fast.EvictionPolicy != "priority" {
			t.Errorf("Fast.EvictionPolicy = %s, want priority", cfg.Fast.EvictionPolicy)
		}
		if !cfg.Shared.Enabled || cfg.Shared.Backend != "redis" {
			t.Errorf("Shared = %+v, want enabled redis backend", cfg.Shared)
		}
		if cfg.Durable.Directory != "/data/cache" {
			t.Errorf("Durable.Directory = %s, want /data/cache", cfg.Durable.Directory)
		}
		if cfg.Durable.CompressionEnabled {
			t.Error("Durable.CompressionEnabled = true, want false")
		}
	})

	t.Run("remote overrides", func(t *testing.T) {
		t.Setenv("TIERCACHE_REMOTE_ENABLED", "true")
		t.Setenv("TIERCACHE_REMOTE_ADDRESS", "redis.custom:6380")
		t.Setenv("TIERCACHE_REMOTE_PASSWORD", "secret123")
		t.Setenv("TIERCACHE_REMOTE_DB", "5")
		t.Setenv("TIERCACHE_REMOTE_KEY_PREFIX", "custom:")
		t.Setenv("TIERCACHE_REMOTE_DEFAULT_TTL", "1h")
		t.Setenv("TIERCACHE_REMOTE_ENABLE_TLS", "true")

		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if !cfg.Remote.Enabled {
			t.Error("Remote.Enabled = false, want true")
		}
		if cfg.Remote.Address != "redis.custom:6380" {
			t.Errorf("Remote.Address = %s, want redis.custom:6380", cfg.Remote.Address)
		}
		if cfg.Remote.Password.Value() != "secret123" {
			t.Errorf("Remote.Password.Value() = %s, want secret123", cfg.Remote.Password.Value())
		}
		if cfg.Remote.DB != 5 {
			t.Errorf("Remote.DB = %d, want 5", cfg.Remote.DB)
		}
		if cfg.Remote.KeyPrefix != "custom:" {
			t.Errorf("Remote.KeyPrefix = %s, want custom:", cfg.Remote.KeyPrefix)
		}
		if cfg.Remote.DefaultTTL != time.Hour {
			t.Errorf("Remote.DefaultTTL = %v, want 1h", cfg.Remote.DefaultTTL)
		}
		if !cfg.Remote.EnableTLS {
			t.Error("Remote.EnableTLS = false, want true")
		}
	})

	t.Run("defaults overrides", func(t *testing.T) {
		t.Setenv("TIERCACHE_DEFAULTS_TTL", "30m")
		t.Setenv("TIERCACHE_DEFAULTS_PRIORITY", "high")
		t.Setenv("TIERCACHE_DEFAULTS_FIRE_AND_FORGET", "true")

		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if cfg.Defaults.TTL != 30*time.Minute {
			t.Errorf("Defaults.TTL = %v, want 30m", cfg.Defaults.TTL)
		}
		if cfg.Defaults.Priority != "high" {
			t.Errorf("Defaults.Priority = %s, want high", cfg.Defaults.Priority)
		}
		if !cfg.Defaults.FireAndForget {
			t.Error("Defaults.FireAndForget = false, want true")
		}
	})

	t.Run("metrics overrides", func(t *testing.T) {
		t.Setenv("TIERCACHE_METRICS_ENABLED", "false")
		t.Setenv("TIERCACHE_PROMETHEUS_ENABLED", "true")
		t.Setenv("DD_AGENT_HOST", "datadog.custom")
		t.Setenv("DD_DOGSTATSD_PORT", "8126")
		t.Setenv("DD_SERVICE", "myapp")
		t.Setenv("DD_ENV", "test")

		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if cfg.Metrics.Enabled {
			t.Error("Metrics.Enabled = true, want false")
		}
		if !cfg.Metrics.Prometheus.Enabled {
			t.Error("Metrics.Prometheus.Enabled = false, want true")
		}
		if !cfg.Metrics.DataDog.Enabled {
			t.Error("Metrics.DataDog.Enabled = false, want true (auto-enabled by DD_AGENT_HOST)")
		}
		if cfg.Metrics.DataDog.Port != 8126 {
			t.Errorf("DataDog.Port = %d, want 8126", cfg.Metrics.DataDog.Port)
		}
		if cfg.Metrics.DataDog.Prefix != "myapp" {
			t.Errorf("DataDog.Prefix = %s, want myapp", cfg.Metrics.DataDog.Prefix)
		}
		if len(cfg.Metrics.DataDog.Tags) != 1 || cfg.Metrics.DataDog.Tags[0] != "env:test" {
			t.Errorf("DataDog.Tags = %v, want [env:test]", cfg.Metrics.DataDog.Tags)
		}
	})

	t.Run("DD_* vars take precedence over TIERCACHE_DATADOG vars", func(t *testing.T) {
		t.Setenv("DD_AGENT_HOST", "dd-agent")
		t.Setenv("DD_SERVICE", "new-app")
		t.Setenv("TIERCACHE_DATADOG_ENABLED", "false")
		t.Setenv("TIERCACHE_DATADOG_PREFIX", "old-app")

		cfg := DefaultConfig()
		applyEnvOverrides(cfg)

		if !cfg.Metrics.DataDog.Enabled {
			t.Error("Metrics.DataDog.Enabled = false, want true (DD_AGENT_HOST takes precedence)")
		}
		if cfg.Metrics.DataDog.Prefix != "new-app" {
			t.Errorf("DataDog.Prefix = %s, want new-app", cfg.Metrics.DataDog.Prefix)
		}
	})
}

func TestSecretStringInConfig(t *testing.T) {
	t.Run("JSON marshal redacts password", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Remote.Password = NewSecretString("super-secret-password")

		data, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("Marshal config failed: %v", err)
		}

		if strings.Contains(string(data), "super-secret-password") {
			t.Error("JSON contains actual password, should be redacted")
		}
		if !strings.Contains(string(data), "[REDACTED]") {
			t.Error("JSON should contain [REDACTED] for password")
		}
	})

	t.Run("YAML marshal redacts password", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Shared.Redis.Password = NewSecretString("super-secret-password")

		data, err := yaml.Marshal(cfg)
		if err != nil {
			t.Fatalf("Marshal config failed: %v", err)
		}

		if strings.Contains(string(data), "super-secret-password") {
			t.Error("YAML contains actual password, should be redacted")
		}
	})

	t.Run("fmt.Sprintf redacts password", func(t *testing.T) {
		secret := NewSecretString("super-secret-password")
		output := fmt.Sprintf("password: %s", secret)
		if strings.Contains(output, "super-secret-password") {
			t.Errorf("fmt.Sprintf leaked password: %s", output)
		}
	})
}
