package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvFileVar names the environment variable pointing at an optional .env file.
const EnvFileVar = "TIERCACHE_ENV_FILE"

// Load loads configuration from a JSON or YAML file, chosen by extension.
// If the file doesn't exist, returns default configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// LoadWithEnv loads configuration from a file and applies environment overrides.
// Variables from the file named by TIERCACHE_ENV_FILE, or ./.env when unset,
// are loaded first without replacing variables already in the environment.
func LoadWithEnv(path string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDotEnv() error {
	envFile := os.Getenv(EnvFileVar)
	explicit := envFile != ""
	if !explicit {
		envFile = ".env"
	}

	if err := godotenv.Load(envFile); err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

//nolint:gocyclo // Environment variable parsing requires many conditional checks
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TIERCACHE_FAST_MAX_BYTES"); v != "" {
		cfg.Fast.MaxBytes = int64(parseInt(v, int(cfg.Fast.MaxBytes)))
	}
	if v := os.Getenv("TIERCACHE_FAST_DEFAULT_TTL"); v != "" {
		cfg.Fast.DefaultTTL = parseDuration(v, cfg.Fast.DefaultTTL)
	}
	if v := os.Getenv("TIERCACHE_FAST_EVICTION_POLICY"); v != "" {
		cfg.Fast.EvictionPolicy = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv("TIERCACHE_SHARED_ENABLED"); v != "" {
		cfg.Shared.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_SHARED_BACKEND"); v != "" {
		cfg.Shared.Backend = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("TIERCACHE_SHARED_MAX_SIZE_MB"); v != "" {
		cfg.Shared.MaxSizeMB = parseInt(v, cfg.Shared.MaxSizeMB)
	}
	if v := os.Getenv("TIERCACHE_SHARED_REDIS_ADDRESS"); v != "" {
		cfg.Shared.Redis.Address = v
	}

	if v := os.Getenv("TIERCACHE_DURABLE_ENABLED"); v != "" {
		cfg.Durable.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_DURABLE_DIRECTORY"); v != "" {
		cfg.Durable.Directory = v
	}
	if v := os.Getenv("TIERCACHE_DURABLE_MAX_SIZE_MB"); v != "" {
		cfg.Durable.MaxSizeMB = parseInt(v, cfg.Durable.MaxSizeMB)
	}
	if v := os.Getenv("TIERCACHE_DURABLE_COMPRESSION_ENABLED"); v != "" {
		cfg.Durable.CompressionEnabled = parseBool(v)
	}

	if v := os.Getenv("TIERCACHE_REMOTE_ENABLED"); v != "" {
		cfg.Remote.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_ADDRESS"); v != "" {
		cfg.Remote.Address = v
	}
	if v := os.Getenv("TIERCACHE_REMOTE_PASSWORD"); v != "" {
		cfg.Remote.Password = NewSecretString(v)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_DB"); v != "" {
		cfg.Remote.DB = parseInt(v, cfg.Remote.DB)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_KEY_PREFIX"); v != "" {
		cfg.Remote.KeyPrefix = v
	}
	if v := os.Getenv("TIERCACHE_REMOTE_DEFAULT_TTL"); v != "" {
		cfg.Remote.DefaultTTL = parseDuration(v, cfg.Remote.DefaultTTL)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_POOL_SIZE"); v != "" {
		cfg.Remote.PoolSize = parseInt(v, cfg.Remote.PoolSize)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_ENABLE_TLS"); v != "" {
		cfg.Remote.EnableTLS = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_REMOTE_TLS_SKIP_VERIFY"); v != "" {
		cfg.Remote.TLSSkipVerify = parseBool(v)
	}

	if v := os.Getenv("TIERCACHE_PLACEMENT_DURABLE_SIZE_THRESHOLD"); v != "" {
		cfg.Placement.DurableSizeThreshold = parseInt(v, cfg.Placement.DurableSizeThreshold)
	}

	if v := os.Getenv("TIERCACHE_TEMPERATURE_HOT_THRESHOLD"); v != "" {
		cfg.Temperature.HotAccessThreshold = parseInt(v, cfg.Temperature.HotAccessThreshold)
	}
	if v := os.Getenv("TIERCACHE_TEMPERATURE_COLD_THRESHOLD"); v != "" {
		cfg.Temperature.ColdAccessThreshold = parseInt(v, cfg.Temperature.ColdAccessThreshold)
	}

	if v := os.Getenv("TIERCACHE_BACKGROUND_ENABLED"); v != "" {
		cfg.Background.Enabled = parseBool(v)
	}

	if v := os.Getenv("TIERCACHE_DEFAULTS_TTL"); v != "" {
		cfg.Defaults.TTL = parseDuration(v, cfg.Defaults.TTL)
	}
	if v := os.Getenv("TIERCACHE_DEFAULTS_PRIORITY"); v != "" {
		cfg.Defaults.Priority = v
	}
	if v := os.Getenv("TIERCACHE_DEFAULTS_FIRE_AND_FORGET"); v != "" {
		cfg.Defaults.FireAndForget = parseBool(v)
	}

	if v := os.Getenv("TIERCACHE_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_CIRCUIT_BREAKER_FAILURE_THRESHOLD"); v != "" {
		cfg.CircuitBreaker.FailureThreshold = parseInt(v, cfg.CircuitBreaker.FailureThreshold)
	}
	if v := os.Getenv("TIERCACHE_CIRCUIT_BREAKER_OPEN_DURATION"); v != "" {
		cfg.CircuitBreaker.OpenDuration = parseDuration(v, cfg.CircuitBreaker.OpenDuration)
	}

	if v := os.Getenv("TIERCACHE_RETRY_ENABLED"); v != "" {
		cfg.Retry.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_RETRY_MAX_ATTEMPTS"); v != "" {
		cfg.Retry.MaxAttempts = parseInt(v, cfg.Retry.MaxAttempts)
	}

	if v := os.Getenv("TIERCACHE_BULKHEAD_ENABLED"); v != "" {
		cfg.Bulkhead.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_BULKHEAD_MAX_CONCURRENT"); v != "" {
		cfg.Bulkhead.MaxConcurrent = parseInt(v, cfg.Bulkhead.MaxConcurrent)
	}

	if v := os.Getenv("TIERCACHE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
	if v := os.Getenv("TIERCACHE_PROMETHEUS_ENABLED"); v != "" {
		cfg.Metrics.Prometheus.Enabled = parseBool(v)
	}

	if v := os.Getenv("DD_AGENT_HOST"); v != "" {
		cfg.Metrics.DataDog.AgentHost = v
		cfg.Metrics.DataDog.Enabled = true
	}
	if v := os.Getenv("DD_DOGSTATSD_PORT"); v != "" {
		cfg.Metrics.DataDog.Port = parseInt(v, cfg.Metrics.DataDog.Port)
	}
	if v := os.Getenv("DD_SERVICE"); v != "" {
		cfg.Metrics.DataDog.Prefix = v
	}
	if v := os.Getenv("DD_ENV"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "env:"+v)
	}
	if v := os.Getenv("DD_VERSION"); v != "" {
		cfg.Metrics.DataDog.Tags = append(cfg.Metrics.DataDog.Tags, "version:"+v)
	}

	if v := os.Getenv("TIERCACHE_DATADOG_ENABLED"); v != "" {
		if os.Getenv("DD_AGENT_HOST") == "" {
			cfg.Metrics.DataDog.Enabled = parseBool(v)
		}
	}
	if v := os.Getenv("TIERCACHE_DATADOG_PREFIX"); v != "" {
		if os.Getenv("DD_SERVICE") == "" {
			cfg.Metrics.DataDog.Prefix = v
		}
	}
}

var validEvictionPolicies = map[string]bool{
	"lru": true, "lfu": true, "fifo": true, "size": true, "priority": true, "hybrid": true,
}

// Validate checks if the configuration is valid.
//
//nolint:gocyclo // One check per field
func (c *Config) Validate() error {
	if c.Fast.MaxBytes <= 0 {
		return fmt.Errorf("fast.maxBytes must be positive")
	}
	if c.Fast.EvictionPolicy != "" && !validEvictionPolicies[c.Fast.EvictionPolicy] {
		return fmt.Errorf("fast.evictionPolicy %q is not supported", c.Fast.EvictionPolicy)
	}

	if c.Shared.Enabled {
		switch c.Shared.Backend {
		case "", "segment":
			if c.Shared.MaxTTL < 0 {
				return fmt.Errorf("shared.maxTTL must not be negative")
			}
			if c.Shared.MaxSizeMB <= 0 {
				return fmt.Errorf("shared.maxSizeMB must be positive")
			}
			if c.Shared.Shards <= 0 || (c.Shared.Shards&(c.Shared.Shards-1)) != 0 {
				return fmt.Errorf("shared.shards must be a positive power of 2")
			}
		case "redis":
			if c.Shared.Redis.Address == "" {
				return fmt.Errorf("shared.redis.address is required for the redis backend")
			}
		default:
			return fmt.Errorf("shared.backend %q is not supported", c.Shared.Backend)
		}
	}

	if c.Durable.Enabled {
		if c.Durable.Directory == "" {
			return fmt.Errorf("durable.directory is required when durable is enabled")
		}
		if c.Durable.MaxSizeMB < 0 {
			return fmt.Errorf("durable.maxSizeMB must not be negative")
		}
	}

	if c.Remote.Enabled {
		if c.Remote.Address == "" {
			return fmt.Errorf("remote.address is required when remote is enabled")
		}
		if c.Remote.PoolSize <= 0 {
			return fmt.Errorf("remote.poolSize must be positive")
		}
	}

	if c.Placement.MGetBatchSize < 0 {
		return fmt.Errorf("placement.mgetBatchSize must not be negative")
	}

	if c.Temperature.HotAccessThreshold < 0 || c.Temperature.ColdAccessThreshold < 0 {
		return fmt.Errorf("temperature thresholds must not be negative")
	}
	if c.Temperature.ColdAccessThreshold > c.Temperature.HotAccessThreshold+1 {
		return fmt.Errorf("temperature.coldAccessThreshold must not exceed hotAccessThreshold+1")
	}
	if c.Temperature.HotRecencyWindow > c.Temperature.ColdStalenessWindow {
		return fmt.Errorf("temperature.hotRecencyWindow must not exceed coldStalenessWindow")
	}

	if c.CircuitBreaker.Enabled {
		if c.CircuitBreaker.FailureThreshold <= 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be positive")
		}
		if c.CircuitBreaker.OpenDuration <= 0 {
			return fmt.Errorf("circuitBreaker.openDuration must be positive")
		}
	}

	if c.Retry.Enabled {
		if c.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("retry.maxAttempts must be positive")
		}
	}

	if c.Bulkhead.Enabled {
		if c.Bulkhead.MaxConcurrent <= 0 {
			return fmt.Errorf("bulkhead.maxConcurrent must be positive")
		}
	}

	return nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultVal int) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return defaultVal
	}
	return v
}

func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)

	if d, err := time.ParseDuration(s); err == nil {
		return d
	}

	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(secs) * time.Second
	}

	return defaultVal
}
