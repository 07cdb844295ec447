// Package config provides configuration management for tiercache.
package config

import (
	"time"

	"github.com/LavishGent/tiercache/internal/types"
)

// SecretString is a string type that redacts its value when marshaled.
type SecretString = types.SecretString

// NewSecretString creates a new SecretString with the provided value.
func NewSecretString(value string) SecretString {
	return types.NewSecretString(value)
}

// Config contains all configuration for the tiercache engine.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type Config struct {
	Fast           FastConfig           `json:"fast" yaml:"fast"`
	Shared         SharedConfig         `json:"shared" yaml:"shared"`
	Durable        DurableConfig        `json:"durable" yaml:"durable"`
	Remote         RedisConfig          `json:"remote" yaml:"remote"`
	Placement      PlacementConfig      `json:"placement" yaml:"placement"`
	Temperature    TemperatureConfig    `json:"temperature" yaml:"temperature"`
	Background     BackgroundConfig     `json:"background" yaml:"background"`
	Defaults       DefaultsConfig       `json:"defaults" yaml:"defaults"`
	CircuitBreaker CircuitBreakerConfig `json:"circuitBreaker" yaml:"circuitBreaker"`
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	Bulkhead       BulkheadConfig       `json:"bulkhead" yaml:"bulkhead"`
	Metrics        MetricsConfig        `json:"metrics" yaml:"metrics"`
	KeyValidation  KeyValidationConfig  `json:"keyValidation" yaml:"keyValidation"`
}

// KeyValidationConfig contains configuration for cache key validation.
type KeyValidationConfig struct {
	ReservedPatterns  []string `json:"reservedPatterns" yaml:"reservedPatterns"`
	MaxKeyLength      int      `json:"maxKeyLength" yaml:"maxKeyLength"`
	Enabled           bool     `json:"enabled" yaml:"enabled"`
	AllowEmpty        bool     `json:"allowEmpty" yaml:"allowEmpty"`
	AllowControlChars bool     `json:"allowControlChars" yaml:"allowControlChars"`
	AllowWhitespace   bool     `json:"allowWhitespace" yaml:"allowWhitespace"`
	AllowGlobChars    bool     `json:"allowGlobChars" yaml:"allowGlobChars"`
}

// ToTypesConfig converts this config to a types.KeyValidationConfig.
func (c KeyValidationConfig) ToTypesConfig() types.KeyValidationConfig {
	return types.KeyValidationConfig{
		MaxKeyLength:      c.MaxKeyLength,
		AllowEmpty:        c.AllowEmpty,
		AllowControlChars: c.AllowControlChars,
		AllowWhitespace:   c.AllowWhitespace,
		AllowGlobChars:    c.AllowGlobChars,
		ReservedPatterns:  c.ReservedPatterns,
	}
}

// FastConfig configures the in-process tier. It cannot be disabled.
type FastConfig struct {
	DefaultTTL     time.Duration `json:"defaultTTL" yaml:"defaultTTL"`
	MaxBytes       int64         `json:"maxBytes" yaml:"maxBytes"`
	EvictionPolicy string        `json:"evictionPolicy" yaml:"evictionPolicy"`
	// SpillHighPriority writes evicted high-priority entries to the durable tier.
	SpillHighPriority bool `json:"spillHighPriority" yaml:"spillHighPriority"`
}

// SharedConfig configures the host-shared tier.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type SharedConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Backend is "segment" (bigcache) or "redis" (host-local Redis).
	Backend         string        `json:"backend" yaml:"backend"`
	DefaultTTL      time.Duration `json:"defaultTTL" yaml:"defaultTTL"`
	// MaxTTL sizes the segment's life window. Longer per-entry TTLs, and
	// entries without one, are capped to it.
	MaxTTL          time.Duration `json:"maxTTL" yaml:"maxTTL"`
	CleanupInterval time.Duration `json:"cleanupInterval" yaml:"cleanupInterval"`
	MaxSizeMB       int           `json:"maxSizeMB" yaml:"maxSizeMB"`
	Shards          int           `json:"shards" yaml:"shards"`
	MaxEntrySize    int           `json:"maxEntrySize" yaml:"maxEntrySize"`
	Redis           RedisConfig   `json:"redis" yaml:"redis"`
}

// DurableConfig configures the disk-backed tier.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type DurableConfig struct {
	Enabled              bool          `json:"enabled" yaml:"enabled"`
	Directory            string        `json:"directory" yaml:"directory"`
	IndexFile            string        `json:"indexFile" yaml:"indexFile"`
	DefaultTTL           time.Duration `json:"defaultTTL" yaml:"defaultTTL"`
	MaxSizeMB            int           `json:"maxSizeMB" yaml:"maxSizeMB"`
	CompressionEnabled   bool          `json:"compressionEnabled" yaml:"compressionEnabled"`
	CompressionThreshold int           `json:"compressionThreshold" yaml:"compressionThreshold"`
	// CompressionLevel is one of "fastest", "default", "better", "best".
	CompressionLevel string `json:"compressionLevel" yaml:"compressionLevel"`
}

// RedisConfig contains configuration for a Redis-backed tier.
//
//nolint:govet // Configuration struct - logical grouping prioritized over alignment
type RedisConfig struct {
	DefaultTTL          time.Duration `json:"defaultTTL" yaml:"defaultTTL"`
	DialTimeout         time.Duration `json:"dialTimeout" yaml:"dialTimeout"`
	ReadTimeout         time.Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout        time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
	PoolTimeout         time.Duration `json:"poolTimeout" yaml:"poolTimeout"`
	HealthCheckInterval time.Duration `json:"healthCheckInterval" yaml:"healthCheckInterval"`
	Password            SecretString  `json:"password" yaml:"password"`
	// Network is "tcp" or "unix".
	Network          string `json:"network" yaml:"network"`
	Address          string `json:"address" yaml:"address"`
	KeyPrefix        string `json:"keyPrefix" yaml:"keyPrefix"`
	DB               int    `json:"db" yaml:"db"`
	PoolSize         int    `json:"poolSize" yaml:"poolSize"`
	MinIdleConns     int    `json:"minIdleConns" yaml:"minIdleConns"`
	MaxPendingWrites int    `json:"maxPendingWrites" yaml:"maxPendingWrites"`
	Enabled          bool   `json:"enabled" yaml:"enabled"`
	EnableTLS        bool   `json:"enableTLS" yaml:"enableTLS"`
	TLSSkipVerify    bool   `json:"tlsSkipVerify" yaml:"tlsSkipVerify"`
}

// PlacementConfig controls which tiers a write targets.
type PlacementConfig struct {
	// DurableSizeThreshold sends payloads larger than this many bytes to the durable tier.
	DurableSizeThreshold int `json:"durableSizeThreshold" yaml:"durableSizeThreshold"`
	// MGetBatchSize bounds the number of concurrent lookups in MGet.
	MGetBatchSize int `json:"mgetBatchSize" yaml:"mgetBatchSize"`
	// PromoteOnHit copies values found in slower tiers into faster ones.
	PromoteOnHit bool `json:"promoteOnHit" yaml:"promoteOnHit"`
}

// TemperatureConfig contains hot/cold classification thresholds.
type TemperatureConfig struct {
	HotAccessThreshold  int           `json:"hotAccessThreshold" yaml:"hotAccessThreshold"`
	HotRecencyWindow    time.Duration `json:"hotRecencyWindow" yaml:"hotRecencyWindow"`
	ColdAccessThreshold int           `json:"coldAccessThreshold" yaml:"coldAccessThreshold"`
	ColdStalenessWindow time.Duration `json:"coldStalenessWindow" yaml:"coldStalenessWindow"`
	MaxTrackedKeys      int           `json:"maxTrackedKeys" yaml:"maxTrackedKeys"`
}

// BackgroundConfig contains intervals for periodic tasks. A zero interval
// disables the task.
type BackgroundConfig struct {
	Enabled           bool          `json:"enabled" yaml:"enabled"`
	AnalyticsInterval time.Duration `json:"analyticsInterval" yaml:"analyticsInterval"`
	PrefetchInterval  time.Duration `json:"prefetchInterval" yaml:"prefetchInterval"`
	CleanupInterval   time.Duration `json:"cleanupInterval" yaml:"cleanupInterval"`
	RebalanceInterval time.Duration `json:"rebalanceInterval" yaml:"rebalanceInterval"`
	CoherencyInterval time.Duration `json:"coherencyInterval" yaml:"coherencyInterval"`
	ShutdownTimeout   time.Duration `json:"shutdownTimeout" yaml:"shutdownTimeout"`
}

// DefaultsConfig contains default values for cache operations.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DefaultsConfig struct {
	TTL      time.Duration `json:"ttl" yaml:"ttl"`
	Priority string        `json:"priority" yaml:"priority"`
	// FireAndForget queues remote writes. Queued writes may be dropped when
	// the queue is full.
	FireAndForget bool `json:"fireAndForget" yaml:"fireAndForget"`
}

// CircuitBreakerConfig contains configuration for the per-tier circuit breakers.
type CircuitBreakerConfig struct {
	Enabled             bool          `json:"enabled" yaml:"enabled"`
	FailureThreshold    int           `json:"failureThreshold" yaml:"failureThreshold"`
	FailureWindow       time.Duration `json:"failureWindow" yaml:"failureWindow"`
	SuccessThreshold    int           `json:"successThreshold" yaml:"successThreshold"`
	OpenDuration        time.Duration `json:"openDuration" yaml:"openDuration"`
	HalfOpenMaxRequests int           `json:"halfOpenMaxRequests" yaml:"halfOpenMaxRequests"`
}

// RetryConfig contains configuration for the retry pattern.
type RetryConfig struct {
	InitialBackoff time.Duration `json:"initialBackoff" yaml:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff" yaml:"maxBackoff"`
	Multiplier     float64       `json:"multiplier" yaml:"multiplier"`
	MaxAttempts    int           `json:"maxAttempts" yaml:"maxAttempts"`
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	Jitter         bool          `json:"jitter" yaml:"jitter"`
}

// BulkheadConfig contains configuration for the bulkhead pattern.
type BulkheadConfig struct {
	Enabled        bool          `json:"enabled" yaml:"enabled"`
	MaxConcurrent  int           `json:"maxConcurrent" yaml:"maxConcurrent"`
	MaxQueue       int           `json:"maxQueue" yaml:"maxQueue"`
	AcquireTimeout time.Duration `json:"acquireTimeout" yaml:"acquireTimeout"`
}

// MetricsConfig contains configuration for metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type MetricsConfig struct {
	DataDog    DataDogConfig    `json:"datadog" yaml:"datadog"`
	Prometheus PrometheusConfig `json:"prometheus" yaml:"prometheus"`
	Enabled    bool             `json:"enabled" yaml:"enabled"`
}

// DataDogConfig contains configuration for DataDog metrics publishing.
//
//nolint:govet // Small config struct - minimal alignment benefit
type DataDogConfig struct {
	Tags      []string `json:"tags" yaml:"tags"`
	AgentHost string   `json:"agentHost" yaml:"agentHost"`
	Prefix    string   `json:"prefix" yaml:"prefix"`
	Port      int      `json:"port" yaml:"port"`
	Enabled   bool     `json:"enabled" yaml:"enabled"`
}

// PrometheusConfig contains configuration for the Prometheus recorder.
type PrometheusConfig struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}
