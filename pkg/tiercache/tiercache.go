package tiercache

import (
	"context"

	"github.com/LavishGent/tiercache/internal/cache"
	"github.com/LavishGent/tiercache/internal/config"
)

// New creates a cache with the default configuration and starts its
// background tasks.
func New(opts ...EngineOption) (Cache, error) {
	return NewFromConfig(config.DefaultConfig(), opts...)
}

// NewFromConfig creates a cache from cfg. cfg is validated and may be
// modified by opts.
func NewFromConfig(cfg *config.Config, opts ...EngineOption) (Cache, error) {
	engineOpts := &EngineOptions{}
	for _, opt := range opts {
		opt(engineOpts)
	}
	e, err := cache.NewEngine(cfg, engineOpts)
	if err != nil {
		return nil, err
	}
	if err := e.Initialize(context.Background()); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

// NewFromFile creates a cache from a JSON or YAML config file. Environment
// variables and a .env file override values from the file.
func NewFromFile(path string, opts ...EngineOption) (Cache, error) {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		return nil, err
	}
	return NewFromConfig(cfg, opts...)
}

// NewFastOnly creates a cache that keeps everything in process memory.
func NewFastOnly(opts ...EngineOption) (Cache, error) {
	cfg := config.DefaultConfig()
	cfg.Shared.Enabled = false
	cfg.Durable.Enabled = false
	cfg.Remote.Enabled = false
	return NewFromConfig(cfg, opts...)
}

// Config returns a default configuration that can be modified before
// creating a cache.
func Config() *config.Config {
	return config.DefaultConfig()
}

// TestConfig returns a configuration suitable for unit tests: fast tier
// only, no background tasks.
func TestConfig() *config.Config {
	return config.ForTesting()
}
