package cache

import (
	"context"

	"github.com/LavishGent/tiercache/internal/types"
)

// DisabledTier stands in for a tier turned off by configuration. Reads miss,
// writes are dropped and IsAvailable is false, so the coordinator skips it.
type DisabledTier struct {
	name string
}

// NewDisabledTier creates a disabled tier reporting the given name.
func NewDisabledTier(name string) *DisabledTier {
	return &DisabledTier{name: name}
}

// Name returns the name of the tier this stands in for.
func (t *DisabledTier) Name() string { return t.name }

// IsAvailable returns false as this tier is disabled.
func (t *DisabledTier) IsAvailable() bool { return false }

// Close does nothing as this tier is disabled.
func (t *DisabledTier) Close() error { return nil }

// Stats returns empty statistics as this tier is disabled.
func (t *DisabledTier) Stats() types.TierStats { return types.TierStats{} }

// Get returns ErrCacheMiss as this tier is disabled.
func (t *DisabledTier) Get(ctx context.Context, key string) (*types.Entry, error) {
	return nil, types.ErrCacheMiss
}

// Contains returns false as this tier is disabled.
func (t *DisabledTier) Contains(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// Set does nothing as this tier is disabled.
func (t *DisabledTier) Set(ctx context.Context, key string, value []byte, opts *types.CacheOptions) error {
	return nil
}

// Delete reports nothing removed as this tier is disabled.
func (t *DisabledTier) Delete(ctx context.Context, key string) (bool, error) {
	return false, nil
}

// Cleanup does nothing as this tier is disabled.
func (t *DisabledTier) Cleanup(ctx context.Context) (int, error) { return 0, nil }

// DeleteByPattern does nothing as this tier is disabled.
func (t *DisabledTier) DeleteByPattern(ctx context.Context, pattern string) (int, error) {
	return 0, nil
}

// Clear does nothing as this tier is disabled.
func (t *DisabledTier) Clear(ctx context.Context) error { return nil }

var _ types.Tier = (*DisabledTier)(nil)
