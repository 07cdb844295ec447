package tiercache

import (
	"github.com/LavishGent/tiercache/internal/types"
)

// CacheError represents a cache operation error.
type CacheError = types.CacheError

var (
	// ErrCacheMiss indicates that no tier holds the key.
	ErrCacheMiss = types.ErrCacheMiss
	// ErrTierUnavailable indicates that a tier cannot be reached.
	ErrTierUnavailable = types.ErrTierUnavailable
	// ErrCircuitOpen indicates that a tier's circuit breaker is open.
	ErrCircuitOpen = types.ErrCircuitOpen
	// ErrCapacityExceeded indicates that a value does not fit in a tier.
	ErrCapacityExceeded = types.ErrCapacityExceeded
	// ErrIntegrityFailure indicates a stored value failed its checksum.
	ErrIntegrityFailure = types.ErrIntegrityFailure
	// ErrAllTiersFailed indicates that a write reached no tier.
	ErrAllTiersFailed = types.ErrAllTiersFailed
	// ErrClosed indicates that the cache has been closed.
	ErrClosed = types.ErrClosed
	// ErrWriteQueueFull indicates that the remote write queue is full.
	ErrWriteQueueFull = types.ErrWriteQueueFull
	// ErrBulkheadFull indicates that the bulkhead is at capacity.
	ErrBulkheadFull = types.ErrBulkheadFull
	// ErrBulkheadTimeout indicates that the bulkhead acquisition timed out.
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
	// ErrSerializationFailed indicates that serialization failed.
	ErrSerializationFailed = types.ErrSerializationFailed
	// ErrInvalidKey indicates that a cache key is invalid.
	ErrInvalidKey = types.ErrInvalidKey
)

// NewCacheError creates a new cache error with operation, key, layer, and underlying error.
func NewCacheError(op, key, layer string, err error) *CacheError {
	return types.NewCacheError(op, key, layer, err)
}

// IsCacheMiss returns true if the error is a cache miss.
func IsCacheMiss(err error) bool {
	return types.IsCacheMiss(err)
}

// IsTierUnavailable returns true if the error indicates a tier is down.
func IsTierUnavailable(err error) bool {
	return types.IsTierUnavailable(err)
}

// IsCircuitOpen returns true if the error indicates the circuit breaker is open.
func IsCircuitOpen(err error) bool {
	return types.IsCircuitOpen(err)
}

// IsRetryable returns true if the error can be retried.
func IsRetryable(err error) bool {
	return types.IsRetryable(err)
}
