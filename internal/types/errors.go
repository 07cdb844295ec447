package types

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrCacheMiss           = errors.New("cache: key not found")
	ErrTierUnavailable     = errors.New("cache: tier unavailable")
	ErrCircuitOpen         = errors.New("cache: circuit breaker open")
	ErrCapacityExceeded    = errors.New("cache: capacity exceeded")
	ErrSerializationFailed = errors.New("cache: serialization failed")
	ErrIOFailure           = errors.New("cache: i/o failure")
	ErrIntegrityFailure    = errors.New("cache: integrity check failed")
	ErrAllTiersFailed      = errors.New("cache: all target tiers failed")
	ErrClosed              = errors.New("cache: engine closed")
	ErrWriteQueueFull      = errors.New("cache: write queue full")
	ErrBulkheadFull        = errors.New("cache: bulkhead at capacity")
	ErrBulkheadTimeout     = errors.New("cache: bulkhead timeout")
	ErrInvalidKey          = errors.New("cache: invalid key")
	ErrShutdownTimeout     = errors.New("cache: shutdown timeout waiting for background operations")
)

type CacheError struct {
	Op    string
	Key   string
	Layer string
	Err   error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("cache %s on %s [%s]: %v", e.Op, e.Layer, e.Key, e.Err)
	}
	return fmt.Sprintf("cache %s on %s: %v", e.Op, e.Layer, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key, layer string, err error) *CacheError {
	return &CacheError{
		Op:    op,
		Key:   key,
		Layer: layer,
		Err:   err,
	}
}

// NewIOError wraps err as an ErrIOFailure while keeping the cause inspectable.
func NewIOError(op, key, layer string, err error) *CacheError {
	return NewCacheError(op, key, layer, fmt.Errorf("%w: %w", ErrIOFailure, err))
}

func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

func IsTierUnavailable(err error) bool {
	return errors.Is(err, ErrTierUnavailable)
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

func IsIntegrityFailure(err error) bool {
	return errors.Is(err, ErrIntegrityFailure)
}

// IsTierFailure reports whether err says something about the health of the
// tier that produced it. Misses and per-entry problems do not.
func IsTierFailure(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, ErrCacheMiss),
		errors.Is(err, ErrInvalidKey),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, ErrIntegrityFailure),
		errors.Is(err, ErrSerializationFailed),
		errors.Is(err, ErrCircuitOpen),
		errors.Is(err, context.Canceled):
		return false
	}

	return true
}

func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Cache misses are not retryable - the key doesn't exist
	if IsCacheMiss(err) {
		return false
	}

	// Circuit open is not retryable - need to wait for recovery
	if IsCircuitOpen(err) {
		return false
	}

	if errors.Is(err, ErrClosed) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrTierUnavailable) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrIntegrityFailure) ||
		errors.Is(err, ErrSerializationFailed) {
		return false
	}

	// Most other errors (network, timeout, disk) are retryable
	return true
}
