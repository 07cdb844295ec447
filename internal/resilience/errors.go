package resilience

import (
	"context"
	"errors"
	"net"
	"os"
	"syscall"

	"github.com/LavishGent/tiercache/internal/types"
)

var (
	ErrCircuitOpen     = types.ErrCircuitOpen
	ErrBulkheadFull    = types.ErrBulkheadFull
	ErrBulkheadTimeout = types.ErrBulkheadTimeout
)

func IsCircuitOpen(err error) bool {
	return errors.Is(err, types.ErrCircuitOpen)
}

func IsBulkheadError(err error) bool {
	return errors.Is(err, types.ErrBulkheadFull) || errors.Is(err, types.ErrBulkheadTimeout)
}

// IsRetryable determines if a tier error is transient and worth retrying.
// Misses and per-entry errors are final; so is anything the resilience
// layer itself produced.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if IsBulkheadError(err) || errors.Is(err, context.Canceled) {
		return false
	}

	if !types.IsRetryable(err) {
		return false
	}

	// Disk full or permission problems will not fix themselves between attempts.
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, os.ErrPermission) {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return true
}
