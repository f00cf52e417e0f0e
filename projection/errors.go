package projection

import (
	"context"
	"errors"
)

var (
	// ErrInvalidProjectionInput is a contract violation by the caller (bad horizon, mismatched
	// lengths). It is never retried or degraded.
	ErrInvalidProjectionInput = errors.New("invalid projection input")
	// ErrDataUnavailable wraps any failure or timeout reaching the event, balance or order source.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrOrderNotFound is returned by order sources for unknown order references.
	ErrOrderNotFound = errors.New("order not found")

	// errStaleCacheRead never leaves the cache; it is only counted.
	errStaleCacheRead = errors.New("stale cache read")
)

// notEvaluated reports whether err came from the caller's deadline or cancellation
// rather than from a data source.
func notEvaluated(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

func failureReason(err error) string {
	if notEvaluated(err) {
		return "not evaluated: " + err.Error()
	}
	return err.Error()
}
