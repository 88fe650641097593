// Package sync provides the offline-first synchronization engine that
// reconciles locally recorded observations with the remote service.
package sync

import (
	"math"
	"time"

	apperrors "github.com/naturelog/backend/internal/errors"
)

// RetryPolicy decides whether a failed push attempt is retried and how
// long to wait before the next attempt.
type RetryPolicy struct {
	// MaxAttempts bounds total attempts per record (first try + retries).
	MaxAttempts int

	// InitialDelay is the wait before the first retry. Each subsequent
	// retry doubles the delay up to MaxDelay. The cap applies everywhere
	// the policy is used; there is no uncapped path.
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultRetryPolicy returns the retry policy used by the sync engine.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
	}
}

// ShouldRetry reports whether another attempt should follow a failure on
// the given attempt (1-based). Non-retryable errors short-circuit to
// failure regardless of how many attempts remain.
func (p RetryPolicy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.MaxAttempts {
		return false
	}
	return apperrors.IsRetryable(err)
}

// DelayFor returns the backoff delay before retry number attempt
// (attempt 1 is the first retry): InitialDelay * 2^(attempt-1), capped
// at MaxDelay.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Past this exponent the doubling has certainly passed any sane cap.
	exp := attempt - 1
	if exp > 30 {
		return p.MaxDelay
	}

	delay := time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(exp)))
	if delay > p.MaxDelay || delay < 0 {
		return p.MaxDelay
	}
	return delay
}
