package workbench

import (
	"math/rand"
	"net/http"
	"time"
)

// RetryConfig defines retry behavior for control plane calls
type RetryConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	ConflictBaseDelay time.Duration // Elevated base for HTTP 409 (operation queue contention)
	MaxDelay          time.Duration
	JitterFraction    float64
}

// DefaultRetryConfig returns the retry defaults for control plane calls
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       5,
		BaseDelay:         5 * time.Second,
		ConflictBaseDelay: 15 * time.Second,
		MaxDelay:          180 * time.Second,
		JitterFraction:    0.10,
	}
}

// retryableStatuses are the HTTP statuses worth retrying; everything else
// non-2xx fails immediately.
var retryableStatuses = map[int]bool{
	http.StatusConflict:           true, // 409
	http.StatusTooManyRequests:    true, // 429
	http.StatusInternalServerError: true, // 500
	http.StatusBadGateway:         true, // 502
	http.StatusServiceUnavailable: true, // 503
	http.StatusGatewayTimeout:     true, // 504
}

// IsRetryableStatus reports whether an HTTP status should trigger a retry
func IsRetryableStatus(status int) bool {
	return retryableStatuses[status]
}

// BackoffDelay computes the wait before the next attempt. attempt is
// zero-based. A server-provided retryAfter overrides the computed delay.
func (c *RetryConfig) BackoffDelay(attempt, status int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		if retryAfter > c.MaxDelay {
			return c.MaxDelay
		}
		return retryAfter
	}

	base := c.BaseDelay
	if status == http.StatusConflict {
		base = c.ConflictBaseDelay
	}

	delay := base << uint(attempt) //nolint:gosec // attempt is bounded by MaxAttempts
	if delay > c.MaxDelay || delay <= 0 {
		delay = c.MaxDelay
	}

	if c.JitterFraction > 0 {
		jitter := time.Duration((rand.Float64()*2 - 1) * c.JitterFraction * float64(delay)) //nolint:gosec // jitter does not need crypto randomness
		delay += jitter
		if delay > c.MaxDelay {
			delay = c.MaxDelay
		}
		if delay < 0 {
			delay = 0
		}
	}

	return delay
}
