package workbench

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryableStatus(t *testing.T) {
	t.Parallel()

	retryable := []int{409, 429, 500, 502, 503, 504}
	for _, status := range retryable {
		assert.True(t, IsRetryableStatus(status), "status %d should be retryable", status)
	}

	fatal := []int{200, 201, 400, 401, 403, 404, 501}
	for _, status := range fatal {
		assert.False(t, IsRetryableStatus(status), "status %d should not be retryable", status)
	}
}

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	cfg.JitterFraction = 0 // deterministic for this test

	var prev time.Duration
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		delay := cfg.BackoffDelay(attempt, http.StatusServiceUnavailable, 0)
		assert.GreaterOrEqual(t, delay, prev, "delay must not shrink across attempts")
		assert.LessOrEqual(t, delay, cfg.MaxDelay)
		prev = delay
	}

	assert.Equal(t, cfg.MaxDelay, cfg.BackoffDelay(10, http.StatusServiceUnavailable, 0))
}

func TestBackoffDelayConflictUsesElevatedBase(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	cfg.JitterFraction = 0

	serverErr := cfg.BackoffDelay(0, http.StatusInternalServerError, 0)
	conflict := cfg.BackoffDelay(0, http.StatusConflict, 0)

	assert.Equal(t, cfg.BaseDelay, serverErr)
	assert.Equal(t, cfg.ConflictBaseDelay, conflict)
	assert.Greater(t, conflict, serverErr)
}

func TestBackoffDelayRetryAfterOverride(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	cfg.JitterFraction = 0

	delay := cfg.BackoffDelay(0, http.StatusTooManyRequests, 42*time.Second)
	assert.Equal(t, 42*time.Second, delay)

	// Server hints are still bounded by the cap
	delay = cfg.BackoffDelay(0, http.StatusTooManyRequests, time.Hour)
	assert.Equal(t, cfg.MaxDelay, delay)
}

func TestBackoffDelayJitterWithinBounds(t *testing.T) {
	t.Parallel()

	cfg := DefaultRetryConfig()
	base := cfg.BaseDelay

	for i := 0; i < 100; i++ {
		delay := cfg.BackoffDelay(0, http.StatusServiceUnavailable, 0)
		low := time.Duration(float64(base) * (1 - cfg.JitterFraction))
		high := time.Duration(float64(base) * (1 + cfg.JitterFraction))
		assert.GreaterOrEqual(t, delay, low)
		assert.LessOrEqual(t, delay, high)
	}
}
