package notify

import (
	"math"
	"time"
)

// RetryConfig controls webhook delivery retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialDelayMs int
	MaxDelayMs     int
	Multiplier     float64
}

// SetDefaults fills zero fields with sane values.
func (c *RetryConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialDelayMs <= 0 {
		c.InitialDelayMs = 1000
	}
	if c.MaxDelayMs <= 0 {
		c.MaxDelayMs = 30000
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
}

// delay computes the exponential backoff before the next attempt:
// min(initial * multiplier^(attempt-1), max).
func (c RetryConfig) delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delayMs := float64(c.InitialDelayMs) * math.Pow(c.Multiplier, float64(attempt-1))
	if delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}
	return time.Duration(delayMs) * time.Millisecond
}

// shouldRetry classifies a delivery outcome. Network errors, rate limits and
// server errors are transient; other client errors are permanent.
func (c RetryConfig) shouldRetry(attempt, statusCode int, err error) bool {
	if attempt >= c.MaxAttempts {
		return false
	}
	if err != nil {
		return true
	}
	if statusCode == 429 {
		return true
	}
	if statusCode >= 500 && statusCode < 600 {
		return true
	}
	if statusCode >= 400 && statusCode < 500 {
		return false
	}
	return statusCode >= 300
}
