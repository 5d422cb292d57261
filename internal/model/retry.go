package model

import (
	"math"
	"time"
)

// RetryConfig defines retry behavior for network acquisition
type RetryConfig struct {
	MaxAttempts       int           `json:"max_attempts" koanf:"max_attempts"`
	InitialDelay      time.Duration `json:"initial_delay" koanf:"initial_delay"`
	MaxDelay          time.Duration `json:"max_delay" koanf:"max_delay"`
	BackoffMultiplier float64       `json:"backoff_multiplier" koanf:"backoff_multiplier"`
}

// DefaultRetryConfig is used when no retry section is configured
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:       3,
	InitialDelay:      1 * time.Second,
	MaxDelay:          30 * time.Second,
	BackoffMultiplier: 2.0,
}

// Backoff returns the delay before the given retry attempt (1-based),
// growing exponentially and capped at MaxDelay.
func (c RetryConfig) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	delay := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
