package istat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-school-projections/internal/model"

	"go.uber.org/zap"
)

// StatusError is a non-200 answer from the SDMX endpoint
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: HTTP %d %s", e.URL, e.Code, http.StatusText(e.Code))
}

// Retryable reports whether repeating the request can help: server errors
// and rate limiting can, other client errors cannot.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// permanentError marks failures that a retry will not fix (malformed payloads,
// empty datasets).
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return &permanentError{err: err} }

// isRetryableError checks if an error is worth another attempt
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pe *permanentError
	if errors.As(err, &pe) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	// network failures default to retryable
	return true
}

// withRetry runs fn until it succeeds, fails permanently, or MaxAttempts is
// reached, sleeping with exponential backoff between attempts.
func withRetry(ctx context.Context, cfg model.RetryConfig, logger *zap.Logger, op string, fn func(context.Context) error) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx); err == nil {
			if attempt > 1 {
				logger.Info("retry succeeded", zap.String("op", op), zap.Int("attempt", attempt))
			}
			return nil
		}
		if !isRetryableError(err) || attempt == attempts {
			break
		}
		delay := cfg.Backoff(attempt)
		logger.Warn("attempt failed, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", attempts),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
