package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxRetries is the maximum number of retry attempts (not including initial attempt).
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay is the maximum delay between retries.
	MaxDelay time.Duration

	// Multiplier is the factor by which delay increases after each retry.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns sensible default retry configuration. It is
// agentloop's default backoff for provider.Provider calls (§4.6): three
// retries, starting at one second, doubling up to sixteen.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

// retryOptions holds the configuration built up by RetryOption funcs.
type retryOptions struct {
	retryable func(error) bool
}

// RetryOption configures Retry/RetryWithResult beyond RetryConfig.
type RetryOption func(*retryOptions)

// WithRetryable sets the predicate used to decide whether a returned error
// should be retried at all. Without this option every error is retried
// until MaxRetries is exhausted. agentloop passes IsRetryable so a
// provider.ProviderPermanentError (§7 KindProviderPermanent) — a bad
// request or an auth failure, say — fails on the first attempt instead of
// sleeping through a backoff schedule that can't fix it.
func WithRetryable(fn func(error) bool) RetryOption {
	return func(o *retryOptions) { o.retryable = fn }
}

func buildRetryOptions(opts []RetryOption) *retryOptions {
	o := &retryOptions{retryable: func(error) bool { return true }}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Retry executes a function with exponential backoff retry logic.
// It retries up to MaxRetries times if the function returns an error that
// the configured retryable predicate (WithRetryable, all errors by
// default) accepts. The delay between retries grows exponentially, capped
// at MaxDelay. If the context is cancelled, it returns the context error
// immediately.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error, opts ...RetryOption) error {
	o := buildRetryOptions(opts)
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Execute the function
		if err := fn(); err != nil {
			if !o.retryable(err) {
				return err
			}
			lastErr = err

			// If this was the last attempt, don't wait
			if attempt >= cfg.MaxRetries {
				break
			}

			// Calculate delay with optional jitter
			waitDelay := delay
			if cfg.Jitter {
				// Add jitter: delay * (0.5 + rand(0, 0.5))
				jitterFactor := 0.5 + rand.Float64()*0.5
				waitDelay = time.Duration(float64(delay) * jitterFactor)
			}

			// Wait before retrying (with context cancellation support)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDelay):
			}

			// Calculate next delay with exponential backoff
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}

		// Success
		return nil
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}

// RetryWithResult executes a function that returns a value with retry logic.
// Similar to Retry but for functions that return both a result and an
// error; generateWithRetry in internal/agentloop is built directly on
// this, passing WithRetryable(IsRetryable).
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error), opts ...RetryOption) (T, error) {
	o := buildRetryOptions(opts)
	var result T
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		// Check context before attempting
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		// Execute the function
		var err error
		result, err = fn()
		if err != nil {
			if !o.retryable(err) {
				return result, err
			}
			lastErr = err

			// If this was the last attempt, don't wait
			if attempt >= cfg.MaxRetries {
				break
			}

			// Calculate delay with optional jitter
			waitDelay := delay
			if cfg.Jitter {
				jitterFactor := 0.5 + rand.Float64()*0.5
				waitDelay = time.Duration(float64(delay) * jitterFactor)
			}

			// Wait before retrying (with context cancellation support)
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(waitDelay):
			}

			// Calculate next delay with exponential backoff
			delay = time.Duration(float64(delay) * cfg.Multiplier)
			if delay > cfg.MaxDelay {
				delay = cfg.MaxDelay
			}
			continue
		}

		// Success
		return result, nil
	}

	// Return zero value and error
	var zero T
	return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
