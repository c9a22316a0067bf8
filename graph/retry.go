package graph

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy configures retry behavior for a node.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Retryable determines if an error should trigger a retry. Nil retries every error.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns a default retry configuration
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// do runs fn until it succeeds, the policy gives up or ctx is done.
func (p RetryPolicy) do(ctx context.Context, node string, fn func() (Result, error)) (Result, error) {
	attempts := max(p.MaxAttempts, 1)
	delay := p.InitialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return Result{}, fmt.Errorf("retry cancelled: %w", lastErr)
			}
			return Result{}, fmt.Errorf("retry cancelled: %w", err)
		}

		res, err := fn()
		if err == nil {
			return res, nil
		}
		lastErr = err

		if p.Retryable != nil && !p.Retryable(err) {
			return Result{}, err
		}
		if attempt == attempts {
			break
		}

		select {
		case <-time.After(delay):
			if p.Multiplier > 0 {
				delay = time.Duration(float64(delay) * p.Multiplier)
			}
			if p.MaxDelay > 0 {
				delay = min(delay, p.MaxDelay)
			}
		case <-ctx.Done():
			return Result{}, fmt.Errorf("retry cancelled during backoff: %w", lastErr)
		}
	}

	return Result{}, fmt.Errorf("max retries (%d) exceeded for %s: %w", attempts, node, lastErr)
}
