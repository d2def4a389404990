package gemini

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultMaxAttempts = 3
	initialBackoff     = 1 * time.Second
	backoffMultiplier  = 2
	maxBackoff         = 10 * time.Second
)

// RetryableError marks a provider failure worth another attempt.
type RetryableError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// WithRetry runs fn up to attempts times, backing off exponentially while
// it returns a *RetryableError. Any other error is returned immediately.
func WithRetry(ctx context.Context, attempts int, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	backoff := initialBackoff

	for attempt := 1; attempt <= attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var re *RetryableError
		if !errors.As(err, &re) {
			return err
		}
		lastErr = err
		if attempt == attempts {
			break
		}

		wait := backoff
		if re.RetryAfter > wait {
			wait = re.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		backoff *= backoffMultiplier
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
	return lastErr
}
