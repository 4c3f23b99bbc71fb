package resilience

import (
	"context"
	"log/slog"
	"time"
)

// RetryPolicy bounds how often and how fast an operation is re-run.
type RetryPolicy struct {
	// MaxAttempts is the total number of calls including the first. Values
	// below 1 are treated as 1.
	MaxAttempts int

	// InitialBackoff is the wait before the second attempt. It doubles for
	// every further attempt up to MaxBackoff.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts. Zero means no cap.
	MaxBackoff time.Duration

	// Retryable reports whether an error may be retried. Nil means every
	// error except caller cancellation is retryable.
	Retryable func(error) bool
}

// Retry runs fn until it succeeds, returns a non-retryable error, the policy's
// attempt budget is spent, or ctx is done. The attempt number (starting at 1)
// is passed to fn. The last error is returned unchanged.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = CountsAsFailure
	}

	backoff := p.InitialBackoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx, attempt)
		if err == nil || attempt == attempts || !retryable(err) {
			return err
		}

		slog.Debug("retrying after failure",
			"attempt", attempt,
			"max_attempts", attempts,
			"backoff", backoff,
			"error", err,
		)

		if backoff > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return err
			case <-timer.C:
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		} else if ctx.Err() != nil {
			return err
		}
	}
	return err
}
