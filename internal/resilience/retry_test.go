package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_SucceedsAfterTransientFailure(t *testing.T) {
	t.Parallel()

	var attempts []int
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Millisecond},
		func(_ context.Context, attempt int) error {
			attempts = append(attempts, attempt)
			if attempt == 1 {
				return errTest
			}
			return nil
		})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if len(attempts) != 2 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestRetry_CapsAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Retry(context.Background(), RetryPolicy{MaxAttempts: 2}, func(context.Context, int) error {
		calls++
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want errTest", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_ZeroAttemptsMeansOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	_ = Retry(context.Background(), RetryPolicy{}, func(context.Context, int) error {
		calls++
		return errTest
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_SkipsNonRetryable(t *testing.T) {
	t.Parallel()

	errRefused := errors.New("refused")
	calls := 0
	err := Retry(context.Background(), RetryPolicy{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return !errors.Is(err, errRefused) },
	}, func(context.Context, int) error {
		calls++
		return errRefused
	})
	if !errors.Is(err, errRefused) {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_StopsWhenContextDoneDuringBackoff(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	start := time.Now()
	err := Retry(ctx, RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Hour}, func(context.Context, int) error {
		calls++
		cancel()
		return errTest
	})
	if !errors.Is(err, errTest) {
		t.Fatalf("err = %v, want last call error", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if time.Since(start) > time.Second {
		t.Error("Retry waited out the backoff despite cancellation")
	}
}
