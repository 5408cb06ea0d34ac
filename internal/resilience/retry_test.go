package resilience

import (
	"context"
	"testing"
	"time"

	"github.com/meetscout/platform/internal/errors"
)

func fastConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		JitterFactor: 0.01,
		IsRetryable:  errors.IsRetryable,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return nil
	})

	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversAfterTransientFailure(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.CodeRecognitionTimeout, "transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New(errors.CodeRecognitionAuth, "bad key")
	})

	if err == nil {
		t.Fatal("Retry() should return the error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on auth errors)", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastConfig(), func() error {
		calls++
		return errors.New(errors.CodeResearchUnavailable, "still down")
	})

	if err == nil {
		t.Fatal("Retry() should return the last error")
	}
	if calls != 4 {
		t.Errorf("calls = %d, want 4 (initial + 3 retries)", calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Retry(ctx, fastConfig(), func() error {
		t.Fatal("fn should not run with cancelled context")
		return nil
	})

	if err != context.Canceled {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestBackoffDelayCapped(t *testing.T) {
	cfg := RetryConfig{
		BaseDelay:    time.Second,
		MaxDelay:     2 * time.Second,
		JitterFactor: 0.0001,
	}.withDefaults()

	d := backoffDelay(cfg, 10)
	if d > 3*time.Second {
		t.Errorf("delay = %v, should be capped near MaxDelay", d)
	}
}
