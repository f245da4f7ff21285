package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Factor: 2, Min: time.Millisecond, Max: 10 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoExhausts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Factor: 2, Min: time.Millisecond, Max: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return errors.New("always fails")
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	var exhausted *ErrExhausted
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ErrExhausted, got %T: %v", err, err)
	}
	if exhausted.Attempts != 3 || calls != 3 {
		t.Fatalf("attempts = %d, calls = %d, want 3/3", exhausted.Attempts, calls)
	}
}

func TestDoStopsOnNonRetriable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Factor: 2, Min: time.Millisecond, Max: 5 * time.Millisecond}, func(ctx context.Context) error {
		calls++
		return &NonRetriable{Err: errors.New("permanent")}
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on NonRetriable)", calls)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Do(ctx, Default, func(ctx context.Context) error {
		t.Fatalf("fn should not be called with an already-canceled context")
		return nil
	})
	if err == nil {
		t.Fatalf("expected error")
	}
}
