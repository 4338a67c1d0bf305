package api

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

func TestWithRetryRecovers(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("%w: flaky", storage.ErrUnavailable)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestWithRetryExhaustsBudget(t *testing.T) {
	calls := 0
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return fmt.Errorf("%w: still down", storage.ErrUnavailable)
	})
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected budget of 3 attempts, got %d", calls)
	}
}

func TestWithRetryNonRetryable(t *testing.T) {
	calls := 0
	boom := errors.New("bad input")
	err := withRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected original error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("non-retryable errors must not be retried, got %d calls", calls)
	}
}

func TestWithRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := withRetry(ctx, 3, time.Millisecond, func() error {
		return fmt.Errorf("%w: down", storage.ErrUnavailable)
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
