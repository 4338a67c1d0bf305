package api

import (
	"context"
	"errors"
	"time"

	"github.com/jamstermayne/conference-party-microservice-sub017/internal/storage"
)

// withRetry runs fn, retrying with doubling backoff while the failure is a
// retryable storage outage. Callers must only pass idempotent operations.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	var err error
	backoff := base
	for i := 0; i < attempts; i++ {
		err = fn()
		if err == nil || !errors.Is(err, storage.ErrUnavailable) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return err
}
