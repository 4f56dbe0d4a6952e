package live

import (
	"context"
	"errors"
	"time"
)

const (
	connectBackoffBase = 250 * time.Millisecond
	connectBackoffCap  = 4 * time.Second
)

// backoff doubles base per attempt, capped.
func backoff(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}

// retry runs fn up to attempts times, sleeping between failures. It stops
// early when ctx is done.
func retry[T any](ctx context.Context, attempts int, base, cap time.Duration, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts <= 0 {
		attempts = 1
	}
	var errs []error
	for attempt := 0; attempt < attempts; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			return v, nil
		}
		errs = append(errs, err)
		if ctx.Err() != nil || attempt == attempts-1 {
			break
		}
		t := time.NewTimer(backoff(attempt, base, cap))
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, errors.Join(append(errs, ctx.Err())...)
		case <-t.C:
		}
	}
	return zero, errors.Join(errs...)
}
