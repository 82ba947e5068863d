package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrTransient marks an external failure worth retrying (rate limits, 5xx, dropped connections).
var ErrTransient = errors.New("transient external failure")

// RetryPolicy bounds retries of a single external call.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: 500 * time.Millisecond, MaxBackoff: 5 * time.Second}
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	if p.MaxBackoff > 0 {
		b.MaxInterval = p.MaxBackoff
	}
	b.Reset()

	retries := max(p.MaxAttempts, 1) - 1
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

// Do runs fn until it succeeds, returns a non-transient error, attempts run out or ctx ends.
// The backoff doubles after each attempt up to MaxBackoff.
func (p RetryPolicy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var last error
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		last = fn(ctx)
		if last != nil && !errors.Is(last, ErrTransient) {
			return backoff.Permanent(last)
		}
		return last
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		slog.Warn("Retrying external call", "op", op, "attempt", attempt, "backoff", wait, "error", err)
	})

	if err != nil && ctx.Err() != nil && last != nil && !errors.Is(err, last) {
		return errors.Join(last, ctx.Err())
	}
	return err
}
