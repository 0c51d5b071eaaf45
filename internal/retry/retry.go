// Package retry re-runs idempotent operations that failed with a transient
// backing store error.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-replenish/internal/domain"
)

// Policy bounds how an operation class is retried.
type Policy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// WritePolicy never retries. Writes are not assumed idempotent.
var WritePolicy = Policy{MaxAttempts: 1}

// ReadPolicy retries reads with exponential backoff.
func ReadPolicy(attempts int, initialBackoff time.Duration) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{
		MaxAttempts:    attempts,
		InitialBackoff: initialBackoff,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2,
	}
}

// Backoff returns the wait before the given retry (1-based).
func (p Policy) Backoff(retry int) time.Duration {
	if p.InitialBackoff <= 0 || retry < 1 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.InitialBackoff)
	for i := 1; i < retry; i++ {
		d *= mult
	}
	wait := time.Duration(d)
	if p.MaxBackoff > 0 && wait > p.MaxBackoff {
		wait = p.MaxBackoff
	}
	return wait
}

// Do calls fn until it succeeds, returns a non transient error, the attempts
// are exhausted or ctx is done.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var (
		out T
		err error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		out, err = fn(ctx)
		if err == nil || !errors.Is(err, domain.ErrTransient) || attempt == attempts {
			return out, err
		}

		wait := p.Backoff(attempt)
		log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Dur("backoff", wait).Msg("transient failure, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			var zero T
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	return out, err
}

// Run is Do for operations without a result.
func Run(ctx context.Context, p Policy, op string, fn func(ctx context.Context) error) error {
	_, err := Do(ctx, p, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}
