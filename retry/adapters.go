package retry

import (
	"context"
	"time"

	cenkaltibackoff "github.com/cenkalti/backoff/v5"
	"golang.org/x/time/rate"
)

// FromCenkalti adapts a stateful github.com/cenkalti/backoff/v5.BackOff
// into a pure Backoff function, so an operation can reuse the
// ecosystem's curve implementations (exponential with randomization,
// max-elapsed-time cutoffs) instead of only the ones declared in this
// package. Because cenkalti's BackOff is stateful (NextBackOff advances
// internal counters) while Backoff must be a pure function of attempt
// number, FromCenkalti resets the wrapped BackOff and replays it up to
// attempt on every call; this trades some redundant computation for the
// stateless contract the rest of the package relies on.
func FromCenkalti(newBackOff func() cenkaltibackoff.BackOff) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		b := newBackOff()
		b.Reset()
		var d time.Duration
		for i := 0; i < attempt; i++ {
			next := b.NextBackOff()
			if next == cenkaltibackoff.Stop {
				return 0
			}
			d = next
		}
		return d
	}
}

// RateLimited wraps a Delayer so that, in addition to the backoff delay
// requested by the retry loop, each attempt also waits for a token from
// limiter. This bounds the total retry rate across every operation
// sharing the limiter, independent of any single operation's backoff
// curve.
type RateLimited struct {
	Inner   Delayer
	Limiter *rate.Limiter
}

// Delay waits for d from Inner, then waits for a limiter token.
func (r RateLimited) Delay(ctx context.Context, d time.Duration) error {
	if err := r.Inner.Delay(ctx, d); err != nil {
		return err
	}
	return r.Limiter.Wait(ctx)
}
