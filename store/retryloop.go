package store

import (
	"context"
	"math/rand"
	"time"

	"eve.evalgo.org/operation/diagnostics"
	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
)

// RunRetryLoop drives the retry loop for any fetch shape: attempt, and
// on a non-cancellation failure accepted by the configured
// RunSpecification within the configured retry ceiling, sleep via the
// configured Delayer and attempt again. Single, Paginated, and Mutation
// stores all thread their fetch through this one loop so the retry
// semantics can't drift between operation kinds.
func RunRetryLoop[R any](ctx context.Context, cfg opcontext.Context, fetch func(context.Context) (R, error)) (R, error) {
	delayer := opcontext.Get(cfg, KeyDelayer)
	backoff := opcontext.Get(cfg, KeyBackoff)
	maxRetries := opcontext.Get(cfg, KeyMaxRetries)
	runSpec := opcontext.Get(cfg, KeyRunSpec)
	clock := opcontext.Get(cfg, KeyClock)

	if opcontext.Get(cfg, KeyPreviewMode) {
		d := opcontext.Get(cfg, KeyPreviewDelay)
		if d <= 0 {
			d = time.Duration(rand.Int63n(int64(time.Second)))
		}
		if err := delayer.Delay(ctx, d); err != nil {
			var zero R
			return zero, err
		}
	}

	startedAt := clock.Now()
	attempt := 0
	var value R
	var err error
	for {
		// Every attempt waits its backoff first; attempt 0 maps to a
		// zero delay by convention, so the first try is immediate.
		if derr := delayer.Delay(ctx, backoff(attempt)); derr != nil {
			err = derr
			break
		}
		value, err = fetch(withAttempt(ctx, attempt))
		if err == nil || errorIsCancellation(err) {
			break
		}
		if attempt+1 > maxRetries || !runSpec.ShouldRun(retry.Outcome{Attempt: attempt, Err: err}) {
			break
		}
		attempt++
	}

	if opcontext.Get(cfg, KeyLogDuration) {
		diagnostics.Infof("%s took %s (attempts: %d)",
			opcontext.Get(cfg, KeyTaskName), clock.Now().Sub(startedAt), attempt+1)
	}
	postAlert(cfg, err)
	return value, err
}

type attemptCtxKey struct{}

func withAttempt(ctx context.Context, attempt int) context.Context {
	return context.WithValue(ctx, attemptCtxKey{}, attempt)
}

// Attempt returns the zero-based retry attempt index the running body
// was invoked with (0 outside a retry loop).
func Attempt(ctx context.Context) int {
	v, _ := ctx.Value(attemptCtxKey{}).(int)
	return v
}

// postAlert delivers the configured alert message for a terminal
// outcome; cancellation suppresses the failure alert.
func postAlert(cfg opcontext.Context, err error) {
	sink := opcontext.Get(cfg, KeyAlertSink)
	if sink == nil {
		return
	}
	if err == nil {
		if msg := opcontext.Get(cfg, KeyAlertSuccessMessage); msg != "" {
			sink.Post(events.AlertMessage{Title: msg})
		}
		return
	}
	if errorIsCancellation(err) {
		return
	}
	if msg := opcontext.Get(cfg, KeyAlertFailureMessage); msg != "" {
		sink.Post(events.AlertMessage{Title: msg, Err: err})
	}
}
