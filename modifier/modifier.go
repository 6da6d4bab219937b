// Package modifier provides the composable options a descriptor's Apply
// chain installs into its Context: retry ceilings, backoff curves,
// automatic-running conditions, default values, eviction levels, alerts,
// and development aids. Each modifier writes reserved store keys; the
// stores read them at run time, so modifiers compose freely and later
// ones win.
package modifier

import (
	"time"

	operation "eve.evalgo.org/operation"
	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
	"eve.evalgo.org/operation/store"
)

// Retry sets the retry ceiling: a failing run is attempted up to
// 1+limit times.
func Retry(limit int) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyMaxRetries, limit)
	}
}

// Backoff sets the delay curve between retry attempts.
func Backoff(fn retry.Backoff) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyBackoff, fn)
	}
}

// RetryOn restricts which failures are retried; the default retries
// any non-cancellation error.
func RetryOn(spec retry.RunSpecification) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyRunSpec, spec)
	}
}

// Deduplicated documents that concurrent callers of one intent share a
// single in-flight task. Stores enforce this unconditionally, so the
// modifier leaves the Context unchanged; it exists so a descriptor
// chain can state the guarantee explicitly.
func Deduplicated() operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context { return ctx }
}

// EnableAutomaticRunning makes the store run on subscriber attach, but
// only while onlyWhen is satisfied. Repeated uses combine: every
// condition must hold.
func EnableAutomaticRunning(onlyWhen retry.RunCondition) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		if existing := opcontext.Get(ctx, store.KeyAutomaticRunning); existing != nil {
			onlyWhen = retry.AllConditions(existing, onlyWhen)
		}
		return opcontext.Set(ctx, store.KeyAutomaticRunning, onlyWhen)
	}
}

// DisableAutomaticRunning turns attach-triggered running off
// regardless of earlier modifiers.
func DisableAutomaticRunning() operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyAutomaticRunning, retry.ConditionAlways(false))
	}
}

// RerunOnChange subscribes the store to cond for its lifetime: whenever
// cond signals while satisfied, the store schedules a re-run (joining
// one already in flight).
func RerunOnChange(cond retry.RunCondition) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		conds := opcontext.Get(ctx, store.KeyRerunConditions)
		next := make([]retry.RunCondition, 0, len(conds)+1)
		next = append(next, conds...)
		next = append(next, cond)
		return opcontext.Set(ctx, store.KeyRerunConditions, next)
	}
}

// RefetchOn re-runs the store every time the named notification is
// posted.
func RefetchOn(source events.NotificationSource, name string) operation.Modifier {
	return RerunOnChange(events.NotificationCondition(source, name))
}

// DefaultValue lifts the store so reads before the first result see v
// instead of nothing.
func DefaultValue[V any](v V) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyDefaultValue, interface{}(v))
	}
}

// EvictWhen sets which memory-pressure levels may evict the store from
// the cache while it has no subscribers.
func EvictWhen(levels ...events.PressureLevel) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyEvictablePressure, levels)
	}
}

// CompletelyOffline removes the built-in connectivity gating and
// rerun-on-reconnect behavior: the operation neither waits for nor
// reacts to network reachability.
func CompletelyOffline() operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyConnectivityCondition, nil)
	}
}

// DisableApplicationActiveRerunning removes the built-in re-run that
// fires when the application returns to the foreground.
func DisableApplicationActiveRerunning() operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyAppActiveCondition, nil)
	}
}

// Alerts posts success to sink on a terminal success and failure on a
// final-attempt failure (never on cancellation). Empty strings suppress
// that side.
func Alerts(sink events.AlertSink, success, failure string) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		ctx = opcontext.Set(ctx, store.KeyAlertSink, sink)
		ctx = opcontext.Set(ctx, store.KeyAlertSuccessMessage, success)
		return opcontext.Set(ctx, store.KeyAlertFailureMessage, failure)
	}
}

// PreviewDelay sleeps d before each run in preview contexts (a zero d
// sleeps a random sub-second duration), keeping loading states visible
// during development.
func PreviewDelay(d time.Duration) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		ctx = opcontext.Set(ctx, store.KeyPreviewMode, true)
		return opcontext.Set(ctx, store.KeyPreviewDelay, d)
	}
}

// LogDuration logs every run's wall-clock duration and attempt count
// through the diagnostics reporter.
func LogDuration() operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyLogDuration, true)
	}
}

// MutationHistoryCap bounds a mutation store's attempt history to the
// most recent n entries.
func MutationHistoryCap(n int) operation.Modifier {
	return func(ctx opcontext.Context) opcontext.Context {
		return opcontext.Set(ctx, store.KeyMutationHistoryCap, n)
	}
}
