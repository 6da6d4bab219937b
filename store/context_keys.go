package store

import (
	"time"

	"eve.evalgo.org/operation/events"
	"eve.evalgo.org/operation/opcontext"
	"eve.evalgo.org/operation/retry"
)

// Reserved Context keys every store reads when configuring a run.
// Modifiers install these; a store falls back to sensible
// defaults (no retries, no backoff, a real clock and delayer) when a
// modifier hasn't set them.
var (
	KeyClock      = opcontext.NewKey[retry.Clock]("clock", retry.RealClock{})
	KeyDelayer    = opcontext.NewKey[retry.Delayer]("delayer", retry.RealDelayer{})
	KeyMaxRetries = opcontext.NewKey[int]("maxRetries", 0)
	KeyBackoff    = opcontext.NewKey[retry.Backoff]("backoff", retry.None)
	KeyRunSpec    = opcontext.NewKey[retry.RunSpecification]("runSpecification", retry.Always)
)

// KeyTaskName names the Task a run creates, used in diagnostics and by
// logging modifiers.
var KeyTaskName = opcontext.NewKey[string]("taskName", "")

// KeyMutationHistoryCap bounds a mutation store's attempt history to the
// most recent N entries; 0 (the default) keeps every entry.
var KeyMutationHistoryCap = opcontext.NewKey[int]("mutationHistoryCap", 0)

// KeyAutomaticRunning holds the effective RunCondition for running on
// attach: when set and satisfied, a store schedules a run as soon as a
// subscriber appears. nil (the default) means no automatic running.
var KeyAutomaticRunning = opcontext.NewKey[retry.RunCondition]("automaticRunning", nil)

// KeyRerunConditions holds conditions the store observes for its whole
// lifetime: whenever one signals a change while satisfied, the store
// schedules a re-run (joining any already in flight).
var KeyRerunConditions = opcontext.NewKey[[]retry.RunCondition]("rerunConditions", nil)

// KeyEvictablePressure lists the pressure levels under which an idle
// store (zero subscribers) may be evicted from the cache. The default
// evicts under warning and critical.
var KeyEvictablePressure = opcontext.NewKey[[]events.PressureLevel]("evictableMemoryPressure",
	[]events.PressureLevel{events.PressureWarning, events.PressureCritical})

// KeyConnectivityCondition is the built-in reachability gate a creator
// may install: the store reruns when it signals while satisfied. The
// completely-offline modifier removes it.
var KeyConnectivityCondition = opcontext.NewKey[retry.RunCondition]("connectivityCondition", nil)

// KeyAppActiveCondition is the built-in application-became-active
// rerun trigger a creator may install; the corresponding modifier
// removes it.
var KeyAppActiveCondition = opcontext.NewKey[retry.RunCondition]("appActiveCondition", nil)

// KeyDefaultValue lifts a store so its current value is never absent:
// reads fall back to this value before the first result arrives. It is
// type-erased; the store asserts it back to its value type.
var KeyDefaultValue = opcontext.NewKey[interface{}]("defaultValue", nil)

// KeyAlertSink, with the two message keys, drives the alerting
// modifier: on a terminal success or non-cancellation final failure the
// retry loop posts the configured message. An empty message suppresses
// that side's alert.
var (
	KeyAlertSink           = opcontext.NewKey[events.AlertSink]("alertSink", nil)
	KeyAlertSuccessMessage = opcontext.NewKey[string]("alertSuccessMessage", "")
	KeyAlertFailureMessage = opcontext.NewKey[string]("alertFailureMessage", "")
)

// KeyPreviewMode and KeyPreviewDelay support the preview-delay
// development aid: in preview contexts a run sleeps before executing so
// loading states stay visible long enough to inspect.
var (
	KeyPreviewMode  = opcontext.NewKey[bool]("previewMode", false)
	KeyPreviewDelay = opcontext.NewKey[time.Duration]("previewDelay", 0)
)

// KeyLogDuration makes the retry loop log each run's wall-clock
// duration through the diagnostics reporter.
var KeyLogDuration = opcontext.NewKey[bool]("logDuration", false)

// EffectiveRerunConditions collects the user-installed rerun conditions
// plus whichever built-in condition slots are occupied.
func EffectiveRerunConditions(ctx opcontext.Context) []retry.RunCondition {
	conds := opcontext.Get(ctx, KeyRerunConditions)
	if c := opcontext.Get(ctx, KeyConnectivityCondition); c != nil {
		conds = append(conds[:len(conds):len(conds)], c)
	}
	if c := opcontext.Get(ctx, KeyAppActiveCondition); c != nil {
		conds = append(conds[:len(conds):len(conds)], c)
	}
	return conds
}
