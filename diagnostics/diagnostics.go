// Package diagnostics is the single injectable warning reporter the core
// uses for programmer-error conditions: duplicate paths, circular task
// scheduling, cancellation of a task that never started, and retry-latest
// without a prior mutate. It wraps logrus, trimmed to three severities:
// an informational Info (run-duration log lines), a non-fatal Warn,
// and a process-halting Fatal for true ProgrammerErrors.
package diagnostics

import (
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Reporter receives diagnostic warnings. Swap it in tests to capture
// messages instead of writing to the process log.
type Reporter interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Fatal(msg string, fields map[string]interface{})
}

// LogrusReporter is the default Reporter, backed by a *logrus.Logger the
// way eve.evalgo.org/common.NewLogger configures one: text formatter,
// full timestamps, info level by default.
type LogrusReporter struct {
	Logger *logrus.Logger
}

// NewLogrusReporter returns a Reporter writing through a freshly
// configured logrus.Logger.
func NewLogrusReporter() *LogrusReporter {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(os.Stderr)
	return &LogrusReporter{Logger: logger}
}

func (r *LogrusReporter) Info(msg string, fields map[string]interface{}) {
	r.Logger.WithFields(fields).Info(msg)
}

func (r *LogrusReporter) Warn(msg string, fields map[string]interface{}) {
	r.Logger.WithFields(fields).Warn(msg)
}

func (r *LogrusReporter) Fatal(msg string, fields map[string]interface{}) {
	r.Logger.WithFields(fields).Fatal(msg)
}

var (
	mu      sync.RWMutex
	current Reporter = NewLogrusReporter()
)

// SetReporter installs the process-wide Reporter. Tests install a
// recording Reporter here to assert on emitted diagnostics without
// touching stderr or halting.
func SetReporter(r Reporter) {
	mu.Lock()
	defer mu.Unlock()
	current = r
}

func active() Reporter {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Infof emits an informational message, e.g. a run-duration log line.
func Infof(format string, args ...interface{}) {
	active().Info(fmt.Sprintf(format, args...), nil)
}

// Warnf emits a non-fatal diagnostic, e.g. DuplicatePath.
func Warnf(format string, args ...interface{}) {
	active().Warn(fmt.Sprintf(format, args...), nil)
}

// Fatalf halts the process with a descriptive message for programmer
// errors (out-of-range Path indexing, circular task scheduling). It is
// never a panic the caller could recover from: these represent bugs in
// the embedding program, not runtime failures to route around.
func Fatalf(format string, args ...interface{}) {
	active().Fatal(fmt.Sprintf(format, args...), nil)
}

// RecordingReporter collects diagnostics instead of emitting them, for
// tests that assert a ProgrammerError path was (or was not) taken
// without actually halting the test binary.
type RecordingReporter struct {
	mu     sync.Mutex
	Infos  []string
	Warns  []string
	Fatals []string
}

func (r *RecordingReporter) Info(msg string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Infos = append(r.Infos, msg)
}

func (r *RecordingReporter) Warn(msg string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Warns = append(r.Warns, msg)
}

func (r *RecordingReporter) Fatal(msg string, _ map[string]interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Fatals = append(r.Fatals, msg)
}
