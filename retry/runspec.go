package retry

// Outcome is the input a RunSpecification inspects to decide whether
// another attempt should be made.
type Outcome struct {
	Attempt int
	Err     error
}

// RunSpecification decides whether a failed attempt should be retried.
// Stores default to Always up to a modifier-configured attempt ceiling;
// callers can supply their own to retry only on specific error classes.
type RunSpecification interface {
	ShouldRun(o Outcome) bool
}

// RunSpecFunc adapts a plain function to a RunSpecification.
type RunSpecFunc func(o Outcome) bool

// ShouldRun calls f.
func (f RunSpecFunc) ShouldRun(o Outcome) bool { return f(o) }

// Always retries on any error.
var Always RunSpecification = RunSpecFunc(func(Outcome) bool { return true })

// Never never retries.
var Never RunSpecification = RunSpecFunc(func(Outcome) bool { return false })

// UpTo retries only while o.Attempt is below max.
func UpTo(max int) RunSpecification {
	return RunSpecFunc(func(o Outcome) bool { return o.Attempt < max })
}

// All retries only if every spec agrees to retry.
func All(specs ...RunSpecification) RunSpecification {
	return RunSpecFunc(func(o Outcome) bool {
		for _, s := range specs {
			if !s.ShouldRun(o) {
				return false
			}
		}
		return true
	})
}

// Any retries if at least one spec agrees to retry.
func Any(specs ...RunSpecification) RunSpecification {
	return RunSpecFunc(func(o Outcome) bool {
		for _, s := range specs {
			if s.ShouldRun(o) {
				return true
			}
		}
		return false
	})
}

// OnError retries only when pred(o.Err) is true.
func OnError(pred func(error) bool) RunSpecification {
	return RunSpecFunc(func(o Outcome) bool { return pred(o.Err) })
}
