// Package retry supplies the backoff, delay, and run-specification
// primitives a store's retry loop composes, as plain functions that
// compose with modifiers instead of fixed fields on one struct.
package retry

import (
	"math"
	"math/rand"
	"time"
)

// Backoff computes the delay to wait before the given attempt, where
// attempt 0 is the delay before the very first try (always zero in
// every strategy below) and attempt n >= 1 is the delay before the nth
// retry.
type Backoff func(attempt int) time.Duration

// None never delays.
func None(attempt int) time.Duration { return 0 }

// Fixed always waits d before every retry.
func Fixed(d time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return d
	}
}

// Linear waits attempt*base before the nth retry: base, 2*base, 3*base...
func Linear(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return time.Duration(attempt) * base
	}
}

// Exponential waits base*2^(n-1) before the nth retry: base, 2*base,
// 4*base and so on.
func Exponential(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		return time.Duration(float64(base) * math.Pow(2, float64(attempt-1)))
	}
}

// Fibonacci waits fib(n)*base before the nth retry, fib(1)=fib(2)=1.
func Fibonacci(base time.Duration) Backoff {
	return func(attempt int) time.Duration {
		if attempt <= 0 {
			return 0
		}
		a, b := 1, 1
		for i := 2; i < attempt; i++ {
			a, b = b, a+b
		}
		return time.Duration(b) * base
	}
}

// Capped clamps inner's result to max.
func Capped(inner Backoff, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := inner(attempt)
		if d > max {
			return max
		}
		return d
	}
}

// Jittered uniformly samples a delay in [0, inner(attempt)], spreading
// out retries from many concurrent callers instead of waking them all
// at once.
func Jittered(rng *rand.Rand, inner Backoff) Backoff {
	return func(attempt int) time.Duration {
		d := inner(attempt)
		if d <= 0 {
			return 0
		}
		return time.Duration(rng.Int63n(int64(d) + 1))
	}
}
