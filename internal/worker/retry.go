package worker

import (
	"math"
	"time"
)

// RetryPolicy controls how often a failed sheet write is retried and how
// long the worker waits between attempts.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy gives up after five attempts, the last one about
// thirty seconds after the first failure.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:    5,
	InitialDelay:  2 * time.Second,
	MaxDelay:      time.Minute,
	BackoffFactor: 2,
}

// withDefaults fills zero fields from DefaultRetryPolicy.
func (r RetryPolicy) withDefaults() RetryPolicy {
	if r.MaxRetries == 0 {
		r.MaxRetries = DefaultRetryPolicy.MaxRetries
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = DefaultRetryPolicy.BackoffFactor
	}
	return r
}

// Exhausted reports whether the task has used up its attempts.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay is the wait before attempt (1-based), capped at MaxDelay.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	attempt = max(attempt, 1)
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := time.Duration(float64(initial) * math.Pow(factor, float64(attempt-1)))
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		// переполнение на больших attempt
		d = r.MaxDelay
		if d <= 0 {
			d = time.Second
		}
	}
	return d
}
