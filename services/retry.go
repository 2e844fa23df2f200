package services

import "time"

// RetryPolicy is a dispatcher-level invariant, not a per-request option:
// every post gets the same retry guarantees regardless of which caller
// scheduled it.
type RetryPolicy struct {
	// MaxRetries bounds publish attempts per platform.
	MaxRetries int
	// BackoffBase is the floor before the first retry; each subsequent
	// retry doubles it.
	BackoffBase time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 30 * time.Second,
	}
}

// Exhausted reports whether a platform that has made `attempts` attempts is
// out of retries.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts >= p.MaxRetries
}

// Backoff returns the minimum wait after `attempts` attempts, i.e.
// base * 2^attempts.
func (p RetryPolicy) Backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 16 {
		attempts = 16
	}
	return p.BackoffBase * time.Duration(1<<uint(attempts))
}

// NextAttempt computes the earliest time the next attempt may run. A
// platform-provided rate-limit hint extends the floor when it is longer.
func (p RetryPolicy) NextAttempt(now time.Time, attempts int, hint time.Duration) time.Time {
	wait := p.Backoff(attempts)
	if hint > wait {
		wait = hint
	}
	return now.Add(wait)
}
