package services

import (
	"testing"
	"time"
)

func TestRetryPolicyBackoffDoubles(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffBase: 30 * time.Second}

	cases := []struct {
		attempts int
		want     time.Duration
	}{
		{0, 30 * time.Second},
		{1, 60 * time.Second},
		{2, 120 * time.Second},
		{3, 240 * time.Second},
	}
	for _, c := range cases {
		if got := p.Backoff(c.attempts); got != c.want {
			t.Errorf("Backoff(%d) = %v, want %v", c.attempts, got, c.want)
		}
	}
}

func TestRetryPolicyBackoffCapped(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffBase: time.Second}
	if got := p.Backoff(100); got != p.Backoff(16) {
		t.Errorf("expected backoff capped at attempt 16, got %v", got)
	}
	if got := p.Backoff(-1); got != p.BackoffBase {
		t.Errorf("expected negative attempts to use base, got %v", got)
	}
}

func TestRetryPolicyExhausted(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffBase: time.Second}
	if p.Exhausted(2) {
		t.Error("2 attempts should not exhaust 3 retries")
	}
	if !p.Exhausted(3) {
		t.Error("3 attempts should exhaust 3 retries")
	}
}

func TestRetryPolicyNextAttemptHonorsHint(t *testing.T) {
	p := RetryPolicy{MaxRetries: 3, BackoffBase: 30 * time.Second}
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Hint shorter than the floor: floor wins.
	got := p.NextAttempt(now, 1, 10*time.Second)
	if want := now.Add(60 * time.Second); !got.Equal(want) {
		t.Errorf("NextAttempt with short hint = %v, want %v", got, want)
	}

	// Hint longer than the floor: hint wins.
	got = p.NextAttempt(now, 1, 10*time.Minute)
	if want := now.Add(10 * time.Minute); !got.Equal(want) {
		t.Errorf("NextAttempt with long hint = %v, want %v", got, want)
	}
}
