package publishers

import (
	"fmt"
	"time"

	"SocialSchedulerAPI/models"
)

type ErrorKind string

const (
	KindAuth             ErrorKind = "auth_error"
	KindRateLimit        ErrorKind = "rate_limit_error"
	KindContentRejected  ErrorKind = "content_rejected_error"
	KindTransientNetwork ErrorKind = "transient_network_error"
)

// Error is the single failure type adapters return. The dispatcher maps
// Kind onto its retry policy; anything that is not an *Error is treated
// as transient.
type Error struct {
	Kind     ErrorKind
	Platform models.Platform
	Message  string
	// RetryAfter carries a platform-provided rate-limit reset hint.
	// Zero when the platform gave none.
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Platform, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *Error) Retryable() bool {
	return e.Kind == KindRateLimit || e.Kind == KindTransientNetwork
}

func newError(kind ErrorKind, platform models.Platform, message string) *Error {
	return &Error{Kind: kind, Platform: platform, Message: message}
}

func wrapError(kind ErrorKind, platform models.Platform, message string, err error) *Error {
	return &Error{Kind: kind, Platform: platform, Message: message, Err: err}
}

// Classify converts any adapter error into an *Error. Non-adapter errors
// (transport failures, context deadlines) count as transient.
func Classify(platform models.Platform, err error) *Error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*Error); ok {
		return perr
	}
	return wrapError(KindTransientNetwork, platform, "request failed", err)
}
