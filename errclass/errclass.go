// Package errclass classifies failures from backend calls into stable
// reason codes with user-facing messages. The executor routes every
// exhausted request through here; auth-expiry errors additionally trigger
// a redirect-to-login side effect.
package errclass

import (
	"errors"
	"fmt"
	"strings"
)

// Reason codes for classified failures.
const (
	ReasonConnectivity = "connectivity"
	ReasonTimeout      = "timeout"
	ReasonAuthExpired  = "auth_expired"
	ReasonBackend      = "backend"
	ReasonValidation   = "validation"
	ReasonEmail        = "email"
	ReasonUnknown      = "unknown"
)

// Severity drives how the notification layer renders the message.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeverityValidation Severity = "validation"
)

// Sentinel errors produced by the executor. Keeping them here lets the
// classifier match on identity instead of message text.
var (
	ErrOffline = errors.New("no internet connection, check your network and try again")
	ErrTimeout = errors.New("request timeout")
)

// ClassifiedError wraps an error with a reason code and a user-facing
// message.
type ClassifiedError struct {
	Reason      string
	UserMessage string
	Severity    Severity
	Cause       error
}

func (e *ClassifiedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.UserMessage)
}

func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// Classify maps an error onto a reason code and user message. Already
// classified errors pass through unchanged.
func Classify(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce
	}

	switch {
	case errors.Is(err, ErrOffline):
		return &ClassifiedError{
			Reason:      ReasonConnectivity,
			UserMessage: "No internet connection. Please check your network and try again.",
			Severity:    SeverityWarning,
			Cause:       err,
		}
	case errors.Is(err, ErrTimeout):
		return &ClassifiedError{
			Reason:      ReasonTimeout,
			UserMessage: "Request timed out. Please try again.",
			Severity:    SeverityWarning,
			Cause:       err,
		}
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "fetch", "connection refused", "no such host", "network"):
		return &ClassifiedError{
			Reason:      ReasonConnectivity,
			UserMessage: "Connection error. Please check your internet connection.",
			Severity:    SeverityWarning,
			Cause:       err,
		}
	case containsAny(msg, "timeout", "deadline exceeded"):
		return &ClassifiedError{
			Reason:      ReasonTimeout,
			UserMessage: "Request timed out. Please try again.",
			Severity:    SeverityWarning,
			Cause:       err,
		}
	case containsAny(msg, "JWT", "token expired"):
		return &ClassifiedError{
			Reason:      ReasonAuthExpired,
			UserMessage: "Session expired. Please log in again.",
			Severity:    SeverityWarning,
			Cause:       err,
		}
	case containsAny(msg, "Database", "row-level security", "constraint"):
		return &ClassifiedError{
			Reason:      ReasonBackend,
			UserMessage: "Database error. Please try again later.",
			Severity:    SeverityError,
			Cause:       err,
		}
	case containsAny(msg, "required", "invalid", "must "):
		return &ClassifiedError{
			Reason:      ReasonValidation,
			UserMessage: msg,
			Severity:    SeverityValidation,
			Cause:       err,
		}
	default:
		userMsg := msg
		if userMsg == "" {
			userMsg = "An unexpected error occurred. Please try again."
		}
		return &ClassifiedError{
			Reason:      ReasonUnknown,
			UserMessage: userMsg,
			Severity:    SeverityError,
			Cause:       err,
		}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
