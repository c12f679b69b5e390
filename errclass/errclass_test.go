package errclass

import (
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/flowcraft-app/flowcraft-go/notify"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantReason   string
		wantSeverity Severity
		wantMessage  string
	}{
		{
			name:         "offline sentinel",
			err:          ErrOffline,
			wantReason:   ReasonConnectivity,
			wantSeverity: SeverityWarning,
			wantMessage:  "No internet connection. Please check your network and try again.",
		},
		{
			name:         "timeout sentinel",
			err:          ErrTimeout,
			wantReason:   ReasonTimeout,
			wantSeverity: SeverityWarning,
			wantMessage:  "Request timed out. Please try again.",
		},
		{
			name:         "wrapped sentinel",
			err:          fmt.Errorf("attempt 3: %w", ErrTimeout),
			wantReason:   ReasonTimeout,
			wantSeverity: SeverityWarning,
			wantMessage:  "Request timed out. Please try again.",
		},
		{
			name:         "connection refused",
			err:          errors.New("dial tcp: connection refused"),
			wantReason:   ReasonConnectivity,
			wantSeverity: SeverityWarning,
			wantMessage:  "Connection error. Please check your internet connection.",
		},
		{
			name:         "deadline exceeded",
			err:          errors.New("context deadline exceeded"),
			wantReason:   ReasonTimeout,
			wantSeverity: SeverityWarning,
			wantMessage:  "Request timed out. Please try again.",
		},
		{
			name:         "jwt expiry",
			err:          errors.New("JWT expired"),
			wantReason:   ReasonAuthExpired,
			wantSeverity: SeverityWarning,
			wantMessage:  "Session expired. Please log in again.",
		},
		{
			name:         "row level security",
			err:          errors.New("new row violates row-level security policy"),
			wantReason:   ReasonBackend,
			wantSeverity: SeverityError,
			wantMessage:  "Database error. Please try again later.",
		},
		{
			name:         "validation passthrough",
			err:          errors.New("Email is required"),
			wantReason:   ReasonValidation,
			wantSeverity: SeverityValidation,
			wantMessage:  "Email is required",
		},
		{
			name:         "unknown",
			err:          errors.New("something odd happened"),
			wantReason:   ReasonUnknown,
			wantSeverity: SeverityError,
			wantMessage:  "something odd happened",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ce := Classify(tc.err)
			if ce.Reason != tc.wantReason {
				t.Errorf("Reason = %q, want %q", ce.Reason, tc.wantReason)
			}
			if ce.Severity != tc.wantSeverity {
				t.Errorf("Severity = %q, want %q", ce.Severity, tc.wantSeverity)
			}
			if ce.UserMessage != tc.wantMessage {
				t.Errorf("UserMessage = %q, want %q", ce.UserMessage, tc.wantMessage)
			}
			if !errors.Is(ce, tc.err) {
				t.Error("classified error should wrap its cause")
			}
		})
	}
}

func TestClassifyNil(t *testing.T) {
	if ce := Classify(nil); ce != nil {
		t.Fatalf("Classify(nil) = %v, want nil", ce)
	}
}

func TestClassifyPassesThroughClassified(t *testing.T) {
	original := &ClassifiedError{Reason: ReasonEmail, UserMessage: "m", Severity: SeverityWarning}
	wrapped := fmt.Errorf("outer: %w", original)
	if got := Classify(wrapped); got != original {
		t.Fatalf("Classify should return the inner classified error unchanged")
	}
}

// recorder captures notifications for handler tests.
type recorder struct {
	levels   []notify.Level
	messages []string
}

func (r *recorder) Notify(level notify.Level, message string) {
	r.levels = append(r.levels, level)
	r.messages = append(r.messages, message)
}
func (r *recorder) ShowLoading(string) string    { return "id" }
func (r *recorder) UpdateLoading(string, string) {}
func (r *recorder) HideLoading(string)           {}

func TestHandlerNotifiesAndRedirects(t *testing.T) {
	rec := &recorder{}
	redirected := false
	h := NewHandler(rec, func() { redirected = true }, slog.Default())

	ce := h.Handle(errors.New("JWT expired"))
	if ce.Reason != ReasonAuthExpired {
		t.Fatalf("Reason = %q", ce.Reason)
	}
	if !redirected {
		t.Fatal("auth expiry should trigger the redirect")
	}
	if len(rec.messages) != 1 || rec.messages[0] != "Session expired. Please log in again." {
		t.Fatalf("notifications = %v", rec.messages)
	}

	redirected = false
	h.Handle(errors.New("something odd"))
	if redirected {
		t.Fatal("non-auth errors must not redirect")
	}
}

func TestHandlerNilError(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	if ce := h.Handle(nil); ce != nil {
		t.Fatalf("Handle(nil) = %v", ce)
	}
}
