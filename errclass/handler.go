package errclass

import (
	"log/slog"

	"github.com/flowcraft-app/flowcraft-go/notify"
)

// Handler is the centralized sink for exhausted request errors: it
// classifies, notifies the user, and schedules a login redirect on
// authentication expiry.
type Handler struct {
	notifier notify.Notifier
	redirect func()
	logger   *slog.Logger
}

// NewHandler builds a handler. redirect fires on auth-expiry errors and
// may be nil; notifier may be nil for headless use.
func NewHandler(notifier notify.Notifier, redirect func(), logger *slog.Logger) *Handler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{notifier: notifier, redirect: redirect, logger: logger}
}

// Handle classifies err, surfaces it to the user, and returns the
// classified error for the caller to propagate.
func (h *Handler) Handle(err error) *ClassifiedError {
	ce := Classify(err)
	if ce == nil {
		return nil
	}

	h.logger.Error("request failed", "reason", ce.Reason, "error", err)
	h.notifier.Notify(notify.Level(ce.Severity), ce.UserMessage)

	if ce.Reason == ReasonAuthExpired && h.redirect != nil {
		h.redirect()
	}
	return ce
}
