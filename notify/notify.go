// Package notify defines the capability interface the core logic uses for
// transient user feedback. The browser front-end renders banners and
// spinners behind this seam; headless consumers plug in the slog-backed
// or no-op implementations.
package notify

import (
	"log/slog"

	"github.com/google/uuid"
)

// Level mirrors the notification styles the front-end knows how to render.
type Level string

const (
	LevelSuccess    Level = "success"
	LevelError      Level = "error"
	LevelWarning    Level = "warning"
	LevelInfo       Level = "info"
	LevelValidation Level = "validation"
)

// Notifier delivers transient messages and manages loading indicators.
// ShowLoading returns an indicator id; every shown indicator must be
// hidden exactly once.
type Notifier interface {
	Notify(level Level, message string)
	ShowLoading(message string) string
	UpdateLoading(id, message string)
	HideLoading(id string)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Notify(Level, string)         {}
func (Nop) ShowLoading(string) string    { return "" }
func (Nop) UpdateLoading(string, string) {}
func (Nop) HideLoading(string)           {}

// Log writes notifications and loading transitions to a slog.Logger.
type Log struct {
	Logger *slog.Logger
}

// NewLog creates a slog-backed notifier. A nil logger uses slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{Logger: logger}
}

func (l *Log) Notify(level Level, message string) {
	switch level {
	case LevelError:
		l.Logger.Error(message, "kind", "notification")
	case LevelWarning, LevelValidation:
		l.Logger.Warn(message, "kind", "notification")
	default:
		l.Logger.Info(message, "kind", "notification")
	}
}

func (l *Log) ShowLoading(message string) string {
	id := "loading-" + uuid.New().String()
	l.Logger.Debug("loading shown", "id", id, "message", message)
	return id
}

func (l *Log) UpdateLoading(id, message string) {
	l.Logger.Debug("loading updated", "id", id, "message", message)
}

func (l *Log) HideLoading(id string) {
	l.Logger.Debug("loading hidden", "id", id)
}
