package executor

import (
	"sync"

	"github.com/flowcraft-app/flowcraft-go/notify"
)

// Status tracks whether the client believes it has connectivity. The
// embedding application feeds it transitions, typically from browser
// online/offline events; the executor fails fast while offline.
type Status struct {
	mu       sync.RWMutex
	online   bool
	notifier notify.Notifier
}

// NewStatus creates a tracker that starts online.
func NewStatus(notifier notify.Notifier) *Status {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Status{online: true, notifier: notifier}
}

// SetOnline records a connectivity transition and tells the user.
func (s *Status) SetOnline(online bool) {
	s.mu.Lock()
	changed := s.online != online
	s.online = online
	s.mu.Unlock()

	if !changed {
		return
	}
	if online {
		s.notifier.Notify(notify.LevelSuccess, "Connection restored")
	} else {
		s.notifier.Notify(notify.LevelWarning, "Connection lost. Working offline.")
	}
}

// Online reports the current belief.
func (s *Status) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}
