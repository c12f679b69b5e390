package auth

import (
	"sync"
	"time"
)

// IdleTimer tracks wall-clock inactivity independent of in-flight
// requests. Touch resets the clock; a warning callback fires at
// timeout-warning and an expiry callback at timeout.
type IdleTimer struct {
	mu       sync.Mutex
	timeout  time.Duration
	warning  time.Duration
	onWarn   func()
	onExpire func()

	timer     *time.Timer
	warnTimer *time.Timer
	stopped   bool
}

// NewIdleTimer starts the timer. warning must be shorter than timeout;
// onWarn/onExpire may be nil.
func NewIdleTimer(timeout, warning time.Duration, onWarn, onExpire func()) *IdleTimer {
	t := &IdleTimer{
		timeout:  timeout,
		warning:  warning,
		onWarn:   onWarn,
		onExpire: onExpire,
	}
	t.Touch()
	return t
}

// Touch records user activity and restarts both timers.
func (t *IdleTimer) Touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return
	}

	if t.timer != nil {
		t.timer.Stop()
	}
	if t.warnTimer != nil {
		t.warnTimer.Stop()
	}

	if t.onWarn != nil && t.warning > 0 && t.warning < t.timeout {
		t.warnTimer = time.AfterFunc(t.timeout-t.warning, t.onWarn)
	}
	if t.onExpire != nil {
		t.timer = time.AfterFunc(t.timeout, t.onExpire)
	}
}

// Stop cancels the timers; the IdleTimer cannot be reused afterwards.
func (t *IdleTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	if t.warnTimer != nil {
		t.warnTimer.Stop()
	}
}
