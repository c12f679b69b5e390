// Package executor wraps backend calls with the client's resilience
// policy: a fast offline check, a per-attempt timeout race, exponential
// backoff between retries, and loading-indicator lifecycle. Exhausted
// errors pass through the centralized classifier before reaching the
// caller.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/flowcraft-app/flowcraft-go/appctx"
	"github.com/flowcraft-app/flowcraft-go/config"
	"github.com/flowcraft-app/flowcraft-go/errclass"
	"github.com/flowcraft-app/flowcraft-go/notify"
)

// Result is anything carrying a backend-reported error field. A non-nil
// Err counts as a failed attempt even when the transport succeeded.
type Result interface {
	Err() error
}

// Options tunes a single Execute call. Zero fields fall back to the
// executor defaults.
type Options struct {
	MaxRetries     int
	Timeout        time.Duration
	ShowLoading    bool
	LoadingMessage string
}

// Executor runs operations under the retry/timeout policy.
type Executor struct {
	maxRetries int
	timeout    time.Duration
	baseDelay  time.Duration
	notifier   notify.Notifier
	handler    *errclass.Handler
	status     *Status
}

// New builds an executor. notifier, handler and status may be nil for
// headless defaults.
func New(cfg config.ExecutorConfig, notifier notify.Notifier, handler *errclass.Handler, status *Status) *Executor {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if handler == nil {
		handler = errclass.NewHandler(notifier, nil, nil)
	}
	if status == nil {
		status = NewStatus(notifier)
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 1 {
		maxRetries = 3
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	baseDelay := cfg.BaseDelay()
	if baseDelay <= 0 {
		baseDelay = time.Second
	}
	return &Executor{
		maxRetries: maxRetries,
		timeout:    timeout,
		baseDelay:  baseDelay,
		notifier:   notifier,
		handler:    handler,
		status:     status,
	}
}

// Status exposes the connectivity tracker for the embedding application.
func (e *Executor) Status() *Status {
	return e.status
}

// Execute runs op under the retry/timeout policy and returns its result
// unchanged on success. On exhaustion the last error is classified,
// surfaced to the user, and returned. The loading indicator, when shown,
// is hidden exactly once on every exit path.
func Execute[T Result](ctx context.Context, e *Executor, op func(context.Context) (T, error), opts Options) (T, error) {
	var zero T

	maxRetries := opts.MaxRetries
	if maxRetries < 1 {
		maxRetries = e.maxRetries
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.timeout
	}

	if !e.status.Online() {
		return zero, e.handler.Handle(errclass.ErrOffline)
	}

	var loadingID string
	var hideOnce sync.Once
	hide := func() {
		if loadingID != "" {
			hideOnce.Do(func() { e.notifier.HideLoading(loadingID) })
		}
	}
	if opts.ShowLoading {
		message := opts.LoadingMessage
		if message == "" {
			message = "Processing..."
		}
		loadingID = e.notifier.ShowLoading(message)
	}
	defer hide()

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = e.baseDelay
	expo.RandomizationFactor = 0
	expo.Multiplier = 2
	expo.MaxInterval = e.baseDelay * time.Duration(1<<maxRetries)

	attempt := 0
	result, err := backoff.Retry(ctx, func() (T, error) {
		return runAttempt(ctx, op, timeout)
	},
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(maxRetries)),
		backoff.WithNotify(func(attemptErr error, wait time.Duration) {
			attempt++
			appctx.GetLogger(ctx).Warn("request attempt failed, retrying",
				"attempt", attempt, "max_retries", maxRetries, "wait", wait, "error", attemptErr)
			if loadingID != "" {
				e.notifier.UpdateLoading(loadingID, fmt.Sprintf("Retrying... (%d/%d)", attempt, maxRetries))
			}
		}),
	)
	hide()
	if err != nil {
		return zero, e.handler.Handle(err)
	}
	return result, nil
}

// runAttempt races op against the per-attempt timeout. The attempt
// context is cancelled when the timer fires, but an operation that
// ignores it may keep running server-side past the client-side timeout.
func runAttempt[T Result](ctx context.Context, op func(context.Context) (T, error), timeout time.Duration) (T, error) {
	var zero T

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case o := <-done:
		if o.err != nil {
			return zero, o.err
		}
		if err := o.value.Err(); err != nil {
			return zero, err
		}
		return o.value, nil
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			// Parent cancelled; do not burn remaining retries.
			return zero, backoff.Permanent(ctx.Err())
		}
		return zero, errclass.ErrTimeout
	}
}
