package executor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/flowcraft-app/flowcraft-go/config"
	"github.com/flowcraft-app/flowcraft-go/errclass"
	"github.com/flowcraft-app/flowcraft-go/notify"
)

// fakeResult is the minimal Result carrier for executor tests.
type fakeResult struct {
	value string
	err   error
}

func (r *fakeResult) Err() error { return r.err }

// recorder captures the notifier traffic of one Execute call.
type recorder struct {
	mu      sync.Mutex
	notices []string
	loading []string
	updates []string
	hides   int
	showing int
}

func (r *recorder) Notify(_ notify.Level, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

func (r *recorder) ShowLoading(message string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.showing++
	r.loading = append(r.loading, message)
	return "loading-1"
}

func (r *recorder) UpdateLoading(_, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, message)
}

func (r *recorder) HideLoading(string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hides++
}

func newTestExecutor(rec *recorder) *Executor {
	cfg := config.ExecutorConfig{MaxRetries: 3, TimeoutMS: 200, BaseDelayMS: 1}
	return New(cfg, rec, nil, nil)
}

func TestExecuteSuccessPassesResultThrough(t *testing.T) {
	rec := &recorder{}
	e := newTestExecutor(rec)

	got, err := Execute(context.Background(), e, func(context.Context) (*fakeResult, error) {
		return &fakeResult{value: "ok"}, nil
	}, Options{ShowLoading: true, LoadingMessage: "Loading..."})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got.value != "ok" {
		t.Fatalf("value = %q", got.value)
	}
	if rec.loading[0] != "Loading..." {
		t.Fatalf("loading message = %q", rec.loading[0])
	}
	if rec.hides != 1 {
		t.Fatalf("HideLoading called %d times, want exactly once", rec.hides)
	}
}

func TestExecuteRetriesTransientFailures(t *testing.T) {
	rec := &recorder{}
	e := newTestExecutor(rec)

	calls := 0
	got, err := Execute(context.Background(), e, func(context.Context) (*fakeResult, error) {
		calls++
		if calls < 3 {
			return nil, errors.New("connection refused")
		}
		return &fakeResult{value: "eventually"}, nil
	}, Options{ShowLoading: true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if calls != 3 {
		t.Fatalf("op called %d times, want 3", calls)
	}
	if got.value != "eventually" {
		t.Fatalf("value = %q", got.value)
	}
	if len(rec.updates) != 2 {
		t.Fatalf("retry updates = %v, want 2", rec.updates)
	}
	if rec.updates[0] != "Retrying... (1/3)" || rec.updates[1] != "Retrying... (2/3)" {
		t.Fatalf("retry updates = %v", rec.updates)
	}
}

func TestExecuteBackendErrorCountsAsFailure(t *testing.T) {
	rec := &recorder{}
	e := newTestExecutor(rec)

	calls := 0
	_, err := Execute(context.Background(), e, func(context.Context) (*fakeResult, error) {
		calls++
		return &fakeResult{err: errors.New("Database error")}, nil
	}, Options{})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 {
		t.Fatalf("op called %d times, want 3", calls)
	}

	var ce *errclass.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not classified", err)
	}
	if ce.Reason != errclass.ReasonBackend {
		t.Fatalf("Reason = %q, want backend", ce.Reason)
	}
}

func TestExecuteTimesOutSlowAttempts(t *testing.T) {
	rec := &recorder{}
	cfg := config.ExecutorConfig{MaxRetries: 2, TimeoutMS: 20, BaseDelayMS: 1}
	e := New(cfg, rec, nil, nil)

	calls := 0
	_, err := Execute(context.Background(), e, func(ctx context.Context) (*fakeResult, error) {
		calls++
		select {
		case <-time.After(time.Second):
			return &fakeResult{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}, Options{})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if calls != 2 {
		t.Fatalf("op called %d times, want 2", calls)
	}

	var ce *errclass.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not classified", err)
	}
	if ce.Reason != errclass.ReasonTimeout {
		t.Fatalf("Reason = %q, want timeout", ce.Reason)
	}
}

func TestExecuteFailsFastWhenOffline(t *testing.T) {
	rec := &recorder{}
	e := newTestExecutor(rec)
	e.Status().SetOnline(false)

	called := false
	_, err := Execute(context.Background(), e, func(context.Context) (*fakeResult, error) {
		called = true
		return &fakeResult{}, nil
	}, Options{ShowLoading: true})
	if err == nil {
		t.Fatal("expected offline error")
	}
	if called {
		t.Fatal("op must not run while offline")
	}
	if rec.showing != 0 {
		t.Fatal("loading indicator must not show for the offline fast-fail")
	}

	var ce *errclass.ClassifiedError
	if !errors.As(err, &ce) {
		t.Fatalf("error %T is not classified", err)
	}
	if ce.Reason != errclass.ReasonConnectivity {
		t.Fatalf("Reason = %q, want connectivity", ce.Reason)
	}
}

func TestExecuteStopsOnParentCancel(t *testing.T) {
	rec := &recorder{}
	cfg := config.ExecutorConfig{MaxRetries: 5, TimeoutMS: 5000, BaseDelayMS: 1}
	e := New(cfg, rec, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Execute(ctx, e, func(ctx context.Context) (*fakeResult, error) {
			calls++
			<-ctx.Done()
			return nil, ctx.Err()
		}, Options{})
		if err == nil {
			panic("expected cancellation error")
		}
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Execute did not return after parent cancel")
	}
	if calls != 1 {
		t.Fatalf("op called %d times after cancel, want 1", calls)
	}
}

func TestStatusTransitionsNotify(t *testing.T) {
	rec := &recorder{}
	s := NewStatus(rec)

	s.SetOnline(true) // no-op, already online
	if len(rec.notices) != 0 {
		t.Fatalf("unexpected notices %v", rec.notices)
	}

	s.SetOnline(false)
	s.SetOnline(false) // repeated, still one notice
	s.SetOnline(true)

	if len(rec.notices) != 2 {
		t.Fatalf("notices = %v, want two transitions", rec.notices)
	}
	if !strings.Contains(rec.notices[0], "Connection lost") {
		t.Fatalf("offline notice = %q", rec.notices[0])
	}
	if !strings.Contains(rec.notices[1], "Connection restored") {
		t.Fatalf("online notice = %q", rec.notices[1])
	}
}
