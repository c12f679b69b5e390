package process

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flowcraft-app/flowcraft-go/auth"
	"github.com/flowcraft-app/flowcraft-go/backend"
	"github.com/flowcraft-app/flowcraft-go/backend/backendtest"
	"github.com/flowcraft-app/flowcraft-go/config"
	"github.com/flowcraft-app/flowcraft-go/executor"
	"github.com/flowcraft-app/flowcraft-go/notify"
)

func newTestService(t *testing.T) (*Service, *backendtest.Server) {
	t.Helper()

	fake := backendtest.NewServer()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	session := auth.NewSession()
	session.SetAuthenticated(auth.User{ID: "user-1", Email: "dev@example.com"}, "jwt")

	client := backend.New(config.BackendConfig{URL: srv.URL, AnonKey: "anon"}, nil, session)
	exec := executor.New(config.ExecutorConfig{MaxRetries: 2, TimeoutMS: 2000, BaseDelayMS: 1}, notify.Nop{}, nil, nil)
	return NewService(client, exec, session, nil), fake
}

func seedProcess(fake *backendtest.Server, rows ...backendtest.Row) {
	fake.CreateTable("processes", rows...)
	fake.CreateTable("process_status_history")
}

func TestMarkCompleted(t *testing.T) {
	svc, fake := newTestService(t)
	seedProcess(fake, backendtest.Row{
		"id": "p1", "sheet_id": "s1", "short_name": "Close books", "status": "PENDING",
	})

	p, err := svc.MarkCompleted(context.Background(), "p1", "done early", false)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if p.Status != StatusCompletedOnTime {
		t.Fatalf("Status = %q", p.Status)
	}
	if p.CompletionNote != "done early" {
		t.Fatalf("CompletionNote = %q", p.CompletionNote)
	}
	if p.CompletedAt == "" {
		t.Fatal("CompletedAt not set")
	}

	// The transition is audited.
	history := fake.Rows("process_status_history")
	if len(history) != 1 {
		t.Fatalf("history rows = %d", len(history))
	}
	if history[0]["new_status"] != StatusCompletedOnTime || history[0]["changed_by"] != "user-1" {
		t.Fatalf("history = %v", history[0])
	}
}

func TestMarkCompletedLate(t *testing.T) {
	svc, fake := newTestService(t)
	seedProcess(fake, backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING"})

	p, err := svc.MarkCompleted(context.Background(), "p1", "", true)
	if err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if p.Status != StatusCompletedLate {
		t.Fatalf("Status = %q", p.Status)
	}
}

func TestMarkDelayed(t *testing.T) {
	svc, fake := newTestService(t)
	seedProcess(fake, backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING"})

	p, err := svc.MarkDelayed(context.Background(), "p1", "waiting on vendor")
	if err != nil {
		t.Fatalf("MarkDelayed: %v", err)
	}
	if p.Status != StatusDelayed {
		t.Fatalf("Status = %q", p.Status)
	}
	if p.CompletionNote != "waiting on vendor" {
		t.Fatalf("CompletionNote = %q", p.CompletionNote)
	}
}

func TestAuditFailureDoesNotFailTransition(t *testing.T) {
	svc, fake := newTestService(t)
	// No process_status_history table: the audit insert fails quietly.
	fake.CreateTable("processes", backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING"})

	if _, err := svc.MarkCompleted(context.Background(), "p1", "", false); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, fake := newTestService(t)
	fake.CreateTable("process_status_history",
		backendtest.Row{"id": "h1", "process_id": "p1", "old_status": "PENDING", "new_status": "DELAYED_WITH_REASON",
			"created_at": "2026-08-01T10:00:00Z"},
		backendtest.Row{"id": "h2", "process_id": "p1", "old_status": "DELAYED_WITH_REASON", "new_status": "COMPLETED_LATE",
			"created_at": "2026-08-02T10:00:00Z"},
		backendtest.Row{"id": "h3", "process_id": "other", "old_status": "PENDING", "new_status": "OVERDUE",
			"created_at": "2026-08-03T10:00:00Z"},
	)

	out, err := svc.History(context.Background(), "p1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("History = %d rows", len(out))
	}
	if out[0].ID != "h2" || out[1].ID != "h1" {
		t.Fatalf("History order = %s, %s", out[0].ID, out[1].ID)
	}
}

func TestHistoryDegradesOnMissingTable(t *testing.T) {
	svc, _ := newTestService(t)
	out, err := svc.History(context.Background(), "p1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("History = %v", out)
	}
}

func TestMarkOverdueSweep(t *testing.T) {
	svc, fake := newTestService(t)
	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	seedProcess(fake,
		backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING", "due_date": yesterday},
		backendtest.Row{"id": "p2", "sheet_id": "s1", "status": "PENDING", "due_date": tomorrow},
		backendtest.Row{"id": "p3", "sheet_id": "s1", "status": "COMPLETED_ON_TIME", "due_date": yesterday},
		backendtest.Row{"id": "p4", "sheet_id": "s1", "status": "PENDING", "due_date": today},
	)

	n, err := svc.MarkOverdue(context.Background(), "s1")
	if err != nil {
		t.Fatalf("MarkOverdue: %v", err)
	}
	if n != 1 {
		t.Fatalf("MarkOverdue = %d, want 1", n)
	}
	for _, row := range fake.Rows("processes") {
		switch row["id"] {
		case "p1":
			if row["status"] != StatusOverdue {
				t.Errorf("p1 status = %v", row["status"])
			}
		case "p2", "p4":
			if row["status"] != StatusPending {
				t.Errorf("%s status = %v", row["id"], row["status"])
			}
		case "p3":
			if row["status"] != StatusCompletedOnTime {
				t.Errorf("p3 status = %v", row["status"])
			}
		}
	}
}

func TestByStatusAndAssign(t *testing.T) {
	svc, fake := newTestService(t)
	seedProcess(fake,
		backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING", "due_date": "2026-08-10"},
		backendtest.Row{"id": "p2", "sheet_id": "s1", "status": "OVERDUE", "due_date": "2026-08-01"},
	)

	out, err := svc.ByStatus(context.Background(), "s1", StatusPending)
	if err != nil {
		t.Fatalf("ByStatus: %v", err)
	}
	if len(out) != 1 || out[0].ID != "p1" {
		t.Fatalf("ByStatus = %+v", out)
	}

	if err := svc.Assign(context.Background(), "p1", "user-9"); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	for _, row := range fake.Rows("processes") {
		if row["id"] == "p1" && row["assigned_to"] != "user-9" {
			t.Fatalf("assigned_to = %v", row["assigned_to"])
		}
	}
}

func TestForCalendar(t *testing.T) {
	svc, fake := newTestService(t)
	seedProcess(fake,
		backendtest.Row{"id": "p1", "sheet_id": "s1", "status": "PENDING", "due_date": "2026-08-15"},
		backendtest.Row{"id": "p2", "sheet_id": "s1", "status": "PENDING", "due_date": "2026-09-01"},
		backendtest.Row{"id": "p3", "sheet_id": "s1", "status": "PENDING", "due_date": "2026-07-31"},
	)

	out, err := svc.ForCalendar(context.Background(), "s1", 2026, 8)
	if err != nil {
		t.Fatalf("ForCalendar: %v", err)
	}
	if len(out) != 1 || out[0].ID != "p1" {
		t.Fatalf("ForCalendar = %+v", out)
	}
}

func TestExecutionsForMonthLooseDecode(t *testing.T) {
	svc, fake := newTestService(t)
	fake.HandleRPC("get_process_executions_for_month", func(params map[string]any) (any, error) {
		if params["p_sheet_id"] != "s1" {
			return nil, fmt.Errorf("unexpected sheet %v", params["p_sheet_id"])
		}
		// Years as strings: the procedure's JSON is loosely typed.
		return []map[string]any{
			{"process_id": "p1", "year": "2026", "month": 8, "execution_status": "PENDING"},
			{"process_id": "p2", "year": 2026, "month": "8", "execution_status": "COMPLETED_ON_TIME"},
		}, nil
	})

	out, err := svc.ExecutionsForMonth(context.Background(), "s1", 2026, 8)
	if err != nil {
		t.Fatalf("ExecutionsForMonth: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("executions = %d", len(out))
	}
	if out[0].Year != 2026 || out[1].Month != 8 {
		t.Fatalf("loose decode failed: %+v", out)
	}
}

func TestMarkExecutionCompletedSendsCurrentMonth(t *testing.T) {
	svc, fake := newTestService(t)
	var got map[string]any
	fake.HandleRPC("update_process_execution_status", func(params map[string]any) (any, error) {
		got = params
		return "ok", nil
	})

	fixed := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return fixed }

	if err := svc.MarkExecutionCompleted(context.Background(), "p1", "done", true); err != nil {
		t.Fatalf("MarkExecutionCompleted: %v", err)
	}
	if got["p_process_id"] != "p1" || got["p_status"] != StatusCompletedLate {
		t.Fatalf("params = %v", got)
	}
	if got["p_year"] != float64(2026) || got["p_month"] != float64(3) {
		t.Fatalf("month params = %v", got)
	}
	if got["p_completed_by"] != "user-1" {
		t.Fatalf("p_completed_by = %v", got["p_completed_by"])
	}
	if got["p_completion_note"] != "done" {
		t.Fatalf("p_completion_note = %v", got["p_completion_note"])
	}
}

func TestUpdateExecutionStatusReachesPriorMonth(t *testing.T) {
	svc, fake := newTestService(t)
	var got map[string]any
	fake.HandleRPC("update_process_execution_status", func(params map[string]any) (any, error) {
		got = params
		return "ok", nil
	})

	err := svc.UpdateExecutionStatus(context.Background(), "p1", 2025, 11, StatusDelayed, "audit backlog")
	if err != nil {
		t.Fatalf("UpdateExecutionStatus: %v", err)
	}
	if got["p_year"] != float64(2025) || got["p_month"] != float64(11) {
		t.Fatalf("month params = %v", got)
	}
	if got["p_status"] != StatusDelayed || got["p_completion_note"] != "audit backlog" {
		t.Fatalf("params = %v", got)
	}
	if got["p_completed_by"] != "user-1" {
		t.Fatalf("p_completed_by = %v", got["p_completed_by"])
	}
}

func TestExecutionHistoryNewestMonthFirst(t *testing.T) {
	svc, fake := newTestService(t)
	fake.CreateTable("process_executions",
		backendtest.Row{"process_id": "p1", "year": 2025, "month": 12, "execution_status": "COMPLETED_LATE"},
		backendtest.Row{"process_id": "p1", "year": 2026, "month": 2, "execution_status": "PENDING"},
		backendtest.Row{"process_id": "p1", "year": 2026, "month": 1, "execution_status": "COMPLETED_ON_TIME"},
		backendtest.Row{"process_id": "other", "year": 2026, "month": 2, "execution_status": "PENDING"},
	)

	out, err := svc.ExecutionHistory(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ExecutionHistory: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("ExecutionHistory = %d rows", len(out))
	}
	want := [][2]int{{2026, 2}, {2026, 1}, {2025, 12}}
	for i, w := range want {
		if out[i].Year != w[0] || out[i].Month != w[1] {
			t.Fatalf("row %d = %d-%d, want %d-%d", i, out[i].Year, out[i].Month, w[0], w[1])
		}
	}
}

func TestExecutionHistoryDegradesOnMissingTable(t *testing.T) {
	svc, _ := newTestService(t)
	out, err := svc.ExecutionHistory(context.Background(), "p1")
	if err != nil {
		t.Fatalf("ExecutionHistory: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("ExecutionHistory = %v", out)
	}
}

func TestResetExecution(t *testing.T) {
	svc, fake := newTestService(t)
	var got map[string]any
	fake.HandleRPC("update_process_execution_status", func(params map[string]any) (any, error) {
		got = params
		return "ok", nil
	})

	if err := svc.ResetExecution(context.Background(), "p1"); err != nil {
		t.Fatalf("ResetExecution: %v", err)
	}
	if got["p_status"] != StatusPending {
		t.Fatalf("p_status = %v", got["p_status"])
	}
}

func TestStatsForMonth(t *testing.T) {
	svc, fake := newTestService(t)
	fake.HandleRPC("get_process_executions_for_month", func(map[string]any) (any, error) {
		return []map[string]any{
			{"process_id": "p1", "execution_status": "PENDING"},
			{"process_id": "p2", "execution_status": "COMPLETED_ON_TIME"},
			{"process_id": "p3", "execution_status": "COMPLETED_LATE"},
			{"process_id": "p4", "execution_status": "DELAYED_WITH_REASON"},
			{"process_id": "p5", "execution_status": "OVERDUE"},
		}, nil
	})

	stats, err := svc.StatsForMonth(context.Background(), "s1", 2026, 8)
	if err != nil {
		t.Fatalf("StatsForMonth: %v", err)
	}
	want := MonthlyStats{Total: 5, Pending: 1, Completed: 2, Delayed: 1, Overdue: 1}
	if *stats != want {
		t.Fatalf("stats = %+v, want %+v", *stats, want)
	}
}

func TestDashboardStatsAggregatesSheets(t *testing.T) {
	svc, fake := newTestService(t)
	fake.CreateTable("process_sheets",
		backendtest.Row{"id": "s1", "project_id": "proj-1"},
		backendtest.Row{"id": "s2", "project_id": "proj-1"},
		backendtest.Row{"id": "s3", "project_id": "other"},
	)
	fake.HandleRPC("get_process_executions_for_month", func(params map[string]any) (any, error) {
		switch params["p_sheet_id"] {
		case "s1":
			return []map[string]any{
				{"process_id": "a", "execution_status": "PENDING"},
				{"process_id": "b", "execution_status": "COMPLETED_ON_TIME"},
			}, nil
		case "s2":
			return []map[string]any{
				{"process_id": "c", "execution_status": "OVERDUE"},
			}, nil
		}
		return nil, fmt.Errorf("unexpected sheet %v", params["p_sheet_id"])
	})

	stats, err := svc.DashboardStats(context.Background(), "proj-1", 2026, 8)
	if err != nil {
		t.Fatalf("DashboardStats: %v", err)
	}
	want := MonthlyStats{Total: 3, Pending: 1, Completed: 1, Overdue: 1}
	if *stats != want {
		t.Fatalf("stats = %+v, want %+v", *stats, want)
	}
}
