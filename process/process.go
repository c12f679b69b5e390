// Package process tracks recurring work items on process sheets. A
// process row carries its template (assignee, working day, due time);
// per-month completion state lives in execution rows managed through
// server-side procedures so a month can be closed without rewriting the
// template.
package process

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowcraft-app/flowcraft-go/auth"
	"github.com/flowcraft-app/flowcraft-go/backend"
	"github.com/flowcraft-app/flowcraft-go/calendar"
	"github.com/flowcraft-app/flowcraft-go/executor"
)

// Process statuses. OVERDUE is derived, never set by hand: the bulk sweep
// in MarkOverdue owns the transition.
const (
	StatusPending         = "PENDING"
	StatusCompletedOnTime = "COMPLETED_ON_TIME"
	StatusCompletedLate   = "COMPLETED_LATE"
	StatusDelayed         = "DELAYED_WITH_REASON"
	StatusOverdue         = "OVERDUE"
)

// Process is one recurring work item.
type Process struct {
	ID             string `json:"id,omitempty"`
	SheetID        string `json:"sheet_id"`
	ShortName      string `json:"short_name"`
	Description    string `json:"description,omitempty"`
	AssignedTo     string `json:"assigned_to,omitempty"`
	WorkingDay     *int   `json:"working_day,omitempty"`
	DueDate        string `json:"due_date,omitempty"`
	DueTime        string `json:"due_time,omitempty"`
	Status         string `json:"status"`
	CompletedAt    string `json:"completed_at,omitempty"`
	CompletionNote string `json:"completion_note,omitempty"`
}

// StatusChange is one audit row for a process.
type StatusChange struct {
	ID        string `json:"id,omitempty"`
	ProcessID string `json:"process_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	Note      string `json:"note,omitempty"`
	ChangedBy string `json:"changed_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Execution is one process's state for one month, as returned by the
// get_process_executions_for_month procedure.
type Execution struct {
	ProcessID      string `json:"process_id"`
	Year           int    `json:"year"`
	Month          int    `json:"month"`
	Status         string `json:"execution_status"`
	CompletionNote string `json:"completion_note"`
	CompletedBy    string `json:"completed_by"`
	CompletedAt    string `json:"completed_at"`
}

// MonthlyStats counts a sheet's executions by status for one month.
type MonthlyStats struct {
	Total     int
	Pending   int
	Completed int
	Delayed   int
	Overdue   int
}

// Service exposes the process operations.
type Service struct {
	backend *backend.Client
	exec    *executor.Executor
	session *auth.Session
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires a process service.
func NewService(b *backend.Client, exec *executor.Executor, session *auth.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, exec: exec, session: session, logger: logger, now: time.Now}
}

// MarkCompleted closes a process. late selects COMPLETED_LATE over
// COMPLETED_ON_TIME; the distinction is the caller's because only the UI
// knows whether the due moment had passed when the user acted.
func (s *Service) MarkCompleted(ctx context.Context, processID, note string, late bool) (*Process, error) {
	status := StatusCompletedOnTime
	if late {
		status = StatusCompletedLate
	}
	return s.transition(ctx, processID, status, note, "Marking as completed...")
}

// MarkDelayed records that a process is intentionally late, with a reason.
func (s *Service) MarkDelayed(ctx context.Context, processID, reason string) (*Process, error) {
	return s.transition(ctx, processID, StatusDelayed, reason, "Marking as delayed...")
}

func (s *Service) transition(ctx context.Context, processID, status, note, loadingMsg string) (*Process, error) {
	changes := map[string]any{
		"status":          status,
		"completed_at":    s.now().UTC().Format(time.RFC3339),
		"completion_note": note,
	}
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Update(changes).Eq("id", processID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: loadingMsg})
	if err != nil {
		return nil, err
	}

	var rows []Process
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	var updated *Process
	if len(rows) > 0 {
		updated = &rows[0]
	}

	s.LogStatusChange(ctx, processID, StatusPending, status, note)
	return updated, nil
}

// LogStatusChange appends an audit row. Audit failures are logged and
// swallowed: the transition itself already happened.
func (s *Service) LogStatusChange(ctx context.Context, processID, oldStatus, newStatus, note string) {
	change := StatusChange{
		ProcessID: processID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
		Note:      note,
	}
	if user, err := s.session.CurrentUser(ctx); err == nil {
		change.ChangedBy = user.ID
	}
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("process_status_history").Insert(change).Do(ctx)
	}, executor.Options{})
	if err != nil {
		s.logger.Warn("could not record status change", "process_id", processID, "error", err)
	}
}

// History returns a process's audit trail, newest first.
func (s *Service) History(ctx context.Context, processID string) ([]StatusChange, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("process_status_history").Select("*").
			Eq("process_id", processID).Order("created_at", false).Do(ctx)
	}, executor.Options{})
	if err != nil {
		if backend.IsMissingRelation(err) {
			return []StatusChange{}, nil
		}
		return nil, err
	}
	var rows []StatusChange
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// MarkOverdue sweeps a sheet's PENDING processes whose due date has passed
// into OVERDUE and returns how many rows moved.
func (s *Service) MarkOverdue(ctx context.Context, sheetID string) (int, error) {
	today := s.now().UTC().Format("2006-01-02")
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Update(map[string]any{"status": StatusOverdue}).
			Eq("sheet_id", sheetID).Eq("status", StatusPending).Lt("due_date", today).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return 0, err
	}
	var rows []Process
	if err := result.Decode(&rows); err != nil {
		return 0, err
	}
	return len(rows), nil
}

// ByStatus lists a sheet's processes in one status, soonest due first.
func (s *Service) ByStatus(ctx context.Context, sheetID, status string) ([]Process, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Select("*").
			Eq("sheet_id", sheetID).Eq("status", status).Order("due_date", true).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}
	var rows []Process
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Assign sets or clears a process's assignee.
func (s *Service) Assign(ctx context.Context, processID, userID string) error {
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Update(map[string]any{"assigned_to": userID}).
			Eq("id", processID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Updating assignment..."})
	return err
}

// ForCalendar lists a sheet's processes due inside one month.
func (s *Service) ForCalendar(ctx context.Context, sheetID string, year, month int) ([]Process, error) {
	start, end := calendar.MonthBounds(year, month)
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Select("*").
			Eq("sheet_id", sheetID).Gte("due_date", start).Lt("due_date", end).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}
	var rows []Process
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecutionsForMonth fetches a sheet's per-month execution rows. The
// procedure may return snake_cased or loosely typed columns depending on
// the deployed version, so decoding goes through the weak path.
func (s *Service) ExecutionsForMonth(ctx context.Context, sheetID string, year, month int) ([]Execution, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.RPC(ctx, "get_process_executions_for_month", map[string]any{
			"p_sheet_id": sheetID,
			"p_year":     year,
			"p_month":    month,
		})
	}, executor.Options{})
	if err != nil {
		return nil, err
	}

	var rows []Execution
	if err := result.DecodeLoose(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ExecutionHistory lists every recorded execution of a process, most
// recent month first.
func (s *Service) ExecutionHistory(ctx context.Context, processID string) ([]Execution, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("process_executions").Select("*").
			Eq("process_id", processID).Order("year", false).Order("month", false).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Loading execution history..."})
	if err != nil {
		if backend.IsMissingRelation(err) {
			return []Execution{}, nil
		}
		return nil, err
	}

	var rows []Execution
	if err := result.DecodeLoose(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// UpdateExecutionStatus sets one month's execution state for a process.
// It reaches any (year, month); the wrappers below cover the common
// current-month transitions.
func (s *Service) UpdateExecutionStatus(ctx context.Context, processID string, year, month int, status, note string) error {
	return s.setExecutionStatus(ctx, processID, year, month, status, note, "Updating process execution...")
}

func (s *Service) setExecutionStatus(ctx context.Context, processID string, year, month int, status, note, loadingMsg string) error {
	completedBy := ""
	if user, err := s.session.CurrentUser(ctx); err == nil {
		completedBy = user.ID
	}
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.RPC(ctx, "update_process_execution_status", map[string]any{
			"p_process_id":      processID,
			"p_year":            year,
			"p_month":           month,
			"p_status":          status,
			"p_completion_note": note,
			"p_completed_by":    completedBy,
		})
	}, executor.Options{ShowLoading: loadingMsg != "", LoadingMessage: loadingMsg})
	return err
}

// MarkExecutionCompleted closes the current month's execution of a process.
func (s *Service) MarkExecutionCompleted(ctx context.Context, processID, note string, late bool) error {
	status := StatusCompletedOnTime
	if late {
		status = StatusCompletedLate
	}
	y, m := s.currentMonth()
	return s.setExecutionStatus(ctx, processID, y, m, status, note, "Marking as completed...")
}

// MarkExecutionDelayed marks the current month's execution as delayed.
func (s *Service) MarkExecutionDelayed(ctx context.Context, processID, reason string) error {
	y, m := s.currentMonth()
	return s.setExecutionStatus(ctx, processID, y, m, StatusDelayed, reason, "Marking as delayed...")
}

// ResetExecution reopens the current month's execution of a process.
func (s *Service) ResetExecution(ctx context.Context, processID string) error {
	y, m := s.currentMonth()
	return s.setExecutionStatus(ctx, processID, y, m, StatusPending, "", "Resetting status...")
}

func (s *Service) currentMonth() (int, int) {
	now := s.now().UTC()
	return now.Year(), int(now.Month())
}

// StatsForMonth aggregates a sheet's execution statuses for one month.
func (s *Service) StatsForMonth(ctx context.Context, sheetID string, year, month int) (*MonthlyStats, error) {
	executions, err := s.ExecutionsForMonth(ctx, sheetID, year, month)
	if err != nil {
		return nil, err
	}

	stats := &MonthlyStats{Total: len(executions)}
	for _, e := range executions {
		switch e.Status {
		case StatusCompletedOnTime, StatusCompletedLate:
			stats.Completed++
		case StatusDelayed:
			stats.Delayed++
		case StatusOverdue:
			stats.Overdue++
		default:
			stats.Pending++
		}
	}
	return stats, nil
}

// DashboardStats aggregates execution statuses across all of a project's
// sheets for one month.
func (s *Service) DashboardStats(ctx context.Context, projectID string, year, month int) (*MonthlyStats, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("process_sheets").Select("id").
			Eq("project_id", projectID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Loading dashboard..."})
	if err != nil {
		return nil, err
	}

	var sheets []struct {
		ID string `json:"id"`
	}
	if err := result.Decode(&sheets); err != nil {
		return nil, err
	}

	total := &MonthlyStats{}
	for _, sheet := range sheets {
		stats, err := s.StatsForMonth(ctx, sheet.ID, year, month)
		if err != nil {
			s.logger.Warn("skipping sheet in dashboard aggregation", "sheet_id", sheet.ID, "error", err)
			continue
		}
		total.Total += stats.Total
		total.Pending += stats.Pending
		total.Completed += stats.Completed
		total.Delayed += stats.Delayed
		total.Overdue += stats.Overdue
	}
	return total, nil
}
