// Package calendar manages per-month working calendars. Working days are
// computed server-side so weekend and holiday rules live in one place;
// this package fetches, materializes, and applies them.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/flowcraft-app/flowcraft-go/backend"
	"github.com/flowcraft-app/flowcraft-go/executor"
)

// ErrNotGenerated means no calendar row exists for the requested month.
var ErrNotGenerated = errors.New("Working calendar not generated for this month")

// Month is a stored working calendar for one year/month pair.
type Month struct {
	ID          string   `json:"id,omitempty"`
	Year        int      `json:"year"`
	MonthNumber int      `json:"month"`
	WorkingDays []string `json:"working_days_json"`
	Holidays    []string `json:"holidays_json"`
}

// UpdateItem is the outcome of one process row in a bulk due-date update.
type UpdateItem struct {
	ProcessID  string
	WorkingDay int
	DueDate    string
	Err        error
}

// UpdateReport aggregates a bulk due-date update. Partial failure is a
// normal outcome: each row is attempted independently.
type UpdateReport struct {
	Updated int
	Failed  int
	Items   []UpdateItem
}

// Service exposes the working-calendar operations.
type Service struct {
	backend *backend.Client
	exec    *executor.Executor
	logger  *slog.Logger
}

// NewService wires a calendar service.
func NewService(b *backend.Client, exec *executor.Executor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, exec: exec, logger: logger}
}

// Get fetches the stored calendar for a month, or ErrNotGenerated.
func (s *Service) Get(ctx context.Context, year, month int) (*Month, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("working_calendar").Select("*").
			Eq("year", year).Eq("month", month).Limit(1).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Loading calendar..."})
	if err != nil {
		return nil, err
	}

	var rows []Month
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotGenerated
	}
	return &rows[0], nil
}

// Generate computes working days server-side and stores the calendar row,
// replacing any previous one for the same month.
func (s *Service) Generate(ctx context.Context, year, month int) (*Month, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.RPC(ctx, "calculate_working_days", map[string]any{
			"target_year":  year,
			"target_month": month,
		})
	}, executor.Options{ShowLoading: true, LoadingMessage: "Generating calendar..."})
	if err != nil {
		return nil, err
	}

	var workingDays []string
	if err := result.Decode(&workingDays); err != nil {
		return nil, err
	}

	row := Month{
		Year:        year,
		MonthNumber: month,
		WorkingDays: workingDays,
		Holidays:    []string{},
	}
	stored, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("working_calendar").Upsert(row).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}

	var saved []Month
	if err := stored.Decode(&saved); err != nil {
		return nil, err
	}
	if len(saved) > 0 {
		return &saved[0], nil
	}
	return &row, nil
}

// ActualDate resolves the Nth working day of a month to a concrete date
// (YYYY-MM-DD) via the server-side calendar.
func (s *Service) ActualDate(ctx context.Context, workingDay, year, month int) (string, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.RPC(ctx, "get_actual_date_for_working_day", map[string]any{
			"wd":           workingDay,
			"target_year":  year,
			"target_month": month,
		})
	}, executor.Options{})
	if err != nil {
		return "", err
	}

	var date string
	if err := result.Decode(&date); err != nil {
		return "", err
	}
	if date == "" {
		return "", fmt.Errorf("no working day %d in %d-%02d", workingDay, year, month)
	}
	return date, nil
}

// UpdateProcessDueDates recomputes due dates for every process on a sheet
// that is scheduled by working day. Rows are updated concurrently and the
// report carries per-row outcomes; one bad row never aborts the batch.
func (s *Service) UpdateProcessDueDates(ctx context.Context, sheetID string, year, month int) (*UpdateReport, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Select("id,working_day,due_time").
			Eq("sheet_id", sheetID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Updating due dates..."})
	if err != nil {
		return nil, err
	}

	var processes []struct {
		ID         string `json:"id"`
		WorkingDay *int   `json:"working_day"`
		DueTime    string `json:"due_time"`
	}
	if err := result.Decode(&processes); err != nil {
		return nil, err
	}

	report := &UpdateReport{}
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, p := range processes {
		if p.WorkingDay == nil || *p.WorkingDay == 0 {
			continue
		}
		wg.Add(1)
		go func(id string, wd int, dueTime string) {
			defer wg.Done()
			item := s.updateOne(ctx, id, wd, dueTime, year, month)
			mu.Lock()
			defer mu.Unlock()
			report.Items = append(report.Items, item)
			if item.Err != nil {
				report.Failed++
			} else {
				report.Updated++
			}
		}(p.ID, *p.WorkingDay, p.DueTime)
	}
	wg.Wait()

	if report.Failed > 0 {
		s.logger.Warn("some due dates could not be updated",
			"sheet_id", sheetID, "updated", report.Updated, "failed", report.Failed)
	}
	return report, nil
}

func (s *Service) updateOne(ctx context.Context, processID string, workingDay int, dueTime string, year, month int) UpdateItem {
	item := UpdateItem{ProcessID: processID, WorkingDay: workingDay}

	date, err := s.ActualDate(ctx, workingDay, year, month)
	if err != nil {
		item.Err = err
		return item
	}
	item.DueDate = date

	dueAt, err := composeDueDatetime(date, dueTime)
	if err != nil {
		item.Err = err
		return item
	}

	_, err = executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("processes").Update(map[string]any{
			"due_date":            date,
			"actual_due_datetime": dueAt,
		}).Eq("id", processID).Do(ctx)
	}, executor.Options{})
	item.Err = err
	return item
}

// composeDueDatetime anchors the resolved date at midnight UTC, or at the
// process's HH:MM due time when it has one.
func composeDueDatetime(date, dueTime string) (string, error) {
	at, err := time.Parse("2006-01-02", date)
	if err != nil {
		return "", fmt.Errorf("unexpected working day date %q: %w", date, err)
	}
	if dueTime != "" {
		hm, err := time.Parse("15:04", dueTime)
		if err != nil {
			return "", fmt.Errorf("invalid due time %q: %w", dueTime, err)
		}
		at = at.Add(time.Duration(hm.Hour())*time.Hour + time.Duration(hm.Minute())*time.Minute)
	}
	return at.UTC().Format(time.RFC3339), nil
}

// MonthBounds returns the first day of the month and the first day of the
// next month as YYYY-MM-DD strings, for half-open range filters.
func MonthBounds(year, month int) (string, string) {
	start := time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start.Format("2006-01-02"), start.AddDate(0, 1, 0).Format("2006-01-02")
}
