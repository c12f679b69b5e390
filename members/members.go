// Package members manages project membership: the roles users hold on a
// project and the access checks built on them. All authority lives in
// the backend's project_members table and its row-level security; this
// service only proposes mutations.
package members

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flowcraft-app/flowcraft-go/auth"
	"github.com/flowcraft-app/flowcraft-go/backend"
	"github.com/flowcraft-app/flowcraft-go/executor"
)

// Role is a project access level.
type Role string

const (
	RoleFullAccess Role = "FULL_ACCESS"
	RoleEditAccess Role = "EDIT_ACCESS"
	RoleViewOnly   Role = "VIEW_ONLY"

	// RoleOwner is implicit: project owners are not member rows.
	RoleOwner Role = "OWNER"
)

// Valid reports whether the role is one a member row may carry.
func (r Role) Valid() bool {
	switch r {
	case RoleFullAccess, RoleEditAccess, RoleViewOnly:
		return true
	}
	return false
}

// ErrInvalidRole names the accepted values.
var ErrInvalidRole = errors.New("Invalid role. Must be one of: FULL_ACCESS, EDIT_ACCESS, VIEW_ONLY")

// Member is a project membership row.
type Member struct {
	ID        string    `json:"id,omitempty"`
	ProjectID string    `json:"project_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	InvitedBy string    `json:"invited_by,omitempty"`
	JoinedAt  time.Time `json:"joined_at"`
}

// Access is the caller's resolved relationship to a project.
type Access struct {
	Role      Role
	IsOwner   bool
	HasAccess bool
}

// Service exposes membership operations.
type Service struct {
	backend *backend.Client
	exec    *executor.Executor
	session *auth.Session
	logger  *slog.Logger
}

// NewService wires a membership service.
func NewService(b *backend.Client, exec *executor.Executor, session *auth.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{backend: b, exec: exec, session: session, logger: logger}
}

// List returns the members of a project. Absent optional schema degrades
// to an empty list; membership is a feature the deployment may not have.
func (s *Service) List(ctx context.Context, projectID string) ([]Member, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Select("*").Eq("project_id", projectID).Do(ctx)
	}, executor.Options{})
	if err != nil {
		if backend.IsMissingRelation(err) {
			s.logger.Warn("project_members table missing, returning empty member list", "project_id", projectID)
			return []Member{}, nil
		}
		return nil, err
	}

	var out []Member
	if err := result.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// Add inserts a membership row. Used directly by invitation acceptance;
// the backend enforces the unique (project_id, user_id) constraint.
func (s *Service) Add(ctx context.Context, m Member) (*Member, error) {
	if !m.Role.Valid() {
		return nil, ErrInvalidRole
	}
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Insert(m).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Adding you to the project..."})
	if err != nil {
		return nil, err
	}

	var rows []Member
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("membership insert returned no row")
	}
	return &rows[0], nil
}

// Remove deletes a member from a project.
func (s *Service) Remove(ctx context.Context, projectID, userID string) error {
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Delete().
			Eq("project_id", projectID).Eq("user_id", userID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Removing member..."})
	return err
}

// UpdateRole changes a member's access level.
func (s *Service) UpdateRole(ctx context.Context, projectID, userID string, role Role) error {
	if !role.Valid() {
		return ErrInvalidRole
	}
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Update(map[string]any{"role": role}).
			Eq("project_id", projectID).Eq("user_id", userID).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Updating role..."})
	return err
}

// Access resolves the caller's relationship to a project: owner first,
// then membership. When the members table is absent the check falls back
// to owner-only.
func (s *Service) Access(ctx context.Context, projectID string) (*Access, error) {
	user, err := s.session.CurrentUser(ctx)
	if err != nil {
		return &Access{}, nil
	}

	owner, err := s.isOwner(ctx, projectID, user.ID)
	if err != nil {
		return nil, err
	}
	if owner {
		return &Access{Role: RoleOwner, IsOwner: true, HasAccess: true}, nil
	}

	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Select("role").
			Eq("project_id", projectID).Eq("user_id", user.ID).Limit(1).Do(ctx)
	}, executor.Options{})
	if err != nil {
		if backend.IsMissingRelation(err) {
			s.logger.Warn("membership check unavailable, falling back to owner-only access", "project_id", projectID)
			return &Access{}, nil
		}
		return nil, err
	}

	var rows []struct {
		Role Role `json:"role"`
	}
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &Access{}, nil
	}
	return &Access{Role: rows[0].Role, HasAccess: true}, nil
}

func (s *Service) isOwner(ctx context.Context, projectID, userID string) (bool, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("projects").Select("user_id").
			Eq("id", projectID).Eq("user_id", userID).Limit(1).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return false, err
	}
	var rows []struct {
		UserID string `json:"user_id"`
	}
	if err := result.Decode(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}
