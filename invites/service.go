// Package invites implements the project invitation lifecycle:
// PENDING -> ACCEPTED | EXPIRED | REVOKED. Creation goes through a
// server-side procedure so concurrent invites to the same address cannot
// race; acceptance is sequenced client-side with every rejection from
// the backend treated as authoritative.
package invites

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/flowcraft-app/flowcraft-go/auth"
	"github.com/flowcraft-app/flowcraft-go/backend"
	"github.com/flowcraft-app/flowcraft-go/email"
	"github.com/flowcraft-app/flowcraft-go/executor"
	"github.com/flowcraft-app/flowcraft-go/members"
	"github.com/flowcraft-app/flowcraft-go/validate"
)

// inviteTTL is how long a new invitation stays acceptable.
const inviteTTL = 7 * 24 * time.Hour

var (
	ErrNotFound        = errors.New("Invitation not found")
	ErrEmailMismatch   = errors.New("This invitation is not for your email address")
	ErrExpired         = errors.New("Invitation has expired")
	ErrAlreadyAccepted = errors.New("Invitation already accepted")
	ErrAlreadyMember   = errors.New("You are already a member of this project")
	ErrProjectNotFound = errors.New("Project not found")
)

// InviteResult reports a created invitation together with the email
// outcome. EmailSent false is a partial success, not a failure: the
// invitation exists and can be accepted via direct link.
type InviteResult struct {
	Invitation *Invitation
	EmailSent  bool
	EmailError string
	Message    string
}

// AcceptResult reports a successful acceptance.
type AcceptResult struct {
	Member     *members.Member
	Invitation *Invitation
}

// Check is the outcome of a status lookup for (project, email).
type Check struct {
	Status     Status
	Invitation *Invitation
}

// Service exposes the invitation operations.
type Service struct {
	backend *backend.Client
	exec    *executor.Executor
	email   *email.Client
	members *members.Service
	session *auth.Session
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires an invitation service.
func NewService(b *backend.Client, exec *executor.Executor, mail *email.Client, m *members.Service, session *auth.Session, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		backend: b,
		exec:    exec,
		email:   mail,
		members: m,
		session: session,
		logger:  logger,
		now:     time.Now,
	}
}

// Invite creates an invitation through the send_invitation procedure and
// then attempts email delivery. Email failure does not roll back the
// invitation.
func (s *Service) Invite(ctx context.Context, projectID, address string, role members.Role, customMessage string) (*InviteResult, error) {
	if !role.Valid() {
		return nil, members.ErrInvalidRole
	}
	if err := validate.Email(address); err != nil {
		return nil, err
	}

	user, err := s.session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	token, err := NewToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(inviteTTL)

	projectName, err := s.projectName(ctx, projectID)
	if err != nil {
		return nil, err
	}

	invitation, err := s.createInvitation(ctx, projectID, address, role, token, expiresAt)
	if err != nil {
		return nil, err
	}

	inviter := user.Email
	if inviter == "" {
		inviter = "Project Owner"
	}
	_, mailErr := s.email.SendInvitation(ctx, email.Invitation{
		To:              address,
		ProjectName:     projectName,
		Role:            string(role),
		InvitationToken: token,
		InviterEmail:    inviter,
		CustomMessage:   customMessage,
	})
	if mailErr != nil {
		s.logger.Warn("invitation email delivery failed", "project_id", projectID, "error", mailErr)
		return &InviteResult{
			Invitation: invitation,
			EmailSent:  false,
			EmailError: mailErr.Error(),
			Message:    "Invitation created but email delivery failed. User can still accept via direct link.",
		}, nil
	}

	return &InviteResult{
		Invitation: invitation,
		EmailSent:  true,
		Message:    "Invitation created and email sent successfully",
	}, nil
}

func (s *Service) projectName(ctx context.Context, projectID string) (string, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("projects").Select("name,description").Eq("id", projectID).Single().Do(ctx)
	}, executor.Options{})
	if err != nil {
		return "", err
	}

	var project struct {
		Name string `json:"name"`
	}
	if err := result.Decode(&project); err != nil {
		return "", err
	}
	if project.Name == "" {
		return "", ErrProjectNotFound
	}
	return project.Name, nil
}

// createInvitation calls the atomic server-side procedure. Depending on
// deployment it returns either the new row id or the full row; both
// shapes are handled.
func (s *Service) createInvitation(ctx context.Context, projectID, address string, role members.Role, token string, expiresAt time.Time) (*Invitation, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.RPC(ctx, "send_invitation", map[string]any{
			"project_id_param":       projectID,
			"email_param":            address,
			"role_param":             role,
			"invitation_token_param": token,
			"expires_at_param":       expiresAt.UTC().Format(time.RFC3339),
		})
	}, executor.Options{ShowLoading: true, LoadingMessage: "Creating invitation..."})
	if err != nil {
		return nil, err
	}

	var id string
	if err := result.Decode(&id); err == nil && id != "" {
		return s.byID(ctx, id)
	}

	invitation := &Invitation{}
	if err := result.Decode(invitation); err != nil {
		return nil, err
	}
	return invitation, nil
}

func (s *Service) byID(ctx context.Context, id string) (*Invitation, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_invitations").Select("*").Eq("id", id).Single().Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}
	invitation := &Invitation{}
	if err := result.Decode(invitation); err != nil {
		return nil, err
	}
	return invitation, nil
}

// Accept redeems an invitation token for the signed-in user. Membership
// insertion failures leave the invitation PENDING; the inverse (a row
// inserted but the status update failing) is tolerated and logged,
// since re-accepting is then a no-op against the unique constraint.
func (s *Service) Accept(ctx context.Context, token string) (*AcceptResult, error) {
	user, err := s.session.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	invitation, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if invitation.Email != user.Email {
		return nil, ErrEmailMismatch
	}
	if invitation.Expired(s.now()) {
		return nil, ErrExpired
	}
	if invitation.Status == StatusAccepted {
		return nil, ErrAlreadyAccepted
	}

	already, err := s.isMember(ctx, invitation.ProjectID, user.ID)
	if err != nil {
		return nil, err
	}
	if already {
		// The invitation served its purpose even though no row is
		// inserted; close it out before reporting the condition.
		if err := s.markAccepted(ctx, invitation.ID); err != nil {
			s.logger.Warn("failed to close out invitation for existing member", "invitation_id", invitation.ID, "error", err)
		}
		return nil, ErrAlreadyMember
	}

	member, err := s.members.Add(ctx, members.Member{
		ProjectID: invitation.ProjectID,
		UserID:    user.ID,
		Role:      invitation.Role,
		InvitedBy: invitation.InvitedBy,
		JoinedAt:  s.now().UTC(),
	})
	if err != nil {
		// Leave the invitation PENDING: the user never joined.
		return nil, err
	}

	if err := s.markAccepted(ctx, invitation.ID); err != nil {
		s.logger.Warn("member added but invitation status update failed", "invitation_id", invitation.ID, "error", err)
	} else {
		invitation.Status = StatusAccepted
	}

	return &AcceptResult{Member: member, Invitation: invitation}, nil
}

func (s *Service) byToken(ctx context.Context, token string) (*Invitation, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_invitations").Select("*").Eq("invitation_token", token).Limit(1).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}

	var rows []Invitation
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return &rows[0], nil
}

func (s *Service) isMember(ctx context.Context, projectID, userID string) (bool, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_members").Select("id,role").
			Eq("project_id", projectID).Eq("user_id", userID).Limit(1).Do(ctx)
	}, executor.Options{})
	if err != nil {
		if backend.IsMissingRelation(err) {
			return false, nil
		}
		return false, err
	}

	var rows []map[string]any
	if err := result.Decode(&rows); err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (s *Service) markAccepted(ctx context.Context, invitationID string) error {
	_, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_invitations").Update(map[string]any{
			"status":      StatusAccepted,
			"accepted_at": s.now().UTC().Format(time.RFC3339),
		}).Eq("id", invitationID).Do(ctx)
	}, executor.Options{})
	return err
}

// CleanupExpired bulk-transitions a project's overdue PENDING invitations
// to EXPIRED. It runs opportunistically before status checks, never on a
// timer, and failures degrade to a no-op.
func (s *Service) CleanupExpired(ctx context.Context, projectID string) int {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		q := s.backend.From("project_invitations").Update(map[string]any{"status": StatusExpired}).
			Eq("status", StatusPending).Lt("expires_at", s.now().UTC().Format(time.RFC3339))
		if projectID != "" {
			q = q.Eq("project_id", projectID)
		}
		return q.Do(ctx)
	}, executor.Options{})
	if err != nil {
		s.logger.Warn("could not cleanup expired invitations", "project_id", projectID, "error", err)
		return 0
	}

	var rows []Invitation
	if err := result.Decode(&rows); err != nil {
		return 0
	}
	if len(rows) > 0 {
		s.logger.Info("cleaned up expired invitations", "count", len(rows), "project_id", projectID)
	}
	return len(rows)
}

// StatusFor reports where (project, email) stands in the lifecycle,
// running the lazy cleanup first. Lookup failures degrade to UNKNOWN.
func (s *Service) StatusFor(ctx context.Context, projectID, address string) Check {
	s.CleanupExpired(ctx, projectID)

	pending, err := s.query(ctx, func(q *backend.Query) *backend.Query {
		return q.Eq("project_id", projectID).Eq("email", address).Eq("status", StatusPending)
	})
	if err != nil {
		s.logger.Warn("could not check invitation status", "project_id", projectID, "error", err)
		return Check{Status: StatusUnknown}
	}
	if len(pending) > 0 {
		return Check{Status: StatusPending, Invitation: &pending[0]}
	}

	all, err := s.query(ctx, func(q *backend.Query) *backend.Query {
		return q.Eq("project_id", projectID).Eq("email", address)
	})
	if err != nil {
		s.logger.Warn("could not check invitation status", "project_id", projectID, "error", err)
		return Check{Status: StatusUnknown}
	}
	if len(all) > 0 {
		return Check{Status: all[0].Status, Invitation: &all[0]}
	}
	return Check{Status: StatusNone}
}

// ListPending returns a project's invitations that have not been accepted.
// Absent optional schema degrades to an empty list.
func (s *Service) ListPending(ctx context.Context, projectID string) ([]Invitation, error) {
	rows, err := s.query(ctx, func(q *backend.Query) *backend.Query {
		return q.Eq("project_id", projectID).Neq("status", StatusAccepted)
	})
	if err != nil {
		if backend.IsMissingRelation(err) {
			s.logger.Warn("project_invitations table missing, returning empty list", "project_id", projectID)
			return []Invitation{}, nil
		}
		return nil, err
	}
	return rows, nil
}

// PendingForUser returns the signed-in user's live invitations across all
// projects, after the lazy global cleanup. Failures degrade to empty.
func (s *Service) PendingForUser(ctx context.Context) []Invitation {
	user, err := s.session.CurrentUser(ctx)
	if err != nil {
		return []Invitation{}
	}

	s.CleanupExpired(ctx, "")

	rows, err := s.query(ctx, func(q *backend.Query) *backend.Query {
		return q.Eq("email", user.Email).Eq("status", StatusPending).
			Gt("expires_at", s.now().UTC().Format(time.RFC3339))
	})
	if err != nil {
		s.logger.Warn("failed to get pending invitations", "error", err)
		return []Invitation{}
	}
	return rows
}

// Revoke withdraws a pending invitation.
func (s *Service) Revoke(ctx context.Context, invitationID string) error {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return s.backend.From("project_invitations").Update(map[string]any{"status": StatusRevoked}).
			Eq("id", invitationID).Eq("status", StatusPending).Do(ctx)
	}, executor.Options{ShowLoading: true, LoadingMessage: "Revoking invitation..."})
	if err != nil {
		return err
	}

	var rows []Invitation
	if err := result.Decode(&rows); err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) query(ctx context.Context, build func(*backend.Query) *backend.Query) ([]Invitation, error) {
	result, err := executor.Execute(ctx, s.exec, func(ctx context.Context) (*backend.Result, error) {
		return build(s.backend.From("project_invitations").Select("*")).Do(ctx)
	}, executor.Options{})
	if err != nil {
		return nil, err
	}
	var rows []Invitation
	if err := result.Decode(&rows); err != nil {
		return nil, err
	}
	return rows, nil
}
