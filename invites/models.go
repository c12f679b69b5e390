package invites

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/flowcraft-app/flowcraft-go/members"
)

// Status is an invitation lifecycle state. The backend enforces the
// transitions; the client sequences them.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
	StatusRevoked  Status = "REVOKED"

	// StatusNone and StatusUnknown are synthetic check outcomes, never
	// stored rows.
	StatusNone    Status = "NONE"
	StatusUnknown Status = "UNKNOWN"
)

// Invitation is a project invitation row.
type Invitation struct {
	ID         string       `json:"id"`
	ProjectID  string       `json:"project_id"`
	Email      string       `json:"email"`
	Role       members.Role `json:"role"`
	Token      string       `json:"invitation_token"`
	Status     Status       `json:"status"`
	ExpiresAt  time.Time    `json:"expires_at"`
	AcceptedAt *time.Time   `json:"accepted_at,omitempty"`
	InvitedBy  string       `json:"invited_by,omitempty"`
	CreatedAt  time.Time    `json:"created_at,omitempty"`
}

// Expired reports whether the invitation's deadline has passed.
func (i *Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// tokenBytes is the entropy of an invitation token; the hex encoding the
// backend stores is twice this length.
const tokenBytes = 32

// NewToken generates a random invitation token.
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
