// Package auth holds the client's view of the authenticated session. The
// backend is the only verifier; this package merely carries the access
// token and inspects its claims to detect expiry before a round trip.
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNotAuthenticated is returned when an operation requires a signed-in
// user and none is present.
var ErrNotAuthenticated = errors.New("Authentication required")

// User is the authenticated principal as reported by the backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session holds the current access token and user. It is safe for
// concurrent use; the executor and backend client read it on every call.
type Session struct {
	mu    sync.RWMutex
	token string
	user  *User
}

// NewSession creates an empty (anonymous) session.
func NewSession() *Session {
	return &Session{}
}

// SetAuthenticated installs the signed-in user and their access token.
func (s *Session) SetAuthenticated(user User, accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := user
	s.user = &u
	s.token = accessToken
}

// Clear drops the session back to anonymous.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.token = ""
}

// Token returns the current access token ("" when anonymous). Implements
// backend.TokenSource.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// CurrentUser returns the signed-in user or ErrNotAuthenticated.
func (s *Session) CurrentUser(ctx context.Context) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, ErrNotAuthenticated
	}
	u := *s.user
	return &u, nil
}

// Expired reports whether the held access token has lapsed. An anonymous
// session is never expired; a malformed token is treated as expired so
// callers re-authenticate rather than hammer the backend.
func (s *Session) Expired() bool {
	tok := s.Token()
	if tok == "" {
		return false
	}
	return TokenExpired(tok, time.Now())
}

// TokenExpired inspects the JWT exp claim without verifying the
// signature. The backend verifies; the client only wants to know whether
// a round trip is pointless.
func TokenExpired(accessToken string, now time.Time) bool {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return now.After(exp.Time)
}
