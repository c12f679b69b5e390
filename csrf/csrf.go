// Package csrf manages the per-session CSRF token: 32 random bytes,
// hex-encoded, persisted alongside an issue timestamp and rotated after a
// configurable TTL.
//
// Validation deliberately compares against the token held in memory, not
// the persisted copy. A token issued by a previous process therefore
// fails validation even when its persisted timestamp is still fresh; the
// in-memory token is the single source of truth and the persisted copy
// only seeds rotation timing.
package csrf

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// tokenBytes is the entropy of an issued token.
const tokenBytes = 32

// Persister stores the token and its issue time across restarts.
// statestore.Store satisfies this.
type Persister interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Keys under which the token is persisted.
const (
	persistKeyToken = "flowcraft_csrf_token"
	persistKeyTime  = "flowcraft_csrf_token_time"
)

// Manager issues and validates CSRF tokens.
type Manager struct {
	mu        sync.Mutex
	token     string
	issuedAt  time.Time
	ttl       time.Duration
	persister Persister
	now       func() time.Time
}

// New creates a manager and issues an initial token. persister may be nil
// for purely in-memory operation; ttl of 0 means 24 hours.
func New(persister Persister, ttl time.Duration) (*Manager, error) {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	m := &Manager{
		ttl:       ttl,
		persister: persister,
		now:       time.Now,
	}
	if err := m.Issue(context.Background()); err != nil {
		return nil, err
	}
	return m, nil
}

// Issue generates a fresh token and persists it with the issue time.
func (m *Manager) Issue(ctx context.Context) error {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("failed to generate csrf token: %w", err)
	}

	m.mu.Lock()
	m.token = hex.EncodeToString(buf)
	m.issuedAt = m.now()
	token, issuedAt := m.token, m.issuedAt
	m.mu.Unlock()

	if m.persister != nil {
		if err := m.persister.Set(ctx, persistKeyToken, token); err != nil {
			return err
		}
		if err := m.persister.Set(ctx, persistKeyTime, strconv.FormatInt(issuedAt.UnixMilli(), 10)); err != nil {
			return err
		}
	}
	return nil
}

// Current returns the active token, regenerating it first when the
// persisted issue time shows the TTL has lapsed.
func (m *Manager) Current(ctx context.Context) (string, error) {
	if m.expired(ctx) {
		if err := m.Issue(ctx); err != nil {
			return "", err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Manager) expired(ctx context.Context) bool {
	issuedAt := m.persistedIssueTime(ctx)
	if issuedAt.IsZero() {
		m.mu.Lock()
		issuedAt = m.issuedAt
		m.mu.Unlock()
	}
	return m.now().Sub(issuedAt) > m.ttl
}

func (m *Manager) persistedIssueTime(ctx context.Context) time.Time {
	if m.persister == nil {
		return time.Time{}
	}
	raw, err := m.persister.Get(ctx, persistKeyTime)
	if err != nil {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Validate reports whether candidate matches the in-memory token.
// Comparison is constant-time.
func (m *Manager) Validate(candidate string) bool {
	m.mu.Lock()
	token := m.token
	m.mu.Unlock()

	if token == "" || len(candidate) != len(token) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1
}

// ErrInvalidToken is returned by Require for callers that prefer an error
// over a bool.
var ErrInvalidToken = errors.New("Security validation failed. Please refresh the page and try again.")

// Require is Validate with an error result.
func (m *Manager) Require(candidate string) error {
	if !m.Validate(candidate) {
		return ErrInvalidToken
	}
	return nil
}
