// Package ratelimit tracks failed authentication attempts per identifier
// and arms a lockout once a policy's attempt budget is spent. State lives
// in the cache subsystem so a valkey-backed deployment shares lockouts
// between client instances.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/flowcraft-app/flowcraft-go/cache"
)

// Policy is an attempt/lockout rule for one flow.
type Policy struct {
	// MaxAttempts is the number of failed attempts before lockout.
	MaxAttempts int64

	// Lockout is how long the identifier stays locked.
	Lockout time.Duration
}

// Stock policies for the two protected flows.
var (
	LoginPolicy         = Policy{MaxAttempts: 5, Lockout: 15 * time.Minute}
	PasswordResetPolicy = Policy{MaxAttempts: 3, Lockout: 5 * time.Minute}
)

// Limiter enforces a Policy per identifier.
type Limiter struct {
	cache  cache.CacheWithCounter
	policy Policy
	prefix string
}

// New creates a limiter. prefix namespaces keys so independent flows
// (login, password reset) never share state for the same identifier.
func New(c cache.CacheWithCounter, policy Policy, prefix string) *Limiter {
	if policy.MaxAttempts <= 0 {
		policy = LoginPolicy
	}
	return &Limiter{cache: c, policy: policy, prefix: prefix}
}

func (l *Limiter) attemptsKey(id string) string { return l.prefix + "attempts:" + id }
func (l *Limiter) lockoutKey(id string) string  { return l.prefix + "lockout:" + id }

// IsLocked reports whether the identifier is currently locked out.
// Expired lockouts clear lazily through the cache TTL.
func (l *Limiter) IsLocked(ctx context.Context, id string) (bool, error) {
	return l.cache.Exists(ctx, l.lockoutKey(id))
}

// LockedUntil returns the lockout expiry, or the zero time when the
// identifier is not locked.
func (l *Limiter) LockedUntil(ctx context.Context, id string) (time.Time, error) {
	raw, err := l.cache.Get(ctx, l.lockoutKey(id))
	if err != nil {
		if err == cache.ErrNotFound || err == cache.ErrExpired {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt lockout entry for %s: %w", id, err)
	}
	return time.UnixMilli(ms), nil
}

// RecordAttempt registers a failed attempt. It returns false when the
// identifier is already locked or this attempt exhausted the budget and
// armed the lockout; true means more attempts remain.
//
// Attempt counts reset when the lockout is armed, so the first attempt
// after a lockout expires starts a fresh count of 1.
func (l *Limiter) RecordAttempt(ctx context.Context, id string) (bool, error) {
	locked, err := l.IsLocked(ctx, id)
	if err != nil {
		return false, err
	}
	if locked {
		return false, nil
	}

	// Attempts share the lockout TTL so an abandoned half-filled budget
	// eventually clears on its own.
	count, err := l.cache.Increment(ctx, l.attemptsKey(id), 1, l.policy.Lockout)
	if err != nil {
		return false, err
	}

	if count >= l.policy.MaxAttempts {
		until := time.Now().Add(l.policy.Lockout)
		value := []byte(strconv.FormatInt(until.UnixMilli(), 10))
		if err := l.cache.Set(ctx, l.lockoutKey(id), value, l.policy.Lockout); err != nil {
			return false, err
		}
		if err := l.cache.Reset(ctx, l.attemptsKey(id)); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Clear wipes both the attempt count and any lockout after a successful
// authentication.
func (l *Limiter) Clear(ctx context.Context, id string) error {
	if err := l.cache.Reset(ctx, l.attemptsKey(id)); err != nil {
		return err
	}
	return l.cache.Delete(ctx, l.lockoutKey(id))
}

// Remaining returns how many attempts are left before lockout.
func (l *Limiter) Remaining(ctx context.Context, id string) (int64, error) {
	locked, err := l.IsLocked(ctx, id)
	if err != nil {
		return 0, err
	}
	if locked {
		return 0, nil
	}
	count, err := l.cache.GetCount(ctx, l.attemptsKey(id))
	if err != nil {
		return 0, err
	}
	remaining := l.policy.MaxAttempts - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// CheckError converts a locked state into the user-facing error message.
func (l *Limiter) CheckError(ctx context.Context, id string) error {
	until, err := l.LockedUntil(ctx, id)
	if err != nil {
		return err
	}
	if until.IsZero() {
		return nil
	}
	minutes := int(time.Until(until).Minutes()) + 1
	return fmt.Errorf("Too many attempts. Try again in %d minutes.", minutes)
}
