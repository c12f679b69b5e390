// Package validate holds the pure client-side input checks. Everything
// here runs before any network call; violations are descriptive errors
// and are never retried.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// defaultForbiddenPasswords is the stock deny-list; config can override it.
var defaultForbiddenPasswords = []string{
	"password", "flowcraft", "123456", "qwerty", "admin", "user",
	"password123", "admin123", "flowcraft123", "test123",
}

// Email checks basic address shape.
func Email(email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.New("Email is required")
	}
	if !emailPattern.MatchString(email) {
		return errors.New("Please enter a valid email address")
	}
	return nil
}

// PasswordPolicy parameterizes Password checks.
type PasswordPolicy struct {
	MinLength          int
	ForbiddenPasswords []string
}

// DefaultPasswordPolicy matches the stock FlowCraft policy.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:          12,
		ForbiddenPasswords: defaultForbiddenPasswords,
	}
}

// Password checks the candidate against the default policy.
func Password(password string) error {
	return DefaultPasswordPolicy().Check(password)
}

// Check validates password strength. All violations are collected and
// joined into a single error so the user sees the full list at once.
func (p PasswordPolicy) Check(password string) error {
	if strings.TrimSpace(password) == "" {
		return errors.New("Password is required")
	}

	minLength := p.MinLength
	if minLength <= 0 {
		minLength = 12
	}

	var violations []string
	if len(password) < minLength {
		violations = append(violations, fmt.Sprintf("Password must be at least %d characters long", minLength))
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'a' && r <= 'z' }) {
		violations = append(violations, "Password must contain at least one lowercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= 'A' && r <= 'Z' }) {
		violations = append(violations, "Password must contain at least one uppercase letter")
	}
	if !strings.ContainsFunc(password, func(r rune) bool { return r >= '0' && r <= '9' }) {
		violations = append(violations, "Password must contain at least one number")
	}
	if !strings.ContainsAny(password, `!@#$%^&*()_+-=[]{};':"\|,.<>/?`) {
		violations = append(violations, "Password must contain at least one special character")
	}

	forbidden := p.ForbiddenPasswords
	if forbidden == nil {
		forbidden = defaultForbiddenPasswords
	}
	lower := strings.ToLower(password)
	for _, weak := range forbidden {
		if lower == strings.ToLower(weak) {
			violations = append(violations, "Password is too common. Please choose a stronger password")
			break
		}
	}

	if hasAscendingRun(lower, 3) {
		violations = append(violations, "Password should not contain sequential characters")
	}
	if hasRepeatedRun(password, 3) {
		violations = append(violations, "Password should not contain repeated characters")
	}

	if len(violations) > 0 {
		return errors.New(strings.Join(violations, ". "))
	}
	return nil
}

// hasAscendingRun reports whether s contains n consecutive ascending
// letters or digits (abc, 123). Sequences never cross the letter/digit
// boundary.
func hasAscendingRun(s string, n int) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		ascending := cur == prev+1 &&
			((prev >= 'a' && cur <= 'z') || (prev >= '0' && cur <= '9'))
		if ascending {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// hasRepeatedRun reports whether any character appears n or more times in
// a row.
func hasRepeatedRun(s string, n int) bool {
	runes := []rune(s)
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= n {
				return true
			}
		} else {
			run = 1
		}
	}
	return false
}

// ProcessData is the client-side projection of a process row.
type ProcessData struct {
	ShortName string
	// WorkingDay is 1..31 for the current month or -1..-31 for the
	// previous month; 0 is invalid. Nil means unset.
	WorkingDay *int
	DueTime    string
}

var dueTimePattern = regexp.MustCompile(`^([0-1]?[0-9]|2[0-3]):[0-5][0-9]$`)

// Process checks process field constraints.
func Process(data ProcessData) error {
	if strings.TrimSpace(data.ShortName) == "" {
		return errors.New("Process name is required")
	}
	if len(data.ShortName) > 50 {
		return errors.New("Process name must be 50 characters or less")
	}
	if data.WorkingDay != nil {
		wd := *data.WorkingDay
		if wd == 0 || wd > 31 || wd < -31 {
			return errors.New("Working day must be 1-31 for current month or -1 to -31 for previous month (cannot be 0)")
		}
	}
	if data.DueTime != "" && !dueTimePattern.MatchString(data.DueTime) {
		return errors.New("Due time must be in HH:MM format")
	}
	return nil
}

// Project checks project field constraints.
func Project(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("Project name is required")
	}
	if len(name) > 100 {
		return errors.New("Project name must be 100 characters or less")
	}
	return nil
}

// htmlEscaper covers the characters the front-end escapes before
// injecting user content into markup, including the forward slash.
var htmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// EscapeHTML escapes user-supplied text for safe interpolation into HTML.
func EscapeHTML(s string) string {
	return htmlEscaper.Replace(s)
}
