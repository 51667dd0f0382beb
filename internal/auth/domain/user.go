package domain

import (
	"strings"
	"time"
)

type User struct {
	ID               string
	Email            string // stored lowercase
	PasswordHash     string // argon2id PHC string
	FailedLoginCount int
	LockoutEnd       *time.Time
	TOTPSecret       *string // base32, set on enrollment
	TOTPEnabledAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsLockedOut reports whether sign-in is refused at now.
func (u User) IsLockedOut(now time.Time) bool {
	return u.LockoutEnd != nil && u.LockoutEnd.After(now)
}

// TOTPEnabled reports whether a confirmed second factor is required.
func (u User) TOTPEnabled() bool {
	return u.TOTPEnabledAt != nil && u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// NormalizeEmail is the canonical form used for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Profile is the view of a user returned to the user themselves.
type Profile struct {
	ID          string
	Email       string
	Roles       []string
	TOTPEnabled bool
	CreatedAt   time.Time
}
