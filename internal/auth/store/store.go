package store

import (
	"context"
	"errors"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface implemented by the sqlite and
// postgres drivers. Repositories hang off it so that a Tx can hand out the
// same repositories bound to the transaction.
type Store interface {
	Users() Users
	Roles() Roles
	RefreshTokens() RefreshTokens
	BlacklistedTokens() BlacklistedTokens

	ApplyMigrations(ctx context.Context) error

	// Tx starts a read/write transaction. The caller must Commit or Rollback.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise. Inside fn only the repositories of tx may be
	// used.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error
	Ping(ctx context.Context) error
}

// Tx is a Store bound to an open transaction. Nested transactions are not
// supported.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalised address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	IsEmpty(ctx context.Context) (bool, error)

	// IncrementFailedLogins atomically bumps the failure counter and returns
	// the new value.
	IncrementFailedLogins(ctx context.Context, userID string, now time.Time) (int, error)

	// LockUser sets lockout_end and clears the failure counter.
	LockUser(ctx context.Context, userID string, until, now time.Time) error

	// ResetLoginFailures clears both the counter and any lockout.
	ResetLoginFailures(ctx context.Context, userID string, now time.Time) error

	// SetTOTPSecret stores a pending secret and clears totp_enabled_at.
	SetTOTPSecret(ctx context.Context, userID, secret string, now time.Time) error

	// EnableTOTP marks the stored secret as confirmed.
	EnableTOTP(ctx context.Context, userID string, now time.Time) error
}

type Roles interface {
	GetRoleByName(ctx context.Context, name string) (domain.Role, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)

	// CreateRole returns ErrAlreadyExists when the name is taken.
	CreateRole(ctx context.Context, r domain.Role) error

	// AssignRole is idempotent.
	AssignRole(ctx context.Context, userID, roleID string) error

	// ListUserRoleNames returns role names sorted by name.
	ListUserRoleNames(ctx context.Context, userID string) ([]string, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash looks a token up by its fingerprint.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeActiveRefreshToken flips revoked only if the row is not already
	// revoked and reports whether this call made the change. Exactly one of
	// several concurrent callers observes true.
	RevokeActiveRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error)

	// RevokeAllUserRefreshTokens revokes every unrevoked token of userID and
	// returns how many rows changed.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error)

	// DeleteExpiredRefreshTokens removes rows with expires_at < now.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type BlacklistedTokens interface {
	// CreateBlacklistedToken returns ErrAlreadyExists when the hash is
	// already present.
	CreateBlacklistedToken(ctx context.Context, t domain.BlacklistedToken) error

	// BlacklistedTokenExists is an indexed lookup on token_hash.
	BlacklistedTokenExists(ctx context.Context, hash string) (bool, error)

	// DeleteExpiredBlacklistedTokens removes rows with expires_at < now.
	DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) (int64, error)
}
