package postgres

import (
	"context"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/jackc/pgx/v5"
)

type usersRepo struct {
	db      querier
	timeout time.Duration
}

const (
	qUserSelect = `
SELECT id, email, password_hash, failed_login_count, lockout_end,
       totp_secret, totp_enabled_at, created_at, updated_at
FROM users`

	qUserCreate = `
INSERT INTO users (id, email, password_hash, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	qUserIncrementFailures = `
UPDATE users SET failed_login_count = failed_login_count + 1, updated_at = $2
WHERE id = $1
RETURNING failed_login_count`

	qUserLock = `
UPDATE users SET failed_login_count = 0, lockout_end = $2, updated_at = $3
WHERE id = $1`

	qUserResetFailures = `
UPDATE users SET failed_login_count = 0, lockout_end = NULL, updated_at = $2
WHERE id = $1`

	qUserSetTOTP = `
UPDATE users SET totp_secret = $2, totp_enabled_at = NULL, updated_at = $3
WHERE id = $1`

	qUserEnableTOTP = `
UPDATE users SET totp_enabled_at = $2, updated_at = $2
WHERE id = $1 AND totp_secret IS NOT NULL`
)

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FailedLoginCount, &u.LockoutEnd,
		&u.TOTPSecret, &u.TOTPEnabledAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, mapErr(err)
	}
	u.LockoutEnd = utc(u.LockoutEnd)
	u.TOTPEnabledAt = utc(u.TOTPEnabledAt)
	u.CreatedAt = u.CreatedAt.UTC()
	u.UpdatedAt = u.UpdatedAt.UTC()
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, qUserSelect+` WHERE id = $1`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()
	return scanUser(r.db.QueryRow(ctx, qUserSelect+` WHERE email = $1`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, qUserCreate, u.ID, u.Email, u.PasswordHash, u.CreatedAt, u.UpdatedAt)
	return mapErr(err)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users)`).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}

func (r *usersRepo) IncrementFailedLogins(ctx context.Context, userID string, now time.Time) (int, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var n int
	if err := r.db.QueryRow(ctx, qUserIncrementFailures, userID, now).Scan(&n); err != nil {
		return 0, mapErr(err)
	}
	return n, nil
}

func (r *usersRepo) LockUser(ctx context.Context, userID string, until, now time.Time) error {
	return r.execOne(ctx, qUserLock, userID, until, now)
}

func (r *usersRepo) ResetLoginFailures(ctx context.Context, userID string, now time.Time) error {
	return r.execOne(ctx, qUserResetFailures, userID, now)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID, secret string, now time.Time) error {
	return r.execOne(ctx, qUserSetTOTP, userID, secret, now)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID string, now time.Time) error {
	return r.execOne(ctx, qUserEnableTOTP, userID, now)
}

func (r *usersRepo) execOne(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
