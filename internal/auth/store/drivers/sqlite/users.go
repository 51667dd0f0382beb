package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
)

type usersRepo struct {
	db dbtx
}

const userColumns = `id, email, password_hash, failed_login_count, lockout_end,
	totp_secret, totp_enabled_at, created_at, updated_at`

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		u                    domain.User
		lockoutEnd, totpAt   sql.NullInt64
		totpSecret           sql.NullString
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FailedLoginCount, &lockoutEnd,
		&totpSecret, &totpAt, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}

	u.LockoutEnd = fromNullMillis(lockoutEnd)
	u.TOTPSecret = fromNullString(totpSecret)
	u.TOTPEnabledAt = fromNullMillis(totpAt)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, failed_login_count, lockout_end,
			totp_secret, totp_enabled_at, created_at, updated_at)
		VALUES (?, ?, ?, 0, NULL, NULL, NULL, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

func (r *usersRepo) IncrementFailedLogins(ctx context.Context, userID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		UPDATE users
		SET failed_login_count = failed_login_count + 1, updated_at = ?
		WHERE id = ?
		RETURNING failed_login_count`,
		toMillis(now), userID,
	).Scan(&n)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return n, nil
}

func (r *usersRepo) LockUser(ctx context.Context, userID string, until, now time.Time) error {
	return r.execOne(ctx, `
		UPDATE users SET failed_login_count = 0, lockout_end = ?, updated_at = ?
		WHERE id = ?`,
		toMillis(until), toMillis(now), userID,
	)
}

func (r *usersRepo) ResetLoginFailures(ctx context.Context, userID string, now time.Time) error {
	return r.execOne(ctx, `
		UPDATE users SET failed_login_count = 0, lockout_end = NULL, updated_at = ?
		WHERE id = ?`,
		toMillis(now), userID,
	)
}

func (r *usersRepo) SetTOTPSecret(ctx context.Context, userID, secret string, now time.Time) error {
	return r.execOne(ctx, `
		UPDATE users SET totp_secret = ?, totp_enabled_at = NULL, updated_at = ?
		WHERE id = ?`,
		secret, toMillis(now), userID,
	)
}

func (r *usersRepo) EnableTOTP(ctx context.Context, userID string, now time.Time) error {
	return r.execOne(ctx, `
		UPDATE users SET totp_enabled_at = ?, updated_at = ?
		WHERE id = ? AND totp_secret IS NOT NULL`,
		toMillis(now), toMillis(now), userID,
	)
}

// execOne runs an update that must touch exactly one row.
func (r *usersRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
