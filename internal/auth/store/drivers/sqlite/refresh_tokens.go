package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
)

type refreshTokensRepo struct {
	db dbtx
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.TokenHash, toMillis(t.IssuedAt), toMillis(t.ExpiresAt),
		t.Revoked, toNullMillis(t.RevokedAt),
	)
	return mapConstraint(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var (
		t                   domain.RefreshToken
		issuedAt, expiresAt int64
		revokedAt           sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at
		FROM refresh_tokens WHERE token_hash = ?`, hash,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &issuedAt, &expiresAt, &t.Revoked, &revokedAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}

	t.IssuedAt = fromMillis(issuedAt)
	t.ExpiresAt = fromMillis(expiresAt)
	t.RevokedAt = fromNullMillis(revokedAt)
	return t, nil
}

func (r *refreshTokensRepo) RevokeActiveRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE token_hash = ? AND revoked = 0`,
		toMillis(now), hash,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = 1, revoked_at = ?
		WHERE user_id = ? AND revoked = 0`,
		toMillis(now), userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
