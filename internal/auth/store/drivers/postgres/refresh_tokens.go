package postgres

import (
	"context"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
)

type refreshTokensRepo struct {
	db      querier
	timeout time.Duration
}

const (
	qRTCreate = `
INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	qRTByHash = `
SELECT id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at
FROM refresh_tokens
WHERE token_hash = $1`

	qRTRevokeActive = `
UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
WHERE token_hash = $1 AND revoked = FALSE`

	qRTRevokeUser = `
UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2
WHERE user_id = $1 AND revoked = FALSE`

	qRTDeleteExpired = `DELETE FROM refresh_tokens WHERE expires_at < $1`
)

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, qRTCreate,
		t.ID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt, t.Revoked, t.RevokedAt)
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var t domain.RefreshToken
	err := r.db.QueryRow(ctx, qRTByHash, hash).
		Scan(&t.ID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &t.RevokedAt)
	if err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	t.IssuedAt = t.IssuedAt.UTC()
	t.ExpiresAt = t.ExpiresAt.UTC()
	t.RevokedAt = utc(t.RevokedAt)
	return t, nil
}

func (r *refreshTokensRepo) RevokeActiveRefreshToken(ctx context.Context, hash string, now time.Time) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, qRTRevokeActive, hash, now)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, qRTRevokeUser, userID, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, qRTDeleteExpired, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
