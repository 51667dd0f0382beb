package postgres

import (
	"context"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
)

type blacklistRepo struct {
	db      querier
	timeout time.Duration
}

func (r *blacklistRepo) CreateBlacklistedToken(ctx context.Context, t domain.BlacklistedToken) error {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	_, err := r.db.Exec(ctx, `
INSERT INTO blacklisted_tokens (id, token_hash, user_id, expires_at, blacklisted_at)
VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.TokenHash, t.UserID, t.ExpiresAt, t.BlacklistedAt)
	return mapErr(err)
}

func (r *blacklistRepo) BlacklistedTokenExists(ctx context.Context, hash string) (bool, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE token_hash = $1)`, hash).Scan(&exists)
	return exists, err
}

func (r *blacklistRepo) DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx, r.timeout)
	defer cancel()

	tag, err := r.db.Exec(ctx, `DELETE FROM blacklisted_tokens WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
