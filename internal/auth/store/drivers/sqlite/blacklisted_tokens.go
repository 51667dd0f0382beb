package sqlite

import (
	"context"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
)

type blacklistRepo struct {
	db dbtx
}

func (r *blacklistRepo) CreateBlacklistedToken(ctx context.Context, t domain.BlacklistedToken) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blacklisted_tokens (id, token_hash, user_id, expires_at, blacklisted_at)
		VALUES (?, ?, ?, ?, ?)`,
		t.ID, t.TokenHash, t.UserID, toMillis(t.ExpiresAt), toMillis(t.BlacklistedAt),
	)
	return mapConstraint(err)
}

func (r *blacklistRepo) BlacklistedTokenExists(ctx context.Context, hash string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE token_hash = ?)`, hash,
	).Scan(&exists)
	return exists, err
}

func (r *blacklistRepo) DeleteExpiredBlacklistedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM blacklisted_tokens WHERE expires_at < ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
