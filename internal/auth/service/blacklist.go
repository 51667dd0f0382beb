package service

import (
	"context"
	"errors"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/idx"
)

// Blacklist records access tokens revoked before their natural expiry.
// Entries are keyed by the hex SHA-256 of the raw token.
type Blacklist struct {
	Store store.Store
}

// Add blacklists rawToken until expiresAt. Adding the same token twice is
// not an error.
func (b *Blacklist) Add(ctx context.Context, rawToken, userID string, expiresAt, now time.Time) error {
	entry := domain.BlacklistedToken{
		ID:            idx.NewAt(now).String(),
		TokenHash:     cryptox.HashTokenHex(rawToken),
		UserID:        userID,
		ExpiresAt:     expiresAt,
		BlacklistedAt: now,
	}

	err := b.Store.BlacklistedTokens().CreateBlacklistedToken(ctx, entry)
	if errors.Is(err, store.ErrAlreadyExists) {
		return nil
	}
	return storeErr(err)
}

// IsBlacklisted satisfies httpx.RevocationChecker.
func (b *Blacklist) IsBlacklisted(ctx context.Context, rawToken string) (bool, error) {
	ok, err := b.Store.BlacklistedTokens().BlacklistedTokenExists(ctx, cryptox.HashTokenHex(rawToken))
	if err != nil {
		return false, storeErr(err)
	}
	return ok, nil
}

// PurgeExpired drops entries whose token expired before now.
func (b *Blacklist) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := b.Store.BlacklistedTokens().DeleteExpiredBlacklistedTokens(ctx, now)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}
