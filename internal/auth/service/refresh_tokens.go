package service

import (
	"context"
	"errors"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/idx"
	"github.com/eslschool/esladmin/pkg/jwtx"
)

// RefreshTokenStore issues and retires opaque refresh tokens. Only the
// fingerprint of a token value ever reaches the database.
type RefreshTokenStore struct {
	Store store.Store
	TTL   time.Duration

	repo store.RefreshTokens
}

// In returns a copy of s whose writes go through tx.
func (s *RefreshTokenStore) In(tx store.Tx) *RefreshTokenStore {
	cp := *s
	cp.repo = tx.RefreshTokens()
	return &cp
}

func (s *RefreshTokenStore) tokens() store.RefreshTokens {
	if s.repo != nil {
		return s.repo
	}
	return s.Store.RefreshTokens()
}

func (s *RefreshTokenStore) ttl() time.Duration {
	if s.TTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.TTL
}

// Create generates a new token for userID valid from now for the configured
// lifetime. The returned Value is the only copy of the opaque token.
func (s *RefreshTokenStore) Create(ctx context.Context, userID string, now time.Time) (domain.IssuedRefreshToken, error) {
	value, err := cryptox.GenerateToken(cryptox.RefreshTokenSize)
	if err != nil {
		return domain.IssuedRefreshToken{}, err
	}

	rt := domain.RefreshToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		TokenHash: cryptox.FingerprintToken(value),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl()),
	}
	if err := s.tokens().CreateRefreshToken(ctx, rt); err != nil {
		return domain.IssuedRefreshToken{}, storeErr(err)
	}

	return domain.IssuedRefreshToken{RefreshToken: rt, Value: value}, nil
}

// FindByValue looks up the record for an opaque value.
func (s *RefreshTokenStore) FindByValue(ctx context.Context, value string) (domain.RefreshToken, error) {
	if value == "" {
		return domain.RefreshToken{}, ErrRefreshTokenNotFound
	}

	rt, err := s.tokens().GetRefreshTokenByHash(ctx, cryptox.FingerprintToken(value))
	if errors.Is(err, store.ErrNotFound) {
		return domain.RefreshToken{}, ErrRefreshTokenNotFound
	}
	if err != nil {
		return domain.RefreshToken{}, storeErr(err)
	}
	return rt, nil
}

// RevokeAllForUser revokes every live token of userID and returns how many
// were revoked.
func (s *RefreshTokenStore) RevokeAllForUser(ctx context.Context, userID string, now time.Time) (int64, error) {
	n, err := s.tokens().RevokeAllUserRefreshTokens(ctx, userID, now)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

// RevokeByValue revokes a single token with a compare-and-set. When two
// callers race on the same value exactly one succeeds; the other gets
// ErrRefreshTokenExpiredOrRevoked.
func (s *RefreshTokenStore) RevokeByValue(ctx context.Context, value string, now time.Time) error {
	hash := cryptox.FingerprintToken(value)

	ok, err := s.tokens().RevokeActiveRefreshToken(ctx, hash, now)
	if err != nil {
		return storeErr(err)
	}
	if ok {
		return nil
	}

	_, err = s.tokens().GetRefreshTokenByHash(ctx, hash)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ErrRefreshTokenNotFound
	case err != nil:
		return storeErr(err)
	default:
		return ErrRefreshTokenExpiredOrRevoked
	}
}
