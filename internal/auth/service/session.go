package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/eslschool/esladmin/pkg/slogx"
)

const TokenTypeBearer = "Bearer"

// SessionLifecycle is the whole login / refresh / logout surface.
type SessionLifecycle interface {
	Login(ctx context.Context, email, password, totpCode string) (*domain.TokenPair, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) (*domain.TokenPair, error)
	Logout(ctx context.Context, userID, rawAccessToken string) error
}

// AccessTokenSigner issues access tokens and reads them back.
// *jwtx.HS256Signer satisfies it.
type AccessTokenSigner interface {
	Issue(subject, email string, roles []string, now time.Time) (string, time.Time, error)
	ReadClaims(token string, validateLifetime bool, now time.Time) (jwtx.Claims, error)
}

var _ SessionLifecycle = (*SessionService)(nil)

type SessionService struct {
	Store         store.Store
	Signer        AccessTokenSigner
	Users         *UserService
	RefreshTokens *RefreshTokenStore
	Blacklist     *Blacklist
	Observer      Observer

	Now func() time.Time
}

// Login authenticates the user and issues a new access and refresh token.
func (s *SessionService) Login(ctx context.Context, email, password, totpCode string) (pair *domain.TokenPair, err error) {
	defer func() { observerOrNop(s.Observer).LoginAttempt(ErrorCode(err)) }()

	l := slogx.FromContext(ctx)
	now := clockNow(s.Now)

	user, err := s.Users.Authenticate(ctx, email, password, totpCode)
	if err != nil {
		return nil, err
	}

	roles, err := s.Users.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.Signer.Issue(user.ID, user.Email, roles, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err := s.RefreshTokens.Create(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	l.Info("login succeeded", slog.String("user_id", user.ID))
	return newTokenPair(access, accessExp, refresh), nil
}

// Refresh exchanges a refresh token for a new pair. The access token may be
// expired but must carry a valid signature, and its subject must own the
// refresh token. The presented refresh token is revoked and a new one is
// created in the same transaction, so it can be used at most once.
func (s *SessionService) Refresh(ctx context.Context, accessToken, refreshToken string) (pair *domain.TokenPair, err error) {
	defer func() { observerOrNop(s.Observer).RefreshAttempt(ErrorCode(err)) }()

	l := slogx.FromContext(ctx)
	now := clockNow(s.Now)

	claims, err := s.Signer.ReadClaims(accessToken, false, now)
	if err != nil {
		return nil, tokenErr(err)
	}

	rt, err := s.RefreshTokens.FindByValue(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if rt.UserID != claims.Subject {
		l.Warn("refresh token presented with another user's access token",
			slog.String("token_user_id", rt.UserID),
			slog.String("claims_sub", claims.Subject),
		)
		return nil, ErrRefreshTokenNotFound
	}
	if !rt.IsActive(now) {
		if rt.Revoked {
			l.Warn("revoked refresh token presented", slog.String("user_id", rt.UserID))
		}
		return nil, ErrRefreshTokenExpiredOrRevoked
	}

	user, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrRefreshTokenNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	roles, err := s.Users.Roles(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	access, accessExp, err := s.Signer.Issue(user.ID, user.Email, roles, now)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	var next domain.IssuedRefreshToken
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		rts := s.RefreshTokens.In(tx)
		if err := rts.RevokeByValue(ctx, refreshToken, now); err != nil {
			return err
		}
		var err error
		next, err = rts.Create(ctx, user.ID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRefreshTokenExpiredOrRevoked) {
			l.Warn("refresh token reused concurrently", slog.String("user_id", user.ID))
		}
		return nil, storeErr(err)
	}

	l.Info("token refreshed", slog.String("user_id", user.ID))
	return newTokenPair(access, accessExp, next), nil
}

// Logout revokes every refresh token of userID and blacklists the presented
// access token until its expiry. If blacklisting fails after the refresh
// tokens were revoked the revocation stands and ErrLogoutIncomplete is
// returned.
func (s *SessionService) Logout(ctx context.Context, userID, rawAccessToken string) (err error) {
	defer func() { observerOrNop(s.Observer).LogoutAttempt(ErrorCode(err)) }()

	l := slogx.FromContext(ctx)
	now := clockNow(s.Now)

	claims, err := s.Signer.ReadClaims(rawAccessToken, false, now)
	if err != nil {
		return tokenErr(err)
	}
	if claims.Subject != userID {
		return fmt.Errorf("%w: subject does not match caller", ErrInvalidTokenFormat)
	}

	n, err := s.RefreshTokens.RevokeAllForUser(ctx, userID, now)
	if err != nil {
		return err
	}

	if err := s.Blacklist.Add(ctx, rawAccessToken, userID, claims.Expiry(), now); err != nil {
		l.Error("logout: refresh tokens revoked but blacklisting failed",
			slog.String("user_id", userID),
			slog.Int64("revoked_refresh_tokens", n),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrLogoutIncomplete, err)
	}

	l.Info("logout", slog.String("user_id", userID), slog.Int64("revoked_refresh_tokens", n))
	return nil
}

func newTokenPair(access string, accessExp time.Time, refresh domain.IssuedRefreshToken) *domain.TokenPair {
	return &domain.TokenPair{
		AccessToken:           access,
		AccessTokenExpiresAt:  accessExp,
		RefreshToken:          refresh.Value,
		RefreshTokenExpiresAt: refresh.ExpiresAt,
		TokenType:             TokenTypeBearer,
	}
}
