package http

import (
	"net/http"
	"strings"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/eslschool/esladmin/pkg/slogx"
)

// SessionHandler serves login, refresh and logout.
type SessionHandler struct {
	Sessions service.SessionLifecycle
}

// HandleLogin handles POST /auth/login
//
//	@Summary		Log in
//	@Description	Verifies email and password (and the TOTP code when enabled) and issues an access token and a refresh token.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"InvalidCredentials or malformed body"
//	@Failure		401		{object}	authsdk.APIError	"TwoFactorRequired"
//	@Failure		423		{object}	authsdk.APIError	"AccountLockedOut"
//	@Failure		429		{object}	authsdk.APIError	"RateLimitExceeded"
//	@Router			/auth/login [post].
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		authsdk.ErrInvalidRequest.WithMessage("email and password are required").WriteError(w)
		return
	}

	pair, err := h.Sessions.Login(r.Context(), req.Email, req.Password, strings.TrimSpace(req.TOTPCode))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleRefresh handles POST /auth/refresh-token
//
//	@Summary		Refresh a token pair
//	@Description	Exchanges a refresh token for a new pair. The access token may be expired but must be genuine and belong to the owner of the refresh token.
//	@Description	The presented refresh token is revoked; reusing it fails with RefreshTokenExpiredOrRevoked.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Current pair"
//	@Success		200		{object}	authsdk.TokenResponse
//	@Failure		400		{object}	authsdk.APIError	"RefreshTokenNotFound, RefreshTokenExpiredOrRevoked, InvalidTokenFormat or InvalidSignature"
//	@Failure		429		{object}	authsdk.APIError	"RateLimitExceeded"
//	@Router			/auth/refresh-token [post].
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}
	if req.AccessToken == "" || req.RefreshToken == "" {
		authsdk.ErrInvalidRequest.WithMessage("accessToken and refreshToken are required").WriteError(w)
		return
	}

	pair, err := h.Sessions.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, tokenResponse(pair))
}

// HandleLogout handles POST /auth/logout
//
//	@Summary		Log out
//	@Description	Revokes every refresh token of the caller and blacklists the presented access token until it expires.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	map[string]string
//	@Failure		401	{object}	authsdk.APIError	"Missing, invalid or revoked access token"
//	@Failure		500	{object}	authsdk.APIError	"LogoutIncomplete"
//	@Router			/auth/logout [post].
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserID(ctx)
	raw, hasToken := httpx.BearerToken(ctx)
	if !ok || !hasToken {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	if err := h.Sessions.Logout(ctx, userID, raw); err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Debug("logout completed")
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "Logged out."})
}

func tokenResponse(p *domain.TokenPair) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken:           p.AccessToken,
		RefreshToken:          p.RefreshToken,
		TokenType:             p.TokenType,
		ExpiresAt:             p.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: p.RefreshTokenExpiresAt,
	}
}
