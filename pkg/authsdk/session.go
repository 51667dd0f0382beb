package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"
)

// refreshBuffer is how long before expiry a Session refreshes its access
// token.
const refreshBuffer = 30 * time.Second

// ErrSessionClosed is returned by a Session after Logout.
var ErrSessionClosed = errors.New("authsdk: session closed")

// Session holds a token pair and refreshes the access token on demand. It
// is safe for concurrent use; concurrent callers share a single refresh.
type Session struct {
	client *SDKClient

	mu     sync.Mutex
	tokens TokenResponse
	closed bool
}

func newSession(c *SDKClient, tokens *TokenResponse) *Session {
	return &Session{client: c, tokens: *tokens}
}

// Tokens returns a copy of the current pair.
func (s *Session) Tokens() TokenResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens
}

// AccessToken returns a usable access token, refreshing first if the
// current one is about to expire. A refresh rotates the refresh token.
func (s *Session) AccessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSessionClosed
	}
	if time.Now().Add(refreshBuffer).Before(s.tokens.ExpiresAt) {
		return s.tokens.AccessToken, nil
	}

	next, err := s.client.Refresh(ctx, s.tokens.AccessToken, s.tokens.RefreshToken)
	if err != nil {
		return "", err
	}
	s.tokens = *next
	return s.tokens.AccessToken, nil
}

// Logout ends the session server side. The Session is unusable afterwards.
func (s *Session) Logout(ctx context.Context) error {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return err
	}
	if err := s.client.Logout(ctx, token); err != nil {
		return err
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Me returns the profile of the session's user.
func (s *Session) Me(ctx context.Context) (*ProfileResponse, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.Me(ctx, token)
}

// Register creates a user. Requires the Admin role.
func (s *Session) Register(ctx context.Context, req RegisterRequest) (*UserResponse, error) {
	var out UserResponse
	if err := s.call(ctx, http.MethodPost, "/auth/register", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// AssignRole adds role to the user. Requires the Admin role.
func (s *Session) AssignRole(ctx context.Context, userID, role string) error {
	path := "/auth/users/" + url.PathEscape(userID) + "/roles"
	return s.call(ctx, http.MethodPost, path, AssignRoleRequest{Role: role}, nil, http.StatusNoContent)
}

// ListRoles returns every defined role. Requires the Admin role.
func (s *Session) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	var out []RoleResponse
	if err := s.call(ctx, http.MethodGet, "/auth/roles", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return out, nil
}

// EnrollTOTP starts authenticator enrollment for the session's user.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	var out TOTPEnrollResponse
	if err := s.call(ctx, http.MethodPost, "/auth/totp/enroll", nil, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ConfirmTOTP enables the pending authenticator. Subsequent logins need a
// TOTP code.
func (s *Session) ConfirmTOTP(ctx context.Context, code string) error {
	return s.call(ctx, http.MethodPost, "/auth/totp/confirm", TOTPConfirmRequest{Code: code}, nil, http.StatusNoContent)
}

func (s *Session) call(ctx context.Context, method, path string, body, target any, expected int) error {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return err
	}

	resp, err := s.client.doRequest(ctx, method, path, body, token)
	if err != nil {
		return err
	}
	return decodeJSON(resp, target, expected)
}
