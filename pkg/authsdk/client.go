package authsdk

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// SDKClient talks to the ESLAdmin auth endpoints. It covers the
// unauthenticated calls and creates Sessions for everything else.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewSDKClient returns a client for baseURL with a 10 second timeout.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Login exchanges credentials for a token pair. totpCode may be empty for
// accounts without a second factor.
func (c *SDKClient) Login(ctx context.Context, email, password, totpCode string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login", LoginRequest{
		Email:    email,
		Password: password,
		TOTPCode: totpCode,
	}, "")
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new pair. The presented refresh
// token is spent whether or not the caller receives the response.
func (c *SDKClient) Refresh(ctx context.Context, accessToken, refreshToken string) (*TokenResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/refresh-token", RefreshRequest{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, "")
	if err != nil {
		return nil, err
	}

	var out TokenResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes every session of the token's owner and blacklists
// accessToken.
func (c *SDKClient) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil, accessToken)
	if err != nil {
		return err
	}
	return decodeJSON(resp, nil, http.StatusOK)
}

// Me returns the profile of the token's owner.
func (c *SDKClient) Me(ctx context.Context, accessToken string) (*ProfileResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/auth/me", nil, accessToken)
	if err != nil {
		return nil, err
	}

	var out ProfileResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticateWithPassword logs in and wraps the pair in a Session.
func (c *SDKClient) AuthenticateWithPassword(ctx context.Context, email, password, totpCode string) (*Session, error) {
	tokens, err := c.Login(ctx, email, password, totpCode)
	if err != nil {
		return nil, err
	}
	return newSession(c, tokens), nil
}

// NewSessionFromTokens wraps tokens obtained elsewhere.
func (c *SDKClient) NewSessionFromTokens(tokens *TokenResponse) *Session {
	return newSession(c, tokens)
}
