package authsdk_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestLoginDecodesPair(t *testing.T) {
	exp := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/login", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req authsdk.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "a@x.com", req.Email)
		require.Equal(t, "123456", req.TOTPCode)

		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
			AccessToken:  "access",
			RefreshToken: "refresh",
			TokenType:    "Bearer",
			ExpiresAt:    exp,
		})
	}))
	defer srv.Close()

	pair, err := authsdk.NewSDKClient(srv.URL+"/").Login(context.Background(), "a@x.com", "Secret1", "123456")
	require.NoError(t, err)
	require.Equal(t, "access", pair.AccessToken)
	require.Equal(t, "refresh", pair.RefreshToken)
	require.True(t, exp.Equal(pair.ExpiresAt))
}

func TestErrorsAreTyped(t *testing.T) {
	ctx := context.Background()

	t.Run("json error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			authsdk.ErrInvalidCredentials.WriteError(w)
		}))
		defer srv.Close()

		_, err := authsdk.NewSDKClient(srv.URL).Login(ctx, "a@x.com", "nope", "")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
		require.NotErrorIs(t, err, authsdk.ErrAccountLockedOut)

		apiErr, ok := err.(*authsdk.APIError)
		require.True(t, ok)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("revoked token plain text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(httpx.RevokedMessage))
		}))
		defer srv.Close()

		_, err := authsdk.NewSDKClient(srv.URL).Me(ctx, "token")
		require.ErrorIs(t, err, authsdk.ErrTokenRevoked)
	})

	t.Run("unknown body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer srv.Close()

		err := authsdk.NewSDKClient(srv.URL).Logout(ctx, "token")
		require.ErrorIs(t, err, authsdk.ErrServerError)
		require.Contains(t, err.Error(), "HTTP 502")
	})
}

func TestSessionRefreshesExpiredAccessToken(t *testing.T) {
	var refreshes atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/refresh-token", func(w http.ResponseWriter, r *http.Request) {
		var req authsdk.RefreshRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "old-access", req.AccessToken)
		require.Equal(t, "old-refresh", req.RefreshToken)
		refreshes.Add(1)

		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenResponse{
			AccessToken:  "new-access",
			RefreshToken: "new-refresh",
			TokenType:    "Bearer",
			ExpiresAt:    time.Now().Add(30 * time.Minute),
		})
	})
	mux.HandleFunc("GET /auth/me", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer new-access", r.Header.Get("Authorization"))
		httpx.WriteJSON(w, http.StatusOK, authsdk.ProfileResponse{ID: "u1", Email: "a@x.com"})
	})
	mux.HandleFunc("POST /auth/logout", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := authsdk.NewSDKClient(srv.URL)
	session := client.NewSessionFromTokens(&authsdk.TokenResponse{
		AccessToken:  "old-access",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
	})

	ctx := context.Background()
	for range 3 {
		me, err := session.Me(ctx)
		require.NoError(t, err)
		require.Equal(t, "u1", me.ID)
	}
	require.EqualValues(t, 1, refreshes.Load())
	require.Equal(t, "new-refresh", session.Tokens().RefreshToken)

	require.NoError(t, session.Logout(ctx))
	_, err := session.Me(ctx)
	require.ErrorIs(t, err, authsdk.ErrSessionClosed)
}
