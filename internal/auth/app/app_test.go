package app

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	dir := t.TempDir()
	return Config{
		Auth: AuthConfig{
			SigningKey:      strings.Repeat("k", 32),
			Issuer:          "https://esladmin.test",
			Audience:        []string{"esladmin"},
			AccessTokenTTL:  30 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
			PepperFile:      filepath.Join(dir, "pepper"),
			TOTPIssuer:      "ESLAdmin",
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			File:   filepath.Join(dir, "esladmin.db"),
		},
		Bootstrap: BootstrapConfig{
			AdminEmail:    "admin@esl.test",
			AdminPassword: "Admin123",
		},
		Lockout: service.DefaultLockoutPolicy(),
		RateLimit: RateLimitConfig{
			Login:   httpx.StrictLimit,
			Refresh: httpx.StrictLimit,
			User:    httpx.ModerateLimit,
		},
		Env:                  "test",
		LogLevel:             "error",
		LogFormat:            "text",
		Port:                 8080,
		ShutdownGracePeriod:  time.Second,
		HousekeepingInterval: time.Hour,
	}
}

func TestApplicationWiring(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.Validate())

	application, err := New(cfg)
	require.NoError(t, err)
	application.housekeepingService.Start()

	srv := httptest.NewServer(application.router)
	defer srv.Close()

	ctx := context.Background()
	client := authsdk.NewSDKClient(srv.URL)

	ready, err := client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)

	sess, err := client.AuthenticateWithPassword(ctx, "admin@esl.test", "Admin123", "")
	require.NoError(t, err)
	me, err := sess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"Admin"}, me.Roles)
	require.NoError(t, sess.Logout(ctx))

	// The generated pepper is persisted for the next start.
	pepper, err := os.ReadFile(cfg.Auth.PepperFile)
	require.NoError(t, err)
	require.NotEmpty(t, pepper)

	require.NoError(t, application.Shutdown())
}

func TestApplicationRestartKeepsUsers(t *testing.T) {
	cfg := testConfig(t)

	first, err := New(cfg)
	require.NoError(t, err)
	first.housekeepingService.Start()
	require.NoError(t, first.Shutdown())

	// A second start must not fail on the already seeded roles and admin.
	second, err := New(cfg)
	require.NoError(t, err)
	second.housekeepingService.Start()

	srv := httptest.NewServer(second.router)
	defer srv.Close()

	_, err = authsdk.NewSDKClient(srv.URL).Login(context.Background(), "admin@esl.test", "Admin123", "")
	require.NoError(t, err)

	require.NoError(t, second.Shutdown())
}
