package http_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	httpapi "github.com/eslschool/esladmin/internal/auth/http"
	"github.com/eslschool/esladmin/internal/auth/metrics"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/sqlite"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/eslschool/esladmin/pkg/slogx"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "admin@esl.test"
	adminPassword = "Admin123"
	userPassword  = "Teach3r!"
)

type testServer struct {
	*httptest.Server
	client  *authsdk.SDKClient
	metrics *metrics.Metrics
}

func newTestServer(t *testing.T, configure ...func(*httpapi.Router)) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations(context.Background()))
	t.Cleanup(func() { _ = st.Close() })

	signer, err := jwtx.NewHS256Signer([]byte(strings.Repeat("k", jwtx.MinSecretLength)), 30*time.Minute, jwtx.VerifyOptions{
		Issuer:   "https://esladmin.test",
		Audience: []string{"esladmin"},
	})
	require.NoError(t, err)

	m := metrics.New()
	users := &service.UserService{
		Store:      st,
		Hasher:     cryptox.NewHasher("pepper"),
		Lockout:    service.DefaultLockoutPolicy(),
		TOTPIssuer: "ESLAdmin",
	}
	blacklist := &service.Blacklist{Store: st}
	sessions := &service.SessionService{
		Store:         st,
		Signer:        signer,
		Users:         users,
		RefreshTokens: &service.RefreshTokenStore{Store: st, TTL: jwtx.DefaultRefreshTokenTTL},
		Blacklist:     blacklist,
		Observer:      m,
	}

	_, err = users.EnsureAdmin(context.Background(), domain.BootstrapData{
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
	})
	require.NoError(t, err)

	router := httpapi.NewRouter(signer, "test", st, m, slogx.Discard())
	router.SessionService = sessions
	router.UserService = users
	router.Blacklist = blacklist
	for _, fn := range configure {
		fn(router)
	}
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{Server: srv, client: authsdk.NewSDKClient(srv.URL), metrics: m}
}

func (s *testServer) login(t *testing.T, email, password string) *authsdk.Session {
	t.Helper()

	sess, err := s.client.AuthenticateWithPassword(context.Background(), email, password, "")
	require.NoError(t, err)
	return sess
}

func (s *testServer) scrape(t *testing.T) string {
	t.Helper()

	resp, err := http.Get(s.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestSessionLifecycleOverHTTP(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	admin := srv.login(t, adminEmail, adminPassword)
	me, err := admin.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, adminEmail, me.Email)
	require.Equal(t, []string{domain.RoleAdmin}, me.Roles)

	created, err := admin.Register(ctx, authsdk.RegisterRequest{
		Email:    "Teacher@ESL.test",
		Password: userPassword,
		Roles:    []string{domain.RoleTeacher},
	})
	require.NoError(t, err)
	require.Equal(t, "teacher@esl.test", created.Email)

	pair, err := srv.client.Login(ctx, "teacher@esl.test", userPassword, "")
	require.NoError(t, err)
	require.Equal(t, service.TokenTypeBearer, pair.TokenType)
	require.True(t, pair.RefreshTokenExpiresAt.After(pair.ExpiresAt))

	rotated, err := srv.client.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, err = srv.client.Refresh(ctx, pair.AccessToken, pair.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrRefreshTokenExpiredOrRevoked)

	require.NoError(t, srv.client.Logout(ctx, rotated.AccessToken))

	_, err = srv.client.Me(ctx, rotated.AccessToken)
	require.ErrorIs(t, err, authsdk.ErrTokenRevoked)

	_, err = srv.client.Refresh(ctx, rotated.AccessToken, rotated.RefreshToken)
	require.ErrorIs(t, err, authsdk.ErrRefreshTokenExpiredOrRevoked)

	body := srv.scrape(t)
	require.Contains(t, body, `esladmin_login_attempts_total{outcome="Success"} 2`)
	require.Contains(t, body, `esladmin_refresh_attempts_total{outcome="RefreshTokenExpiredOrRevoked"} 2`)
	require.Contains(t, body, `esladmin_revoked_token_rejections_total 1`)
	require.Contains(t, body, `route="POST /auth/login"`)
}

func TestRevokedTokenIsRefusedWithPlainText(t *testing.T) {
	srv := newTestServer(t)

	pair, err := srv.client.Login(context.Background(), adminEmail, adminPassword, "")
	require.NoError(t, err)
	require.NoError(t, srv.client.Logout(context.Background(), pair.AccessToken))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, httpx.RevokedMessage, string(body))
}

func TestLoginErrors(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	t.Run("wrong password", func(t *testing.T) {
		_, err := srv.client.Login(ctx, adminEmail, "nope", "")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)

		var apiErr *authsdk.APIError
		require.ErrorAs(t, err, &apiErr)
		require.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := srv.client.Login(ctx, "ghost@esl.test", adminPassword, "")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := srv.client.Login(ctx, "", "", "")
		require.ErrorIs(t, err, authsdk.ErrInvalidRequest)
	})

	t.Run("garbage access token on refresh", func(t *testing.T) {
		_, err := srv.client.Refresh(ctx, "not-a-jwt", "whatever")
		require.ErrorIs(t, err, authsdk.ErrInvalidTokenFormat)
	})
}

func TestAdminEndpointsRequireAdminRole(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	admin := srv.login(t, adminEmail, adminPassword)
	staff, err := admin.Register(ctx, authsdk.RegisterRequest{
		Email:    "staff@esl.test",
		Password: userPassword,
		Roles:    []string{domain.RoleStaff},
	})
	require.NoError(t, err)

	sess := srv.login(t, "staff@esl.test", userPassword)

	_, err = sess.Register(ctx, authsdk.RegisterRequest{Email: "x@esl.test", Password: userPassword})
	require.ErrorIs(t, err, authsdk.ErrForbidden)

	_, err = sess.ListRoles(ctx)
	require.ErrorIs(t, err, authsdk.ErrForbidden)

	roles, err := admin.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)

	require.NoError(t, admin.AssignRole(ctx, staff.ID, domain.RoleTeacher))
	require.ErrorIs(t, admin.AssignRole(ctx, "01NOSUCHUSER", domain.RoleTeacher), authsdk.ErrNotFound)
	require.ErrorIs(t, admin.AssignRole(ctx, staff.ID, "Janitor"), authsdk.ErrInvalidRequest)

	// Profile roles come from the database, not the token.
	me, err := sess.Me(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleStaff, domain.RoleTeacher}, me.Roles)

	_, err = admin.Register(ctx, authsdk.RegisterRequest{Email: "staff@esl.test", Password: userPassword})
	require.ErrorIs(t, err, authsdk.ErrEmailTaken)
}

func TestMissingBearerIsUnauthorized(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/auth/logout", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")

	var eb httpx.ErrorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&eb))
	require.Equal(t, authsdk.CodeUnauthorized, eb.Code)
}

func TestTOTPEnrollmentOverHTTP(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	admin := srv.login(t, adminEmail, adminPassword)

	enrollment, err := admin.EnrollTOTP(ctx)
	require.NoError(t, err)
	require.Equal(t, "ESLAdmin", enrollment.Issuer)
	require.True(t, strings.HasPrefix(enrollment.URL, "otpauth://totp/"))

	require.ErrorIs(t, admin.ConfirmTOTP(ctx, "000000"), authsdk.ErrInvalidTOTPCode)

	code, err := totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, admin.ConfirmTOTP(ctx, code))

	_, err = srv.client.Login(ctx, adminEmail, adminPassword, "")
	require.ErrorIs(t, err, authsdk.ErrTwoFactorRequired)

	code, err = totp.GenerateCode(enrollment.Secret, time.Now())
	require.NoError(t, err)
	_, err = srv.client.Login(ctx, adminEmail, adminPassword, code)
	require.NoError(t, err)

	me, err := admin.Me(ctx)
	require.NoError(t, err)
	require.True(t, me.TOTPEnabled)
}

func TestLoginIsRateLimited(t *testing.T) {
	srv := newTestServer(t, func(r *httpapi.Router) {
		r.LoginLimit = httpx.RateLimitConfig{RequestsPerWindow: 1, Window: time.Hour, Burst: 2}
	})

	ctx := context.Background()
	for range 2 {
		_, err := srv.client.Login(ctx, "ghost@esl.test", "nope", "")
		require.ErrorIs(t, err, authsdk.ErrInvalidCredentials)
	}

	_, err := srv.client.Login(ctx, "ghost@esl.test", "nope", "")
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
	require.Equal(t, authsdk.CodeRateLimitExceeded, apiErr.Code)

	require.Contains(t, srv.scrape(t), `esladmin_rate_limited_requests_total 1`)
}

func TestHealthEndpoints(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t)

	live, err := srv.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := srv.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
}
