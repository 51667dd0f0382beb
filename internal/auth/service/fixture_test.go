package service_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/sqlite"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	testEmail    = "a@x.com"
	testPassword = "Secret1"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recordingObserver struct {
	mu      sync.Mutex
	logins  []string
	refresh []string
	logouts []string
	purged  map[string]int64
}

func (o *recordingObserver) LoginAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logins = append(o.logins, outcome)
}

func (o *recordingObserver) RefreshAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refresh = append(o.refresh, outcome)
}

func (o *recordingObserver) LogoutAttempt(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.logouts = append(o.logouts, outcome)
}

func (o *recordingObserver) Purged(kind string, n int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.purged == nil {
		o.purged = map[string]int64{}
	}
	o.purged[kind] += n
}

type fixture struct {
	store    store.Store
	clock    *clock
	signer   *jwtx.HS256Signer
	users    *service.UserService
	session  *service.SessionService
	observer *recordingObserver
}

func newSigner(t *testing.T, secret string) *jwtx.HS256Signer {
	t.Helper()

	s, err := jwtx.NewHS256Signer([]byte(secret), 30*time.Minute, jwtx.VerifyOptions{
		Issuer:   "https://esladmin.test",
		Audience: []string{"esladmin"},
	})
	require.NoError(t, err)
	return s
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, newSQLiteStore(t))
}

func newSQLiteStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations(context.Background()))
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newFixtureWithStore(t *testing.T, st store.Store) *fixture {
	t.Helper()

	clk := &clock{t: t0}
	signer := newSigner(t, strings.Repeat("s", jwtx.MinSecretLength))
	signer.Now = clk.Now
	obs := &recordingObserver{}

	users := &service.UserService{
		Store:      st,
		Hasher:     cryptox.NewHasher("pepper"),
		Lockout:    service.LockoutPolicy{MaxAttempts: 3, Duration: 15 * time.Minute},
		TOTPIssuer: "ESLAdmin",
		Now:        clk.Now,
	}

	session := &service.SessionService{
		Store:         st,
		Signer:        signer,
		Users:         users,
		RefreshTokens: &service.RefreshTokenStore{Store: st, TTL: 7 * 24 * time.Hour},
		Blacklist:     &service.Blacklist{Store: st},
		Observer:      obs,
		Now:           clk.Now,
	}

	_, err := users.EnsureAdmin(context.Background(), domain.BootstrapData{})
	require.NoError(t, err)

	return &fixture{
		store:    st,
		clock:    clk,
		signer:   signer,
		users:    users,
		session:  session,
		observer: obs,
	}
}

func (f *fixture) register(t *testing.T, email string, roles ...string) domain.User {
	t.Helper()

	u, err := f.users.Register(context.Background(), email, testPassword, roles)
	require.NoError(t, err)
	return u
}
