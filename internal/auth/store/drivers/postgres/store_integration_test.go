//go:build integration

package postgres_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/postgres"
	"github.com/eslschool/esladmin/pkg/idx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *postgres.Store {
	t.Helper()
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "esladmin",
				"POSTGRES_PASSWORD": "esladmin",
				"POSTGRES_DB":       "esladmin",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	s, err := postgres.NewStore(ctx, postgres.Config{
		URL:          fmt.Sprintf("postgres://esladmin:esladmin@%s:%s/esladmin?sslmode=disable", host, port.Port()),
		MaxConns:     8,
		QueryTimeout: 5 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.ApplyMigrations(ctx))
	require.NoError(t, s.ApplyMigrations(ctx))
	return s
}

func TestPostgresStore(t *testing.T) {
	ctx := context.Background()
	s := startPostgres(t)
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	u := domain.User{ID: idx.New().String(), Email: "a@x.com", PasswordHash: "h", CreatedAt: t0, UpdatedAt: t0}
	require.NoError(t, s.Users().CreateUser(ctx, u))
	require.ErrorIs(t, s.Users().CreateUser(ctx, u), store.ErrAlreadyExists)

	got, err := s.Users().GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)
	require.True(t, got.CreatedAt.Equal(t0))

	n, err := s.Users().IncrementFailedLogins(ctx, u.ID, t0)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	role := domain.Role{ID: idx.New().String(), Name: domain.RoleAdmin, CreatedAt: t0}
	require.NoError(t, s.Roles().CreateRole(ctx, role))
	require.NoError(t, s.Roles().AssignRole(ctx, u.ID, role.ID))
	require.NoError(t, s.Roles().AssignRole(ctx, u.ID, role.ID))
	names, err := s.Roles().ListUserRoleNames(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleAdmin}, names)

	t.Run("refresh token revoke race", func(t *testing.T) {
		require.NoError(t, s.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
			ID: idx.New().String(), UserID: u.ID, TokenHash: "race",
			IssuedAt: t0, ExpiresAt: t0.Add(time.Hour),
		}))

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = s.WithTx(ctx, func(tx store.Tx) error {
					ok, err := tx.RefreshTokens().RevokeActiveRefreshToken(ctx, "race", t0)
					if ok {
						mu.Lock()
						wins++
						mu.Unlock()
					}
					return err
				})
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})

	t.Run("blacklist purge", func(t *testing.T) {
		for hash, exp := range map[string]time.Time{
			"past":   t0.Add(-time.Second),
			"exact":  t0,
			"future": t0.Add(time.Second),
		} {
			require.NoError(t, s.BlacklistedTokens().CreateBlacklistedToken(ctx, domain.BlacklistedToken{
				ID: idx.New().String(), TokenHash: hash, UserID: u.ID, ExpiresAt: exp, BlacklistedAt: t0,
			}))
		}

		n, err := s.BlacklistedTokens().DeleteExpiredBlacklistedTokens(ctx, t0)
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		ok, err := s.BlacklistedTokens().BlacklistedTokenExists(ctx, "exact")
		require.NoError(t, err)
		require.True(t, ok)
	})
}
