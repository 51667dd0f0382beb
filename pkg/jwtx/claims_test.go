package jwtx_test

import (
	"testing"
	"time"

	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestValidateIssuer(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "esladmin"}}

	require.NoError(t, c.ValidateIssuer("esladmin"))
	require.NoError(t, c.ValidateIssuer(""))
	require.ErrorIs(t, c.ValidateIssuer("other"), jwtx.ErrIssuer)
}

func TestValidateAudience(t *testing.T) {
	c := &jwtx.Claims{RegisteredClaims: jwt.RegisteredClaims{Audience: []string{"admin-ui", "reports"}}}

	t.Run("one match is enough", func(t *testing.T) {
		require.NoError(t, c.ValidateAudience([]string{"nope", "reports"}))
	})

	t.Run("no match", func(t *testing.T) {
		require.ErrorIs(t, c.ValidateAudience([]string{"billing"}), jwtx.ErrAudience)
	})

	t.Run("nothing expected", func(t *testing.T) {
		require.NoError(t, c.ValidateAudience(nil))
	})
}

func TestValidateLifetime(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		claims  jwt.RegisteredClaims
		leeway  time.Duration
		wantErr error
	}{
		{
			name:   "inside window",
			claims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute))},
		},
		{
			name:    "exactly at exp",
			claims:  jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now)},
			wantErr: jwtx.ErrExpired,
		},
		{
			name:    "past exp",
			claims:  jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute))},
			wantErr: jwtx.ErrExpired,
		},
		{
			name:   "past exp within leeway",
			claims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(-10 * time.Second))},
			leeway: 30 * time.Second,
		},
		{
			name: "before nbf",
			claims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
				NotBefore: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			wantErr: jwtx.ErrNotYetValid,
		},
		{
			name:    "missing exp",
			claims:  jwt.RegisteredClaims{},
			wantErr: jwtx.ErrInvalidClaim,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &jwtx.Claims{RegisteredClaims: tt.claims}
			err := c.ValidateLifetime(now, tt.leeway)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestNewAccessClaims(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	roles := []string{"Admin"}

	c := jwtx.NewAccessClaims("user-1", "a@x.com", roles, "esladmin", []string{"admin-ui"}, 30*time.Minute, now)
	roles[0] = "mutated"

	require.Equal(t, "user-1", c.Subject)
	require.Equal(t, []string{"Admin"}, c.Roles)
	require.True(t, c.HasRole("Admin"))
	require.False(t, c.HasRole("Teacher"))
	require.Equal(t, now.Add(30*time.Minute), c.Expiry())
	require.Equal(t, now, c.IssuedAt.Time.UTC())
	require.NotEmpty(t, c.ID)
}
