package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	u, err := f.users.Register(ctx, " New@X.com ", testPassword, []string{domain.RoleTeacher, domain.RoleStaff})
	require.NoError(t, err)
	require.Equal(t, "new@x.com", u.Email)
	require.NotEqual(t, testPassword, u.PasswordHash)

	profile, err := f.users.Profile(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleStaff, domain.RoleTeacher}, profile.Roles)
	require.False(t, profile.TOTPEnabled)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := f.users.Register(ctx, "NEW@x.com", testPassword, nil)
		require.ErrorIs(t, err, service.ErrEmailTaken)
	})

	t.Run("invalid email", func(t *testing.T) {
		for _, email := range []string{"", "not-an-email", "Bob <bob@x.com>"} {
			_, err := f.users.Register(ctx, email, testPassword, nil)
			require.ErrorIs(t, err, service.ErrInvalidEmail, "email %q", email)
		}
	})

	t.Run("weak password", func(t *testing.T) {
		for _, pw := range []string{"Ab1", "secret1", "SECRET1", "Secretly"} {
			_, err := f.users.Register(ctx, "weak@x.com", pw, nil)
			require.ErrorIs(t, err, service.ErrWeakPassword, "password %q", pw)
		}
	})

	t.Run("unknown role rolls back the user", func(t *testing.T) {
		_, err := f.users.Register(ctx, "role@x.com", testPassword, []string{"Janitor"})
		require.ErrorIs(t, err, service.ErrUnknownRole)

		_, err = f.users.Register(ctx, "role@x.com", testPassword, nil)
		require.NoError(t, err)
	})
}

func TestAssignRole(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, testEmail)

	require.NoError(t, f.users.AssignRole(ctx, u.ID, domain.RoleAdmin))
	require.NoError(t, f.users.AssignRole(ctx, u.ID, domain.RoleAdmin))

	roles, err := f.users.Roles(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, []string{domain.RoleAdmin}, roles)

	require.ErrorIs(t, f.users.AssignRole(ctx, u.ID, "Janitor"), service.ErrUnknownRole)
	require.ErrorIs(t, f.users.AssignRole(ctx, "missing", domain.RoleAdmin), service.ErrUserNotFound)
}

func TestEnsureAdmin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	data := domain.BootstrapData{AdminEmail: "admin@x.com", AdminPassword: "Admin123"}

	created, err := f.users.EnsureAdmin(ctx, data)
	require.NoError(t, err)
	require.True(t, created)

	created, err = f.users.EnsureAdmin(ctx, data)
	require.NoError(t, err)
	require.False(t, created)

	roles, err := f.users.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 3)

	pair, err := f.session.Login(ctx, "admin@x.com", "Admin123", "")
	require.NoError(t, err)

	claims, err := f.signer.ReadClaims(pair.AccessToken, true, t0)
	require.NoError(t, err)
	require.True(t, claims.HasRole(domain.RoleAdmin))
}

func TestTOTP(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	u := f.register(t, testEmail)

	require.ErrorIs(t, f.users.ConfirmTOTP(ctx, u.ID, "123456"), service.ErrTOTPNotEnrolled)

	enrollment, err := f.users.EnrollTOTP(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, enrollment.Secret)
	require.Contains(t, enrollment.URL, "otpauth://totp/")
	require.Equal(t, testEmail, enrollment.Account)

	// Pending enrollment does not change login yet.
	_, err = f.session.Login(ctx, testEmail, testPassword, "")
	require.NoError(t, err)

	require.ErrorIs(t, f.users.ConfirmTOTP(ctx, u.ID, "000000"), service.ErrInvalidTOTPCode)

	code, err := totp.GenerateCode(enrollment.Secret, t0)
	require.NoError(t, err)
	require.NoError(t, f.users.ConfirmTOTP(ctx, u.ID, code))

	_, err = f.users.EnrollTOTP(ctx, u.ID)
	require.ErrorIs(t, err, service.ErrTOTPAlreadyEnabled)

	t.Run("login requires the code", func(t *testing.T) {
		_, err := f.session.Login(ctx, testEmail, testPassword, "")
		require.ErrorIs(t, err, service.ErrTwoFactorRequired)
	})

	t.Run("wrong code counts as a failure", func(t *testing.T) {
		_, err := f.session.Login(ctx, testEmail, testPassword, "000000")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)

		stored, err := f.store.Users().GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.Equal(t, 1, stored.FailedLoginCount)
	})

	t.Run("correct code", func(t *testing.T) {
		f.clock.Set(t0.Add(time.Minute))
		code, err := totp.GenerateCode(enrollment.Secret, t0.Add(time.Minute))
		require.NoError(t, err)

		_, err = f.session.Login(ctx, testEmail, testPassword, code)
		require.NoError(t, err)

		profile, err := f.users.Profile(ctx, u.ID)
		require.NoError(t, err)
		require.True(t, profile.TOTPEnabled)
	})
}
