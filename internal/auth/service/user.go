package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"time"
	"unicode"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/idx"
	"github.com/eslschool/esladmin/pkg/slogx"
)

const (
	DefaultLockoutMaxAttempts = 5
	DefaultLockoutDuration    = 15 * time.Minute

	MinPasswordLength = 6
)

// LockoutPolicy controls how many consecutive failures lock an account and
// for how long. A zero MaxAttempts disables lockout.
type LockoutPolicy struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Duration    time.Duration `mapstructure:"duration"`
}

// DefaultLockoutPolicy matches the usual identity framework defaults.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: DefaultLockoutMaxAttempts, Duration: DefaultLockoutDuration}
}

// UserService is the credential store: it owns user records, password
// verification, lockout and role membership.
type UserService struct {
	Store   store.Store
	Hasher  *cryptox.Hasher
	Lockout LockoutPolicy

	// TOTPIssuer labels enrolled authenticators, e.g. "ESLAdmin".
	TOTPIssuer string

	Now func() time.Time
}

func (s *UserService) hasher() *cryptox.Hasher {
	if s.Hasher == nil {
		return cryptox.NewHasher("")
	}
	return s.Hasher
}

// Authenticate checks email and password, and the TOTP code when the user
// has a confirmed second factor. Unknown email and wrong password both
// return ErrInvalidCredentials after comparable work.
func (s *UserService) Authenticate(ctx context.Context, email, password, totpCode string) (domain.User, error) {
	l := slogx.FromContext(ctx)
	now := clockNow(s.Now)

	user, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		s.hasher().Burn(password)
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, storeErr(err)
	}

	if user.IsLockedOut(now) {
		l.Info("login refused for locked account", slog.String("user_id", user.ID))
		return domain.User{}, ErrAccountLockedOut
	}

	if err := s.hasher().Verify(password, user.PasswordHash); err != nil {
		if errors.Is(err, cryptox.ErrMalformedHash) {
			l.Error("stored password hash is malformed", slog.String("user_id", user.ID))
		}
		return domain.User{}, s.recordFailure(ctx, user, now)
	}

	if user.TOTPEnabled() {
		if totpCode == "" {
			return domain.User{}, ErrTwoFactorRequired
		}
		if !validateTOTP(totpCode, *user.TOTPSecret, now) {
			l.Info("login rejected: wrong TOTP code", slog.String("user_id", user.ID))
			return domain.User{}, s.recordFailure(ctx, user, now)
		}
	}

	if user.FailedLoginCount > 0 || user.LockoutEnd != nil {
		if err := s.Store.Users().ResetLoginFailures(ctx, user.ID, now); err != nil {
			return domain.User{}, storeErr(err)
		}
		user.FailedLoginCount = 0
		user.LockoutEnd = nil
	}

	return user, nil
}

// recordFailure counts a failed attempt and locks the account once the
// policy threshold is reached. The attempt that trips the lock already
// reports ErrAccountLockedOut.
func (s *UserService) recordFailure(ctx context.Context, user domain.User, now time.Time) error {
	n, err := s.Store.Users().IncrementFailedLogins(ctx, user.ID, now)
	if err != nil {
		return storeErr(err)
	}

	if s.Lockout.MaxAttempts <= 0 || n < s.Lockout.MaxAttempts {
		return ErrInvalidCredentials
	}

	until := now.Add(s.Lockout.Duration)
	if err := s.Store.Users().LockUser(ctx, user.ID, until, now); err != nil {
		return storeErr(err)
	}
	slogx.FromContext(ctx).Warn("account locked out",
		slog.String("user_id", user.ID),
		slog.Int("failed_attempts", n),
		slog.Time("until", until),
	)
	return ErrAccountLockedOut
}

// Register creates a user holding roles. Every role must already exist.
func (s *UserService) Register(ctx context.Context, email, password string, roles []string) (domain.User, error) {
	email = domain.NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return domain.User{}, err
	}
	if err := validatePassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := s.hasher().Hash(password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hash password: %w", err)
	}

	now := clockNow(s.Now)
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailTaken
			}
			return storeErr(err)
		}
		for _, name := range roles {
			if err := assignRole(ctx, tx, user.ID, name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	slogx.FromContext(ctx).Info("user registered",
		slog.String("user_id", user.ID),
		slog.Any("roles", roles),
	)
	return user, nil
}

// AssignRole adds roleName to userID. Assigning a held role is a no-op.
func (s *UserService) AssignRole(ctx context.Context, userID, roleName string) error {
	if _, err := s.Store.Users().GetUserByID(ctx, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return storeErr(err)
	}
	return assignRole(ctx, s.Store, userID, roleName)
}

func assignRole(ctx context.Context, st store.Store, userID, roleName string) error {
	role, err := st.Roles().GetRoleByName(ctx, roleName)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrUnknownRole, roleName)
	}
	if err != nil {
		return storeErr(err)
	}
	return storeErr(st.Roles().AssignRole(ctx, userID, role.ID))
}

// Roles lists the role names held by userID, sorted.
func (s *UserService) Roles(ctx context.Context, userID string) ([]string, error) {
	roles, err := s.Store.Roles().ListUserRoleNames(ctx, userID)
	if err != nil {
		return nil, storeErr(err)
	}
	return roles, nil
}

// ListRoles returns every defined role.
func (s *UserService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.Store.Roles().ListRoles(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return roles, nil
}

// Profile returns the user together with their current roles.
func (s *UserService) Profile(ctx context.Context, userID string) (domain.Profile, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Profile{}, ErrUserNotFound
	}
	if err != nil {
		return domain.Profile{}, storeErr(err)
	}

	roles, err := s.Roles(ctx, userID)
	if err != nil {
		return domain.Profile{}, err
	}

	return domain.Profile{
		ID:          user.ID,
		Email:       user.Email,
		Roles:       roles,
		TOTPEnabled: user.TOTPEnabled(),
		CreatedAt:   user.CreatedAt,
	}, nil
}

// EnsureAdmin seeds the built-in roles and, when no user exists yet, the
// first administrator. It reports whether an administrator was created and
// is safe to run on every start.
func (s *UserService) EnsureAdmin(ctx context.Context, data domain.BootstrapData) (bool, error) {
	l := slogx.FromContext(ctx)
	now := clockNow(s.Now)

	names := data.Roles
	if len(names) == 0 {
		names = []string{domain.RoleAdmin, domain.RoleTeacher, domain.RoleStaff}
	}
	for _, name := range names {
		err := s.Store.Roles().CreateRole(ctx, domain.Role{
			ID:        idx.NewAt(now).String(),
			Name:      name,
			CreatedAt: now,
		})
		if err != nil && !errors.Is(err, store.ErrAlreadyExists) {
			return false, storeErr(err)
		}
	}

	if data.AdminEmail == "" {
		return false, nil
	}

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, storeErr(err)
	}
	if !empty {
		l.Debug("bootstrap admin skipped, users already exist")
		return false, nil
	}

	user, err := s.Register(ctx, data.AdminEmail, data.AdminPassword, []string{domain.RoleAdmin})
	if err != nil {
		return false, fmt.Errorf("bootstrap admin: %w", err)
	}
	l.Info("bootstrap admin created", slog.String("user_id", user.ID), slog.String("email", user.Email))
	return true, nil
}

func validateEmail(email string) error {
	if email == "" {
		return ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	return nil
}

// validatePassword requires a minimum length and at least one upper case
// letter, one lower case letter and one digit.
func validatePassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("%w: at least %d characters", ErrWeakPassword, MinPasswordLength)
	}

	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return fmt.Errorf("%w: needs upper case, lower case and a digit", ErrWeakPassword)
	}
	return nil
}
