package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	totpPeriod = 30
	totpSkew   = 1
)

// EnrollTOTP generates a fresh secret for the user. The second factor is
// not enforced until ConfirmTOTP succeeds. Enrolling again before
// confirmation replaces the pending secret.
func (s *UserService) EnrollTOTP(ctx context.Context, userID string) (domain.TOTPEnrollment, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.TOTPEnrollment{}, ErrUserNotFound
	}
	if err != nil {
		return domain.TOTPEnrollment{}, storeErr(err)
	}
	if user.TOTPEnabled() {
		return domain.TOTPEnrollment{}, ErrTOTPAlreadyEnabled
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.TOTPIssuer,
		AccountName: user.Email,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.TOTPEnrollment{}, fmt.Errorf("generate TOTP key: %w", err)
	}

	if err := s.Store.Users().SetTOTPSecret(ctx, userID, key.Secret(), clockNow(s.Now)); err != nil {
		return domain.TOTPEnrollment{}, storeErr(err)
	}

	return domain.TOTPEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		Issuer:  s.TOTPIssuer,
		Account: user.Email,
	}, nil
}

// ConfirmTOTP checks code against the pending secret and, if it matches,
// makes the second factor mandatory for login.
func (s *UserService) ConfirmTOTP(ctx context.Context, userID, code string) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUserNotFound
	}
	if err != nil {
		return storeErr(err)
	}

	if user.TOTPSecret == nil || *user.TOTPSecret == "" {
		return ErrTOTPNotEnrolled
	}
	if user.TOTPEnabled() {
		return ErrTOTPAlreadyEnabled
	}

	now := clockNow(s.Now)
	if !validateTOTP(code, *user.TOTPSecret, now) {
		return ErrInvalidTOTPCode
	}

	if err := s.Store.Users().EnableTOTP(ctx, userID, now); err != nil {
		return storeErr(err)
	}
	slogx.FromContext(ctx).Info("TOTP enabled", slog.String("user_id", userID))
	return nil
}

func validateTOTP(code, secret string, now time.Time) bool {
	ok, err := totp.ValidateCustom(code, secret, now, totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
