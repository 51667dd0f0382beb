package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/eslschool/esladmin/pkg/jwtx"
)

var (
	ErrInvalidCredentials           = errors.New("invalid credentials")
	ErrAccountLockedOut             = errors.New("account locked out")
	ErrTwoFactorRequired            = errors.New("two-factor code required")
	ErrInvalidTokenFormat           = errors.New("invalid token format")
	ErrInvalidSignature             = errors.New("invalid token signature")
	ErrTokenExpired                 = errors.New("token expired")
	ErrRefreshTokenNotFound         = errors.New("refresh token not found")
	ErrRefreshTokenExpiredOrRevoked = errors.New("refresh token expired or revoked")
	ErrOperationCanceled            = errors.New("operation canceled")
	ErrStoreUnavailable             = errors.New("store unavailable")
	ErrLogoutIncomplete             = errors.New("logout incomplete")

	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidEmail = errors.New("invalid email address")
	ErrWeakPassword = errors.New("password does not meet policy")
	ErrUnknownRole  = errors.New("unknown role")
	ErrUserNotFound = errors.New("user not found")

	ErrInvalidTOTPCode    = errors.New("invalid TOTP code")
	ErrTOTPNotEnrolled    = errors.New("TOTP not enrolled")
	ErrTOTPAlreadyEnabled = errors.New("TOTP already enabled")
)

// codes holds the stable identifiers sent to clients and used as metric
// labels. Anything unmapped is reported as ServerError.
var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidCredentials, "InvalidCredentials"},
	{ErrAccountLockedOut, "AccountLockedOut"},
	{ErrTwoFactorRequired, "TwoFactorRequired"},
	{ErrInvalidTokenFormat, "InvalidTokenFormat"},
	{ErrInvalidSignature, "InvalidSignature"},
	{ErrTokenExpired, "TokenExpired"},
	{ErrRefreshTokenNotFound, "RefreshTokenNotFound"},
	{ErrRefreshTokenExpiredOrRevoked, "RefreshTokenExpiredOrRevoked"},
	{ErrOperationCanceled, "OperationCanceled"},
	{ErrLogoutIncomplete, "LogoutIncomplete"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrEmailTaken, "EmailTaken"},
	{ErrInvalidEmail, "InvalidEmail"},
	{ErrWeakPassword, "WeakPassword"},
	{ErrUnknownRole, "UnknownRole"},
	{ErrUserNotFound, "UserNotFound"},
	{ErrInvalidTOTPCode, "InvalidTOTPCode"},
	{ErrTOTPNotEnrolled, "TOTPNotEnrolled"},
	{ErrTOTPAlreadyEnabled, "TOTPAlreadyEnabled"},
}

// ErrorCode returns the client-facing code for err, "Success" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return "Success"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "ServerError"
}

// storeErr classifies a failure returned by the store. Errors that already
// carry a service sentinel pass through. Cancellation keeps its cause so
// callers can still match context.Canceled.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return err
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrOperationCanceled, err)
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// tokenErr maps jwtx failures onto the session taxonomy. Signature and
// algorithm problems are InvalidSignature; everything structural
// (issuer, audience, missing claims, garbage) is InvalidTokenFormat.
func tokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwtx.ErrInvalidSig), errors.Is(err, jwtx.ErrAlgMismatch):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwtx.ErrExpired), errors.Is(err, jwtx.ErrNotYetValid):
		return fmt.Errorf("%w: %w", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %w", ErrInvalidTokenFormat, err)
	}
}
