package http

import (
	"errors"
	"net/http"

	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/slogx"
)

var serviceErrors = []struct {
	err error
	api *authsdk.APIError
}{
	{service.ErrInvalidCredentials, authsdk.ErrInvalidCredentials},
	{service.ErrAccountLockedOut, authsdk.ErrAccountLockedOut},
	{service.ErrTwoFactorRequired, authsdk.ErrTwoFactorRequired},
	{service.ErrInvalidTokenFormat, authsdk.ErrInvalidTokenFormat},
	{service.ErrInvalidSignature, authsdk.ErrInvalidSignature},
	{service.ErrTokenExpired, authsdk.ErrTokenExpired},
	{service.ErrRefreshTokenNotFound, authsdk.ErrRefreshTokenNotFound},
	{service.ErrRefreshTokenExpiredOrRevoked, authsdk.ErrRefreshTokenExpiredOrRevoked},
	{service.ErrEmailTaken, authsdk.ErrEmailTaken},
	{service.ErrUserNotFound, authsdk.ErrNotFound},
	{service.ErrInvalidTOTPCode, authsdk.ErrInvalidTOTPCode},
	{service.ErrTOTPNotEnrolled, authsdk.ErrTOTPNotEnrolled},
	{service.ErrTOTPAlreadyEnabled, authsdk.ErrTOTPAlreadyEnabled},
	{service.ErrOperationCanceled, authsdk.ErrServiceUnavailable},
	{service.ErrLogoutIncomplete, authsdk.ErrLogoutIncomplete},
}

// writeServiceError maps err onto an API error response. Validation errors
// keep their message; store failures are logged and reported as 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, service.ErrInvalidEmail),
		errors.Is(err, service.ErrWeakPassword),
		errors.Is(err, service.ErrUnknownRole):
		authsdk.ErrInvalidRequest.WithMessage(err.Error()).WriteError(w)
		return
	}

	for _, m := range serviceErrors {
		if errors.Is(err, m.err) {
			if m.api.StatusCode >= http.StatusInternalServerError {
				log.Error("request failed", "err", err)
			}
			m.api.WriteError(w)
			return
		}
	}

	log.Error("unhandled service error", "err", err)
	authsdk.ErrServerError.WriteError(w)
}
