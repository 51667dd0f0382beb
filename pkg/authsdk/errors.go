package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/eslschool/esladmin/pkg/httpx"
)

// Error codes carried in the "code" field of error responses.
const (
	CodeInvalidRequest               = "InvalidRequest"
	CodeInvalidCredentials           = "InvalidCredentials"
	CodeAccountLockedOut             = "AccountLockedOut"
	CodeTwoFactorRequired            = "TwoFactorRequired"
	CodeInvalidTokenFormat           = "InvalidTokenFormat"
	CodeInvalidSignature             = "InvalidSignature"
	CodeTokenExpired                 = "TokenExpired"
	CodeRefreshTokenNotFound         = "RefreshTokenNotFound"
	CodeRefreshTokenExpiredOrRevoked = "RefreshTokenExpiredOrRevoked"
	CodeTokenRevoked                 = "TokenRevoked"
	CodeUnauthorized                 = "Unauthorized"
	CodeForbidden                    = "Forbidden"
	CodeNotFound                     = "NotFound"
	CodeEmailTaken                   = "EmailTaken"
	CodeInvalidTOTPCode              = "InvalidTOTPCode"
	CodeTOTPNotEnrolled              = "TOTPNotEnrolled"
	CodeTOTPAlreadyEnabled           = "TOTPAlreadyEnabled"
	CodeRateLimitExceeded            = "RateLimitExceeded"
	CodeLogoutIncomplete             = "LogoutIncomplete"
	CodeServiceUnavailable           = "ServiceUnavailable"
	CodeServerError                  = "ServerError"
)

// APIError is an error response from the service. Handlers write it with
// WriteError and the client returns it from failed calls.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches any APIError with the same code, so callers can write
// errors.Is(err, authsdk.ErrInvalidCredentials).
func (e *APIError) Is(target error) bool {
	var t *APIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WriteError writes e as the JSON error body with its status code.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Message)
}

// WithMessage returns a copy of e carrying msg.
func (e *APIError) WithMessage(msg string) *APIError {
	cp := *e
	cp.Message = msg
	return &cp
}

var (
	ErrInvalidRequest = &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidRequest,
		Message: "The request body is malformed or missing required fields."}
	ErrInvalidCredentials = &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidCredentials,
		Message: "Invalid email or password."}
	ErrAccountLockedOut = &APIError{StatusCode: http.StatusLocked, Code: CodeAccountLockedOut,
		Message: "The account is temporarily locked. Try again later."}
	ErrTwoFactorRequired = &APIError{StatusCode: http.StatusUnauthorized, Code: CodeTwoFactorRequired,
		Message: "A TOTP code is required for this account."}
	ErrInvalidTokenFormat = &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidTokenFormat,
		Message: "The access token is malformed."}
	ErrInvalidSignature = &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidSignature,
		Message: "The access token signature is invalid."}
	ErrTokenExpired = &APIError{StatusCode: http.StatusBadRequest, Code: CodeTokenExpired,
		Message: "The access token has expired."}
	ErrRefreshTokenNotFound = &APIError{StatusCode: http.StatusBadRequest, Code: CodeRefreshTokenNotFound,
		Message: "Refresh token not found."}
	ErrRefreshTokenExpiredOrRevoked = &APIError{StatusCode: http.StatusBadRequest, Code: CodeRefreshTokenExpiredOrRevoked,
		Message: "Refresh token has expired or was revoked."}
	ErrTokenRevoked = &APIError{StatusCode: http.StatusUnauthorized, Code: CodeTokenRevoked,
		Message: httpx.RevokedMessage}
	ErrUnauthorized = &APIError{StatusCode: http.StatusUnauthorized, Code: CodeUnauthorized,
		Message: "Missing or invalid access token."}
	ErrForbidden = &APIError{StatusCode: http.StatusForbidden, Code: CodeForbidden,
		Message: "Forbidden"}
	ErrNotFound = &APIError{StatusCode: http.StatusNotFound, Code: CodeNotFound,
		Message: "Not found."}
	ErrEmailTaken = &APIError{StatusCode: http.StatusConflict, Code: CodeEmailTaken,
		Message: "The email address is already registered."}
	ErrInvalidTOTPCode = &APIError{StatusCode: http.StatusBadRequest, Code: CodeInvalidTOTPCode,
		Message: "The TOTP code is invalid."}
	ErrTOTPNotEnrolled = &APIError{StatusCode: http.StatusConflict, Code: CodeTOTPNotEnrolled,
		Message: "TOTP enrollment has not been started."}
	ErrTOTPAlreadyEnabled = &APIError{StatusCode: http.StatusConflict, Code: CodeTOTPAlreadyEnabled,
		Message: "TOTP is already enabled."}
	ErrLogoutIncomplete = &APIError{StatusCode: http.StatusInternalServerError, Code: CodeLogoutIncomplete,
		Message: "Sessions were revoked but the access token could not be blacklisted."}
	ErrServiceUnavailable = &APIError{StatusCode: http.StatusServiceUnavailable, Code: CodeServiceUnavailable,
		Message: "The request was canceled or timed out."}
	ErrServerError = &APIError{StatusCode: http.StatusInternalServerError, Code: CodeServerError,
		Message: "Internal server error."}
)

// parseErrorResponse turns a non-2xx response into an *APIError. The
// revocation gate answers in plain text, which is recognised as
// ErrTokenRevoked.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var eb httpx.ErrorBody
	if err := json.Unmarshal(body, &eb); err == nil && eb.Code != "" {
		return &APIError{StatusCode: resp.StatusCode, Code: eb.Code, Message: eb.Message}
	}

	text := strings.TrimSpace(string(body))
	if resp.StatusCode == http.StatusUnauthorized && text == httpx.RevokedMessage {
		return ErrTokenRevoked.WithMessage(text)
	}

	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return &APIError{
		StatusCode: resp.StatusCode,
		Code:       CodeServerError,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, text),
	}
}
