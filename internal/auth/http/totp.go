package http

import (
	"net/http"

	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/httpx"
)

// TOTPHandler serves authenticator enrollment.
type TOTPHandler struct {
	Users *service.UserService
}

// HandleEnroll handles POST /auth/totp/enroll
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret for the caller. Login keeps working without a code until the secret is confirmed.
//	@Tags			TOTP
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse
//	@Failure		401	{object}	authsdk.APIError	"Missing, invalid or revoked access token"
//	@Failure		409	{object}	authsdk.APIError	"TOTPAlreadyEnabled"
//	@Router			/auth/totp/enroll [post].
func (h *TOTPHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	e, err := h.Users.EnrollTOTP(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		Secret:  e.Secret,
		URL:     e.URL,
		Issuer:  e.Issuer,
		Account: e.Account,
	})
}

// HandleConfirm handles POST /auth/totp/confirm
//
//	@Summary		Confirm TOTP enrollment
//	@Description	Verifies a code from the authenticator and makes TOTP mandatory for future logins.
//	@Tags			TOTP
//	@Security		BearerAuth
//	@Accept			json
//	@Param			request	body	authsdk.TOTPConfirmRequest	true	"Code"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"InvalidTOTPCode"
//	@Failure		409	{object}	authsdk.APIError	"TOTPNotEnrolled or TOTPAlreadyEnabled"
//	@Router			/auth/totp/confirm [post].
func (h *TOTPHandler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	var req authsdk.TOTPConfirmRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || req.Code == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Users.ConfirmTOTP(r.Context(), userID, req.Code); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
