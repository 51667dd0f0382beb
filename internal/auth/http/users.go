package http

import (
	"net/http"
	"strings"

	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/pkg/authsdk"
	"github.com/eslschool/esladmin/pkg/httpx"
)

// UsersHandler serves profile and user administration endpoints.
type UsersHandler struct {
	Users *service.UserService
}

// HandleMe handles GET /auth/me
//
//	@Summary		Current user
//	@Description	Returns the profile of the access token's owner with roles read from the database.
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.ProfileResponse
//	@Failure		401	{object}	authsdk.APIError	"Missing, invalid or revoked access token"
//	@Router			/auth/me [get].
func (h *UsersHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserID(r.Context())
	if !ok {
		authsdk.ErrUnauthorized.WriteError(w)
		return
	}

	p, err := h.Users.Profile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.ProfileResponse{
		ID:          p.ID,
		Email:       p.Email,
		Roles:       p.Roles,
		TOTPEnabled: p.TOTPEnabled,
		CreatedAt:   p.CreatedAt,
	})
}

// HandleRegister handles POST /auth/register
//
//	@Summary		Register a user
//	@Description	Creates a user with the given roles. Admin only.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RegisterRequest	true	"New user"
//	@Success		201		{object}	authsdk.UserResponse
//	@Failure		400		{object}	authsdk.APIError	"Invalid email, weak password or unknown role"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		409		{object}	authsdk.APIError	"EmailTaken"
//	@Router			/auth/register [post].
func (h *UsersHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RegisterRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	u, err := h.Users.Register(r.Context(), req.Email, req.Password, req.Roles)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	roles := req.Roles
	if roles == nil {
		roles = []string{}
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
	})
}

// HandleAssignRole handles POST /auth/users/{id}/roles
//
//	@Summary		Assign a role
//	@Description	Adds a role to a user. Takes effect on the user's next login or refresh. Admin only.
//	@Tags			Users
//	@Security		BearerAuth
//	@Accept			json
//	@Param			id		path	string						true	"User ID"
//	@Param			request	body	authsdk.AssignRoleRequest	true	"Role"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Unknown role"
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		404	{object}	authsdk.APIError	"User not found"
//	@Router			/auth/users/{id}/roles [post].
func (h *UsersHandler) HandleAssignRole(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AssignRoleRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil || strings.TrimSpace(req.Role) == "" {
		authsdk.ErrInvalidRequest.WriteError(w)
		return
	}

	if err := h.Users.AssignRole(r.Context(), r.PathValue("id"), req.Role); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListRoles handles GET /auth/roles
//
//	@Summary		List roles
//	@Tags			Users
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{array}		authsdk.RoleResponse
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Router			/auth/roles [get].
func (h *UsersHandler) HandleListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Users.ListRoles(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := make([]authsdk.RoleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, authsdk.RoleResponse{ID: role.ID, Name: role.Name})
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
