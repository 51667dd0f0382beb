package authsdk

import "time"

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`

	// TOTPCode is required once the account has a confirmed authenticator.
	TOTPCode string `json:"totpCode,omitempty"`
}

// RefreshRequest is the body of POST /auth/refresh-token. The access token
// may already be expired.
type RefreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenResponse is returned by login and refresh.
type TokenResponse struct {
	AccessToken           string    `json:"accessToken"`
	RefreshToken          string    `json:"refreshToken"`
	TokenType             string    `json:"tokenType"`
	ExpiresAt             time.Time `json:"expiresAt"`
	RefreshTokenExpiresAt time.Time `json:"refreshTokenExpiresAt"`
}

// ProfileResponse is returned by GET /auth/me.
type ProfileResponse struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Roles       []string  `json:"roles"`
	TOTPEnabled bool      `json:"totpEnabled"`
	CreatedAt   time.Time `json:"createdAt"`
}

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

// UserResponse describes a newly registered user.
type UserResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
}

// AssignRoleRequest is the body of POST /auth/users/{id}/roles.
type AssignRoleRequest struct {
	Role string `json:"role"`
}

// RoleResponse is one entry of GET /auth/roles.
type RoleResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// TOTPEnrollResponse carries a pending authenticator secret.
type TOTPEnrollResponse struct {
	Secret  string `json:"secret"`
	URL     string `json:"url"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
}

// TOTPConfirmRequest is the body of POST /auth/totp/confirm.
type TOTPConfirmRequest struct {
	Code string `json:"code"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports readiness of each dependency.
type HealthChecks struct {
	Database string `json:"database"`
}
