package domain

import "time"

// TokenPair is what login and refresh hand back to the caller.
type TokenPair struct {
	AccessToken           string
	AccessTokenExpiresAt  time.Time
	RefreshToken          string
	RefreshTokenExpiresAt time.Time
	TokenType             string // always "Bearer"
}

// RefreshToken is the persisted record of an opaque refresh token. Only the
// fingerprint of the opaque value is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string // base64url SHA-256 of the opaque value
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// IsActive reports whether the token may still be exchanged at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// IssuedRefreshToken is a freshly created refresh token together with the
// opaque value. The value is never persisted and is only available here.
type IssuedRefreshToken struct {
	RefreshToken
	Value string
}

// BlacklistedToken marks an access token as revoked before its natural
// expiry. It is keyed by the hex SHA-256 of the raw token.
type BlacklistedToken struct {
	ID            string
	TokenHash     string
	UserID        string
	ExpiresAt     time.Time // exp claim of the revoked token
	BlacklistedAt time.Time
}
