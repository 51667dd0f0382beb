package jwtx

import (
	"errors"
	"time"
)

// Verifier validates a JWT, including its lifetime, and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

// VerifyOptions are the expectations applied to every token read.
type VerifyOptions struct {
	// Issuer the token must carry. Empty means any.
	Issuer string

	// Audience values of which at least one must be present. Empty means any.
	Audience []string

	// Leeway tolerates clock skew on exp and nbf.
	Leeway time.Duration
}

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrAudience     = errors.New("jwtx: audience mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")

	ErrWeakSecret = errors.New("jwtx: signing secret must be at least 32 bytes")
)
