package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret accepted, matching the
// SHA-256 block output size.
const MinSecretLength = 32

// HS256Signer issues and reads access tokens signed with a shared secret.
// It satisfies Verifier.
type HS256Signer struct {
	secret []byte
	opts   VerifyOptions
	ttl    time.Duration

	// Now is the clock used by Verify. Defaults to time.Now.
	Now func() time.Time
}

// NewHS256Signer validates the secret and returns a signer issuing tokens
// that live for ttl.
func NewHS256Signer(secret []byte, ttl time.Duration, opts VerifyOptions) (*HS256Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("jwtx: access token ttl must be positive, got %s", ttl)
	}

	return &HS256Signer{
		secret: append([]byte(nil), secret...),
		opts:   opts,
		ttl:    ttl,
		Now:    time.Now,
	}, nil
}

func (s *HS256Signer) Alg() string            { return jwt.SigningMethodHS256.Alg() }
func (s *HS256Signer) TTL() time.Duration     { return s.ttl }
func (s *HS256Signer) Options() VerifyOptions { return s.opts }

// Issue signs an access token for subject. The returned expiry is the exp
// claim exactly as encoded in the token.
func (s *HS256Signer) Issue(subject, email string, roles []string, now time.Time) (string, time.Time, error) {
	claims := NewAccessClaims(subject, email, roles, s.opts.Issuer, s.opts.Audience, s.ttl, now)

	token, err := s.Sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.Expiry(), nil
}

// Sign serialises arbitrary claims. Issue is the normal entry point.
func (s *HS256Signer) Sign(claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign: %w", err)
	}
	return signed, nil
}

// ReadClaims verifies the algorithm, signature, issuer and audience of
// token. The lifetime is checked against now only when validateLifetime is
// set, which lets the refresh flow identify the owner of an expired token.
func (s *HS256Signer) ReadClaims(token string, validateLifetime bool, now time.Time) (Claims, error) {
	var claims Claims

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	_, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrAlgMismatch
		}
		return s.secret, nil
	})
	if err != nil {
		return Claims{}, classify(err)
	}

	if claims.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing sub", ErrInvalidClaim)
	}
	if err := claims.ValidateIssuer(s.opts.Issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAudience(s.opts.Audience); err != nil {
		return Claims{}, err
	}
	if validateLifetime {
		if err := claims.ValidateLifetime(now, s.opts.Leeway); err != nil {
			return Claims{}, err
		}
	}

	return claims, nil
}

// Verify reads token with lifetime validation at the signer's clock.
func (s *HS256Signer) Verify(token string) (Claims, error) {
	return s.ReadClaims(token, true, s.Now())
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrAlgMismatch):
		return ErrAlgMismatch
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrInvalidSig
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
