package app

import (
	"fmt"
	"log/slog"

	"github.com/eslschool/esladmin/pkg/jwtx"
)

// InitSigner builds the HS256 signer that issues and verifies access
// tokens. Every replica must share AUTH_SIGNING_KEY, otherwise tokens
// issued by one are rejected by the others.
func InitSigner(cfg Config, logger *slog.Logger) (*jwtx.HS256Signer, error) {
	signer, err := jwtx.NewHS256Signer([]byte(cfg.Auth.SigningKey), cfg.Auth.AccessTokenTTL, jwtx.VerifyOptions{
		Issuer:   cfg.Auth.Issuer,
		Audience: cfg.Auth.Audience,
	})
	if err != nil {
		return nil, fmt.Errorf("init signer: %w", err)
	}

	logger.Info("access token signer ready",
		"alg", signer.Alg(),
		"issuer", cfg.Auth.Issuer,
		"audience", cfg.Auth.Audience,
		"access_ttl", cfg.Auth.AccessTokenTTL,
		"refresh_ttl", cfg.Auth.RefreshTokenTTL,
	)
	return signer, nil
}
