package httpx

import (
	"context"
	"net/http"

	"github.com/eslschool/esladmin/pkg/slogx"
)

// RevokedMessage is the body returned for a blacklisted access token.
const RevokedMessage = "Token has been revoked."

// RevocationChecker answers whether a raw access token has been revoked
// before its natural expiry.
type RevocationChecker interface {
	IsBlacklisted(ctx context.Context, rawToken string) (bool, error)
}

// RevocationMiddleware rejects requests whose bearer token is on the
// blacklist. Requests without a bearer token pass through untouched; a
// failing lookup is treated as revoked-unknown and answered with 500.
func RevocationMiddleware(checker RevocationChecker, onReject func()) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := ExtractBearer(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			revoked, err := checker.IsBlacklisted(r.Context(), raw)
			if err != nil {
				slogx.FromContext(r.Context()).Error("blacklist lookup failed", "err", err)
				WriteError(w, http.StatusInternalServerError, "ServerError", "unable to verify token status")
				return
			}
			if revoked {
				if onReject != nil {
					onReject()
				}
				NoCache(w)
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(RevokedMessage))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
