package httpx

import (
	"net/http"
	"strings"

	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/eslschool/esladmin/pkg/slogx"
)

// ExtractBearer returns the token from an "Authorization: Bearer <token>"
// header. The scheme is matched case-insensitively.
func ExtractBearer(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// AuthnMiddleware rejects requests without a valid, unexpired access token
// and stores the verified claims in the request context.
func AuthnMiddleware(v jwtx.Verifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := ExtractBearer(r)
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			claims, err := v.Verify(raw)
			if err != nil {
				slogx.FromContext(r.Context()).Debug("access token rejected", "err", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx := contextWithAuth(r.Context(), raw, claims)
			ctx = slogx.With(ctx, "user_id", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RFC 6750 invalid_token response.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "Unauthorized", desc)
}
