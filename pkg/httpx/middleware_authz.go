package httpx

import (
	"net/http"
	"slices"
	"strings"
)

// RequireAnyRole lets the request through when the caller holds at least
// one of roles. It must run after AuthnMiddleware.
func RequireAnyRole(roles ...string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			have := rolesFromCtx(r.Context())
			for _, want := range roles {
				if slices.Contains(have, want) {
					next.ServeHTTP(w, r)
					return
				}
			}

			w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope", scope="`+strings.Join(roles, " ")+`"`)
			WriteError(w, http.StatusForbidden, "Forbidden", "missing required role")
		})
	}
}
