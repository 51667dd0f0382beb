package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	"github.com/eslschool/esladmin/internal/auth/metrics"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/pkg/httpx"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/eslschool/esladmin/pkg/slogx"

	_ "github.com/eslschool/esladmin/api/esladmin" // Swagger docs
	httpSwagger "github.com/swaggo/http-swagger"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	metrics      *metrics.Metrics

	store          store.Store
	SessionService service.SessionLifecycle
	UserService    *service.UserService
	Blacklist      *service.Blacklist

	// TrustProxy keys rate limits on X-Forwarded-For instead of the peer.
	TrustProxy bool

	// LoginLimit and RefreshLimit throttle the credential endpoints per
	// client IP. UserLimit throttles authenticated endpoints per subject.
	LoginLimit   httpx.RateLimitConfig
	RefreshLimit httpx.RateLimitConfig
	UserLimit    httpx.RateLimitConfig
}

func NewRouter(
	verifier jwtx.Verifier,
	buildVersion string,
	st store.Store,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		metrics:      m,
		LoginLimit:   httpx.StrictLimit,
		RefreshLimit: httpx.StrictLimit,
		UserLimit:    httpx.ModerateLimit,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerUsers()
	r.registerTOTP()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
// Request metrics wrap the mux directly so the matched pattern is visible to them.
//
//	@title			ESLAdmin Authentication API
//	@version		0.1.0
//	@description	Session lifecycle for the ESLAdmin backend: login, refresh-token rotation, logout and revocation.
//	@description
//	@description				Access tokens are HS256 JWTs. A logged-out access token is rejected until it expires.
//
//	@contact.name				ESLAdmin Team
//	@contact.url				https://github.com/eslschool/esladmin
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				JWT access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.metrics.HTTPMiddleware(r.Mux), r.middlewares...).ServeHTTP(w, req)
}

// limit attaches the rate-limit counter to cfg.
func (r *Router) limit(cfg httpx.RateLimitConfig) httpx.RateLimitConfig {
	cfg.OnReject = r.metrics.RateLimited
	return cfg
}

// authenticated is the chain every bearer-protected endpoint runs: verify
// the JWT, then refuse blacklisted tokens, then throttle per user.
func (r *Router) authenticated(h http.Handler, extra ...httpx.Middleware) http.Handler {
	mws := []httpx.Middleware{
		httpx.AuthnMiddleware(r.verifier),
		httpx.RevocationMiddleware(r.Blacklist, r.metrics.RevokedTokenRejected),
	}
	mws = append(mws, extra...)
	mws = append(mws, httpx.RateLimitMiddleware(r.limit(r.UserLimit), httpx.UserIDKeyExtractor))
	return httpx.Chain(h, mws...)
}

func (r *Router) registerSession() {
	h := &SessionHandler{Sessions: r.SessionService}

	// Credential endpoints - strict rate limit by IP
	r.Mux.Handle("POST /auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIP(r.limit(r.LoginLimit), r.TrustProxy),
		),
	)
	r.Mux.Handle("POST /auth/refresh-token",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.limit(r.RefreshLimit), r.TrustProxy),
		),
	)

	r.Mux.Handle("POST /auth/logout", r.authenticated(http.HandlerFunc(h.HandleLogout)))
}

func (r *Router) registerUsers() {
	h := &UsersHandler{Users: r.UserService}
	admin := httpx.RequireAnyRole(domain.RoleAdmin)

	r.Mux.Handle("GET /auth/me", r.authenticated(http.HandlerFunc(h.HandleMe)))
	r.Mux.Handle("POST /auth/register", r.authenticated(http.HandlerFunc(h.HandleRegister), admin))
	r.Mux.Handle("POST /auth/users/{id}/roles", r.authenticated(http.HandlerFunc(h.HandleAssignRole), admin))
	r.Mux.Handle("GET /auth/roles", r.authenticated(http.HandlerFunc(h.HandleListRoles), admin))
}

func (r *Router) registerTOTP() {
	h := &TOTPHandler{Users: r.UserService}

	r.Mux.Handle("POST /auth/totp/enroll", r.authenticated(http.HandlerFunc(h.HandleEnroll)))
	r.Mux.Handle("POST /auth/totp/confirm", r.authenticated(http.HandlerFunc(h.HandleConfirm)))
}

func (r *Router) registerSystem() {
	r.Mux.Handle("GET /livez", LivezHandler(r.startTime, r.buildVersion))
	r.Mux.Handle("GET /readyz", ReadyzHandler(r.startTime, r.buildVersion, r.store))
	r.Mux.Handle("GET /metrics", r.metrics.Handler())
}
