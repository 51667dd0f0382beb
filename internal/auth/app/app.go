package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eslschool/esladmin/internal/auth/domain"
	httpapi "github.com/eslschool/esladmin/internal/auth/http"
	"github.com/eslschool/esladmin/internal/auth/metrics"
	"github.com/eslschool/esladmin/internal/auth/service"
	"github.com/eslschool/esladmin/internal/auth/store"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/postgres"
	"github.com/eslschool/esladmin/internal/auth/store/drivers/sqlite"
	"github.com/eslschool/esladmin/pkg/cryptox"
	"github.com/eslschool/esladmin/pkg/jwtx"
	"github.com/eslschool/esladmin/pkg/slogx"
)

// BuildVersion is overridden at build time with -ldflags "-X".
var BuildVersion = "v0.1.0"

// Application encapsulates the auth service application with all its dependencies
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	signer  *jwtx.HS256Signer
	metrics *metrics.Metrics

	// Services
	userService         *service.UserService
	sessionService      *service.SessionService
	blacklist           *service.Blacklist
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "esladmin",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
		metrics: metrics.New(),
	}

	ctx := slogx.WithContext(context.Background(), app.logger)

	if err := app.initDatabase(ctx); err != nil {
		return nil, err
	}

	signer, err := InitSigner(app.cfg, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.signer = signer

	if err := app.initServices(ctx); err != nil {
		_ = app.db.Close()
		return nil, err
	}
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("esladmin starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		app.housekeepingService.Stop()
		_ = app.db.Close()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down esladmin...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	// In-flight requests are done; housekeeping may still hold the store.
	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("esladmin stopped")
	return nil
}

// initDatabase opens the configured driver and applies migrations
func (app *Application) initDatabase(ctx context.Context) error {
	var (
		db  store.Store
		err error
	)
	switch app.cfg.Database.Driver {
	case DriverPostgres:
		db, err = postgres.NewStore(ctx, app.cfg.Database.postgres())
	default:
		db, err = sqlite.NewStore(app.cfg.Database.File)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully", "driver", app.cfg.Database.Driver)
	return nil
}

// initServices wires the services and seeds roles and the bootstrap admin
func (app *Application) initServices(ctx context.Context) error {
	pepper := app.cfg.Auth.Pepper
	if pepper == "" {
		p, err := cryptox.LoadOrGeneratePepper(app.cfg.Auth.PepperFile)
		if err != nil {
			return fmt.Errorf("failed to load pepper: %w", err)
		}
		pepper = p
	}

	app.userService = &service.UserService{
		Store:      app.db,
		Hasher:     cryptox.NewHasher(pepper),
		Lockout:    app.cfg.Lockout,
		TOTPIssuer: app.cfg.Auth.TOTPIssuer,
	}
	app.blacklist = &service.Blacklist{Store: app.db}
	app.sessionService = &service.SessionService{
		Store:  app.db,
		Signer: app.signer,
		Users:  app.userService,
		RefreshTokens: &service.RefreshTokenStore{
			Store: app.db,
			TTL:   app.cfg.Auth.RefreshTokenTTL,
		},
		Blacklist: app.blacklist,
		Observer:  app.metrics,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
	app.housekeepingService.Blacklist = app.blacklist
	app.housekeepingService.Observer = app.metrics

	created, err := app.userService.EnsureAdmin(ctx, domain.BootstrapData{
		AdminEmail:    app.cfg.Bootstrap.AdminEmail,
		AdminPassword: app.cfg.Bootstrap.AdminPassword,
	})
	if err != nil {
		return fmt.Errorf("failed to bootstrap: %w", err)
	}
	if created {
		app.logger.Warn("bootstrap admin created; rotate BOOTSTRAP_ADMIN_PASSWORD", "email", app.cfg.Bootstrap.AdminEmail)
	}
	return nil
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(
		app.signer,
		BuildVersion,
		app.db,
		app.metrics,
		app.logger,
	)

	router.SessionService = app.sessionService
	router.UserService = app.userService
	router.Blacklist = app.blacklist
	router.TrustProxy = app.cfg.RateLimit.TrustProxy
	router.LoginLimit = app.cfg.RateLimit.Login
	router.RefreshLimit = app.cfg.RateLimit.Refresh
	router.UserLimit = app.cfg.RateLimit.User
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
