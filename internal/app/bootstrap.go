package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"authservice/internal/auth"
	"authservice/internal/config"
	"authservice/internal/db"
	"authservice/internal/maintenance"
	"authservice/internal/observability"
)

type Runtime struct {
	Handler http.Handler
	Logger  *observability.Logger
	Close   func() error
}

// Build wires storage, the token lifecycle and HTTP routing from cfg.
func Build(ctx context.Context, cfg *config.Config) (*Runtime, error) {
	logger := observability.NewLogger(cfg.Logging.Level)
	return build(ctx, cfg, logger)
}

func build(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*Runtime, error) {
	if err := observability.InitSentry(cfg.Sentry.DSN, cfg.Env); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err})
	}

	database, dialect, err := db.Open(cfg.Database.URL, db.PoolOptions{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := database.PingContext(pingCtx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Database.RunMigrations {
		if err := db.RunMigrations(ctx, database, dialect, logger); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	dbx := sqlx.NewDb(database, driverName(dialect))
	store := auth.NewSQLUserStore(dbx)
	ledger := auth.NewSQLLedger(dbx)

	secret := []byte(cfg.Auth.JWTSecret)
	issuer, err := auth.NewIssuer(secret, cfg.Auth.AccessTokenTTL, cfg.Auth.RefreshTokenTTL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token issuer: %w", err)
	}
	verifier := auth.NewVerifier(secret, ledger)
	service := auth.NewService(store, ledger, auth.NewBcryptHasher(cfg.Auth.BcryptCost), issuer, verifier)

	created, err := service.EnsureAdmin(ctx, cfg.Admin.Username, cfg.Admin.Email, cfg.Admin.Password)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("bootstrap admin: %w", err)
	}
	if created {
		logger.Info("admin_bootstrapped", map[string]any{"username": cfg.Admin.Username})
	}

	authHandler := auth.NewHandler(service, logger)
	gate := auth.NewGate(verifier)
	cleanupHandler := maintenance.NewCleanupHandler(ledger, logger, cfg.Maintenance.CronSecret, cfg.Maintenance.PurgeBatchSize)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(observability.Recover(logger))
	r.Use(observability.RequestLogging(logger))
	r.Use(middleware.StripSlashes)

	r.Get("/health", healthHandler(database))

	r.Route("/api/users", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refresh", authHandler.Refresh)

		r.Group(func(r chi.Router) {
			r.Use(gate.Middleware(""))
			r.Get("/profile", authHandler.Profile)
			r.Post("/logout", authHandler.Logout)
		})

		r.With(gate.Middleware(auth.RoleAdmin)).Get("/admin-only", authHandler.AdminOnly)
	})

	r.Get("/internal/maintenance/cleanup", cleanupHandler.Handle)
	r.Post("/internal/maintenance/cleanup", cleanupHandler.Handle)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})

	logger.Info("runtime_ready", map[string]any{
		"dialect":     string(dialect),
		"env":         cfg.Env,
		"access_ttl":  cfg.Auth.AccessTokenTTL.String(),
		"refresh_ttl": cfg.Auth.RefreshTokenTTL.String(),
	})

	return &Runtime{
		Handler: r,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func driverName(dialect db.Dialect) string {
	if dialect == db.DialectSQLite {
		return "sqlite3"
	}
	return "pgx"
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		writeJSON(w, status, body)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
