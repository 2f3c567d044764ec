package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"expense-api/internal/config"
	"expense-api/internal/handlers"
	"expense-api/internal/lib/logger"
	"expense-api/internal/services"
	"expense-api/internal/storage"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const sessionCleanupInterval = time.Hour

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	log := logger.Setup(cfg.Env)

	log.Info("starting expense api", slog.String("env", cfg.Env), slog.String("driver", cfg.Storage.Driver))

	db, err := storage.Open(cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		log.Error("failed to open storage", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Admin.User != "" && cfg.Admin.Password != "" {
		dir := services.NewDirectory(log, db, services.NewVerifier(cfg.Auth.Secret, cfg.Auth.VerificationMaxAge), cfg.FrontendURL)
		created, err := dir.EnsureUser(ctx, cfg.Admin.User, cfg.Admin.Password)
		if err != nil {
			log.Error("failed to create admin user", logger.Err(err))
			os.Exit(1)
		}
		if created {
			log.Info("admin user created", slog.String("username", cfg.Admin.User))
		}
	}

	h := handlers.NewHandlers(log, db, handlers.Options{
		Secret:             cfg.Auth.Secret,
		FrontendURL:        cfg.FrontendURL,
		SessionTTL:         cfg.Auth.SessionTTL,
		VerificationMaxAge: cfg.Auth.VerificationMaxAge,
		SecureCookie:       cfg.Auth.SecureCookie,
	})

	go cleanSessions(ctx, log, db)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupRouter(h, log, cfg.CORS.Origins),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	go func() {
		log.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
	}
	log.Info("server stopped")
}

// setupRouter builds the HTTP routes for the expense API.
func setupRouter(h *handlers.Handlers, log *slog.Logger, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(handlers.CORS(origins))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Get("/verify-email", h.VerifyEmail)
		r.Post("/login", h.Login)

		r.Post("/expense/add", h.AddExpense)
		r.Get("/expenses/{user_id}", h.ListExpenses)
		r.Get("/expenses/{user_id}/summary", h.Statistics)

		r.Post("/categories", h.CreateCategory)
		r.Get("/categories/{user_id}", h.ListCategories)

		r.Post("/budgets", h.CreateBudget)
		r.Get("/budgets/{user_id}", h.ListBudgets)

		// Routes that act on an existing resource need a session.
		r.Group(func(r chi.Router) {
			r.Use(h.AuthMiddleware)

			r.Post("/logout", h.Logout)
			r.Delete("/account", h.DeleteAccount)
			r.Delete("/expense/delete/{id}", h.DeleteExpense)
			r.Post("/categories/defaults", h.RestoreDefaultCategories)
			r.Delete("/categories/{id}", h.DeleteCategory)
		})
	})

	return r
}

// cleanSessions removes expired sessions until ctx is cancelled.
func cleanSessions(ctx context.Context, log *slog.Logger, db *storage.DB) {
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := db.CleanExpiredSessions(ctx)
			if err != nil {
				log.Warn("failed to clean expired sessions", logger.Err(err))
				continue
			}
			if n > 0 {
				log.Debug("expired sessions removed", slog.Int64("count", n))
			}
		}
	}
}
