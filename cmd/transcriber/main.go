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

	"expense-api/internal/config"
	"expense-api/internal/handlers"
	"expense-api/internal/lib/logger"
	"expense-api/internal/storage"
	"expense-api/internal/transcribe"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg := config.MustLoad(*configPath)
	log := logger.Setup(cfg.Env).With(slog.String("service", "transcriber"))

	if cfg.Transcriber.APIKey == "" {
		log.Warn("transcription API key is not set, upstream calls will be rejected")
	}

	db, err := storage.Open(cfg.Transcriber.Driver, cfg.Transcriber.DSN)
	if err != nil {
		log.Error("failed to open storage", logger.Err(err))
		os.Exit(1)
	}
	defer db.Close()

	uploads, err := transcribe.NewUploads(cfg.Transcriber.UploadDir)
	if err != nil {
		log.Error("failed to prepare upload dir", logger.Err(err))
		os.Exit(1)
	}

	client := transcribe.NewClient(cfg.Transcriber.APIURL, cfg.Transcriber.APIKey, cfg.Transcriber.Timeout)
	s := handlers.NewSpeech(log, db, client, uploads, handlers.SpeechOptions{
		Secret:         cfg.Auth.Secret,
		TokenTTL:       cfg.Auth.TokenTTL,
		MaxUploadBytes: cfg.Transcriber.MaxUploadBytes,
	})

	srv := &http.Server{
		Addr:              cfg.TranscriberAddr(),
		Handler:           setupRouter(s, log, cfg.CORS.Origins),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", logger.Err(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", logger.Err(err))
	}
	log.Info("server stopped")
}

func setupRouter(s *handlers.Speech, log *slog.Logger, origins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(handlers.CORS(origins))

	r.Get("/healthz", s.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/signup", s.Signup)
		r.Post("/auth/login", s.Login)
		r.Post("/convert", s.Convert)
		r.With(s.RequireToken).Get("/convert/history", s.History)
	})

	return r
}
