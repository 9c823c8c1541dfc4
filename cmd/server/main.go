// LoaniFi Console - loan origination front server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/loanifi/loanifi-console/internal/api"
	"github.com/loanifi/loanifi-console/internal/chat"
	"github.com/loanifi/loanifi-console/internal/config"
	"github.com/loanifi/loanifi-console/internal/docs"
	"github.com/loanifi/loanifi-console/internal/events"
	"github.com/loanifi/loanifi-console/internal/gateway"
	"github.com/loanifi/loanifi-console/internal/identity"
	"github.com/loanifi/loanifi-console/internal/middleware"
	"github.com/loanifi/loanifi-console/internal/session"
	"github.com/loanifi/loanifi-console/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Backend gateway client.
	creds := gateway.NewMemoryCredentials(cfg.Backend.Token)
	backend := gateway.NewClient(gateway.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Timeout: cfg.Backend.Timeout,
	}, creds, logger)
	slog.Info("Backend gateway configured", "base_url", cfg.Backend.URL)

	// Observer broker and transcript log.
	broker := events.NewBroker(logger)

	transcript, err := session.NewTranscript(session.TranscriptConfig{
		Enabled:   cfg.Transcript.Enabled,
		Dir:       cfg.Transcript.Dir,
		QueueSize: cfg.Transcript.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript log", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := transcript.Close(); closeErr != nil {
			slog.Error("Failed to close transcript log", "error", closeErr)
		}
	}()

	// Stateful registries.
	sessions := session.NewRegistry(backend, repo, broker, transcript, cfg.Language, logger)
	pipelines := docs.NewRegistry(backend, repo, broker, logger)

	// Handlers.
	chatHandler := api.NewChatHandler(sessions, repo, cfg)
	docsHandler := api.NewDocumentsHandler(pipelines, repo)
	analyticsHandler := api.NewAnalyticsHandler(backend)
	eventsHandler := api.NewEventsHandler(broker, cfg)
	healthHandler := api.NewHealthHandler(repo, cfg.Timeout.HealthCheck)
	wsHandler := chat.NewWebSocketHandler(sessions, broker, repo, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Public routes.
	r.Get("/health", healthHandler.Health)

	// All API routes use identity middleware (no auth needed).
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo, cfg.Language, cfg.IsDevelopment()))

		chatHandler.RegisterRoutes(r)
		docsHandler.RegisterRoutes(r)
		analyticsHandler.RegisterRoutes(r)
		eventsHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/chat", wsHandler.ServeHTTP)
	})

	// Create server.
	// Note: SSE connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
