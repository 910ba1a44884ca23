// Peer practice matchmaking and real-time session server.
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

	"github.com/aesp-dev/peer-practice/internal/ai"
	"github.com/aesp-dev/peer-practice/internal/api"
	"github.com/aesp-dev/peer-practice/internal/config"
	"github.com/aesp-dev/peer-practice/internal/identity"
	"github.com/aesp-dev/peer-practice/internal/middleware"
	"github.com/aesp-dev/peer-practice/internal/practice"
	"github.com/aesp-dev/peer-practice/internal/relay"
	"github.com/aesp-dev/peer-practice/internal/store"
	"github.com/aesp-dev/peer-practice/internal/ws"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
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

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "ai_enabled", cfg.AiEnabled())

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

	if cfg.IsDevelopment() {
		seeded, err := store.SeedDemoLearners(context.Background(), repo)
		if err != nil {
			slog.Error("Failed to seed demo learners", "error", err)
			os.Exit(1)
		}
		if seeded > 0 {
			slog.Info("Seeded demo learners", "count", seeded)
		}
	}

	// AI evaluator is optional; sessions run without feedback when no key is set.
	var evaluator ai.Evaluator
	if cfg.AiEnabled() {
		geminiClient, err := ai.NewGeminiClient(ai.GeminiConfig{
			BaseURL: cfg.Gemini.BaseURL,
			APIKey:  cfg.Gemini.APIKey,
			Model:   cfg.Gemini.Model,
			Timeout: cfg.Gemini.Timeout,
		}, logger)
		if err != nil {
			slog.Error("Failed to initialize Gemini client", "error", err)
			os.Exit(1)
		}
		evaluator = geminiClient
	} else {
		slog.Info("AI feedback disabled (GEMINI_API_KEY not set)")
	}

	// Initialize services.
	broker := relay.NewBroker(cfg.SubscriberBuffer)
	rel := relay.New(broker, evaluator, cfg.Gemini.Timeout, logger)
	svc := practice.NewService(repo, rel, cfg.CandidateLimit, logger)

	// Initialize handlers.
	practiceHandler := api.NewPracticeHandler(svc, cfg.AiEnabled())
	learnerHandler := api.NewLearnerHandler(repo)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := ws.NewHandler(repo, svc, rel, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))

	allowedOrigins := []string{"*"}
	if cfg.FrontendURL != "" {
		allowedOrigins = []string{cfg.FrontendURL}
	}
	r.Use(middleware.CORS(allowedOrigins))

	// Health does not require an identity.
	healthHandler.RegisterHealth(r)

	// All remaining routes require a resolved learner identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(repo))

		practiceHandler.RegisterRoutes(r)
		learnerHandler.RegisterRoutes(r)

		// WebSocket endpoint.
		r.Get("/ws/peer-practice/{sessionID}", wsHandler.ServeHTTP)
	})

	// Create server. WriteTimeout stays at 0 so long-lived websocket
	// connections are not cut off.
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

	// Disconnect any remaining relay subscribers after the HTTP listener stops.
	broker.Close()

	slog.Info("Server stopped successfully")
}
