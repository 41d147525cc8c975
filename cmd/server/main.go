// Soriview - Scene Description Server
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
	"github.com/soriview/soriview/internal/api"
	"github.com/soriview/soriview/internal/config"
	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/feed"
	"github.com/soriview/soriview/internal/identity"
	"github.com/soriview/soriview/internal/middleware"
	"github.com/soriview/soriview/internal/store"
	"github.com/soriview/soriview/internal/stt"
	"github.com/soriview/soriview/internal/tts"
	"github.com/soriview/soriview/internal/vision"
	"github.com/soriview/soriview/web"
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

	audioStore, err := tts.NewFileStore(cfg.TTSDir)
	if err != nil {
		slog.Error("Failed to initialize TTS audio store", "error", err)
		os.Exit(1)
	}

	if cfg.OpenAI.APIKey == "" {
		slog.Warn("OPENAI_API_KEY not set, scene description and Q&A will report errors")
	}

	var clientOpts []vision.Option
	var sttOpts []stt.Option
	var ttsOpts []tts.Option
	if cfg.OpenAI.BaseURL != "" {
		clientOpts = append(clientOpts, vision.WithBaseURL(cfg.OpenAI.BaseURL))
		sttOpts = append(sttOpts, stt.WithBaseURL(cfg.OpenAI.BaseURL))
		ttsOpts = append(ttsOpts, tts.WithBaseURL(cfg.OpenAI.BaseURL))
	}
	visionClient := vision.New(cfg.OpenAI.APIKey, clientOpts...)
	sttClient := stt.New(cfg.OpenAI.APIKey, sttOpts...)
	ttsClient := tts.New(cfg.OpenAI.APIKey, ttsOpts...)

	// Initialize services.
	hub := feed.NewHub(cfg.FrontendURL, cfg.IsDevelopment())
	sink := &api.EntrySink{Repo: repo, Publish: hub.Publish}
	svc := describe.NewService(visionClient, sttClient, ttsClient, audioStore, sink, cfg.OpenAI)

	// Initialize handlers.
	handler := api.NewHandler(svc, repo, cfg)

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	handler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/conversation", hub.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Create server. Voice uploads and TTS synthesis can take a while, so the
	// write timeout is generous.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start cleanup worker.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store.StartCleanupWorker(ctx, repo, cfg.EntryTTL)

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
