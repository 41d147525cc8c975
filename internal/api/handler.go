// Package api provides HTTP handlers for the Soriview API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/soriview/soriview/internal/config"
	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/store"
)

// DescribeService is the orchestration surface the handlers invoke.
type DescribeService interface {
	Caption(ctx context.Context, ident describe.Identity, imageB64 string) (*domain.CaptionResult, error)
	Ask(ctx context.Context, ident describe.Identity, question, imageB64 string) (*domain.AnswerResult, error)
	VoiceAsk(ctx context.Context, ident describe.Identity, audio []byte, imageB64 string) (*domain.AnswerResult, error)
}

// Handler serves the three inference endpoints plus conversation history.
type Handler struct {
	svc    DescribeService
	repo   store.Repository
	ttsDir string

	maxRequestBody int64
	maxAudioBytes  int64
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc DescribeService, repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{
		svc:            svc,
		repo:           repo,
		ttsDir:         cfg.TTSDir,
		maxRequestBody: cfg.MaxRequestBody,
		maxAudioBytes:  cfg.MaxAudioBytes,
	}
}

// RegisterRoutes registers API routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/caption", h.HandleCaption)
		r.Post("/ask", h.HandleAsk)
		r.Post("/voice-ask", h.HandleVoiceAsk)
		r.Get("/conversation", h.HandleConversation)
	})
	r.Get("/tts/{filename}", h.HandleTTSFile)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// EntrySink persists entries and feeds them to live subscribers.
// Both halves are best-effort: a conversation-history hiccup never fails
// the request that produced the entry.
type EntrySink struct {
	Repo    store.Repository
	Publish func(*domain.Entry)
}

// Append stores the entry and pushes the stored copy to the feed.
func (s *EntrySink) Append(ctx context.Context, entry *domain.Entry) {
	stored, err := s.Repo.AppendEntry(ctx, entry)
	if err != nil {
		slog.Warn("failed to persist conversation entry", "error", err, "user_id", entry.UserID)
		stored = entry
	}
	if s.Publish != nil {
		s.Publish(stored)
	}
}
