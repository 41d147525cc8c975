package api

import (
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/identity"
)

const defaultHistoryLimit = 100

// HandleConversation handles GET /api/conversation: recent log entries for
// the requesting identity, oldest first.
func (h *Handler) HandleConversation(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	entries, err := h.repo.RecentEntries(r.Context(), userID, sessionID, defaultHistoryLimit)
	if err != nil {
		slog.Error("failed to load conversation", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	if entries == nil {
		entries = []*domain.Entry{}
	}

	JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// HandleTTSFile handles GET /tts/{filename}: serves a synthesized mp3.
func (h *Handler) HandleTTSFile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, "/\\") ||
		strings.HasPrefix(name, ".") {
		Error(w, http.StatusBadRequest, "invalid file name")
		return
	}

	http.ServeFile(w, r, filepath.Join(h.ttsDir, name))
}
