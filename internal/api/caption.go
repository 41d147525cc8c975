package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/identity"
)

type captionRequest struct {
	Image string `json:"image"`
}

type captionResponse struct {
	RawCaption    string `json:"raw_caption"`
	KoreanCaption string `json:"korean_caption"`
	TTSURL        string `json:"tts_url,omitempty"`
}

// HandleCaption handles POST /api/caption: describe the submitted frame.
func (h *Handler) HandleCaption(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBody)

	var req captionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Image == "" {
		Error(w, http.StatusBadRequest, "image field not found")
		return
	}

	ident := describe.Identity{
		UserID:    identity.UserIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}

	result, err := h.svc.Caption(r.Context(), ident, describe.NormalizeImage(req.Image))
	if err != nil {
		slog.Error("caption failed", "error", err, "user_id", ident.UserID)
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, captionResponse{
		RawCaption:    result.RawCaption,
		KoreanCaption: result.KoreanCaption,
		TTSURL:        result.TTSURL,
	})
}
