package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/identity"
)

// HandleVoiceAsk handles POST /api/voice-ask: a multipart form carrying a
// webm recording ("audio") and a base64 frame ("image").
func (h *Handler) HandleVoiceAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudioBytes+h.maxRequestBody)

	if err := r.ParseMultipartForm(h.maxAudioBytes); err != nil {
		Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		answerError(w, msgNoAudio)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, h.maxAudioBytes))
	if err != nil || len(audio) == 0 {
		answerError(w, msgNoAudio)
		return
	}

	image := r.FormValue("image")
	if image == "" {
		answerError(w, msgNoImage)
		return
	}

	ident := describe.Identity{
		UserID:    identity.UserIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}

	slog.Info("voice question received",
		"user_id", ident.UserID,
		"audio_bytes", len(audio),
	)

	result, err := h.svc.VoiceAsk(r.Context(), ident, audio, describe.NormalizeImage(image))
	if err != nil {
		var flowErr *describe.FlowError
		if errors.As(err, &flowErr) {
			answerError(w, flowErr.Message)
			return
		}
		Error(w, http.StatusInternalServerError, "internal error")
		return
	}

	JSON(w, http.StatusOK, answerResponse{
		Question: result.Question,
		Answer:   result.Answer,
		Error:    false,
		TTSURL:   result.TTSURL,
	})
}
