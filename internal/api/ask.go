package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/identity"
)

// Validation messages shown to the user in place of an answer.
const (
	msgEmptyQuestion = "질문이 비어 있습니다."
	msgNoImage       = "이미지가 전송되지 않았습니다."
	msgNoAudio       = "오디오가 전송되지 않았습니다."
)

type askRequest struct {
	Question string `json:"question"`
	Image    string `json:"image"`
}

type answerResponse struct {
	Question string `json:"question,omitempty"`
	Answer   string `json:"answer"`
	Error    bool   `json:"error"`
	TTSURL   string `json:"tts_url,omitempty"`
}

// answerError writes a service-reported failure. The transport succeeded,
// so the status stays 200 and the body carries the error flag.
func answerError(w http.ResponseWriter, message string) {
	JSON(w, http.StatusOK, answerResponse{Answer: message, Error: true})
}

// HandleAsk handles POST /api/ask: answer a typed question about the frame.
func (h *Handler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBody)

	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		answerError(w, msgEmptyQuestion)
		return
	}
	if req.Image == "" {
		answerError(w, msgNoImage)
		return
	}

	ident := describe.Identity{
		UserID:    identity.UserIDFromContext(r.Context()),
		SessionID: identity.SessionIDFromContext(r.Context()),
	}

	result, err := h.svc.Ask(r.Context(), ident, question, describe.NormalizeImage(req.Image))
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
		Answer: result.Answer,
		Error:  false,
		TTSURL: result.TTSURL,
	})
}
