// Package domain contains core domain types for the Soriview application.
package domain

import (
	"time"
)

// Actor identifies who produced a conversation entry.
type Actor string

const (
	// ActorUser is a question typed or spoken by the user.
	ActorUser Actor = "user"
	// ActorAssistant is a caption or answer produced by the service.
	ActorAssistant Actor = "assistant"
	// ActorSystem is an error or status message surfaced to the user.
	ActorSystem Actor = "system"
)

// Entry is one line of the conversation log. Entries are append-only and
// never mutated after creation.
type Entry struct {
	ID        int64     `json:"id"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Actor     Actor     `json:"actor"`
	Text      string    `json:"text"`
	TTSURL    string    `json:"tts_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CaptionResult is the outcome of describing the current scene.
type CaptionResult struct {
	RawCaption    string
	KoreanCaption string
	TTSURL        string
}

// AnswerResult is the outcome of a visual question, by text or voice.
// Question is empty for text questions (the caller already has it) and
// carries the transcription for voice questions.
type AnswerResult struct {
	Question string
	Answer   string
	TTSURL   string
}
