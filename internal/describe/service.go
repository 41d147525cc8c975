// Package describe orchestrates the three scene-description flows:
// caption, text question, and voice question. It sits between the HTTP
// handlers and the inference clients, and owns conversation logging.
package describe

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/soriview/soriview/internal/config"
	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/vision"
)

// User-facing messages. The service speaks Korean to its users; these
// mirror the deployed frontend copy.
const (
	msgNoAPIKeyAsk     = "LLM API 키가 설정되지 않았습니다. 터미널에서 OPENAI_API_KEY 환경변수를 설정해 주세요."
	msgNoAPIKeyVoice   = "OPENAI_API_KEY가 설정되지 않았습니다."
	msgNoTranscription = "음성을 인식하지 못했습니다."

	captionPrompt = "Describe this image in one short English sentence."

	refineSystemPrompt = "너는 시각장애인을 위한 화면 설명 도우미야. " +
		"입력된 문장을 바탕으로, 자연스러운 한국어 한두 문장으로 " +
		"존댓말로 설명해줘. 군더더기 없이 핵심만 말해."

	answerPromptFormat = "너는 시각장애인을 위한 장면 설명 도우미야. " +
		"아래 이미지를 보고, 사용자의 질문에 대해 " +
		"한국어로 1~2문장 정도로 짧고 분명하게 대답해 줘.\n\n질문: %s"
)

// FlowError is a service-reported failure: the message is safe to show to
// the user verbatim, in place of an answer.
type FlowError struct {
	Message string
}

func (e *FlowError) Error() string {
	return e.Message
}

func flowErrorf(format string, args ...any) *FlowError {
	return &FlowError{Message: fmt.Sprintf(format, args...)}
}

// Visioner generates text grounded on an optional image.
type Visioner interface {
	Generate(ctx context.Context, req vision.Request) (string, error)
}

// Transcriber converts recorded audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, model, language string) (string, error)
}

// Synthesizer converts text to mp3 audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, model, voice string) ([]byte, error)
}

// AudioStore persists synthesized audio and returns its serve URL.
type AudioStore interface {
	Save(name string, audio []byte) (string, error)
}

// EntrySink receives conversation entries. The HTTP layer wires this to
// the SQLite store plus the WebSocket feed.
type EntrySink interface {
	Append(ctx context.Context, entry *domain.Entry)
}

// Identity names the conversation an operation belongs to.
type Identity struct {
	UserID    string
	SessionID string
}

// Service implements the caption / ask / voice-ask flows.
type Service struct {
	vision Visioner
	stt    Transcriber
	tts    Synthesizer
	audio  AudioStore
	sink   EntrySink
	cfg    config.OpenAIConfig
}

// NewService creates the orchestration service.
func NewService(v Visioner, t Transcriber, s Synthesizer, audio AudioStore, sink EntrySink, cfg config.OpenAIConfig) *Service {
	return &Service{vision: v, stt: t, tts: s, audio: audio, sink: sink, cfg: cfg}
}

// NormalizeImage strips a data-URL prefix, leaving the bare base64 payload.
func NormalizeImage(imageB64 string) string {
	if i := strings.IndexByte(imageB64, ','); i >= 0 {
		return imageB64[i+1:]
	}
	return imageB64
}

// Caption describes the current scene: a short English caption, a Korean
// rendering of it, and best-effort speech audio.
func (s *Service) Caption(ctx context.Context, ident Identity, imageB64 string) (*domain.CaptionResult, error) {
	start := time.Now()

	raw, err := s.vision.Generate(ctx, vision.Request{
		Model:    s.cfg.CaptionModel,
		Prompt:   captionPrompt,
		ImageB64: imageB64,
	})
	if err != nil {
		return nil, fmt.Errorf("caption error: %w", err)
	}

	korean, err := s.vision.Generate(ctx, vision.Request{
		Model:  s.cfg.AnswerModel,
		System: refineSystemPrompt,
		Prompt: "다음 캡션을 한국어로 정리해줘: " + raw,
	})
	if err != nil {
		// Refinement is an enhancement; fall back to the raw caption.
		slog.Warn("caption refinement failed, using raw caption", "error", err)
		korean = raw
	}

	ttsURL := s.speak(ctx, korean, "caption.mp3")

	slog.Info("caption produced",
		"user_id", ident.UserID,
		"raw_len", len(raw),
		"tts", ttsURL != "",
		"duration", time.Since(start),
	)

	s.sink.Append(ctx, &domain.Entry{
		UserID:    ident.UserID,
		SessionID: ident.SessionID,
		Actor:     domain.ActorAssistant,
		Text:      korean,
		TTSURL:    ttsURL,
	})

	return &domain.CaptionResult{
		RawCaption:    raw,
		KoreanCaption: korean,
		TTSURL:        ttsURL,
	}, nil
}

// Ask answers a typed question about the supplied frame.
// A *FlowError return carries the user-facing message.
func (s *Service) Ask(ctx context.Context, ident Identity, question, imageB64 string) (*domain.AnswerResult, error) {
	if s.cfg.APIKey == "" {
		return nil, &FlowError{Message: msgNoAPIKeyAsk}
	}

	answer, err := s.vision.Generate(ctx, vision.Request{
		Model:    s.cfg.AnswerModel,
		Prompt:   fmt.Sprintf(answerPromptFormat, question),
		ImageB64: imageB64,
	})
	if err != nil {
		slog.Error("ask: generation failed", "error", err, "user_id", ident.UserID)
		return nil, flowErrorf("LLM 호출 중 오류가 발생했습니다: %v", err)
	}

	ttsURL := s.speak(ctx, answer, "answer_"+uuid.NewString()+".mp3")

	s.appendExchange(ctx, ident, question, answer, ttsURL)

	return &domain.AnswerResult{Answer: answer, TTSURL: ttsURL}, nil
}

// VoiceAsk transcribes a recorded question, answers it against the frame,
// and returns both the transcription and the answer.
func (s *Service) VoiceAsk(ctx context.Context, ident Identity, audio []byte, imageB64 string) (*domain.AnswerResult, error) {
	if s.cfg.APIKey == "" {
		return nil, &FlowError{Message: msgNoAPIKeyVoice}
	}

	question, err := s.stt.Transcribe(ctx, audio, s.cfg.STTModel, "ko")
	if err != nil {
		slog.Error("voice-ask: transcription failed", "error", err, "user_id", ident.UserID)
		return nil, flowErrorf("STT 오류: %v", err)
	}
	if question == "" {
		return nil, &FlowError{Message: msgNoTranscription}
	}

	answer, err := s.vision.Generate(ctx, vision.Request{
		Model:    s.cfg.AnswerModel,
		Prompt:   fmt.Sprintf(answerPromptFormat, question),
		ImageB64: imageB64,
	})
	if err != nil {
		slog.Error("voice-ask: generation failed", "error", err, "user_id", ident.UserID)
		return nil, flowErrorf("LLM 오류: %v", err)
	}

	ttsURL := s.speak(ctx, answer, "voice_answer_"+uuid.NewString()+".mp3")

	s.appendExchange(ctx, ident, question, answer, ttsURL)

	return &domain.AnswerResult{Question: question, Answer: answer, TTSURL: ttsURL}, nil
}

// speak synthesizes text and stores the mp3, returning its URL.
// Synthesis is best-effort: on failure the result simply has no audio.
func (s *Service) speak(ctx context.Context, text, filename string) string {
	if s.cfg.APIKey == "" {
		return ""
	}

	audio, err := s.tts.Synthesize(ctx, text, s.cfg.TTSModel, s.cfg.TTSVoice)
	if err != nil {
		slog.Warn("tts synthesis failed", "error", err, "file", filename)
		return ""
	}

	url, err := s.audio.Save(filename, audio)
	if err != nil {
		slog.Warn("tts save failed", "error", err, "file", filename)
		return ""
	}
	return url
}

func (s *Service) appendExchange(ctx context.Context, ident Identity, question, answer, ttsURL string) {
	s.sink.Append(ctx, &domain.Entry{
		UserID:    ident.UserID,
		SessionID: ident.SessionID,
		Actor:     domain.ActorUser,
		Text:      question,
	})
	s.sink.Append(ctx, &domain.Entry{
		UserID:    ident.UserID,
		SessionID: ident.SessionID,
		Actor:     domain.ActorAssistant,
		Text:      answer,
		TTSURL:    ttsURL,
	})
}
