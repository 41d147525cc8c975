package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/soriview/soriview/internal/domain"
)

// RecState is the recording state of the session. The two-state machine
// makes overlapping recording sessions unrepresentable: a toggle while
// recording always stops, never starts a second session.
type RecState int

const (
	// StateIdle means no recording session exists.
	StateIdle RecState = iota
	// StateRecording means audio fragments are being accumulated.
	StateRecording
)

var (
	// ErrEmptyQuestion is returned for empty or whitespace-only questions.
	// No request is issued.
	ErrEmptyQuestion = errors.New("question is empty")
	// ErrBusy is returned when the voice trigger fires while a previous
	// submission is still awaiting its response.
	ErrBusy = errors.New("voice request already in flight")
	// ErrNoRecorder is returned when the session has no recorder; the
	// voice flow is unavailable without one.
	ErrNoRecorder = errors.New("no recorder configured")
)

// msgTransportFail is the generic message logged when the server could
// not be reached or its response could not be read.
const msgTransportFail = "서버와 통신에 실패했습니다."

// LogEntry is one line of the client-side conversation log.
type LogEntry struct {
	Actor  domain.Actor
	Text   string
	TTSURL string
	At     time.Time
}

// Session owns the transient state of one capture-and-ask client: the
// single last-frame slot, the recording state machine, and the
// append-only conversation log.
type Session struct {
	client   *Client
	source   FrameSource
	recorder Recorder
	player   Player
	logger   *slog.Logger

	mu         sync.Mutex
	lastFrame  *Frame
	state      RecState
	submitting bool
	log        []LogEntry
}

// NewSession creates a session over the given server client and media
// sources. A nil player disables playback.
func NewSession(c *Client, source FrameSource, recorder Recorder, player Player, logger *slog.Logger) *Session {
	if player == nil {
		player = NoopPlayer{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		client:   c,
		source:   source,
		recorder: recorder,
		player:   player,
		logger:   logger,
	}
}

// State returns the current recording state.
func (s *Session) State() RecState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Log returns a copy of the conversation log.
func (s *Session) Log() []LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LogEntry, len(s.log))
	copy(out, s.log)
	return out
}

// LastFrame returns the frame currently held in the shared slot, or nil.
func (s *Session) LastFrame() *Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastFrame
}

func (s *Session) append(actor domain.Actor, text, ttsURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, LogEntry{Actor: actor, Text: text, TTSURL: ttsURL, At: time.Now()})
}

// captureFresh snapshots the feed and overwrites the shared slot.
// A source failure is a hard stop: the slot keeps its previous frame and
// the triggering action produces no output.
func (s *Session) captureFresh(ctx context.Context) (string, error) {
	frame, err := s.source.Capture(ctx)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.lastFrame = &frame
	s.mu.Unlock()
	return frame.Base64(), nil
}

// ensureFrame reuses the slot when it holds a frame, capturing fresh only
// when none exists yet. Reuse can serve a stale snapshot; that is the
// documented behavior, not corrected here.
func (s *Session) ensureFrame(ctx context.Context) (string, error) {
	s.mu.Lock()
	frame := s.lastFrame
	s.mu.Unlock()
	if frame != nil {
		return frame.Base64(), nil
	}
	return s.captureFresh(ctx)
}

// logRequestError appends exactly one system entry for a failed exchange:
// the service's message verbatim, or the generic transport message.
func (s *Session) logRequestError(err error) {
	var se *ServiceError
	if errors.As(err, &se) {
		s.append(domain.ActorSystem, se.Message, "")
		return
	}
	s.logger.Warn("request failed", "error", err)
	s.append(domain.ActorSystem, msgTransportFail, "")
}

// Caption captures a fresh frame and asks the server to describe it.
// The spoken result is played automatically; when playback fails the log
// gains a fallback entry carrying the audio link instead.
func (s *Session) Caption(ctx context.Context) (*domain.CaptionResult, error) {
	imageB64, err := s.captureFresh(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Caption(ctx, imageB64)
	if err != nil {
		s.logRequestError(err)
		return nil, err
	}

	ttsURL := s.client.ResolveTTS(resp.TTSURL)
	s.append(domain.ActorAssistant, resp.KoreanCaption, ttsURL)

	if ttsURL != "" {
		if err := s.player.Play(ctx, ttsURL); err != nil {
			s.logger.Info("caption playback blocked", "error", err)
			s.append(domain.ActorSystem, "음성 안내 듣기: "+ttsURL, ttsURL)
		}
	}

	return &domain.CaptionResult{
		RawCaption:    resp.RawCaption,
		KoreanCaption: resp.KoreanCaption,
		TTSURL:        ttsURL,
	}, nil
}

// Ask submits a typed question along with the most recent frame,
// capturing one only if the slot is empty.
func (s *Session) Ask(ctx context.Context, question string) (*domain.AnswerResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}

	imageB64, err := s.ensureFrame(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Ask(ctx, question, imageB64)
	if err != nil {
		s.logRequestError(err)
		return nil, err
	}

	ttsURL := s.client.ResolveTTS(resp.TTSURL)
	s.append(domain.ActorUser, question, "")
	s.append(domain.ActorAssistant, resp.Answer, ttsURL)

	s.playBestEffort(ctx, ttsURL)

	return &domain.AnswerResult{Answer: resp.Answer, TTSURL: ttsURL}, nil
}

// ToggleRecording drives the Idle→Recording→Idle machine. The first call
// starts accumulating audio and returns (nil, nil); the second stops,
// assembles the payload, attaches the most recent frame (capturing only
// if none exists), and submits it. The trigger is rejected with ErrBusy
// while a submission is awaiting its response, and re-enabled
// unconditionally afterward.
func (s *Session) ToggleRecording(ctx context.Context) (*domain.AnswerResult, error) {
	if s.recorder == nil {
		return nil, ErrNoRecorder
	}

	s.mu.Lock()
	if s.submitting {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	switch s.state {
	case StateIdle:
		// Claim the recording state before starting the recorder so a
		// second toggle racing this one takes the stop branch instead of
		// starting a second session.
		s.state = StateRecording
		s.mu.Unlock()
		if err := s.recorder.Start(ctx); err != nil {
			s.mu.Lock()
			s.state = StateIdle
			s.mu.Unlock()
			return nil, err
		}
		return nil, nil

	case StateRecording:
		s.state = StateIdle
		s.submitting = true
		s.mu.Unlock()
	}

	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	audio, err := s.recorder.Stop()
	if err != nil {
		s.append(domain.ActorSystem, "녹음을 저장하지 못했습니다.", "")
		return nil, err
	}

	imageB64, err := s.ensureFrame(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.VoiceAsk(ctx, audio, imageB64)
	if err != nil {
		s.logRequestError(err)
		return nil, err
	}

	ttsURL := s.client.ResolveTTS(resp.TTSURL)
	s.append(domain.ActorUser, resp.Question, "")
	s.append(domain.ActorAssistant, resp.Answer, ttsURL)

	s.playBestEffort(ctx, ttsURL)

	return &domain.AnswerResult{
		Question: resp.Question,
		Answer:   resp.Answer,
		TTSURL:   ttsURL,
	}, nil
}

// playBestEffort plays answer audio; failures are logged, never surfaced.
func (s *Session) playBestEffort(ctx context.Context, ttsURL string) {
	if ttsURL == "" {
		return
	}
	if err := s.player.Play(ctx, ttsURL); err != nil {
		s.logger.Info("answer playback failed", "error", err)
	}
}
