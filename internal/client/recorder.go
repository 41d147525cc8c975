package client

import (
	"context"
	"errors"
	"fmt"
	"os"
)

var (
	// ErrNotRecording is returned when Stop is called without Start.
	ErrNotRecording = errors.New("recorder is not recording")
	// ErrAlreadyRecording is returned when Start is called twice.
	ErrAlreadyRecording = errors.New("recorder is already recording")
)

// Recorder accumulates audio fragments between Start and Stop and
// assembles them into a single webm payload.
type Recorder interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
}

// FileRecorder is a Recorder that returns the contents of a pre-recorded
// webm file, for driving the voice flow from the command line.
type FileRecorder struct {
	Path string

	recording bool
}

// Start marks the recorder active.
func (r *FileRecorder) Start(_ context.Context) error {
	if r.recording {
		return ErrAlreadyRecording
	}
	if _, err := os.Stat(r.Path); err != nil {
		return fmt.Errorf("audio file: %w", err)
	}
	r.recording = true
	return nil
}

// Stop returns the recorded payload.
func (r *FileRecorder) Stop() ([]byte, error) {
	if !r.recording {
		return nil, ErrNotRecording
	}
	r.recording = false

	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("read audio file: %w", err)
	}
	return data, nil
}

// Player plays synthesized speech. Playback is best-effort everywhere it
// is used.
type Player interface {
	Play(ctx context.Context, url string) error
}

// NoopPlayer ignores playback requests.
type NoopPlayer struct{}

// Play does nothing.
func (NoopPlayer) Play(context.Context, string) error { return nil }
