package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
)

// ErrSourceNotReady is returned by a FrameSource whose device is not yet
// producing frames. Callers must treat it as a hard stop for the action
// that demanded the capture.
var ErrSourceNotReady = errors.New("frame source not ready")

// Frame is one encoded still image snapshotted from the video feed.
type Frame struct {
	Data []byte
	MIME string
}

// Base64 returns the payload the endpoints expect.
func (f Frame) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// FrameSource captures the current video feed into an encoded image.
type FrameSource interface {
	Capture(ctx context.Context) (Frame, error)
}

// FileSource is a FrameSource backed by an image file on disk. Pointing it
// at a path a capture tool keeps overwriting gives a crude camera feed.
type FileSource struct {
	Path string
}

// Capture reads the file. A missing or empty file means the feed has not
// produced a frame yet.
func (s FileSource) Capture(_ context.Context) (Frame, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Frame{}, fmt.Errorf("%w: %s", ErrSourceNotReady, s.Path)
		}
		return Frame{}, fmt.Errorf("read frame file: %w", err)
	}
	if len(data) == 0 {
		return Frame{}, fmt.Errorf("%w: %s is empty", ErrSourceNotReady, s.Path)
	}
	return Frame{Data: data, MIME: "image/jpeg"}, nil
}
