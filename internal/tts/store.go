package tts

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// URLPrefix is where synthesized files are served from.
const URLPrefix = "/tts/"

// FileStore writes synthesized audio under a single directory and hands out
// server-relative URLs for playback.
type FileStore struct {
	dir string
}

// NewFileStore creates the store, making the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory files are written to.
func (s *FileStore) Dir() string {
	return s.dir
}

// Save writes audio under the given base name and returns its serve URL.
// The name must be a bare file name; anything path-like is rejected.
func (s *FileStore) Save(name string, audio []byte) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, "/\\") {
		return "", fmt.Errorf("invalid tts file name %q", name)
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		return "", fmt.Errorf("write tts file: %w", err)
	}
	return URLPrefix + name, nil
}
