// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	TTSDir      string

	OpenAI OpenAIConfig

	// EntryTTL controls how long conversation entries are kept before the
	// cleanup worker removes them.
	EntryTTL time.Duration

	// MaxRequestBody bounds JSON request bodies (base64 frames are large).
	MaxRequestBody int64
	// MaxAudioBytes bounds the uploaded voice recording.
	MaxAudioBytes int64
}

// OpenAIConfig holds the upstream inference settings. With an empty
// APIKey the Q&A flows return a service-reported error telling the user
// to set the key, and caption requests fail against the upstream.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	CaptionModel string
	AnswerModel  string
	STTModel     string
	TTSModel     string
	TTSVoice     string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/soriview.db"),
		TTSDir:      getEnv("TTS_DIR", "./data/tts"),
		OpenAI: OpenAIConfig{
			APIKey:       getEnv("OPENAI_API_KEY", ""),
			BaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
			CaptionModel: getEnv("CAPTION_MODEL", "gpt-4o-mini"),
			AnswerModel:  getEnv("ANSWER_MODEL", "gpt-4o-mini"),
			STTModel:     getEnv("STT_MODEL", "whisper-1"),
			TTSModel:     getEnv("TTS_MODEL", "tts-1"),
			TTSVoice:     getEnv("TTS_VOICE", "nova"),
		},
		EntryTTL:       time.Duration(getEnvInt("ENTRY_TTL_HOURS", 24*7)) * time.Hour,
		MaxRequestBody: int64(getEnvInt("MAX_REQUEST_BODY", 10<<20)),
		MaxAudioBytes:  int64(getEnvInt("MAX_AUDIO_BYTES", 25<<20)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.TTSDir == "" {
		return fmt.Errorf("TTS_DIR cannot be empty")
	}
	if c.OpenAI.BaseURL == "" {
		return fmt.Errorf("OPENAI_BASE_URL cannot be empty")
	}
	if c.MaxRequestBody <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY must be > 0")
	}
	if c.MaxAudioBytes <= 0 {
		return fmt.Errorf("MAX_AUDIO_BYTES must be > 0")
	}
	if c.EntryTTL <= 0 {
		return fmt.Errorf("ENTRY_TTL_HOURS must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
