// Package client implements the capture-and-ask client: it mediates
// between local media sources and the three Soriview endpoints, holding
// the shared last-frame slot, the recording state machine, and the
// append-only conversation log.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/soriview/soriview/internal/domain"
)

const (
	captionPath      = "/api/caption"
	askPath          = "/api/ask"
	voiceAskPath     = "/api/voice-ask"
	conversationPath = "/api/conversation"

	defaultTimeout = 60 * time.Second
)

// ServiceError is an error the service reported in its response body.
// Its message is meant for the user verbatim.
type ServiceError struct {
	Message string
}

func (e *ServiceError) Error() string {
	return e.Message
}

// Client issues requests against a Soriview server.
type Client struct {
	baseURL *url.URL
	client  *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// New creates a client for the given server base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}

	// The anonymous identity cookie has to survive across requests so the
	// conversation log stays attached to one identity.
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	c := &Client{
		baseURL: u,
		client:  &http.Client{Timeout: defaultTimeout, Jar: jar},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ResolveTTS turns a server-relative tts_url into an absolute URL.
func (c *Client) ResolveTTS(ttsURL string) string {
	if ttsURL == "" {
		return ""
	}
	ref, err := url.Parse(ttsURL)
	if err != nil {
		return ttsURL
	}
	return c.baseURL.ResolveReference(ref).String()
}

// CaptionResponse is the body of a caption exchange.
type CaptionResponse struct {
	RawCaption    string `json:"raw_caption"`
	KoreanCaption string `json:"korean_caption"`
	TTSURL        string `json:"tts_url"`
	Err           string `json:"error"`
}

// AnswerResponse is the body of an ask or voice-ask exchange.
type AnswerResponse struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	TTSURL   string `json:"tts_url"`
	Err      bool   `json:"error"`
}

// Caption sends a frame for description.
func (c *Client) Caption(ctx context.Context, imageB64 string) (*CaptionResponse, error) {
	body, err := json.Marshal(map[string]string{"image": imageB64})
	if err != nil {
		return nil, fmt.Errorf("marshal caption request: %w", err)
	}

	respBody, status, err := c.post(ctx, captionPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var resp CaptionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("parse caption response: %w", err)
	}
	if resp.Err != "" {
		return nil, &ServiceError{Message: resp.Err}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("caption: unexpected status %d", status)
	}
	return &resp, nil
}

// Ask sends a typed question plus a frame.
func (c *Client) Ask(ctx context.Context, question, imageB64 string) (*AnswerResponse, error) {
	body, err := json.Marshal(map[string]string{
		"question": question,
		"image":    imageB64,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal ask request: %w", err)
	}

	respBody, status, err := c.post(ctx, askPath, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	return parseAnswer(respBody, status, "ask")
}

// VoiceAsk submits a webm recording and a frame as a multipart form.
func (c *Client) VoiceAsk(ctx context.Context, audio []byte, imageB64 string) (*AnswerResponse, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("audio", "question.webm")
	if err != nil {
		return nil, fmt.Errorf("create audio part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("write audio part: %w", err)
	}
	if err := writer.WriteField("image", imageB64); err != nil {
		return nil, fmt.Errorf("write image field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	respBody, status, err := c.post(ctx, voiceAskPath, writer.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}

	return parseAnswer(respBody, status, "voice-ask")
}

func parseAnswer(body []byte, status int, op string) (*AnswerResponse, error) {
	var resp AnswerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", op, err)
	}
	if resp.Err {
		return nil, &ServiceError{Message: resp.Answer}
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d", op, status)
	}
	return &resp, nil
}

// Conversation fetches recent log entries for this identity, oldest first.
func (c *Client) Conversation(ctx context.Context) ([]*domain.Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL.String()+conversationPath, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", conversationPath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("conversation: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Entries []*domain.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parse conversation response: %w", err)
	}
	return body.Entries, nil
}

func (c *Client) post(ctx context.Context, path, contentType string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL.String()+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read %s response: %w", path, err)
	}
	return respBody, resp.StatusCode, nil
}

// IsServiceError reports whether err carries a service-reported message.
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}
