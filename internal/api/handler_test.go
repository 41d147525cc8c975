package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/soriview/soriview/internal/config"
	"github.com/soriview/soriview/internal/describe"
	"github.com/soriview/soriview/internal/domain"
	"github.com/soriview/soriview/internal/identity"
)

type fakeService struct {
	captionResult *domain.CaptionResult
	answerResult  *domain.AnswerResult
	err           error

	lastImage    string
	lastQuestion string
	lastAudio    []byte
}

func (f *fakeService) Caption(_ context.Context, _ describe.Identity, imageB64 string) (*domain.CaptionResult, error) {
	f.lastImage = imageB64
	if f.err != nil {
		return nil, f.err
	}
	return f.captionResult, nil
}

func (f *fakeService) Ask(_ context.Context, _ describe.Identity, question, imageB64 string) (*domain.AnswerResult, error) {
	f.lastQuestion = question
	f.lastImage = imageB64
	if f.err != nil {
		return nil, f.err
	}
	return f.answerResult, nil
}

func (f *fakeService) VoiceAsk(_ context.Context, _ describe.Identity, audio []byte, imageB64 string) (*domain.AnswerResult, error) {
	f.lastAudio = audio
	f.lastImage = imageB64
	if f.err != nil {
		return nil, f.err
	}
	return f.answerResult, nil
}

type fakeRepo struct {
	entries []*domain.Entry
	err     error
}

func (r *fakeRepo) AppendEntry(_ context.Context, e *domain.Entry) (*domain.Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	stored := *e
	stored.ID = int64(len(r.entries) + 1)
	stored.CreatedAt = time.Now()
	r.entries = append(r.entries, &stored)
	return &stored, nil
}

func (r *fakeRepo) RecentEntries(_ context.Context, userID, sessionID string, _ int) ([]*domain.Entry, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []*domain.Entry
	for _, e := range r.entries {
		if e.UserID == userID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *fakeRepo) CleanupExpiredEntries(context.Context, time.Duration) (int64, error) {
	return 0, r.err
}

func (r *fakeRepo) Ping(context.Context) error { return r.err }
func (r *fakeRepo) Close() error               { return nil }

func testIdentity(userID, sessionID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.ContextWith(r.Context(), userID, sessionID)))
		})
	}
}

func newTestRouter(svc DescribeService, repo *fakeRepo, ttsDir string) http.Handler {
	cfg := &config.Config{
		TTSDir:         ttsDir,
		MaxRequestBody: 10 << 20,
		MaxAudioBytes:  25 << 20,
	}
	h := NewHandler(svc, repo, cfg)

	r := chi.NewRouter()
	r.Use(testIdentity("anon_test", "default"))
	h.RegisterRoutes(r)
	return r
}

func postJSON(t *testing.T, handler http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var got map[string]any
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestHandleCaptionSuccess(t *testing.T) {
	svc := &fakeService{captionResult: &domain.CaptionResult{
		RawCaption:    "a desk",
		KoreanCaption: "책상입니다.",
		TTSURL:        "/tts/caption.mp3",
	}}
	router := newTestRouter(svc, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/caption", map[string]string{
		"image": "data:image/jpeg;base64,abc123",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["korean_caption"] != "책상입니다." || got["raw_caption"] != "a desk" {
		t.Errorf("Unexpected body: %v", got)
	}
	if svc.lastImage != "abc123" {
		t.Errorf("Data-URL prefix should be stripped, got %q", svc.lastImage)
	}
}

func TestHandleCaptionMissingImage(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/caption", map[string]string{})

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != "image field not found" {
		t.Errorf("Unexpected error message: %v", got["error"])
	}
}

func TestHandleCaptionServiceFailure(t *testing.T) {
	svc := &fakeService{err: errors.New("caption error: upstream down")}
	router := newTestRouter(svc, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/caption", map[string]string{"image": "abc"})

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status 500, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if !strings.Contains(got["error"].(string), "upstream down") {
		t.Errorf("Error body should carry the failure, got %v", got)
	}
}

func TestHandleAskEmptyQuestion(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/ask", map[string]string{
		"question": "   ",
		"image":    "abc",
	})

	// Validation failures are service-level: status stays 200.
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != true || got["answer"] != msgEmptyQuestion {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestHandleAskMissingImage(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/ask", map[string]string{"question": "뭐야?"})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != true || got["answer"] != msgNoImage {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestHandleAskFlowError(t *testing.T) {
	svc := &fakeService{err: &describe.FlowError{Message: "LLM 오류: boom"}}
	router := newTestRouter(svc, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/ask", map[string]string{
		"question": "질문",
		"image":    "abc",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != true || got["answer"] != "LLM 오류: boom" {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestHandleAskSuccess(t *testing.T) {
	svc := &fakeService{answerResult: &domain.AnswerResult{
		Answer: "컵은 오른쪽에 있습니다.",
		TTSURL: "/tts/answer_1.mp3",
	}}
	router := newTestRouter(svc, &fakeRepo{}, t.TempDir())

	w := postJSON(t, router, "/api/ask", map[string]string{
		"question": "  컵이 어디 있어?  ",
		"image":    "abc",
	})

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != false || got["answer"] != "컵은 오른쪽에 있습니다." {
		t.Errorf("Unexpected body: %v", got)
	}
	if svc.lastQuestion != "컵이 어디 있어?" {
		t.Errorf("Question should be trimmed, got %q", svc.lastQuestion)
	}
}

func postVoice(t *testing.T, handler http.Handler, audio []byte, image string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if audio != nil {
		part, err := writer.CreateFormFile("audio", "question.webm")
		if err != nil {
			t.Fatalf("Failed to create audio part: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("Failed to write audio: %v", err)
		}
	}
	if image != "" {
		if err := writer.WriteField("image", image); err != nil {
			t.Fatalf("Failed to write image field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Failed to close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/voice-ask", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleVoiceAskSuccess(t *testing.T) {
	svc := &fakeService{answerResult: &domain.AnswerResult{
		Question: "문이 열려 있어?",
		Answer:   "네, 열려 있습니다.",
		TTSURL:   "/tts/voice_answer_1.mp3",
	}}
	router := newTestRouter(svc, &fakeRepo{}, t.TempDir())

	w := postVoice(t, router, []byte("webm-bytes"), "data:image/jpeg;base64,xyz")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["question"] != "문이 열려 있어?" || got["error"] != false {
		t.Errorf("Unexpected body: %v", got)
	}
	if string(svc.lastAudio) != "webm-bytes" {
		t.Errorf("Unexpected audio payload: %q", svc.lastAudio)
	}
	if svc.lastImage != "xyz" {
		t.Errorf("Data-URL prefix should be stripped, got %q", svc.lastImage)
	}
}

func TestHandleVoiceAskMissingAudio(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	w := postVoice(t, router, nil, "abc")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != true || got["answer"] != msgNoAudio {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestHandleVoiceAskMissingImage(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	w := postVoice(t, router, []byte("a"), "")

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decodeBody(t, w)
	if got["error"] != true || got["answer"] != msgNoImage {
		t.Errorf("Unexpected body: %v", got)
	}
}

func TestHandleConversationReturnsOwnEntriesOnly(t *testing.T) {
	repo := &fakeRepo{}
	_, _ = repo.AppendEntry(context.Background(), &domain.Entry{
		UserID: "anon_test", SessionID: "default", Actor: domain.ActorUser, Text: "질문",
	})
	_, _ = repo.AppendEntry(context.Background(), &domain.Entry{
		UserID: "anon_other", SessionID: "default", Actor: domain.ActorUser, Text: "남의 질문",
	})
	router := newTestRouter(&fakeService{}, repo, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var got struct {
		Entries []*domain.Entry `json:"entries"`
	}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(got.Entries) != 1 || got.Entries[0].Text != "질문" {
		t.Errorf("Expected only own entries, got %v", got.Entries)
	}
}

func TestHandleConversationEmptyIsAnArray(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"entries":[]`) {
		t.Errorf("Expected empty array, got %s", w.Body.String())
	}
}

func TestHandleTTSFile(t *testing.T) {
	ttsDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(ttsDir, "caption.mp3"), []byte("mp3-data"), 0o644); err != nil {
		t.Fatalf("Failed to write fixture: %v", err)
	}
	router := newTestRouter(&fakeService{}, &fakeRepo{}, ttsDir)

	req := httptest.NewRequest(http.MethodGet, "/tts/caption.mp3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "mp3-data" {
		t.Errorf("Unexpected file body: %q", w.Body.String())
	}
}

func TestHandleTTSFileRejectsTraversal(t *testing.T) {
	router := newTestRouter(&fakeService{}, &fakeRepo{}, t.TempDir())

	for _, name := range []string{"..%2f..%2fetc%2fpasswd", ".hidden", "a%5cb"} {
		req := httptest.NewRequest(http.MethodGet, "/tts/"+name, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusBadRequest && w.Code != http.StatusNotFound {
			t.Errorf("GET /tts/%s: expected rejection, got %d", name, w.Code)
		}
	}
}

func TestEntrySinkSurvivesRepoFailure(t *testing.T) {
	repo := &fakeRepo{err: errors.New("disk full")}
	var published []*domain.Entry
	sink := &EntrySink{Repo: repo, Publish: func(e *domain.Entry) { published = append(published, e) }}

	entry := &domain.Entry{UserID: "anon_test", Actor: domain.ActorAssistant, Text: "답변"}
	sink.Append(context.Background(), entry)

	if len(published) != 1 || published[0].Text != "답변" {
		t.Errorf("Entry should still reach subscribers, got %v", published)
	}
}
