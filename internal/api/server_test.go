package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/history"
	"github.com/answerdeck/answerdeck/internal/log"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
	"github.com/answerdeck/answerdeck/internal/sync"
)

type fakeAnswerer struct {
	ans *answer.Answer
	err error
}

func (f *fakeAnswerer) Answer(_ context.Context, question string) (*answer.Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, answer.ErrEmptyQuestion
	}
	return f.ans, f.err
}

type fakeRunner struct {
	qas []questionnaire.QA
	err error
}

func (f *fakeRunner) AnswerAll(context.Context, string, []byte) ([]questionnaire.QA, error) {
	return f.qas, f.err
}

type fakeSyncer struct {
	summary *sync.Summary
	err     error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeSyncer) Run(context.Context) (*sync.Summary, error) {
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	return f.summary, f.err
}

type fakeHistory struct {
	sessions map[uuid.UUID]*history.Session
	messages []string
	turns    []history.Message
	listErr  error
}

func newFakeHistory() *fakeHistory {
	return &fakeHistory{sessions: make(map[uuid.UUID]*history.Session)}
}

func (f *fakeHistory) SaveQuestionnaire(_ context.Context, filename string, qas []questionnaire.QA) (uuid.UUID, error) {
	id := uuid.New()
	f.sessions[id] = &history.Session{ID: id, Filename: filename, Questions: qas, CreatedAt: time.Now()}
	return id, nil
}

func (f *fakeHistory) GetQuestionnaire(_ context.Context, id uuid.UUID) (*history.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	return s, nil
}

func (f *fakeHistory) ListQuestionnaires(context.Context, int) ([]history.SessionSummary, error) {
	var out []history.SessionSummary
	for _, s := range f.sessions {
		out = append(out, history.SessionSummary{ID: s.ID, Filename: s.Filename, Questions: len(s.Questions), CreatedAt: s.CreatedAt})
	}
	return out, nil
}

func (f *fakeHistory) SaveMessage(_ context.Context, role, content string, sources []answer.Source) (uuid.UUID, error) {
	f.messages = append(f.messages, role+": "+content)
	id := uuid.New()
	f.turns = append(f.turns, history.Message{ID: id, Role: role, Content: content, Sources: sources, CreatedAt: time.Now()})
	return id, nil
}

func (f *fakeHistory) ListMessages(context.Context, int) ([]history.Message, error) {
	return f.turns, f.listErr
}

func newTestServer(t *testing.T, cfg ServerConfig) *Server {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = 1000
	}
	srv, err := NewServer(cfg)
	if err != nil {
		t.Fatalf("NewServer() = %v", err)
	}
	return srv
}

func TestAskEndpoint(t *testing.T) {
	hist := newFakeHistory()
	srv := newTestServer(t, ServerConfig{
		Answerer: &fakeAnswerer{ans: &answer.Answer{
			Text:       "Refunds take five business days.",
			Sources:    []answer.Source{{ID: "drive:f1", Name: "handbook.txt"}},
			Confidence: 0.85,
		}},
		History: hist,
	})

	body := strings.NewReader(`{"question":"How long do refunds take?"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", body)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got answer.Answer
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Text != "Refunds take five business days." || len(got.Sources) != 1 {
		t.Errorf("response = %+v", got)
	}
	if len(hist.messages) != 2 {
		t.Errorf("chat history = %v, want user and assistant turns", hist.messages)
	}
}

func TestAskEmptyQuestion(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"  "}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskInvalidBody(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`not json`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestAskAnswerFailure(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{err: errors.New("model down")}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"anything?"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "model down") {
		t.Error("internal error details leaked to client")
	}
}

func TestMessagesEndpoint(t *testing.T) {
	hist := newFakeHistory()
	srv := newTestServer(t, ServerConfig{
		Answerer: &fakeAnswerer{ans: &answer.Answer{Text: "Within 30 days."}},
		History:  hist,
	})

	ask := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"What is the refund window?"}`))
	srv.Handler().ServeHTTP(httptest.NewRecorder(), ask)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var got struct {
		Messages []history.Message `json:"messages"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("got %d messages, want user and assistant turns: %+v", len(got.Messages), got.Messages)
	}
	if got.Messages[0].Role != history.RoleUser || got.Messages[1].Role != history.RoleAssistant {
		t.Errorf("roles = %q, %q", got.Messages[0].Role, got.Messages[1].Role)
	}
}

func TestMessagesEndpointEmptyHistory(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Answerer: &fakeAnswerer{},
		History:  newFakeHistory(),
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/messages", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"messages":[]`) {
		t.Errorf("empty history body = %s, want empty array", rec.Body.String())
	}
}

func uploadRequest(t *testing.T, path, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(content)); err != nil {
		t.Fatal(err)
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestQuestionnaireEndpoint(t *testing.T) {
	qas := []questionnaire.QA{
		{Question: questionnaire.Question{Number: 1, Text: "First?"}, Answer: &answer.Answer{Text: "One."}},
		{Question: questionnaire.Question{Number: 2, Text: "Second?"}, Answer: &answer.Answer{Text: "Two."}},
	}
	hist := newFakeHistory()
	srv := newTestServer(t, ServerConfig{
		Answerer:      &fakeAnswerer{ans: &answer.Answer{Text: "x"}},
		Questionnaire: &fakeRunner{qas: qas},
		History:       hist,
	})

	req := uploadRequest(t, "/api/v1/questionnaire", "rfp.csv", "Question\nFirst?\nSecond?\n")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp questionnaireResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Questions) != 2 || resp.Filename != "rfp.csv" {
		t.Errorf("response = %+v", resp)
	}
	if resp.SessionID == "" {
		t.Error("session not persisted")
	}
	if len(hist.sessions) != 1 {
		t.Errorf("history has %d sessions, want 1", len(hist.sessions))
	}
}

func TestQuestionnaireNoQuestions(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Answerer:      &fakeAnswerer{ans: &answer.Answer{Text: "x"}},
		Questionnaire: &fakeRunner{err: questionnaire.ErrNoQuestions},
	})

	req := uploadRequest(t, "/api/v1/questionnaire", "prose.txt", "No questions here.")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", rec.Code)
	}
}

func TestQuestionnaireMissingFile(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Answerer:      &fakeAnswerer{ans: &answer.Answer{Text: "x"}},
		Questionnaire: &fakeRunner{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/questionnaire", strings.NewReader("raw body"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=xxx")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	hist := newFakeHistory()
	id, err := hist.SaveQuestionnaire(context.Background(), "old.csv", []questionnaire.QA{
		{Question: questionnaire.Question{Number: 1, Text: "Q?"}, Answer: &answer.Answer{Text: "A."}},
	})
	if err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{}, History: hist})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/questionnaires", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "old.csv") {
		t.Errorf("list body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/questionnaires/"+id.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/questionnaires/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing session status = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/questionnaires/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d, want 400", rec.Code)
	}
}

func TestSyncEndpoint(t *testing.T) {
	srv := newTestServer(t, ServerConfig{
		Answerer: &fakeAnswerer{},
		Syncer: &fakeSyncer{summary: &sync.Summary{
			Added:   3,
			Skipped: 7,
			SourceErrors: map[string]error{
				"dropbox": errors.New("token expired"),
			},
		}},
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["added"].(float64) != 3 || resp["skipped"].(float64) != 7 {
		t.Errorf("response = %v", resp)
	}
	if _, ok := resp["source_errors"].(map[string]any)["dropbox"]; !ok {
		t.Errorf("source_errors = %v", resp["source_errors"])
	}
}

func TestSyncConcurrentConflict(t *testing.T) {
	block := make(chan struct{})
	started := make(chan struct{})
	syncer := &fakeSyncer{summary: &sync.Summary{}, block: block, started: started}
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{}, Syncer: syncer})

	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
		done <- rec.Code
	}()

	// Wait for the first request to hold the slot.
	<-started
	deadline := time.After(2 * time.Second)
	for {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sync", nil))
		if rec.Code == http.StatusConflict {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second sync never conflicted")
		default:
		}
	}

	close(block)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("first sync status = %d", code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{}})

	for _, path := range []string{"/health", "/ready"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s status = %d", path, rec.Code)
		}
	}
}

func TestRateLimit(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{ans: &answer.Answer{Text: "ok"}}, RateBurst: 2})

	var limited bool
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"q?"}`))
		req.RemoteAddr = "203.0.113.7:1234"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("burst of requests was never rate limited")
	}
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t, ServerConfig{Answerer: &fakeAnswerer{ans: &answer.Answer{Text: "ok"}}})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ask", strings.NewReader(`{"question":"q?"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}
