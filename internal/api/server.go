// Package api exposes the answering service over a JSON HTTP API.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/history"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
	"github.com/answerdeck/answerdeck/internal/sync"
)

// Answerer answers a single question.
type Answerer interface {
	Answer(ctx context.Context, question string) (*answer.Answer, error)
}

// QuestionnaireRunner answers every question in an uploaded document.
type QuestionnaireRunner interface {
	AnswerAll(ctx context.Context, filename string, data []byte) ([]questionnaire.QA, error)
}

// Syncer runs one incremental sync across all sources.
type Syncer interface {
	Run(ctx context.Context) (*sync.Summary, error)
}

// HistoryStore persists questionnaire sessions and chat turns.
type HistoryStore interface {
	SaveQuestionnaire(ctx context.Context, filename string, qas []questionnaire.QA) (uuid.UUID, error)
	GetQuestionnaire(ctx context.Context, id uuid.UUID) (*history.Session, error)
	ListQuestionnaires(ctx context.Context, limit int) ([]history.SessionSummary, error)
	SaveMessage(ctx context.Context, role, content string, sources []answer.Source) (uuid.UUID, error)
	ListMessages(ctx context.Context, limit int) ([]history.Message, error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger        *slog.Logger
	Answerer      Answerer            // Required
	Questionnaire QuestionnaireRunner // Optional: nil disables the questionnaire endpoints
	Syncer        Syncer              // Optional: nil disables POST /api/v1/sync
	History       HistoryStore        // Optional: nil disables persistence and listing
	Pool          *pgxpool.Pool       // Optional: nil disables pool stats in /ready
	TrustProxy    bool                // Trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	RateBurst     int                 // Rate limiter burst size per IP (0 = default 60)
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates an API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Answerer == nil {
		return nil, errors.New("answerer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ah := &askHandler{answerer: cfg.Answerer, history: cfg.History, logger: logger}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/ask", ah.ask)

	if cfg.Questionnaire != nil {
		qh := &questionnaireHandler{runner: cfg.Questionnaire, history: cfg.History, logger: logger}
		mux.HandleFunc("POST /api/v1/questionnaire", qh.upload)
	}

	if cfg.History != nil {
		hh := &historyHandler{store: cfg.History, logger: logger}
		mux.HandleFunc("GET /api/v1/questionnaires", hh.list)
		mux.HandleFunc("GET /api/v1/questionnaires/{id}", hh.get)
		mux.HandleFunc("GET /api/v1/messages", hh.messages)
	}

	if cfg.Syncer != nil {
		sh := &syncHandler{syncer: cfg.Syncer, logger: logger}
		mux.HandleFunc("POST /api/v1/sync", sh.run)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → RateLimit → Routes
	// RequestID sits before Logging so request_id appears in log lines.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
