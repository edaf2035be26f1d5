package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/history"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
)

// Request body and upload limits.
const (
	maxAskBodyBytes = 64 * 1024
	maxUploadBytes  = 10 * 1024 * 1024
)

type askHandler struct {
	answerer Answerer
	history  HistoryStore
	logger   *slog.Logger
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *askHandler) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxAskBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with a question field")
		return
	}

	ans, err := h.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		if errors.Is(err, answer.ErrEmptyQuestion) {
			writeError(w, http.StatusBadRequest, "empty_question", "question must not be empty")
			return
		}
		h.logger.Error("answering failed", "error", err, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusInternalServerError, "answer_failed", "failed to answer the question")
		return
	}

	// History is best effort; an unavailable history table must not fail
	// the answer.
	if h.history != nil {
		ctx := r.Context()
		if _, err := h.history.SaveMessage(ctx, history.RoleUser, req.Question, nil); err != nil {
			h.logger.Warn("saving user message failed", "error", err)
		}
		if _, err := h.history.SaveMessage(ctx, history.RoleAssistant, ans.Text, ans.Sources); err != nil {
			h.logger.Warn("saving assistant message failed", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, ans)
}

type questionnaireHandler struct {
	runner  QuestionnaireRunner
	history HistoryStore
	logger  *slog.Logger
}

type questionnaireResponse struct {
	SessionID string             `json:"session_id,omitempty"`
	Filename  string             `json:"filename"`
	Questions []questionnaire.QA `json:"questions"`
}

func (h *questionnaireHandler) upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "expected a multipart upload with a file field")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_file", "upload must include a file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_file", "could not read the uploaded file")
		return
	}

	qas, err := h.runner.AnswerAll(r.Context(), header.Filename, data)
	if err != nil {
		if errors.Is(err, questionnaire.ErrNoQuestions) {
			writeError(w, http.StatusUnprocessableEntity, "no_questions", "no questions found in the uploaded document")
			return
		}
		h.logger.Error("questionnaire failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "questionnaire_failed", "failed to process the questionnaire")
		return
	}

	resp := questionnaireResponse{Filename: header.Filename, Questions: qas}
	if h.history != nil {
		id, err := h.history.SaveQuestionnaire(r.Context(), header.Filename, qas)
		if err != nil {
			h.logger.Warn("saving questionnaire session failed", "error", err)
		} else {
			resp.SessionID = id.String()
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

type historyHandler struct {
	store  HistoryStore
	logger *slog.Logger
}

func (h *historyHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListQuestionnaires(r.Context(), 20)
	if err != nil {
		h.logger.Error("listing questionnaires failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list questionnaire sessions")
		return
	}
	if sessions == nil {
		sessions = []history.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *historyHandler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "session id must be a UUID")
		return
	}

	session, err := h.store.GetQuestionnaire(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		h.logger.Error("loading questionnaire failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load the session")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *historyHandler) messages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.store.ListMessages(r.Context(), 50)
	if err != nil {
		h.logger.Error("listing chat messages failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list chat history")
		return
	}
	if messages == nil {
		messages = []history.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type syncHandler struct {
	syncer  Syncer
	logger  *slog.Logger
	running atomic.Bool
}

// run triggers a sync. Runs are serialized: a second request while one
// is in flight gets 409 rather than doubling the indexing work.
func (h *syncHandler) run(w http.ResponseWriter, r *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		writeError(w, http.StatusConflict, "sync_in_progress", "a sync is already running")
		return
	}
	defer h.running.Store(false)

	summary, err := h.syncer.Run(r.Context())
	if err != nil {
		h.logger.Error("sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "sync_failed", "sync run failed")
		return
	}

	sourceErrors := make(map[string]string, len(summary.SourceErrors))
	for name, srcErr := range summary.SourceErrors {
		sourceErrors[name] = srcErr.Error()
	}
	failed := make([]map[string]string, 0, len(summary.Failed))
	for _, f := range summary.Failed {
		failed = append(failed, map[string]string{"source_id": f.SourceID, "error": f.Err.Error()})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"added":         summary.Added,
		"skipped":       summary.Skipped,
		"removed":       summary.Removed,
		"failed":        failed,
		"source_errors": sourceErrors,
	})
}
