// Package history persists questionnaire sessions and chat messages so
// past runs can be reviewed.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/answerdeck/answerdeck/internal/answer"
	"github.com/answerdeck/answerdeck/internal/questionnaire"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// Session is one answered questionnaire.
type Session struct {
	ID        uuid.UUID          `json:"id"`
	Filename  string             `json:"filename"`
	Questions []questionnaire.QA `json:"questions"`
	CreatedAt time.Time          `json:"created_at"`
}

// SessionSummary is a Session without its question payload, for lists.
type SessionSummary struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	Questions int       `json:"questions"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one chat turn.
type Message struct {
	ID        uuid.UUID       `json:"id"`
	Role      string          `json:"role"`
	Content   string          `json:"content"`
	Sources   []answer.Source `json:"sources"`
	CreatedAt time.Time       `json:"created_at"`
}

// Roles accepted by SaveMessage; enforced by a CHECK constraint too.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Store persists history in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const (
	saveSessionSQL = `
INSERT INTO questionnaire_sessions (id, filename, questions, created_at)
VALUES ($1, $2, $3, $4)`

	getSessionSQL = `
SELECT id, filename, questions, created_at
FROM questionnaire_sessions WHERE id = $1`

	listSessionsSQL = `
SELECT id, filename, jsonb_array_length(questions), created_at
FROM questionnaire_sessions
ORDER BY created_at DESC
LIMIT $1`

	saveMessageSQL = `
INSERT INTO chat_messages (id, role, content, sources, created_at)
VALUES ($1, $2, $3, $4, $5)`

	listMessagesSQL = `
SELECT id, role, content, sources, created_at
FROM chat_messages
ORDER BY created_at DESC
LIMIT $1`
)

// SaveQuestionnaire stores an answered questionnaire and returns its ID.
func (s *Store) SaveQuestionnaire(ctx context.Context, filename string, qas []questionnaire.QA) (uuid.UUID, error) {
	payload, err := json.Marshal(qas)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding questionnaire: %w", err)
	}

	id := uuid.New()
	if _, err := s.pool.Exec(ctx, saveSessionSQL, id, filename, payload, time.Now().UTC()); err != nil {
		return uuid.Nil, fmt.Errorf("saving questionnaire session: %w", err)
	}
	return id, nil
}

// GetQuestionnaire loads one session by ID.
func (s *Store) GetQuestionnaire(ctx context.Context, id uuid.UUID) (*Session, error) {
	var (
		session Session
		payload []byte
	)
	err := s.pool.QueryRow(ctx, getSessionSQL, id).
		Scan(&session.ID, &session.Filename, &payload, &session.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("loading questionnaire session: %w", err)
	}

	if err := json.Unmarshal(payload, &session.Questions); err != nil {
		return nil, fmt.Errorf("decoding questionnaire session %s: %w", id, err)
	}
	return &session, nil
}

// ListQuestionnaires returns recent sessions, newest first.
func (s *Store) ListQuestionnaires(ctx context.Context, limit int) ([]SessionSummary, error) {
	if limit < 1 || limit > 100 {
		limit = 20
	}

	rows, err := s.pool.Query(ctx, listSessionsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing questionnaire sessions: %w", err)
	}
	defer rows.Close()

	var sessions []SessionSummary
	for rows.Next() {
		var sum SessionSummary
		if err := rows.Scan(&sum.ID, &sum.Filename, &sum.Questions, &sum.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning session row: %w", err)
		}
		sessions = append(sessions, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading session rows: %w", err)
	}
	return sessions, nil
}

// SaveMessage stores one chat turn.
func (s *Store) SaveMessage(ctx context.Context, role, content string, sources []answer.Source) (uuid.UUID, error) {
	if role != RoleUser && role != RoleAssistant {
		return uuid.Nil, fmt.Errorf("invalid message role %q", role)
	}
	if sources == nil {
		sources = []answer.Source{}
	}
	payload, err := json.Marshal(sources)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encoding sources: %w", err)
	}

	id := uuid.New()
	if _, err := s.pool.Exec(ctx, saveMessageSQL, id, role, content, payload, time.Now().UTC()); err != nil {
		return uuid.Nil, fmt.Errorf("saving chat message: %w", err)
	}
	return id, nil
}

// ListMessages returns recent chat turns, newest first.
func (s *Store) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	if limit < 1 || limit > 200 {
		limit = 50
	}

	rows, err := s.pool.Query(ctx, listMessagesSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("listing chat messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var (
			msg     Message
			payload []byte
		)
		if err := rows.Scan(&msg.ID, &msg.Role, &msg.Content, &payload, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		if err := json.Unmarshal(payload, &msg.Sources); err != nil {
			return nil, fmt.Errorf("decoding message sources: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading message rows: %w", err)
	}
	return messages, nil
}
