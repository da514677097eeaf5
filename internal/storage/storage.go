package storage

import (
	"context"
	"time"

	"github.com/mwhitaker/herald/internal/llm"
)

// SessionStatus is the lifecycle state of a session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "active"
	StatusRunning   SessionStatus = "running"
	StatusCompleted SessionStatus = "completed"
	StatusFailed    SessionStatus = "failed"
)

// Session is the metadata for a saved conversation.
type Session struct {
	ID         string        `json:"id"`
	Title      string        `json:"title"`
	Status     SessionStatus `json:"status"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Profile    string        `json:"profile"`
	Moderation string        `json:"moderation"` // guardrail mode at creation
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// SessionListOptions controls filtering and pagination for ListSessions.
type SessionListOptions struct {
	Status SessionStatus
	Limit  int
	Offset int
}

// Store persists sessions and their transcripts.
type Store interface {
	// CreateSession inserts a new session. The ID must be set by the caller.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a session by ID or unambiguous ID prefix.
	GetSession(ctx context.Context, id string) (*Session, error)

	// ListSessions returns sessions ordered by updated_at descending.
	ListSessions(ctx context.Context, opts SessionListOptions) ([]Session, error)

	// UpdateSession updates mutable fields (title, status, updated_at).
	UpdateSession(ctx context.Context, s *Session) error

	// DeleteSession removes a session and its transcript.
	DeleteSession(ctx context.Context, id string) error

	// SaveTranscript replaces the stored transcript for a session. The
	// slice order is the transcript order and is preserved exactly.
	SaveTranscript(ctx context.Context, sessionID string, messages []llm.Message) error

	// LoadTranscript returns the stored transcript in order.
	LoadTranscript(ctx context.Context, sessionID string) ([]llm.Message, error)

	// Close releases resources.
	Close() error
}
