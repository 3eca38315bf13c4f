package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"btcpulse/internal/binance/memorystore"
)

var (
	ErrMissingAPIKey = errors.New("chat: api key is not configured")
	ErrEmptyMessage  = errors.New("chat: message is required")
)

// DefaultSessionID is used when a caller does not name a session.
const DefaultSessionID = "default"

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Message is one turn of a chat session.
type Message struct {
	Role      Role
	Content   string
	CreatedAt time.Time
}

// Generator produces the model's answer to a conversation.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

// Store keeps per-session chat history. Recent returns at most limit of the
// newest messages, oldest first.
type Store interface {
	Append(ctx context.Context, sessionID string, messages ...Message) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Message, error)
	Delete(ctx context.Context, sessionID string) error
}

// Reply is the answer to one user message.
type Reply struct {
	Response  string
	SessionID string
	Snapshot  memorystore.Snapshot
}

// APIError is a non-2xx answer from the generation endpoint.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("chat: generation failed: %s", e.Status)
	}
	return fmt.Sprintf("chat: generation failed: %s: %s", e.Status, e.Message)
}
