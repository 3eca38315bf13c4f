package memory

import (
	"context"
	"sync"

	"btcpulse/internal/chat"
)

// ChatStore keeps chat sessions in process memory, trimming each session to
// its newest maxPerSession messages.
type ChatStore struct {
	mu            sync.Mutex
	sessions      map[string][]chat.Message
	maxPerSession int
}

func NewChatStore(maxPerSession int) *ChatStore {
	if maxPerSession <= 0 {
		maxPerSession = 20
	}
	return &ChatStore{
		sessions:      make(map[string][]chat.Message),
		maxPerSession: maxPerSession,
	}
}

func (m *ChatStore) Append(_ context.Context, sessionID string, messages ...chat.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := append(m.sessions[sessionID], messages...)
	if over := len(msgs) - m.maxPerSession; over > 0 {
		msgs = append([]chat.Message(nil), msgs[over:]...)
	}
	m.sessions[sessionID] = msgs
	return nil
}

func (m *ChatStore) Recent(_ context.Context, sessionID string, limit int) ([]chat.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.sessions[sessionID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	// Copy to avoid race
	out := make([]chat.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (m *ChatStore) Delete(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	return nil
}

// Sessions reports how many sessions are held.
func (m *ChatStore) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
