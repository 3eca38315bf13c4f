package postgres

import (
	"context"
	"fmt"
	"time"

	"btcpulse/internal/chat"
)

// ChatStore archives chat sessions in Postgres.
type ChatStore struct {
	client *PostgresClient
}

func NewChatStore(client *PostgresClient) *ChatStore {
	return &ChatStore{client: client}
}

func (s *ChatStore) Append(ctx context.Context, sessionID string, messages ...chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	records := make([]ChatMessageRecord, 0, len(messages))
	for _, m := range messages {
		created := m.CreatedAt
		if created.IsZero() {
			created = time.Now()
		}
		records = append(records, ChatMessageRecord{
			SessionID: sessionID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: created.UTC(),
		})
	}

	if err := s.client.DB.WithContext(ctx).Create(&records).Error; err != nil {
		return fmt.Errorf("insert chat messages: session=%s: %w", sessionID, err)
	}
	return nil
}

func (s *ChatStore) Recent(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	var records []ChatMessageRecord
	q := s.client.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("query chat messages: session=%s: %w", sessionID, err)
	}

	// newest first from the query, oldest first to callers
	out := make([]chat.Message, len(records))
	for i, r := range records {
		out[len(records)-1-i] = chat.Message{
			Role:      chat.Role(r.Role),
			Content:   r.Content,
			CreatedAt: r.CreatedAt,
		}
	}
	return out, nil
}

func (s *ChatStore) Delete(ctx context.Context, sessionID string) error {
	err := s.client.DB.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&ChatMessageRecord{}).Error
	if err != nil {
		return fmt.Errorf("delete chat session: session=%s: %w", sessionID, err)
	}
	return nil
}
