package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"btcpulse/internal/chat"

	goredis "github.com/redis/go-redis/v9"
)

type Config struct {
	URL           string        // e.g. "redis://host:6379/0"
	KeyPrefix     string        // default: "btcpulse:chat:"
	TTL           time.Duration // default: 24h
	MaxPerSession int           // default: 20
}

func (c *Config) applyDefaults() {
	if c.KeyPrefix == "" {
		c.KeyPrefix = "btcpulse:chat:"
	}
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.MaxPerSession <= 0 {
		c.MaxPerSession = 20
	}
}

type storedMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatStore keeps each session as a capped Redis list that expires when idle.
type ChatStore struct {
	client *goredis.Client
	cfg    Config
}

// NewChatStore parses cfg.URL and pings the server.
func NewChatStore(ctx context.Context, cfg Config) (*ChatStore, error) {
	cfg.applyDefaults()
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis: URL required")
	}

	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return &ChatStore{client: client, cfg: cfg}, nil
}

func (s *ChatStore) key(sessionID string) string {
	return s.cfg.KeyPrefix + sessionID
}

func (s *ChatStore) Append(ctx context.Context, sessionID string, messages ...chat.Message) error {
	if len(messages) == 0 {
		return nil
	}

	values := make([]any, 0, len(messages))
	for _, m := range messages {
		b, err := json.Marshal(storedMessage{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt.UTC()})
		if err != nil {
			return fmt.Errorf("redis: encode message: %w", err)
		}
		values = append(values, b)
	}

	key := s.key(sessionID)
	_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, values...)
		p.LTrim(ctx, key, int64(-s.cfg.MaxPerSession), -1)
		p.Expire(ctx, key, s.cfg.TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: append session=%s: %w", sessionID, err)
	}
	return nil
}

func (s *ChatStore) Recent(ctx context.Context, sessionID string, limit int) ([]chat.Message, error) {
	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	raw, err := s.client.LRange(ctx, s.key(sessionID), start, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: range session=%s: %w", sessionID, err)
	}

	out := make([]chat.Message, 0, len(raw))
	for _, r := range raw {
		var m storedMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil {
			return nil, fmt.Errorf("redis: decode message session=%s: %w", sessionID, err)
		}
		out = append(out, chat.Message{Role: chat.Role(m.Role), Content: m.Content, CreatedAt: m.CreatedAt})
	}
	return out, nil
}

func (s *ChatStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("redis: delete session=%s: %w", sessionID, err)
	}
	return nil
}

// IsHealthy pings the server.
func (s *ChatStore) IsHealthy(ctx context.Context) bool {
	return s.client.Ping(ctx).Err() == nil
}

func (s *ChatStore) Close() error {
	return s.client.Close()
}
