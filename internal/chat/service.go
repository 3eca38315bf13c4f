package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"btcpulse/internal/binance/memorystore"
	"btcpulse/internal/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

type Options struct {
	HistoryTurns int // default: 4
}

// Service answers user questions with the live snapshot as context.
type Service struct {
	gen    Generator
	store  Store
	market memorystore.SnapshotReader
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

func NewService(gen Generator, store Store, market memorystore.SnapshotReader, opts Options, logger *zap.Logger) *Service {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = 4
	}
	return &Service{
		gen:    gen,
		store:  store,
		market: market,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

func normalizeSession(id string) string {
	if id = strings.TrimSpace(id); id == "" {
		return DefaultSessionID
	}
	return id
}

// Reply generates an answer for message. Failing to record the exchange is
// logged and does not fail the reply.
func (s *Service) Reply(ctx context.Context, sessionID, message string) (Reply, error) {
	sessionID = normalizeSession(sessionID)
	message = strings.TrimSpace(message)
	if message == "" {
		metrics.ChatRequests.WithLabelValues("rejected").Inc()
		return Reply{}, ErrEmptyMessage
	}

	ctx, span := otel.Tracer("btcpulse/chat").Start(ctx, "chat.reply")
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))

	snap := s.market.Read()
	history, err := s.store.Recent(ctx, sessionID, s.opts.HistoryTurns)
	if err != nil {
		s.logger.Warn("load chat history failed", zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}

	prompt := BuildPrompt(snap, history, message)
	asked := s.now()

	start := time.Now()
	answer, err := s.gen.Generate(ctx, []Message{{Role: RoleUser, Content: prompt, CreatedAt: asked}})
	metrics.ChatLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ChatRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, fmt.Errorf("generate reply: %w", err)
	}

	if err := s.store.Append(ctx, sessionID,
		Message{Role: RoleUser, Content: message, CreatedAt: asked},
		Message{Role: RoleModel, Content: answer, CreatedAt: s.now()},
	); err != nil {
		s.logger.Warn("save chat history failed", zap.String("session_id", sessionID), zap.Error(err))
	}

	metrics.ChatRequests.WithLabelValues("ok").Inc()
	s.logger.Debug("chat reply",
		zap.String("session_id", sessionID),
		zap.Int("history", len(history)),
		zap.Int("response_len", len(answer)),
	)
	return Reply{Response: answer, SessionID: sessionID, Snapshot: snap}, nil
}

// History returns up to limit of the newest messages of a session.
func (s *Service) History(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	msgs, err := s.store.Recent(ctx, normalizeSession(sessionID), limit)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	return msgs, nil
}

// Reset forgets a session.
func (s *Service) Reset(ctx context.Context, sessionID string) error {
	if err := s.store.Delete(ctx, normalizeSession(sessionID)); err != nil {
		return fmt.Errorf("reset chat session: %w", err)
	}
	return nil
}
