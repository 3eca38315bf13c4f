package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"btcpulse/internal/binance/memorystore"
	"btcpulse/internal/chat"
	"btcpulse/pkg/binance"

	"go.uber.org/zap"
)

const maxChatBody = 16 << 10

// StreamStatus is the connection view of binance.Manager.
type StreamStatus interface {
	State() binance.State
	IsConnected() bool
	LastPing() time.Time
	Subscriptions() []string
}

// Chat is the assistant behind the chat routes.
type Chat interface {
	Reply(ctx context.Context, sessionID, message string) (chat.Reply, error)
	History(ctx context.Context, sessionID string, limit int) ([]chat.Message, error)
	Reset(ctx context.Context, sessionID string) error
}

// DatabaseCheck reports whether the history database answers.
type DatabaseCheck func(ctx context.Context) bool

type Deps struct {
	Market   memorystore.SnapshotReader
	Stream   StreamStatus
	Chat     Chat          // nil disables the chat routes
	Database DatabaseCheck // nil when history is kept in memory
	Symbol   string
}

type Handler struct {
	deps Deps
	log  *zap.Logger
	now  func() time.Time
}

func NewHandler(deps Deps, log *zap.Logger) *Handler {
	return &Handler{deps: deps, log: log, now: time.Now}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if h.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	reply, err := h.deps.Chat.Reply(r.Context(), req.SessionID, req.Message)
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		writeError(w, http.StatusBadRequest, "message is required")
		return
	case err != nil:
		h.log.Error("chat reply failed",
			zap.String("session_id", req.SessionID),
			zap.String("request_id", RequestIDFrom(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, "failed to generate a response")
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{
		Response:    reply.Response,
		SessionID:   reply.SessionID,
		BitcoinData: newSnapshotView(reply.Snapshot),
	})
}

func (h *Handler) ChatHistory(w http.ResponseWriter, r *http.Request) {
	if h.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}

	msgs, err := h.deps.Chat.History(r.Context(), sessionID, limit)
	if err != nil {
		h.log.Error("chat history failed", zap.String("session_id", sessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to fetch chat history")
		return
	}

	out := historyResponse{SessionID: sessionID, Messages: make([]messageView, 0, len(msgs))}
	for _, m := range msgs {
		out.Messages = append(out.Messages, messageView{Role: string(m.Role), Content: m.Content, CreatedAt: m.CreatedAt.UTC()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) ResetChat(w http.ResponseWriter, r *http.Request) {
	if h.deps.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}

	var req chatRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "request body must be a JSON object")
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = chat.DefaultSessionID
	}

	if err := h.deps.Chat.Reset(r.Context(), req.SessionID); err != nil {
		h.log.Error("chat reset failed", zap.String("session_id", req.SessionID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to reset chat session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": req.SessionID})
}

func (h *Handler) BitcoinData(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, newSnapshotView(h.deps.Market.Read()))
}

func (h *Handler) StreamStatus(w http.ResponseWriter, _ *http.Request) {
	snap := h.deps.Market.Read()
	symbol := snap.Symbol
	if symbol == "" {
		symbol = h.deps.Symbol
	}

	subs := h.deps.Stream.Subscriptions()
	if subs == nil {
		subs = []string{}
	}

	writeJSON(w, http.StatusOK, streamStatus{
		Connected:     h.deps.Stream.IsConnected(),
		State:         h.deps.Stream.State().String(),
		Symbol:        symbol,
		Subscriptions: subs,
		LastUpdate:    optionalTime(snap.UpdatedAt),
		LastPing:      optionalTime(h.deps.Stream.LastPing()),
	})
}

// Health always answers 200; a dropped feed shows as "degraded".
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	connected := h.deps.Stream.IsConnected()

	database := "disabled"
	if h.deps.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if h.deps.Database(ctx) {
			database = "connected"
		} else {
			database = "unreachable"
		}
	}

	status := "ok"
	if !connected || database == "unreachable" {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, healthResponse{
		Status:    status,
		Timestamp: h.now().UTC(),
		Services: healthServices{
			BinanceConnected: connected,
			ChatEnabled:      h.deps.Chat != nil,
			Database:         database,
			LatestPrice:      number(h.deps.Market.Read().Price),
		},
	})
}
