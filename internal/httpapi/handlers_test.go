package httpapi_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"btcpulse/internal/binance/memorystore"
	"btcpulse/internal/chat"
	"btcpulse/internal/httpapi"
	"btcpulse/pkg/binance"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type fakeStream struct {
	connected bool
	lastPing  time.Time
}

func (s fakeStream) State() binance.State {
	if s.connected {
		return binance.StateOpen
	}
	return binance.StateDisconnected
}
func (s fakeStream) IsConnected() bool       { return s.connected }
func (s fakeStream) LastPing() time.Time     { return s.lastPing }
func (s fakeStream) Subscriptions() []string { return []string{"btcusdt@trade", "btcusdt@miniTicker"} }

type fakeChat struct {
	reply   chat.Reply
	err     error
	history []chat.Message
	resets  []string
}

func (c *fakeChat) Reply(_ context.Context, sessionID, message string) (chat.Reply, error) {
	if strings.TrimSpace(message) == "" {
		return chat.Reply{}, chat.ErrEmptyMessage
	}
	if c.err != nil {
		return chat.Reply{}, c.err
	}
	r := c.reply
	if sessionID == "" {
		sessionID = chat.DefaultSessionID
	}
	r.SessionID = sessionID
	return r, nil
}

func (c *fakeChat) History(context.Context, string, int) ([]chat.Message, error) {
	return c.history, nil
}

func (c *fakeChat) Reset(_ context.Context, sessionID string) error {
	c.resets = append(c.resets, sessionID)
	return nil
}

type staticMarket struct{ snap memorystore.Snapshot }

func (m staticMarket) Read() memorystore.Snapshot { return m.snap }

func liveSnapshot() memorystore.Snapshot {
	return memorystore.Snapshot{
		Symbol:    "BTCUSDT",
		Price:     decimal.RequireFromString("50000.12345678"),
		Open24h:   decimal.RequireFromString("49000"),
		High24h:   decimal.RequireFromString("51000"),
		Low24h:    decimal.RequireFromString("48500"),
		Volume:    decimal.RequireFromString("120.5"),
		UpdatedAt: time.UnixMilli(1700000000000),
	}
}

func newRouter(deps httpapi.Deps) http.Handler {
	if deps.Market == nil {
		deps.Market = staticMarket{}
	}
	if deps.Stream == nil {
		deps.Stream = fakeStream{}
	}
	if deps.Symbol == "" {
		deps.Symbol = "BTCUSDT"
	}
	h := httpapi.NewHandler(deps, zap.NewNop())
	return httpapi.NewRouter(h, httpapi.RouterConfig{Gatherer: prometheus.NewRegistry()}, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	dec := json.NewDecoder(rec.Body)
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return out
}

// go test -v --run ^TestBitcoinDataDefault$
func TestBitcoinDataDefault(t *testing.T) {
	rec := do(t, newRouter(httpapi.Deps{}), http.MethodGet, "/bitcoin-data", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["price"] != json.Number("0") || body["updated_at"] != nil {
		t.Fatalf("unexpected default snapshot %v", body)
	}
}

// go test -v --run ^TestBitcoinDataKeepsPrecision$
func TestBitcoinDataKeepsPrecision(t *testing.T) {
	rec := do(t, newRouter(httpapi.Deps{Market: staticMarket{liveSnapshot()}}), http.MethodGet, "/bitcoin-data", "")
	body := decodeBody(t, rec)
	if body["price"] != json.Number("50000.12345678") {
		t.Fatalf("price lost precision: %v", body["price"])
	}
	if body["updated_at"] != "2023-11-14T22:13:20Z" {
		t.Fatalf("unexpected updated_at %v", body["updated_at"])
	}
	if body["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected symbol %v", body["symbol"])
	}
}

// go test -v --run ^TestChatDisabled$
func TestChatDisabled(t *testing.T) {
	rec := do(t, newRouter(httpapi.Deps{}), http.MethodPost, "/gemini-chat", `{"message":"hi"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	errObj, _ := body["error"].(map[string]any)
	if errObj["code"] != json.Number("503") {
		t.Fatalf("unexpected error body %v", body)
	}
}

// go test -v --run ^TestChatRoute$
func TestChatRoute(t *testing.T) {
	c := &fakeChat{reply: chat.Reply{Response: "about 50k", Snapshot: liveSnapshot()}}
	router := newRouter(httpapi.Deps{Chat: c})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"ok", `{"message":"price?","session_id":"abc"}`, http.StatusOK},
		{"bad json", `{"message":`, http.StatusBadRequest},
		{"empty message", `{"message":"  "}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/gemini-chat", tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}

	rec := do(t, router, http.MethodPost, "/gemini-chat", `{"message":"price?","session_id":"abc"}`)
	body := decodeBody(t, rec)
	if body["response"] != "about 50k" || body["session_id"] != "abc" {
		t.Fatalf("unexpected body %v", body)
	}
	data, _ := body["bitcoin_data"].(map[string]any)
	if data["price"] != json.Number("50000.12345678") {
		t.Fatalf("reply should carry the snapshot: %v", data)
	}
}

// go test -v --run ^TestChatGeneratorFailure$
func TestChatGeneratorFailure(t *testing.T) {
	c := &fakeChat{err: errors.New("upstream down")}
	rec := do(t, newRouter(httpapi.Deps{Chat: c}), http.MethodPost, "/gemini-chat", `{"message":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

// go test -v --run ^TestChatHistoryAndReset$
func TestChatHistoryAndReset(t *testing.T) {
	c := &fakeChat{history: []chat.Message{
		{Role: chat.RoleUser, Content: "q", CreatedAt: time.Unix(1, 0)},
		{Role: chat.RoleModel, Content: "a", CreatedAt: time.Unix(2, 0)},
	}}
	router := newRouter(httpapi.Deps{Chat: c})

	rec := do(t, router, http.MethodGet, "/chat/history?session_id=s1", "")
	body := decodeBody(t, rec)
	msgs, _ := body["messages"].([]any)
	if rec.Code != http.StatusOK || len(msgs) != 2 || body["session_id"] != "s1" {
		t.Fatalf("unexpected history %d %v", rec.Code, body)
	}

	if rec := do(t, router, http.MethodGet, "/chat/history?limit=zero", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/reset-chat", "")
	if rec.Code != http.StatusOK || len(c.resets) != 1 || c.resets[0] != chat.DefaultSessionID {
		t.Fatalf("reset without body should clear the default session: %d %v", rec.Code, c.resets)
	}
}

// go test -v --run ^TestStreamStatus$
func TestStreamStatus(t *testing.T) {
	ping := time.UnixMilli(1700000005000)
	router := newRouter(httpapi.Deps{
		Market: staticMarket{liveSnapshot()},
		Stream: fakeStream{connected: true, lastPing: ping},
	})

	body := decodeBody(t, do(t, router, http.MethodGet, "/ws-status", ""))
	if body["connected"] != true || body["state"] != "open" || body["symbol"] != "BTCUSDT" {
		t.Fatalf("unexpected status %v", body)
	}
	if subs, _ := body["subscriptions"].([]any); len(subs) != 2 {
		t.Fatalf("unexpected subscriptions %v", body["subscriptions"])
	}
	if body["last_ping"] != "2023-11-14T22:13:25Z" {
		t.Fatalf("unexpected last_ping %v", body["last_ping"])
	}
}

// go test -v --run ^TestHealth$
func TestHealth(t *testing.T) {
	tests := []struct {
		name     string
		deps     httpapi.Deps
		status   string
		database string
	}{
		{"streaming", httpapi.Deps{Stream: fakeStream{connected: true}}, "ok", "disabled"},
		{"feed down", httpapi.Deps{Stream: fakeStream{}}, "degraded", "disabled"},
		{"db down", httpapi.Deps{
			Stream:   fakeStream{connected: true},
			Database: func(context.Context) bool { return false },
		}, "degraded", "unreachable"},
		{"db up", httpapi.Deps{
			Stream:   fakeStream{connected: true},
			Database: func(context.Context) bool { return true },
		}, "ok", "connected"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, newRouter(tt.deps), http.MethodGet, "/health", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("health must answer 200, got %d", rec.Code)
			}
			body := decodeBody(t, rec)
			services, _ := body["services"].(map[string]any)
			if body["status"] != tt.status || services["database"] != tt.database {
				t.Fatalf("unexpected health %v", body)
			}
		})
	}
}

// go test -v --run ^TestRequestIDHeader$
func TestRequestIDHeader(t *testing.T) {
	router := newRouter(httpapi.Deps{})

	rec := do(t, router, http.MethodGet, "/health", "")
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected a generated request id")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "fixed-id" {
		t.Fatalf("expected propagated id, got %q", got)
	}
}

// go test -v --run ^TestMetricsRoute$
func TestMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "probe_total", Help: "probe"}))

	h := httpapi.NewHandler(httpapi.Deps{Market: staticMarket{}, Stream: fakeStream{}}, zap.NewNop())
	router := httpapi.NewRouter(h, httpapi.RouterConfig{Gatherer: reg}, zap.NewNop())

	rec := do(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "probe_total") {
		t.Fatalf("metrics not served: %d %s", rec.Code, rec.Body.String())
	}
}
