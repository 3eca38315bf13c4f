package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"btcpulse/internal/binance/memorystore"

	"github.com/shopspring/decimal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: status, Message: msg}})
}

// number renders a decimal as a JSON number without a float round trip.
func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

type snapshotView struct {
	Symbol    string      `json:"symbol"`
	Price     json.Number `json:"price"`
	Open24h   json.Number `json:"open_24h"`
	High24h   json.Number `json:"high_24h"`
	Low24h    json.Number `json:"low_24h"`
	Volume    json.Number `json:"volume"`
	Change24h json.Number `json:"change_24h"`
	UpdatedAt *time.Time  `json:"updated_at"`
}

func newSnapshotView(s memorystore.Snapshot) snapshotView {
	v := snapshotView{
		Symbol:    s.Symbol,
		Price:     number(s.Price),
		Open24h:   number(s.Open24h),
		High24h:   number(s.High24h),
		Low24h:    number(s.Low24h),
		Volume:    number(s.Volume),
		Change24h: number(s.Change24h().Round(4)),
	}
	if s.Ready() {
		t := s.UpdatedAt.UTC()
		v.UpdatedAt = &t
	}
	return v
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type chatResponse struct {
	Response    string       `json:"response"`
	SessionID   string       `json:"session_id"`
	BitcoinData snapshotView `json:"bitcoin_data"`
}

type messageView struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	SessionID string        `json:"session_id"`
	Messages  []messageView `json:"messages"`
}

type streamStatus struct {
	Connected     bool       `json:"connected"`
	State         string     `json:"state"`
	Symbol        string     `json:"symbol"`
	Subscriptions []string   `json:"subscriptions"`
	LastUpdate    *time.Time `json:"last_update"`
	LastPing      *time.Time `json:"last_ping"`
}

type healthServices struct {
	BinanceConnected bool        `json:"binance_connected"`
	ChatEnabled      bool        `json:"chat_enabled"`
	Database         string      `json:"database"`
	LatestPrice      json.Number `json:"latest_price"`
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Services  healthServices `json:"services"`
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
