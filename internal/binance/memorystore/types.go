package memorystore

import (
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the latest 24h market state for the subscribed symbol. The zero
// value is the state before any mini ticker arrives and is a valid reading.
type Snapshot struct {
	Symbol    string
	Price     decimal.Decimal
	Open24h   decimal.Decimal
	High24h   decimal.Decimal
	Low24h    decimal.Decimal
	Volume    decimal.Decimal
	UpdatedAt time.Time
}

// Ready reports whether the snapshot holds data from a mini ticker.
func (s Snapshot) Ready() bool {
	return !s.UpdatedAt.IsZero()
}

// Change24h is the percentage move from the 24h open, zero without an open.
func (s Snapshot) Change24h() decimal.Decimal {
	if s.Open24h.IsZero() {
		return decimal.Zero
	}
	return s.Price.Sub(s.Open24h).Div(s.Open24h).Mul(decimal.NewFromInt(100))
}

// SnapshotReader is the read-only view handed to collaborators.
type SnapshotReader interface {
	Read() Snapshot
}
