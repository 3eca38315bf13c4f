package memorystore

import (
	"sync"
	"time"

	"btcpulse/pkg/binance"
)

// SnapshotStore holds the process-wide Snapshot. Update replaces the whole
// record under the lock, so readers see either the old or the new one.
type SnapshotStore struct {
	mu      sync.RWMutex
	snap    Snapshot
	updates uint64

	now func() time.Time
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{now: time.Now}
}

// Update applies a mini ticker. UpdatedAt is the event time when the payload
// carries one, so applying the same event twice yields the same snapshot.
func (s *SnapshotStore) Update(m *binance.MiniTicker) {
	if m == nil {
		return
	}

	updatedAt := m.EventTime
	if updatedAt.IsZero() {
		updatedAt = s.now().UTC()
	}
	next := Snapshot{
		Symbol:    m.Symbol,
		Price:     m.Close,
		Open24h:   m.Open,
		High24h:   m.High,
		Low24h:    m.Low,
		Volume:    m.Volume,
		UpdatedAt: updatedAt,
	}

	s.mu.Lock()
	s.snap = next
	s.updates++
	s.mu.Unlock()
}

// Read returns a copy of the current snapshot.
func (s *SnapshotStore) Read() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Updates returns how many mini tickers have been applied.
func (s *SnapshotStore) Updates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}
