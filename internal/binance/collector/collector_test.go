package collector_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"btcpulse/internal/binance/collector"
	"btcpulse/pkg/backoff"

	"go.uber.org/zap"
)

// fakeStream fails the first failures Connect calls, then hands out a fresh
// done channel per session that the test can drop.
type fakeStream struct {
	mu       sync.Mutex
	failures int
	connects int
	closes   int
	done     chan struct{}
	sessions chan struct{}
}

func newFakeStream(failures int) *fakeStream {
	closed := make(chan struct{})
	close(closed)
	return &fakeStream{failures: failures, done: closed, sessions: make(chan struct{}, 8)}
}

func (s *fakeStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connects++
	if s.connects <= s.failures {
		return errors.New("dial refused")
	}
	s.done = make(chan struct{})
	s.sessions <- struct{}{}
	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.drop()
	return nil
}

func (s *fakeStream) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// drop simulates a peer-initiated disconnect. Callers hold mu.
func (s *fakeStream) drop() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
}

func (s *fakeStream) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop()
}

func (s *fakeStream) counts() (connects, closes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connects, s.closes
}

func waitSession(t *testing.T, s *fakeStream) {
	t.Helper()
	select {
	case <-s.sessions:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a stream session")
	}
}

var fastBackoff = backoff.Config{InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

// go test -v --run ^TestRunRetriesAndReconnects$
func TestRunRetriesAndReconnects(t *testing.T) {
	stream := newFakeStream(2)
	c := collector.New(stream, collector.Options{Reconnect: true, Backoff: fastBackoff}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- c.Run(ctx) }()

	waitSession(t, stream)
	if connects, _ := stream.counts(); connects != 3 {
		t.Fatalf("expected 2 failed dials then success, got %d connects", connects)
	}

	stream.disconnect()
	waitSession(t, stream)

	cancel()
	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("Run returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	connects, closes := stream.counts()
	if connects != 4 || closes != 1 {
		t.Fatalf("expected 4 connects and 1 close, got %d/%d", connects, closes)
	}
}

// go test -v --run ^TestRunWithoutReconnect$
func TestRunWithoutReconnect(t *testing.T) {
	stream := newFakeStream(0)
	c := collector.New(stream, collector.Options{Reconnect: false, Backoff: fastBackoff}, zap.NewNop())

	result := make(chan error, 1)
	go func() { result <- c.Run(context.Background()) }()

	waitSession(t, stream)
	stream.disconnect()

	select {
	case err := <-result:
		if !errors.Is(err, collector.ErrStreamClosed) {
			t.Fatalf("expected ErrStreamClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
}

// go test -v --run ^TestRunGivesUp$
func TestRunGivesUp(t *testing.T) {
	stream := newFakeStream(100)
	cfg := fastBackoff
	cfg.MaxRetries = 2
	c := collector.New(stream, collector.Options{Reconnect: true, Backoff: cfg}, zap.NewNop())

	err := c.Run(context.Background())
	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) || maxErr.Attempts != 3 {
		t.Fatalf("expected ErrMaxRetries after 3 attempts, got %v", err)
	}
}

// go test -v --run ^TestRunCancelledWhileDialing$
func TestRunCancelledWhileDialing(t *testing.T) {
	stream := newFakeStream(1 << 30)
	c := collector.New(stream, collector.Options{Reconnect: true, Backoff: fastBackoff}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := c.Run(ctx); err != nil {
		t.Fatalf("expected nil on cancellation, got %v", err)
	}
}
