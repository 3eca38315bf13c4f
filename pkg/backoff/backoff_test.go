package backoff_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"btcpulse/pkg/backoff"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// go test -v --run ^TestExecuteSuccessFirstAttempt$
func TestExecuteSuccessFirstAttempt(t *testing.T) {
	called := 0
	err := backoff.Execute(context.Background(), backoff.Config{MaxElapsedTime: time.Second}, zap.NewNop(),
		func(ctx context.Context) error {
			called++
			return nil
		})
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if called != 1 {
		t.Errorf("expected 1 attempt, got %d", called)
	}
}

// go test -v --run ^TestExecuteEventualSuccess$
func TestExecuteEventualSuccess(t *testing.T) {
	cfg := backoff.Config{InitialInterval: 5 * time.Millisecond, Multiplier: 1, MaxInterval: 5 * time.Millisecond, MaxElapsedTime: time.Second}
	called := 0
	err := backoff.Execute(context.Background(), cfg, zap.NewNop(), func(ctx context.Context) error {
		called++
		if called < 3 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Errorf("expected success, got %v", err)
	}
	if called != 3 {
		t.Errorf("expected 3 attempts, got %d", called)
	}
}

// go test -v --run ^TestExecuteMaxRetries$
func TestExecuteMaxRetries(t *testing.T) {
	cfg := backoff.Config{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxRetries: 2}
	called := 0
	boom := errors.New("always fail")
	err := backoff.Execute(context.Background(), cfg, zap.NewNop(), func(ctx context.Context) error {
		called++
		return boom
	})

	var maxErr *backoff.ErrMaxRetries
	if !errors.As(err, &maxErr) {
		t.Fatalf("expected ErrMaxRetries, got %v", err)
	}
	if called != 3 || maxErr.Attempts != called {
		t.Errorf("expected 3 attempts, got called=%d reported=%d", called, maxErr.Attempts)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

// go test -v --run ^TestExecutePermanent$
func TestExecutePermanent(t *testing.T) {
	called := 0
	err := backoff.Execute(context.Background(), backoff.Config{}, zap.NewNop(), func(ctx context.Context) error {
		called++
		return backoff.Permanent(errors.New("bad credentials"))
	})
	if err == nil || called != 1 {
		t.Fatalf("expected one attempt and an error, got called=%d err=%v", called, err)
	}
}

// go test -v --run ^TestExecuteContextCancelled$
func TestExecuteContextCancelled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	cfg := backoff.Config{InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond}
	err := backoff.Execute(ctx, cfg, zap.NewNop(), func(ctx context.Context) error {
		return errors.New("down")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	var maxErr *backoff.ErrMaxRetries
	if errors.As(err, &maxErr) {
		t.Fatal("context end should not be reported as exhausted retries")
	}
}

// go test -v --run ^TestExecutePerAttemptTimeout$
func TestExecutePerAttemptTimeout(t *testing.T) {
	cfg := backoff.Config{PerAttemptTimeout: 10 * time.Millisecond, MaxRetries: 1, InitialInterval: time.Millisecond, MaxInterval: time.Millisecond}
	err := backoff.Execute(context.Background(), cfg, zap.NewNop(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected per-attempt deadline, got %v", err)
	}
}

// go test -v --run ^TestExecuteInvalidConfig$
func TestExecuteInvalidConfig(t *testing.T) {
	err := backoff.Execute(context.Background(), backoff.Config{RandomizationFactor: 2}, zap.NewNop(),
		func(ctx context.Context) error { return nil })
	if err == nil {
		t.Fatal("expected validation error")
	}
}

// go test -v --run ^TestExecuteWithoutJitter$
func TestExecuteWithoutJitter(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	interval := 10 * time.Millisecond
	cfg := backoff.Config{
		InitialInterval:     interval,
		RandomizationFactor: 0,
		Multiplier:          1,
		MaxInterval:         interval,
		MaxRetries:          3,
	}

	_ = backoff.Execute(context.Background(), cfg, zap.New(core), func(ctx context.Context) error {
		return errors.New("fail")
	})

	retries := logs.FilterMessage("backoff retry").All()
	if len(retries) != 3 {
		t.Fatalf("expected 3 retries, got %d", len(retries))
	}
	for i, entry := range retries {
		if got := entry.ContextMap()["delay"]; got != interval {
			t.Errorf("retry %d: expected delay %s with jitter off, got %v", i, interval, got)
		}
	}
}
