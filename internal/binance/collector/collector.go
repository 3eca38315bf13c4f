package collector

import (
	"context"
	"errors"
	"time"

	"btcpulse/pkg/backoff"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ErrStreamClosed is returned by Run when the connection drops and
// reconnecting is disabled.
var ErrStreamClosed = errors.New("collector: stream closed")

// Stream is the part of binance.Manager the collector supervises.
type Stream interface {
	Connect(ctx context.Context) error
	Close() error
	Done() <-chan struct{}
}

type Options struct {
	Reconnect    bool
	Backoff      backoff.Config
	CloseTimeout time.Duration
}

// Collector keeps a Stream connected: it dials with backoff and, when
// Reconnect is set, dials again after every disconnect.
type Collector struct {
	stream Stream
	opts   Options
	logger *zap.Logger
}

func New(stream Stream, opts Options, logger *zap.Logger) *Collector {
	if opts.CloseTimeout <= 0 {
		opts.CloseTimeout = 5 * time.Second
	}
	return &Collector{stream: stream, opts: opts, logger: logger}
}

// Run blocks until ctx is done, then closes the stream and returns nil.
func (c *Collector) Run(ctx context.Context) error {
	tracer := otel.Tracer("btcpulse/collector")

	for session := 1; ; session++ {
		attempt := 0
		err := backoff.Execute(ctx, c.opts.Backoff, c.logger, func(ctx context.Context) error {
			attempt++
			ctx, span := tracer.Start(ctx, "binance.connect")
			defer span.End()
			span.SetAttributes(attribute.Int("session", session), attribute.Int("attempt", attempt))

			if err := c.stream.Connect(ctx); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.logger.Info("stream session started", zap.Int("session", session), zap.Int("attempts", attempt))

		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case <-c.stream.Done():
		}

		if !c.opts.Reconnect {
			c.logger.Warn("stream closed, reconnect disabled", zap.Int("session", session))
			return ErrStreamClosed
		}
		c.logger.Warn("stream closed, reconnecting", zap.Int("session", session))
	}
}

func (c *Collector) shutdown() {
	done := make(chan error, 1)
	go func() { done <- c.stream.Close() }()

	select {
	case err := <-done:
		if err != nil {
			c.logger.Warn("stream close failed", zap.Error(err))
			return
		}
		c.logger.Info("stream closed")
	case <-time.After(c.opts.CloseTimeout):
		c.logger.Warn("stream close timed out", zap.Duration("timeout", c.opts.CloseTimeout))
	}
}
