package backoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config holds parameters for exponential backoff retry.
type Config struct {
	InitialInterval     time.Duration // default: 1s
	RandomizationFactor float64       // 0 disables jitter, negative: 0.5
	Multiplier          float64       // default: 2.0
	MaxInterval         time.Duration // default: 30s
	MaxElapsedTime      time.Duration // default: unlimited
	MaxRetries          uint64        // default: unlimited
	PerAttemptTimeout   time.Duration // default: unlimited
}

func (c *Config) applyDefaults() {
	if c.InitialInterval <= 0 {
		c.InitialInterval = time.Second
	}
	if c.RandomizationFactor < 0 {
		c.RandomizationFactor = 0.5
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2.0
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 30 * time.Second
	}
}

func (c Config) validate() error {
	if c.RandomizationFactor > 1 {
		return fmt.Errorf("backoff: randomization factor %v must be within [0,1]", c.RandomizationFactor)
	}
	if c.MaxInterval < c.InitialInterval {
		return fmt.Errorf("backoff: max interval %s below initial interval %s", c.MaxInterval, c.InitialInterval)
	}
	return nil
}

// RetryableFunc defines the operation to retry.
type RetryableFunc func(ctx context.Context) error

// ErrMaxRetries indicates retries exhausted.
type ErrMaxRetries struct {
	Err      error
	Attempts int
}

func (e *ErrMaxRetries) Error() string {
	return fmt.Sprintf("backoff: %d attempts failed: %v", e.Attempts, e.Err)
}
func (e *ErrMaxRetries) Unwrap() error { return e.Err }

// Permanent wraps err so Execute stops retrying immediately.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

var (
	retriesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcpulse", Subsystem: "backoff", Name: "retries_total",
		Help: "Number of retry attempts",
	})
	failuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcpulse", Subsystem: "backoff", Name: "failures_total",
		Help: "Number of operations giving up after retries",
	})
	successesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "btcpulse", Subsystem: "backoff", Name: "successes_total",
		Help: "Number of operations succeeded",
	})
	delayHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "btcpulse", Subsystem: "backoff", Name: "retry_delay_seconds",
		Help:    "Histogram of retry delays in seconds",
		Buckets: prometheus.DefBuckets,
	})
	registerOnce sync.Once
)

// RegisterMetrics registers the retry collectors once.
func RegisterMetrics(r prometheus.Registerer) {
	registerOnce.Do(func() {
		r.MustRegister(retriesTotal, failuresTotal, successesTotal, delayHistogram)
	})
}

// Execute runs fn with exponential backoff and collects metrics.
// It returns ctx.Err() when ctx ends first and *ErrMaxRetries when the
// policy gives up or fn returns a Permanent error.
func Execute(ctx context.Context, cfg Config, log *zap.Logger, fn RetryableFunc) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	bo.RandomizationFactor = cfg.RandomizationFactor
	bo.Multiplier = cfg.Multiplier
	bo.MaxInterval = cfg.MaxInterval
	bo.MaxElapsedTime = cfg.MaxElapsedTime // 0 never stops

	var policy backoff.BackOff = bo
	if cfg.MaxRetries > 0 {
		policy = backoff.WithMaxRetries(policy, cfg.MaxRetries)
	}
	policy = backoff.WithContext(policy, ctx)

	attempts := 0
	operation := func() error {
		attempts++
		if cfg.PerAttemptTimeout > 0 {
			atCtx, cancel := context.WithTimeout(ctx, cfg.PerAttemptTimeout)
			defer cancel()
			return fn(atCtx)
		}
		return fn(ctx)
	}

	notify := func(err error, delay time.Duration) {
		retriesTotal.Inc()
		delayHistogram.Observe(delay.Seconds())
		log.Warn("backoff retry",
			zap.Error(err),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempts),
		)
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return ctxErr
		}
		failuresTotal.Inc()
		log.Error("backoff give up",
			zap.Error(err),
			zap.Int("attempts", attempts),
		)
		return &ErrMaxRetries{Err: err, Attempts: attempts}
	}

	successesTotal.Inc()
	return nil
}
