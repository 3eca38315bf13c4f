package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"btcpulse/config"
	"btcpulse/internal/binance/collector"
	"btcpulse/internal/binance/memorystore"
	"btcpulse/internal/binance/stream"
	"btcpulse/internal/chat"
	"btcpulse/internal/httpapi"
	"btcpulse/internal/metrics"
	"btcpulse/pkg/backoff"
	"btcpulse/pkg/binance"
	"btcpulse/pkg/storage/memory"
	"btcpulse/pkg/storage/postgres"
	"btcpulse/pkg/storage/redis"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Streams returns the configured subscription set, derived from symbol and
// kline interval unless binance.streams lists it explicitly.
func Streams(cfg config.BinanceConfig) ([]string, error) {
	if len(cfg.Streams) > 0 {
		out := make([]string, 0, len(cfg.Streams))
		for _, s := range cfg.Streams {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil, errors.New("binance.streams lists no stream names")
		}
		return out, nil
	}

	interval, err := binance.ParseKlineInterval(cfg.KlineInterval)
	if err != nil {
		return nil, err
	}
	return binance.DefaultStreams(cfg.Symbol, interval), nil
}

func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	binance.RegisterMetrics(reg)
	backoff.RegisterMetrics(reg)
	metrics.Register(reg)
	return reg
}

// chatStore picks the history store. The returned closer is never nil.
func chatStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (chat.Store, httpapi.DatabaseCheck, func(), error) {
	if !cfg.Postgres.Enabled {
		if cfg.Redis.Enabled {
			return redisStore(ctx, cfg, log)
		}
		return memory.NewChatStore(cfg.Chat.MaxHistory), nil, func() {}, nil
	}

	client, err := postgres.InitializeAndMigrate(ctx, cfg.Postgres, cfg.Log.Environment)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("postgres: %w", err)
	}
	log.Info("chat history stored in postgres",
		zap.String("host", cfg.Postgres.Host),
		zap.String("dbname", cfg.Postgres.DBName),
	)
	closer := func() {
		if err := client.Close(); err != nil {
			log.Warn("postgres close failed", zap.Error(err))
		}
	}
	return postgres.NewChatStore(client), client.IsHealthy, closer, nil
}

func redisStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (chat.Store, httpapi.DatabaseCheck, func(), error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	store, err := redis.NewChatStore(pingCtx, redis.Config{
		URL:           cfg.Redis.URL,
		KeyPrefix:     cfg.Redis.KeyPrefix,
		TTL:           cfg.Redis.TTL,
		MaxPerSession: cfg.Chat.MaxHistory,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info("chat history stored in redis", zap.Duration("ttl", cfg.Redis.TTL))
	closer := func() {
		if err := store.Close(); err != nil {
			log.Warn("redis close failed", zap.Error(err))
		}
	}
	return store, store.IsHealthy, closer, nil
}

// newChat builds the chat service. A nil service with a nil error means chat
// is disabled and the routes answer 503.
func newChat(ctx context.Context, cfg *config.Config, store chat.Store, market memorystore.SnapshotReader, log *zap.Logger) (*chat.Service, error) {
	if !cfg.Chat.Enabled {
		log.Info("chat disabled by configuration")
		return nil, nil
	}

	keyCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	key, err := cfg.Chat.ResolveAPIKey(keyCtx, cfg.Log.Environment)
	if err != nil {
		log.Error("chat api key lookup failed, chat disabled", zap.Error(err))
		return nil, nil
	}

	gen, err := chat.NewGeminiClient(chat.GeminiConfig{
		Endpoint:        cfg.Chat.Endpoint,
		Model:           cfg.Chat.Model,
		APIKey:          key,
		Temperature:     cfg.Chat.Temperature,
		MaxOutputTokens: cfg.Chat.MaxOutputTokens,
		Timeout:         cfg.Chat.Timeout,
	}, nil)
	if errors.Is(err, chat.ErrMissingAPIKey) {
		log.Error("chat api key missing, chat disabled", zap.String("env", cfg.Chat.APIKeyEnv))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info("chat enabled", zap.String("model", cfg.Chat.Model))
	return chat.NewService(gen, store, market, chat.Options{HistoryTurns: cfg.Chat.HistoryTurns}, log.Named("chat")), nil
}

// Run wires the stream, the snapshot, chat and the HTTP surface and blocks
// until ctx is done or a component fails.
func Run(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	streams, err := Streams(cfg.Binance)
	if err != nil {
		return fmt.Errorf("binance streams: %w", err)
	}

	reg := newRegistry()
	snapshots := memorystore.NewSnapshotStore()

	manager := binance.NewManager(binance.Config{
		URL:              cfg.Binance.URL,
		Streams:          streams,
		SubscribeID:      cfg.Binance.SubscribeID,
		UnsubscribeID:    cfg.Binance.UnsubscribeID,
		HandshakeTimeout: cfg.Binance.HandshakeTimeout,
		ReadTimeout:      cfg.Binance.ReadTimeout,
		WriteTimeout:     cfg.Binance.WriteTimeout,
		CloseTimeout:     cfg.Binance.CloseTimeout,
	}, stream.NewHandler(snapshots, log.Named("stream")), log.Named("binance"))

	supervisor := collector.New(manager, collector.Options{
		Reconnect: cfg.Binance.Reconnect,
		Backoff: backoff.Config{
			InitialInterval:     cfg.Binance.Backoff.InitialInterval,
			RandomizationFactor: cfg.Binance.Backoff.RandomizationFactor,
			Multiplier:          cfg.Binance.Backoff.Multiplier,
			MaxInterval:         cfg.Binance.Backoff.MaxInterval,
			MaxElapsedTime:      cfg.Binance.Backoff.MaxElapsedTime,
			MaxRetries:          cfg.Binance.Backoff.MaxRetries,
			PerAttemptTimeout:   cfg.Binance.Backoff.PerAttemptTimeout,
		},
		CloseTimeout: cfg.Binance.CloseTimeout + time.Second,
	}, log.Named("collector"))

	store, dbCheck, closeStore, err := chatStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	deps := httpapi.Deps{
		Market:   snapshots,
		Stream:   manager,
		Database: dbCheck,
		Symbol:   strings.ToUpper(cfg.Binance.Symbol),
	}
	svc, err := newChat(ctx, cfg, store, snapshots, log)
	if err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	if svc != nil {
		deps.Chat = svc
	}

	handler := httpapi.NewRouter(
		httpapi.NewHandler(deps, log.Named("http")),
		httpapi.RouterConfig{CORSOrigins: cfg.HTTP.CORSOrigins, Gatherer: reg},
		log.Named("http"),
	)
	server, err := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            cfg.HTTP.Addr,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, handler, log)
	if err != nil {
		return err
	}

	log.Info("starting btcpulse",
		zap.Strings("streams", streams),
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.Bool("chat_enabled", deps.Chat != nil),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := supervisor.Run(gctx)
		if errors.Is(err, collector.ErrStreamClosed) {
			// keep serving the last snapshot, /health reports degraded
			log.Warn("market stream ended, serving stale snapshot")
			return nil
		}
		if err != nil {
			return fmt.Errorf("collector: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return server.Start(gctx)
	})

	return g.Wait()
}
