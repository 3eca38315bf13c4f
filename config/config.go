package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

type Config struct {
	Binance   BinanceConfig   `mapstructure:"binance"`
	Chat      ChatConfig      `mapstructure:"chat"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Postgres  PostgresConfig  `mapstructure:"postgres"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// BinanceConfig describes the market-data stream connection.
type BinanceConfig struct {
	URL           string   `mapstructure:"url"`
	Symbol        string   `mapstructure:"symbol"`
	KlineInterval string   `mapstructure:"kline_interval"`
	Streams       []string `mapstructure:"streams"` // overrides the set derived from symbol/interval
	SubscribeID   int64    `mapstructure:"subscribe_id"`
	UnsubscribeID int64    `mapstructure:"unsubscribe_id"`

	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	ReadTimeout      time.Duration `mapstructure:"read_timeout"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	CloseTimeout     time.Duration `mapstructure:"close_timeout"`

	Reconnect bool          `mapstructure:"reconnect"`
	Backoff   BackoffConfig `mapstructure:"backoff"`
}

type BackoffConfig struct {
	InitialInterval     time.Duration `mapstructure:"initial_interval"`
	RandomizationFactor float64       `mapstructure:"randomization_factor"`
	Multiplier          float64       `mapstructure:"multiplier"`
	MaxInterval         time.Duration `mapstructure:"max_interval"`
	MaxElapsedTime      time.Duration `mapstructure:"max_elapsed_time"`
	MaxRetries          uint64        `mapstructure:"max_retries"` // 0 retries forever
	PerAttemptTimeout   time.Duration `mapstructure:"per_attempt_timeout"`
}

// ChatConfig configures the assistant that answers market questions.
type ChatConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Endpoint        string        `mapstructure:"endpoint"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	HistoryTurns    int           `mapstructure:"history_turns"` // messages replayed into each prompt
	MaxHistory      int           `mapstructure:"max_history"`   // messages kept per session in memory

	APIKey         string `mapstructure:"api_key"`
	APIKeyEnv      string `mapstructure:"api_key_env"`
	APIKeySSMParam string `mapstructure:"api_key_ssm_param"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// RedisConfig selects Redis for chat history when Postgres is disabled.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	URL       string        `mapstructure:"url"` // e.g. redis://localhost:6379/0
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"` // idle sessions expire after this
}

type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	ServiceVersion string `mapstructure:"service_version"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.url", "wss://data-stream.binance.vision/ws")
	v.SetDefault("binance.symbol", "BTCUSDT")
	v.SetDefault("binance.kline_interval", "1m")
	v.SetDefault("binance.streams", []string{})
	v.SetDefault("binance.subscribe_id", 1)
	v.SetDefault("binance.unsubscribe_id", 2)
	v.SetDefault("binance.handshake_timeout", "10s")
	v.SetDefault("binance.read_timeout", "10m")
	v.SetDefault("binance.write_timeout", "5s")
	v.SetDefault("binance.close_timeout", "5s")
	v.SetDefault("binance.reconnect", true)
	v.SetDefault("binance.backoff.initial_interval", "1s")
	v.SetDefault("binance.backoff.randomization_factor", 0.5)
	v.SetDefault("binance.backoff.multiplier", 2.0)
	v.SetDefault("binance.backoff.max_interval", "30s")
	v.SetDefault("binance.backoff.max_elapsed_time", "0s")
	v.SetDefault("binance.backoff.max_retries", 0)
	v.SetDefault("binance.backoff.per_attempt_timeout", "15s")

	v.SetDefault("chat.enabled", true)
	v.SetDefault("chat.endpoint", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("chat.model", "gemini-2.5-flash")
	v.SetDefault("chat.temperature", 0.7)
	v.SetDefault("chat.max_output_tokens", 500)
	v.SetDefault("chat.timeout", "30s")
	v.SetDefault("chat.history_turns", 4)
	v.SetDefault("chat.max_history", 20)
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.api_key_env", "GEMINI_API_KEY")
	v.SetDefault("chat.api_key_ssm_param", "")

	v.SetDefault("http.addr", ":5000")
	v.SetDefault("http.read_timeout", "10s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_file", "")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.create_db", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "")
	v.SetDefault("postgres.dbname", "btcpulse")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", "1h")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.key_prefix", "btcpulse:chat:")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "btcpulse")
	v.SetDefault("telemetry.service_version", "dev")
}

// Load loads application configuration using Viper.
// It reads config.yaml when one is found (explicit path first, then ./config,
// . and ../config) and overrides it with environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config") // config.yaml
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		v.AddConfigPath("../config")
	}

	// Support environment variables with dot notation (e.g., BINANCE_SYMBOL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	hook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)
	if err := v.Unmarshal(&cfg, viper.DecodeHook(hook)); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	if c.Binance.URL == "" {
		return errors.New("config: binance.url is required")
	}
	if c.Binance.Symbol == "" && len(c.Binance.Streams) == 0 {
		return errors.New("config: binance.symbol or binance.streams is required")
	}
	if c.Binance.WriteTimeout <= 0 {
		return errors.New("config: binance.write_timeout must be positive")
	}
	if c.Binance.CloseTimeout <= 0 {
		return errors.New("config: binance.close_timeout must be positive")
	}
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr is required")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return errors.New("config: http.shutdown_timeout must be positive")
	}
	if c.Chat.Enabled {
		if c.Chat.Endpoint == "" || c.Chat.Model == "" {
			return errors.New("config: chat.endpoint and chat.model are required")
		}
		if c.Chat.HistoryTurns < 0 || c.Chat.MaxHistory < 0 {
			return errors.New("config: chat history sizes must not be negative")
		}
	}
	if c.Redis.Enabled && c.Redis.URL == "" {
		return errors.New("config: redis.url is required when redis is enabled")
	}
	switch c.Log.Environment {
	case "dev", "prod":
	default:
		return fmt.Errorf("config: unknown log.environment %q", c.Log.Environment)
	}
	return nil
}
