package config

import (
	"context"
	"fmt"
	"time"
)

// PostgresConfig defines the configuration for connecting to a PostgreSQL database.
// When Enabled is false chat history stays in memory.
type PostgresConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	CreateDB bool   `mapstructure:"create_db"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	TimeZone string `mapstructure:"timezone"`

	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// SSM parameter names holding production database credentials.
const (
	ssmDBHost     = "BTCPULSE_DB_HOST"
	ssmDBUser     = "BTCPULSE_DB_USER"
	ssmDBPassword = "BTCPULSE_DB_PASSWORD"
)

// DSN builds a libpq connection string. In prod the host and credentials come
// from the parameter store and fall back to the configured values when a
// parameter cannot be read.
func (cfg *PostgresConfig) DSN(env string) string {
	return cfg.dsnFor(env, cfg.DBName)
}

// MaintenanceDSN points at the server's default "postgres" database, used to
// create the application database.
func (cfg *PostgresConfig) MaintenanceDSN(env string) string {
	return cfg.dsnFor(env, "postgres")
}

func (cfg *PostgresConfig) dsnFor(env, dbName string) string {
	host, user, password := cfg.Host, cfg.User, cfg.Password
	if env == "prod" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		host = parameterOr(ctx, ssmDBHost, host)
		user = parameterOr(ctx, ssmDBUser, user)
		password = parameterOr(ctx, ssmDBPassword, password)
	}

	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, cfg.Port, user, password, dbName, cfg.SSLMode,
	)

	if cfg.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", cfg.TimeZone)
	}

	return dsn
}

func parameterOr(ctx context.Context, name, fallback string) string {
	value, err := ParameterStoreValue(ctx, name, true)
	if err != nil || value == "" {
		return fallback
	}
	return value
}
