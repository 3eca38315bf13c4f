package postgres_test

import (
	"os"
	"testing"

	"btcpulse/config"
)

// testConfig points at a live server named by BTCPULSE_TEST_POSTGRES_HOST.
// Tests that need one are skipped without it.
func testConfig(t *testing.T) config.PostgresConfig {
	t.Helper()
	host := os.Getenv("BTCPULSE_TEST_POSTGRES_HOST")
	if host == "" {
		t.Skip("BTCPULSE_TEST_POSTGRES_HOST not set")
	}
	return config.PostgresConfig{
		Host:     host,
		Port:     5432,
		User:     envOr("BTCPULSE_TEST_POSTGRES_USER", "postgres"),
		Password: os.Getenv("BTCPULSE_TEST_POSTGRES_PASSWORD"),
		DBName:   "btcpulse_test",
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns: 4,
		MaxIdleConns: 2,
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
