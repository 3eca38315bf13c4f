package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcpulse/config"
	"btcpulse/internal/app"
	"btcpulse/logger"
	"btcpulse/pkg/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:           "btcpulse",
		Short:         "Live BTCUSDT market feed with a chat assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env is optional
			_ = godotenv.Load()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (default: search ./config, ., ../config)")

	root.AddCommand(&cobra.Command{
		Use:   "check-config",
		Short: "Load and validate the configuration, then exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			streams, err := app.Streams(cfg.Binance)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "config ok: streams=%v http=%s chat=%t postgres=%t\n",
				streams, cfg.HTTP.Addr, cfg.Chat.Enabled, cfg.Postgres.Enabled)
			return nil
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "btcpulse:", err)
		os.Exit(1)
	}
}

func serve() error {
	// viper config
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Sync()

	shutdownTracing, err := telemetry.Setup(cfg.Telemetry, nil)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, cfg, log); err != nil {
		log.Error("btcpulse stopped", zap.Error(err))
		return err
	}
	log.Info("btcpulse stopped")
	return nil
}
