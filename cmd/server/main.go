package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamlink/relay-server/internal/app"
	"github.com/beamlink/relay-server/internal/config"
	"github.com/beamlink/relay-server/internal/log"
)

var (
	flagConfigPath string
	flagOverrides  config.Config
)

var rootCmd = &cobra.Command{
	Use:   "relay-server",
	Short: "Signaling relay server for peer-to-peer file transfer rooms",
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVarP(&flagConfigPath, "config", "c", "", "path to config file")
	rootCmd.Flags().StringVar(&flagOverrides.Addr, "addr", "", "HTTP listen address")
	rootCmd.Flags().StringVar(&flagOverrides.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.Flags().StringVar(&flagOverrides.DBPath, "db-path", "", "sqlite database path (empty for in-memory rooms)")
	rootCmd.Flags().DurationVar(&flagOverrides.RoomTTL, "room-ttl", 0, "close rooms older than this (0 disables)")
	rootCmd.Flags().DurationVar(&flagOverrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")
}

func run(cmd *cobra.Command, _ []string) error {
	logger := log.New(flagOverrides.LogLevel)

	cfg, configPath, err := config.Load(logger, flagConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.UpdateFrom(flagOverrides)

	logger = log.New(cfg.LogLevel)
	logger.Info().Str("config", configPath).Str("addr", cfg.Addr).Msg("starting relay server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(cfg, logger)
	if err != nil {
		return err
	}

	start := time.Now()
	if err := application.Run(ctx); err != nil {
		return err
	}
	logger.Info().Dur("uptime", time.Since(start)).Msg("server stopped")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
