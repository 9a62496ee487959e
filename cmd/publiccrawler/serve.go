package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/nao1215/publiccrawler/internal/api"
	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/control"
	"github.com/nao1215/publiccrawler/internal/crawler"
	"github.com/nao1215/publiccrawler/internal/database"
	"github.com/nao1215/publiccrawler/internal/metrics"
)

// Environment variables read by the serve command.
const (
	envAPIKey   = "PUBLICCRAWLER_API_KEY"
	envDatabase = "PUBLICCRAWLER_DATABASE"
)

// shutdownTimeout bounds the graceful shutdown of the HTTP server.
const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP control API",
		Long: `Serve starts an HTTP API to start, stop and inspect crawls and to read stored pages.

Routes:
  POST /api/crawl/start     start a crawl (bearer auth)
  POST /api/crawl/stop      stop the running crawl (bearer auth)
  GET  /api/crawl/status    state of the latest crawl
  GET  /api/items           stored pages (?limit, ?offset, ?q)
  GET  /api/items/download  every stored page as NDJSON
  GET  /api/health          liveness
  GET  /metrics             Prometheus metrics

The API key and database directory may also come from the environment
(` + envAPIKey + `, ` + envDatabase + `) or a .env file in the working directory.
Without an API key the start and stop routes are unauthenticated.

Examples:
  publiccrawler serve --addr 127.0.0.1:8080 --api-key "$(openssl rand -hex 24)"`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().String("addr", config.DefaultAPIAddress, "Listen address")
	cmd.Flags().String("api-key", "", "Bearer token required by start and stop")
	cmd.Flags().StringSlice("allowed-origin", nil, "Browser origin allowed by CORS (repeatable)")
	addStorageFlags(cmd)

	return cmd
}

func runServeCmd(cmd *cobra.Command, _ []string) error {
	if err := loadDotEnv(".env"); err != nil {
		return err
	}

	cfg, err := buildServeConfig(cmd)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg)
	if cfg.APIKey == "" {
		logger.Warn("no API key configured, crawl start and stop are unauthenticated")
	}

	ctx := cmd.Context()
	store, err := database.Open(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("failed to close storage", "error", cerr)
		}
	}()

	m := metrics.New()
	manager := control.NewManager(store,
		control.WithLogger(logger),
		control.WithMetrics(m),
		control.WithSpiderOptions(crawler.WithLogger(logger)),
	)
	server := api.NewServer(cfg, manager, store, api.WithLogger(logger), api.WithMetrics(m))

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	case <-sigCtx.Done():
	}

	logger.Info("received shutdown signal, stopping server...")
	if err := manager.Stop(""); err != nil {
		logger.Warn("failed to stop crawl", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api server: %w", err)
	}
	return <-errCh
}

// loadDotEnv loads path into the environment. A missing file is fine and
// variables already set are not overridden.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// buildServeConfig layers defaults, the config file, the environment and flags.
func buildServeConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv(envAPIKey); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv(envDatabase); v != "" {
		cfg.Storage.Dir = v
	}

	flags := cmd.Flags()
	if changed(cmd, "addr") {
		if cfg.APIAddress, err = flags.GetString("addr"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "api-key") {
		if cfg.APIKey, err = flags.GetString("api-key"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "allowed-origin") {
		if cfg.AllowedOrigins, err = flags.GetStringSlice("allowed-origin"); err != nil {
			return nil, err
		}
	}
	if err := applyStorageFlags(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
