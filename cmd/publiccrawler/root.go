package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/log"
)

// NewRootCmd creates the root command for publiccrawler.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publiccrawler",
		Short: "Polite, bounded crawler for public web sites",
		Long: `publiccrawler crawls public web sites breadth-first from a set of seed URLs.

It only follows links inside the allowed domains, waits between requests to
the same host, stops at a page and depth limit, and stores the title, text
and metadata of every HTML page in SQLite (or PostgreSQL / Redis).

Run a one-off crawl with "crawl", or start the HTTP control API with "serve".`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")
	cmd.PersistentFlags().String("log-format", config.LogFormatText, "Log format: text or json")
	cmd.PersistentFlags().StringP("config", "c", "",
		"Configuration file path (default: ./"+config.DefaultConfigFile+" or $XDG_CONFIG_HOME/publiccrawler/config.yaml)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewItemsCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig returns the defaults overlaid with the config file and the
// global flags. A missing file is only an error when --config names it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	explicit, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path := config.FindConfigFile(explicit); path != "" {
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		f.Apply(cfg)
		cfg.ConfigFilePath = path
	} else if explicit != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicit)
	}

	if changed(cmd, "verbose") {
		if cfg.Verbose, err = cmd.Flags().GetBool("verbose"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "log-format") {
		if cfg.LogFormat, err = cmd.Flags().GetString("log-format"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// setupLogger creates the process logger and makes it the slog default.
func setupLogger(cfg *config.Config) *slog.Logger {
	logger := log.New(os.Stderr, cfg.Verbose, cfg.LogFormat)
	slog.SetDefault(logger)
	return logger
}

// changed reports whether the user set the flag on the command line.
func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flags().Lookup(name)
	return f != nil && f.Changed
}

// applyStorageFlags reads the storage flags shared by several commands.
func applyStorageFlags(cmd *cobra.Command, cfg *config.Config) error {
	var err error
	if changed(cmd, "db") {
		if cfg.Storage.Dir, err = cmd.Flags().GetString("db"); err != nil {
			return err
		}
	}
	if changed(cmd, "storage") {
		if cfg.Storage.Driver, err = cmd.Flags().GetString("storage"); err != nil {
			return err
		}
	}
	if changed(cmd, "dsn") {
		if cfg.Storage.DSN, err = cmd.Flags().GetString("dsn"); err != nil {
			return err
		}
	}
	return nil
}

func addStorageFlags(cmd *cobra.Command) {
	cmd.Flags().String("db", "", "Directory holding "+config.DefaultDBFile+" (default: XDG data directory)")
	cmd.Flags().String("storage", config.DriverSQLite, "Storage driver: sqlite, postgres or redis")
	cmd.Flags().String("dsn", "", "Connection string for the postgres or redis driver")
}
