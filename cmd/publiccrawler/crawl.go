package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/crawler"
	"github.com/nao1215/publiccrawler/internal/database"
	"github.com/nao1215/publiccrawler/internal/report"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url...]",
		Short: "Crawl public web sites from seed URLs",
		Long: `Crawl fetches pages breadth-first from the seed URLs and stores them.

Only hosts inside --allow-domain are visited. Requests to one host are spaced
by --delay, and the run ends when the frontier is empty, --max-pages pages
were fetched, or the process receives SIGINT/SIGTERM. A summary is printed
when the run ends.

Examples:
  # Crawl a site two links deep
  publiccrawler crawl https://go.dev/ -a go.dev

  # Several seeds, a stricter limit and a Markdown report
  publiccrawler crawl https://go.dev/ https://pkg.go.dev/ -a go.dev -p 50 --report report.md

  # Only follow documentation pages, skip PDFs
  publiccrawler crawl https://go.dev/doc/ -a go.dev --include '/doc/' --exclude '\.pdf$'

  # Seeds and domains from a configuration file
  publiccrawler crawl -c crawl.yaml`,
		Args: cobra.ArbitraryArgs,
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringSliceP("allow-domain", "a", nil,
		"Allowed domain; subdomains are included (repeatable, required)")
	cmd.Flags().IntP("max-pages", "p", config.DefaultMaxPages, "Maximum number of pages to fetch")
	cmd.Flags().IntP("depth", "d", config.DefaultMaxDepth, "Maximum link depth from a seed")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency, "Number of concurrent workers")
	cmd.Flags().Duration("delay", config.DefaultPerHostDelay, "Minimum delay between requests to the same host")
	cmd.Flags().DurationP("timeout", "t", config.DefaultRequestTimeout, "Timeout for each page request")
	cmd.Flags().String("include", "", "Only crawl URLs matching this regular expression")
	cmd.Flags().String("exclude", "", "Skip URLs matching this regular expression")
	cmd.Flags().String("robots", config.RobotsAdvisory, "robots.txt handling: advisory or enforce")
	cmd.Flags().Float64("rate", 0, "Per-host requests per second ceiling (0 disables)")
	cmd.Flags().String("proxy", "", "SOCKS5 proxy address (host:port)")
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header sent with every request")
	addStorageFlags(cmd)

	cmd.Flags().String("report", "", "Write a Markdown summary to this file")
	cmd.Flags().BoolP("json", "j", false, "Print the run summary as JSON")

	return cmd
}

func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildCrawlConfig(cmd, args)
	if err != nil {
		return err
	}
	if len(cfg.Seeds) == 0 {
		return config.ErrNoSeeds
	}
	if len(cfg.AllowDomains) == 0 {
		return fmt.Errorf("%w (use --allow-domain)", config.ErrNoAllowedDomains)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cfg)
	for _, d := range cfg.BroadAllowDomains() {
		logger.Warn("allow domain is a public suffix and admits unrelated sites", "domain", d)
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

	spider, err := crawler.NewSpider(cfg, store, crawler.WithLogger(logger))
	if err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	go stopOnSignal(sigCtx, spider, logger)

	if err := spider.Run(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	return outputSummary(cmd, cfg, report.NewSummary(cfg, spider.Stats()))
}

// stopOnSignal stops the spider when ctx is canceled before the run ends.
func stopOnSignal(ctx context.Context, spider *crawler.Spider, logger *slog.Logger) {
	select {
	case <-spider.Done():
		return
	case <-ctx.Done():
	}
	select {
	case <-spider.Done():
		return
	default:
	}
	logger.Info("received shutdown signal, stopping crawl...")
	spider.Stop()
}

// buildCrawlConfig layers defaults, the config file, flags and positional seeds.
func buildCrawlConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	if len(args) > 0 {
		cfg.Seeds = args
	}

	flags := cmd.Flags()
	if changed(cmd, "allow-domain") {
		if cfg.AllowDomains, err = flags.GetStringSlice("allow-domain"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "max-pages") {
		if cfg.MaxPages, err = flags.GetInt("max-pages"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "depth") {
		if cfg.MaxDepth, err = flags.GetInt("depth"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "delay") {
		if cfg.PerHostDelay, err = flags.GetDuration("delay"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "timeout") {
		if cfg.RequestTimeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "include") {
		if cfg.IncludePattern, err = flags.GetString("include"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "exclude") {
		if cfg.ExcludePattern, err = flags.GetString("exclude"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "robots") {
		mode, err := flags.GetString("robots")
		if err != nil {
			return nil, err
		}
		cfg.RobotsMode = strings.ToLower(mode)
	}
	if changed(cmd, "rate") {
		if cfg.RateLimit, err = flags.GetFloat64("rate"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "proxy") {
		if cfg.ProxyAddress, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}
	if changed(cmd, "user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}
	if err := applyStorageFlags(cmd, cfg); err != nil {
		return nil, err
	}

	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// outputSummary prints the summary to stdout and, if requested, writes the
// Markdown report file.
func outputSummary(cmd *cobra.Command, cfg *config.Config, summary *report.Summary) error {
	var w report.Writer
	if cfg.JSONReport {
		w = report.NewJSONWriter(cmd.OutOrStdout(), report.WithPrettyPrint())
	} else {
		w = report.NewSimpleWriter(cmd.OutOrStdout(), report.WithVerbose(cfg.Verbose))
	}
	if _, err := w.Write(summary); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	if cfg.ReportFile == "" {
		return nil
	}
	var sb strings.Builder
	if _, err := report.NewMarkdownWriter(&sb).Write(summary); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	if err := writeFile(cfg.ReportFile, []byte(sb.String())); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if !cfg.JSONReport {
		fmt.Fprintf(cmd.OutOrStdout(), "\nReport written to: %s\n", cfg.ReportFile)
	}
	return nil
}
