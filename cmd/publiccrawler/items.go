package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/spf13/cobra"

	"github.com/nao1215/publiccrawler/internal/database"
	"github.com/nao1215/publiccrawler/internal/model"
)

// maxTitleColumn keeps the items table readable in a terminal.
const maxTitleColumn = 60

// NewItemsCmd creates the items command.
func NewItemsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "items",
		Short: "List or export stored pages",
		Long: `Items prints stored pages, newest first, as a Markdown table.

With --ndjson every stored page is written to stdout as one JSON document per
line, ready for jq or a bulk loader.

Examples:
  publiccrawler items --limit 20
  publiccrawler items --query kubernetes
  publiccrawler items --ndjson > pages.ndjson`,
		Args: cobra.NoArgs,
		RunE: runItemsCmd,
	}

	cmd.Flags().Int("limit", database.DefaultListLimit, "Maximum number of pages to list")
	cmd.Flags().Int("offset", 0, "Number of newest pages to skip")
	cmd.Flags().StringP("query", "q", "", "Only list pages whose URL, title or text contains this")
	cmd.Flags().Bool("ndjson", false, "Export every stored page as NDJSON")
	addStorageFlags(cmd)

	return cmd
}

func runItemsCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyStorageFlags(cmd, cfg); err != nil {
		return err
	}
	logger := setupLogger(cfg)

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

	out := cmd.OutOrStdout()
	if ndjson, _ := cmd.Flags().GetBool("ndjson"); ndjson {
		return store.ExportNDJSON(ctx, out)
	}

	var opts database.ListOptions
	if opts.Limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return err
	}
	if opts.Offset, err = cmd.Flags().GetInt("offset"); err != nil {
		return err
	}
	if opts.Query, err = cmd.Flags().GetString("query"); err != nil {
		return err
	}

	items, err := store.ListItems(ctx, opts)
	if err != nil {
		return fmt.Errorf("failed to list items: %w", err)
	}
	total, err := store.CountItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}

	if len(items) == 0 {
		fmt.Fprintf(out, "No items found (%d stored).\n", total)
		return nil
	}
	if err := writeItemsTable(out, items); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d shown, %d stored\n", len(items), total)
	return nil
}

func writeItemsTable(out io.Writer, items []*model.FetchedPage) error {
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = []string{
			it.FetchedAt.Local().Format(time.DateTime),
			tableCell(model.Truncate(it.Title, maxTitleColumn)),
			tableCell(it.URL),
		}
	}
	return markdown.NewMarkdown(out).
		Table(markdown.TableSet{Header: []string{"Fetched", "Title", "URL"}, Rows: rows}).
		Build()
}

// tableCell escapes characters that would break a Markdown table row.
func tableCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
