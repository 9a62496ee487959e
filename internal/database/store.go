package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/model"
)

const (
	// DefaultListLimit is the page size used when ListOptions.Limit is not set.
	DefaultListLimit = 100
	// MaxListLimit caps ListOptions.Limit.
	MaxListLimit = 1000
)

// ErrUnknownDriver is returned by Open for an unsupported storage driver.
var ErrUnknownDriver = errors.New("unknown storage driver")

// Store is a page sink that can also be read back.
type Store interface {
	// InsertItem appends one page.
	InsertItem(ctx context.Context, page *model.FetchedPage) error
	// CountItems returns the number of stored pages.
	CountItems(ctx context.Context) (int64, error)
	// ListItems returns stored pages, newest first.
	ListItems(ctx context.Context, opts ListOptions) ([]*model.FetchedPage, error)
	// ExportNDJSON writes every stored page as one JSON document per line.
	ExportNDJSON(ctx context.Context, w io.Writer) error
	// Close releases the backend connection.
	Close() error
}

// ListOptions selects a window of stored pages.
type ListOptions struct {
	// Limit is the maximum number of pages. Zero means DefaultListLimit.
	Limit int
	// Offset skips that many pages from the newest.
	Offset int
	// Query, when set, keeps pages whose url, title or text contains it.
	Query string
}

// normalize applies the default and the cap.
func (o ListOptions) normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Query = strings.TrimSpace(o.Query)
	return o
}

// Open opens the backend selected by cfg.Driver. An empty driver means SQLite.
func Open(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverSQLite:
		dir := cfg.Dir
		if dir == "" {
			dir = config.XDGDataDir()
		}
		return OpenSQLite(dir, DefaultOptions())
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)
	case config.DriverRedis:
		return OpenRedis(ctx, cfg.DSN, cfg.RedisKey)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func encodePage(page *model.FetchedPage) ([]byte, error) {
	raw, err := json.Marshal(page)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize page: %w", err)
	}
	return raw, nil
}

func decodePage(raw []byte) (*model.FetchedPage, error) {
	var page model.FetchedPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("failed to parse stored page: %w", err)
	}
	return &page, nil
}

// writeLine writes raw followed by a newline.
func writeLine(w io.Writer, raw []byte) error {
	if _, err := w.Write(raw); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}

// matchesQuery reports whether the page contains q in its url, title or
// text, ignoring case.
func matchesQuery(page *model.FetchedPage, q string) bool {
	if q == "" {
		return true
	}
	q = strings.ToLower(q)
	return strings.Contains(strings.ToLower(page.URL), q) ||
		strings.Contains(strings.ToLower(page.Title), q) ||
		strings.Contains(strings.ToLower(page.Text), q)
}
