package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/model"
)

// fetchedAtLayout sorts lexically in time order.
const fetchedAtLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore stores pages in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// Options configures SQLiteStore behavior.
type Options struct {
	// CreateIfNotExists creates the directory and database file if missing.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging so readers do not block the crawler.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// OpenSQLite opens or creates the database file in dbDir.
// If CreateIfNotExists is false and the file does not exist, an error is returned.
func OpenSQLite(dbDir string, opts Options) (*SQLiteStore, error) {
	dbPath := filepath.Join(dbDir, config.DefaultDBFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &SQLiteStore{db: db, dbPath: dbPath}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := s.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		url TEXT NOT NULL,
		fetched_at TEXT NOT NULL,
		content_type TEXT,
		title TEXT,
		text TEXT,
		raw TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_items_url ON items(url);
	CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items(fetched_at);
	`
	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// InsertItem appends a page. The same URL may be stored more than once
// across runs.
func (s *SQLiteStore) InsertItem(ctx context.Context, page *model.FetchedPage) error {
	raw, err := encodePage(page)
	if err != nil {
		return err
	}

	query := `
	INSERT INTO items (url, fetched_at, content_type, title, text, raw)
	VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		page.URL,
		page.FetchedAt.UTC().Format(fetchedAtLayout),
		page.ContentType,
		page.Title,
		page.Text,
		string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// CountItems returns the number of stored pages.
func (s *SQLiteStore) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM items").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// ListItems returns pages ordered by fetch time, newest first. Query is
// matched with LIKE, which is case-insensitive for ASCII.
func (s *SQLiteStore) ListItems(ctx context.Context, opts ListOptions) ([]*model.FetchedPage, error) {
	opts = opts.normalize()

	query := "SELECT raw FROM items"
	args := make([]any, 0, 5)
	if opts.Query != "" {
		like := "%" + opts.Query + "%"
		query += " WHERE url LIKE ? OR title LIKE ? OR text LIKE ?"
		args = append(args, like, like, like)
	}
	query += " ORDER BY fetched_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	items := make([]*model.FetchedPage, 0, opts.Limit)
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		page, err := decodePage([]byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, page)
	}
	return items, rows.Err()
}

// ExportNDJSON streams every stored page, newest first.
func (s *SQLiteStore) ExportNDJSON(ctx context.Context, w io.Writer) error {
	rows, err := s.db.QueryContext(ctx, "SELECT raw FROM items ORDER BY fetched_at DESC, id DESC")
	if err != nil {
		return fmt.Errorf("failed to export items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		if err := writeLine(w, []byte(raw)); err != nil {
			return fmt.Errorf("failed to write item: %w", err)
		}
	}
	return rows.Err()
}
