package database

import (
	"context"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nao1215/publiccrawler/internal/model"
)

// PostgresStore stores pages in a PostgreSQL table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and creates the items table if needed.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to reach database: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if err := s.createTables(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS items (
			id BIGSERIAL PRIMARY KEY,
			url TEXT NOT NULL,
			fetched_at TIMESTAMPTZ NOT NULL,
			content_type TEXT,
			title TEXT,
			text TEXT,
			raw JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_items_fetched_at ON items (fetched_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// InsertItem appends a page.
func (s *PostgresStore) InsertItem(ctx context.Context, page *model.FetchedPage) error {
	raw, err := encodePage(page)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO items (url, fetched_at, content_type, title, text, raw)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		page.URL, page.FetchedAt.UTC(), page.ContentType, page.Title, page.Text, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// CountItems returns the number of stored pages.
func (s *PostgresStore) CountItems(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM items`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// ListItems returns pages newest first; Query is matched with ILIKE.
func (s *PostgresStore) ListItems(ctx context.Context, opts ListOptions) ([]*model.FetchedPage, error) {
	query, args := postgresListQuery(opts.normalize())

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []*model.FetchedPage
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		page, err := decodePage(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, page)
	}
	return items, rows.Err()
}

// ExportNDJSON streams every stored page, newest first.
func (s *PostgresStore) ExportNDJSON(ctx context.Context, w io.Writer) error {
	rows, err := s.pool.Query(ctx, `SELECT raw FROM items ORDER BY fetched_at DESC, id DESC`)
	if err != nil {
		return fmt.Errorf("failed to export items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return fmt.Errorf("failed to scan item: %w", err)
		}
		if err := writeLine(w, raw); err != nil {
			return fmt.Errorf("failed to write item: %w", err)
		}
	}
	return rows.Err()
}

// postgresListQuery builds the ListItems statement for normalized opts.
func postgresListQuery(opts ListOptions) (string, []any) {
	query := `SELECT raw FROM items`
	var args []any
	if opts.Query != "" {
		args = append(args, "%"+opts.Query+"%")
		query += ` WHERE url ILIKE $1 OR title ILIKE $1 OR text ILIKE $1`
	}
	args = append(args, opts.Limit, opts.Offset)
	query += fmt.Sprintf(` ORDER BY fetched_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	return query, args
}
