package database

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/model"
)

// exportBatch is the LRANGE window used while exporting.
const exportBatch = 500

// RedisStore appends pages as JSON to a Redis list.
type RedisStore struct {
	client *redis.Client
	key    string
}

// OpenRedis connects to dsn, either a redis:// URL or a host:port address.
// An empty key means config.DefaultRedisKey.
func OpenRedis(ctx context.Context, dsn, key string) (*RedisStore, error) {
	opts, err := redisOptions(dsn)
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = config.DefaultRedisKey
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis: %w", err)
	}
	return &RedisStore{client: client, key: key}, nil
}

func redisOptions(dsn string) (*redis.Options, error) {
	if strings.Contains(dsn, "://") {
		opts, err := redis.ParseURL(dsn)
		if err != nil {
			return nil, fmt.Errorf("invalid redis URL: %w", err)
		}
		return opts, nil
	}
	if dsn == "" {
		return nil, config.ErrMissingDSN
	}
	return &redis.Options{Addr: dsn}, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// InsertItem pushes the page onto the tail of the list.
func (s *RedisStore) InsertItem(ctx context.Context, page *model.FetchedPage) error {
	raw, err := encodePage(page)
	if err != nil {
		return err
	}
	if err := s.client.RPush(ctx, s.key, raw).Err(); err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// CountItems returns the list length.
func (s *RedisStore) CountItems(ctx context.Context) (int64, error) {
	n, err := s.client.LLen(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// ListItems returns pages newest first. Without a query only the requested
// window is read; with one the whole list is scanned.
func (s *RedisStore) ListItems(ctx context.Context, opts ListOptions) ([]*model.FetchedPage, error) {
	opts = opts.normalize()

	total, err := s.CountItems(ctx)
	if err != nil {
		return nil, err
	}

	if opts.Query == "" {
		start, stop, ok := listWindow(total, opts.Offset, opts.Limit)
		if !ok {
			return []*model.FetchedPage{}, nil
		}
		raws, err := s.client.LRange(ctx, s.key, start, stop).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to list items: %w", err)
		}
		slices.Reverse(raws)
		return decodeAll(raws)
	}

	raws, err := s.client.LRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	items := make([]*model.FetchedPage, 0, opts.Limit)
	skipped := 0
	for i := len(raws) - 1; i >= 0 && len(items) < opts.Limit; i-- {
		page, err := decodePage([]byte(raws[i]))
		if err != nil {
			return nil, err
		}
		if !matchesQuery(page, opts.Query) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		items = append(items, page)
	}
	return items, nil
}

// ExportNDJSON writes the list newest first in batches.
func (s *RedisStore) ExportNDJSON(ctx context.Context, w io.Writer) error {
	total, err := s.CountItems(ctx)
	if err != nil {
		return err
	}
	for offset := 0; ; offset += exportBatch {
		start, stop, ok := listWindow(total, offset, exportBatch)
		if !ok {
			return nil
		}
		raws, err := s.client.LRange(ctx, s.key, start, stop).Result()
		if err != nil {
			return fmt.Errorf("failed to export items: %w", err)
		}
		for i := len(raws) - 1; i >= 0; i-- {
			if err := writeLine(w, []byte(raws[i])); err != nil {
				return fmt.Errorf("failed to write item: %w", err)
			}
		}
	}
}

// listWindow maps a newest-first window onto LRANGE indexes of a list that
// grows at the tail. ok is false when the window is empty.
func listWindow(total int64, offset, limit int) (start, stop int64, ok bool) {
	stop = total - 1 - int64(offset)
	if stop < 0 || limit <= 0 {
		return 0, 0, false
	}
	start = max(stop-int64(limit)+1, 0)
	return start, stop, true
}

func decodeAll(raws []string) ([]*model.FetchedPage, error) {
	items := make([]*model.FetchedPage, 0, len(raws))
	for _, raw := range raws {
		page, err := decodePage([]byte(raw))
		if err != nil {
			return nil, err
		}
		items = append(items, page)
	}
	return items, nil
}
