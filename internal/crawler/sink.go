package crawler

import (
	"context"

	"github.com/nao1215/publiccrawler/internal/model"
)

// Sink receives every fetched page. Implementations must be safe for
// concurrent use; workers call InsertItem in parallel.
type Sink interface {
	// InsertItem persists one page.
	InsertItem(ctx context.Context, page *model.FetchedPage) error

	// CountItems returns the number of pages persisted so far, across runs.
	CountItems(ctx context.Context) (int64, error)
}
