// Package crawler implements a polite, bounded, domain-restricted web crawler.
//
// # Architecture
//
// A Spider runs one crawl. Seeds are admitted to the Frontier at depth 0,
// then a fixed pool of workers repeatedly takes a URL, fetches it, extracts
// title, text and links, hands the page to a Sink and admits the links one
// level deeper. The run ends when the frontier is exhausted, the page limit
// is reached or Stop is called.
//
// # Components
//
//   - Normalize, DomainSet, Filter: URL canonicalization and admission rules
//   - Frontier: FIFO queue plus seen-set; the single admission point
//   - Parser: streaming title/text extraction, href links, document metadata
//   - Spider: worker pool and run lifecycle
//
// # Politeness
//
// Fetching goes through internal/fetcher, which consults the robots advisor
// and the per-host limiter from internal/politeness before every request.
//
// # Usage
//
//	spider, err := crawler.NewSpider(cfg, sink, crawler.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	go func() { <-ctx.Done(); spider.Stop() }()
//	err = spider.Run(context.Background())
//	stats := spider.Stats()
package crawler
