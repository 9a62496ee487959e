// Package fetcher downloads a single page politely.
//
// Fetch consults the robots advisor, waits on the per-host limiter, then
// issues one GET with a fixed User-Agent and timeout. Only 200 responses whose
// Content-Type contains text/html are returned as pages; everything else is
// reported as an *Error carrying a Reason. Bodies are decompressed, decoded
// to UTF-8 from the declared or sniffed charset, and invalid byte sequences
// are dropped. Nothing is retried.
package fetcher
