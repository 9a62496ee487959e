// Package api exposes the crawl controller and the stored items over HTTP.
//
// Routes:
//
//	POST /api/crawl/start     start a crawl (bearer auth)
//	GET  /api/crawl/status    status of the latest run
//	POST /api/crawl/stop      stop the running crawl (bearer auth)
//	GET  /api/items           stored pages, newest first (?limit, ?offset, ?q)
//	GET  /api/items/download  every stored page as NDJSON
//	GET  /api/health          liveness and storage check
//	GET  /metrics             Prometheus metrics
package api
