// Package main provides the entry point for the publiccrawler CLI.
//
// publiccrawler is a polite, bounded web crawler for public sites. It
// stays inside an allow-list of domains, honors per-host delays and stores
// every fetched page for later search and export.
//
// Usage:
//
//	publiccrawler crawl https://example.com/ -a example.com
//	publiccrawler serve --addr 127.0.0.1:8080
//	publiccrawler items --query golang
//
// See --help for all available options.
package main

func main() {
	Execute()
}
