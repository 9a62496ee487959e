// Package control runs at most one crawl at a time in the background and
// reports on it. It backs the HTTP control API and is safe for concurrent
// use.
package control
