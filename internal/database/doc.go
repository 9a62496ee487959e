// Package database provides the page sinks used by the crawler.
//
// Three backends implement Store:
//   - SQLite (modernc.org/sqlite), the default, a single file under the data directory
//   - PostgreSQL via pgxpool
//   - a Redis list holding one JSON document per page
//
// Every backend keeps the full page as JSON ("raw") so listing and export
// return exactly what the crawler produced. SQLite and PostgreSQL also keep
// url, title and text in columns for search.
package database
