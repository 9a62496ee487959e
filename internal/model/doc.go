// Package model defines the data structures shared by the crawler, the
// sinks, the control API and the reports.
//
//   - FetchedPage: one successfully fetched and parsed page
//   - RunState: lifecycle state of a crawl run
//   - RunStats: point-in-time counters of a run
//
// The types are serializable to JSON; FetchedPage's JSON form is the raw
// item stored by every sink.
package model
