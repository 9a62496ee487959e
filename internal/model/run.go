package model

import (
	"fmt"
	"time"
)

// RunState is the lifecycle state of a crawl run.
// A run only moves forward: NotStarted, Running, Stopping, Stopped.
type RunState int

const (
	RunNotStarted RunState = iota
	RunRunning
	RunStopping
	RunStopped
)

var runStateNames = [...]string{"not_started", "running", "stopping", "stopped"}

// String returns the snake_case name of the state.
func (s RunState) String() string {
	if s < 0 || int(s) >= len(runStateNames) {
		return fmt.Sprintf("RunState(%d)", int(s))
	}
	return runStateNames[s]
}

// MarshalText implements encoding.TextMarshaler so states read well in JSON.
func (s RunState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *RunState) UnmarshalText(text []byte) error {
	for i, name := range runStateNames {
		if name == string(text) {
			*s = RunState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown run state %q", text)
}

// RunStats is a point-in-time snapshot of a crawl run.
type RunStats struct {
	State RunState `json:"state"`

	// PagesFetched counts pages fetched, parsed and handed to the sink.
	PagesFetched int64 `json:"pages_fetched"`

	// Enqueued counts URLs admitted to the frontier, seeds included.
	Enqueued int64 `json:"enqueued"`

	// Queued is the number of URLs waiting in the frontier.
	Queued int `json:"queued"`

	// InFlight is the number of URLs a worker is currently processing.
	InFlight int `json:"in_flight"`

	// SinkErrors counts pages the sink failed to persist.
	SinkErrors int64 `json:"sink_errors"`

	// Failures counts fetch failures by reason.
	Failures map[string]int64 `json:"failures,omitempty"`

	// Rejections counts frontier admission refusals by reason.
	Rejections map[string]int64 `json:"rejections,omitempty"`

	// PagesByHost counts fetched pages per host.
	PagesByHost map[string]int64 `json:"pages_by_host,omitempty"`

	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

// Duration returns how long the run took, or has taken so far.
func (s RunStats) Duration() time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	if s.FinishedAt.IsZero() {
		return time.Since(s.StartedAt)
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// TotalFailures sums Failures.
func (s RunStats) TotalFailures() int64 {
	var n int64
	for _, v := range s.Failures {
		n += v
	}
	return n
}
