package crawler

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nao1215/publiccrawler/internal/model"
)

// runState is the per-run context shared by the workers: lifecycle state,
// the stop flag and the counters. Nothing in it is global.
type runState struct {
	mu         sync.RWMutex
	state      model.RunState
	startedAt  time.Time
	finishedAt time.Time
	cancel     context.CancelFunc
	done       chan struct{}

	stop         atomic.Bool
	pagesFetched atomic.Int64
	enqueued     atomic.Int64
	sinkErrors   atomic.Int64

	countersMu  sync.Mutex
	failures    map[string]int64
	rejections  map[string]int64
	pagesByHost map[string]int64
}

func newRunState() *runState {
	return &runState{
		done:        make(chan struct{}),
		failures:    make(map[string]int64),
		rejections:  make(map[string]int64),
		pagesByHost: make(map[string]int64),
	}
}

// begin moves NotStarted to Running. It reports false if the run was
// already started or stopped.
func (r *runState) begin(cancel context.CancelFunc) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != model.RunNotStarted {
		return false
	}
	r.state = model.RunRunning
	r.startedAt = time.Now()
	r.cancel = cancel
	return true
}

// requestStop raises the stop flag and cancels in-flight work. A run that
// never started goes straight to Stopped.
func (r *runState) requestStop() {
	r.stop.Store(true)

	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.state {
	case model.RunNotStarted:
		r.state = model.RunStopped
		r.finishedAt = time.Now()
		close(r.done)
	case model.RunRunning:
		r.state = model.RunStopping
		if r.cancel != nil {
			r.cancel()
		}
	}
}

// finish moves the run to Stopped and releases waiters.
func (r *runState) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = model.RunStopped
	r.finishedAt = time.Now()
	close(r.done)
}

func (r *runState) stopped() bool {
	return r.stop.Load()
}

func (r *runState) current() model.RunState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

func (r *runState) addFailure(reason string) {
	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	r.failures[reason]++
}

func (r *runState) addRejection(reason string) {
	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	r.rejections[reason]++
}

// addPage counts a fetched page and returns the new total.
func (r *runState) addPage(host string) int64 {
	r.countersMu.Lock()
	r.pagesByHost[host]++
	r.countersMu.Unlock()
	return r.pagesFetched.Add(1)
}

// snapshot copies the counters into a RunStats.
func (r *runState) snapshot() model.RunStats {
	r.mu.RLock()
	stats := model.RunStats{
		State:      r.state,
		StartedAt:  r.startedAt,
		FinishedAt: r.finishedAt,
	}
	r.mu.RUnlock()

	stats.PagesFetched = r.pagesFetched.Load()
	stats.Enqueued = r.enqueued.Load()
	stats.SinkErrors = r.sinkErrors.Load()

	r.countersMu.Lock()
	stats.Failures = maps.Clone(r.failures)
	stats.Rejections = maps.Clone(r.rejections)
	stats.PagesByHost = maps.Clone(r.pagesByHost)
	r.countersMu.Unlock()
	return stats
}
