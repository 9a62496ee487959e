package crawler

import (
	"context"
	"sync"
	"time"
)

// Entry is a URL waiting in the frontier with its distance from a seed.
type Entry struct {
	URL   string
	Depth int
}

// Frontier is the FIFO queue of URLs still to be fetched, together with the
// set of every URL ever admitted. Enqueue is the only way in, so the
// duplicate, depth, domain and filter checks apply to seeds and discovered
// links alike.
//
// The frontier also tracks how many dequeued entries are still being
// processed. When the queue is empty and nothing is in flight, no new URL
// can appear and Dequeue reports ErrFrontierExhausted.
type Frontier struct {
	mu       sync.Mutex
	queue    []Entry
	seen     map[string]struct{}
	inFlight int
	closed   bool

	// wake is closed and replaced whenever the queue or in-flight count changes.
	wake chan struct{}

	domains  DomainSet
	filter   *Filter
	maxDepth int
}

// NewFrontier creates an empty frontier with the given admission policy.
func NewFrontier(domains DomainSet, filter *Filter, maxDepth int) *Frontier {
	return &Frontier{
		seen:     make(map[string]struct{}),
		wake:     make(chan struct{}),
		domains:  domains,
		filter:   filter,
		maxDepth: maxDepth,
	}
}

// Enqueue normalizes rawURL and admits it at the given depth. It returns the
// normalized URL, and an admission error when the URL was refused.
// A URL refused for depth, domain or filter reasons is not marked as seen.
func (f *Frontier) Enqueue(rawURL string, depth int) (string, error) {
	u := Normalize(rawURL)

	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.seen[u]; ok {
		return u, ErrSeen
	}
	if depth > f.maxDepth {
		return u, ErrTooDeep
	}
	if !f.domains.Allows(u) {
		return u, ErrDomainNotAllowed
	}
	if !f.filter.Passes(u) {
		return u, ErrFiltered
	}

	f.seen[u] = struct{}{}
	f.queue = append(f.queue, Entry{URL: u, Depth: depth})
	f.broadcast()
	return u, nil
}

// ClaimRedirect records where a fetch of requested actually ended. A final
// URL equal to the requested one is always accepted. Otherwise the final URL
// must be inside the allowed domains and not admitted before; it is then
// marked as seen so neither a queued entry nor another redirect fetches it
// again. Depth and filters are not applied to redirect targets.
func (f *Frontier) ClaimRedirect(requested, final string) (string, error) {
	u := Normalize(final)
	if u == Normalize(requested) {
		return u, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.domains.Allows(u) {
		return u, ErrDomainNotAllowed
	}
	if _, ok := f.seen[u]; ok {
		return u, ErrSeen
	}
	f.seen[u] = struct{}{}
	return u, nil
}

// Dequeue pops the oldest entry, waiting up to wait for one to arrive.
// It returns ErrDequeueTimeout when the wait elapses, ErrFrontierExhausted
// when the crawl can make no further progress, or the context error.
//
// Every successfully dequeued entry must be released with Done.
func (f *Frontier) Dequeue(ctx context.Context, wait time.Duration) (Entry, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		f.mu.Lock()
		if len(f.queue) > 0 {
			e := f.queue[0]
			f.queue[0] = Entry{}
			f.queue = f.queue[1:]
			f.inFlight++
			f.mu.Unlock()
			return e, nil
		}
		if f.closed || f.inFlight == 0 {
			f.mu.Unlock()
			return Entry{}, ErrFrontierExhausted
		}
		wake := f.wake
		f.mu.Unlock()

		select {
		case <-wake:
		case <-timer.C:
			return Entry{}, ErrDequeueTimeout
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Done marks a dequeued entry as fully processed, including the admission
// of its child links.
func (f *Frontier) Done() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inFlight > 0 {
		f.inFlight--
	}
	f.broadcast()
}

// Close drops every queued entry and makes current and future Dequeue
// calls return ErrFrontierExhausted.
func (f *Frontier) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.queue = nil
	f.broadcast()
}

// Len returns the number of queued entries.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// InFlight returns the number of dequeued entries not yet released.
func (f *Frontier) InFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inFlight
}

// SeenCount returns the number of distinct URLs ever admitted.
func (f *Frontier) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// broadcast wakes every waiter. The caller must hold f.mu.
func (f *Frontier) broadcast() {
	close(f.wake)
	f.wake = make(chan struct{})
}
