package politeness

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter enforces a minimum delay between the starts of two requests
// to the same host. Hosts are independent: waiting on one never delays another.
type DomainLimiter struct {
	delay time.Duration
	rps   float64

	mu    sync.Mutex
	hosts map[string]*hostSlot
}

// hostSlot serializes waiters for one host. sem is a one-slot semaphore so
// that queued waiters can still give up when their context ends.
type hostSlot struct {
	sem     chan struct{}
	last    time.Time
	limiter *rate.Limiter
}

// LimiterOption configures a DomainLimiter.
type LimiterOption func(*DomainLimiter)

// WithRateLimit adds a per-host token bucket of rps requests per second on
// top of the fixed delay. Zero or negative disables it.
func WithRateLimit(rps float64) LimiterOption {
	return func(l *DomainLimiter) {
		l.rps = rps
	}
}

// NewDomainLimiter creates a limiter. A negative delay is treated as zero.
func NewDomainLimiter(delay time.Duration, opts ...LimiterOption) *DomainLimiter {
	if delay < 0 {
		delay = 0
	}
	l := &DomainLimiter{
		delay: delay,
		hosts: make(map[string]*hostSlot),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Wait blocks until a request to host may start, then records the start
// time before releasing the host to the next waiter. Concurrent callers for
// the same host are serialized.
//
// If ctx ends while waiting, Wait returns ctx.Err() and the host's
// timestamp is left unchanged.
func (l *DomainLimiter) Wait(ctx context.Context, host string) error {
	slot := l.slot(strings.ToLower(host))

	select {
	case slot.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot.sem }()

	if !slot.last.IsZero() {
		if need := l.delay - time.Since(slot.last); need > 0 {
			timer := time.NewTimer(need)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	if slot.limiter != nil {
		if err := slot.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	slot.last = time.Now()
	return nil
}

// Hosts returns the number of hosts seen so far.
func (l *DomainLimiter) Hosts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hosts)
}

// slot returns the state for host, creating it on first use.
func (l *DomainLimiter) slot(host string) *hostSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.hosts[host]
	if !ok {
		s = &hostSlot{sem: make(chan struct{}, 1)}
		if l.rps > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(l.rps), 1)
		}
		l.hosts[host] = s
	}
	return s
}
