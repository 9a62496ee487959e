package politeness

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

// maxRobotsSize caps the robots.txt body read per host.
const maxRobotsSize = 512 * 1024

// Robots fetch results reported to the observer.
const (
	RobotsFetched = "fetched"
	RobotsMissing = "missing"
	RobotsError   = "error"
)

// RobotsAdvisor fetches /robots.txt once per scheme and host and caches the
// text of successful responses. Every host is fetched at most once per
// advisor, including hosts whose fetch failed.
type RobotsAdvisor struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	enforce   bool
	logger    *slog.Logger
	observe   func(result string)

	mu    sync.RWMutex
	cache map[string]*robotsEntry
	group singleflight.Group
}

// robotsEntry is the cached outcome for one origin. rules is nil when
// robots.txt was missing, unreadable or unparsable.
type robotsEntry struct {
	text  string
	found bool
	rules *robotstxt.RobotsData
}

// RobotsOption configures a RobotsAdvisor.
type RobotsOption func(*RobotsAdvisor)

// WithRobotsUserAgent sets the User-Agent sent with robots requests and
// matched against robots groups in enforce mode.
func WithRobotsUserAgent(ua string) RobotsOption {
	return func(r *RobotsAdvisor) {
		r.userAgent = ua
	}
}

// WithRobotsTimeout bounds each robots.txt request.
func WithRobotsTimeout(d time.Duration) RobotsOption {
	return func(r *RobotsAdvisor) {
		r.timeout = d
	}
}

// WithEnforcement makes CanFetch deny paths disallowed for the user agent.
func WithEnforcement(enforce bool) RobotsOption {
	return func(r *RobotsAdvisor) {
		r.enforce = enforce
	}
}

// WithRobotsLogger sets the logger.
func WithRobotsLogger(logger *slog.Logger) RobotsOption {
	return func(r *RobotsAdvisor) {
		r.logger = logger
	}
}

// WithRobotsObserver registers a callback invoked once per robots fetch with
// RobotsFetched, RobotsMissing or RobotsError.
func WithRobotsObserver(fn func(result string)) RobotsOption {
	return func(r *RobotsAdvisor) {
		r.observe = fn
	}
}

// NewRobotsAdvisor creates an advisor that fetches with client.
func NewRobotsAdvisor(client *http.Client, opts ...RobotsOption) *RobotsAdvisor {
	if client == nil {
		client = http.DefaultClient
	}
	r := &RobotsAdvisor{
		client:  client,
		timeout: 8 * time.Second,
		logger:  slog.Default(),
		cache:   make(map[string]*robotsEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CanFetch reports whether target may be fetched. The first call for an
// origin fetches robots.txt; concurrent first calls share one request.
// In advisory mode, and whenever robots.txt is unavailable, it returns true.
func (r *RobotsAdvisor) CanFetch(ctx context.Context, target *url.URL) bool {
	if target == nil || target.Host == "" {
		return true
	}
	origin := strings.ToLower(target.Scheme + "://" + target.Host)

	entry, ok := r.lookup(origin)
	if !ok {
		v, _, _ := r.group.Do(origin, func() (any, error) {
			if e, ok := r.lookup(origin); ok {
				return e, nil
			}
			e := r.fetch(ctx, origin)
			r.mu.Lock()
			r.cache[origin] = e
			r.mu.Unlock()
			return e, nil
		})
		entry = v.(*robotsEntry)
	}

	if !r.enforce || entry.rules == nil {
		return true
	}
	path := target.EscapedPath()
	if path == "" {
		path = "/"
	}
	if target.RawQuery != "" {
		path += "?" + target.RawQuery
	}
	return entry.rules.TestAgent(path, r.userAgent)
}

// Cached returns the cached robots.txt text for an origin such as
// "https://example.com", and whether a successful fetch produced it.
func (r *RobotsAdvisor) Cached(origin string) (string, bool) {
	e, ok := r.lookup(strings.ToLower(origin))
	if !ok || !e.found {
		return "", false
	}
	return e.text, true
}

func (r *RobotsAdvisor) lookup(origin string) (*robotsEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.cache[origin]
	return e, ok
}

// fetch performs the single robots request for origin. It never fails;
// problems produce an empty entry.
func (r *RobotsAdvisor) fetch(ctx context.Context, origin string) *robotsEntry {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	robotsURL := origin + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		r.report(RobotsError)
		return &robotsEntry{}
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("robots.txt fetch failed", "url", robotsURL, "error", err)
		r.report(RobotsError)
		return &robotsEntry{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.logger.Debug("robots.txt not available", "url", robotsURL, "status", resp.StatusCode)
		r.report(RobotsMissing)
		return &robotsEntry{}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		r.logger.Debug("robots.txt read failed", "url", robotsURL, "error", err)
		r.report(RobotsError)
		return &robotsEntry{}
	}

	e := &robotsEntry{text: string(body), found: true}
	if rules, err := robotstxt.FromString(e.text); err == nil {
		e.rules = rules
	} else {
		r.logger.Debug("robots.txt parse failed", "url", robotsURL, "error", err)
	}
	r.report(RobotsFetched)
	return e
}

func (r *RobotsAdvisor) report(result string) {
	if r.observe != nil {
		r.observe(result)
	}
}
