package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/fetcher"
	"github.com/nao1215/publiccrawler/internal/metrics"
	"github.com/nao1215/publiccrawler/internal/model"
	"github.com/nao1215/publiccrawler/internal/politeness"
)

// Fetcher retrieves one page. *fetcher.Fetcher is the production implementation.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*fetcher.Response, error)
}

// metadataHeaders are response headers copied into page metadata.
var metadataHeaders = []string{"Server", "Last-Modified", "Content-Language"}

// Spider runs a single crawl. It is not reusable: once stopped, a new
// Spider is needed for another run.
type Spider struct {
	seeds         []string
	maxPages      int64
	maxDepth      int
	concurrency   int
	dequeueWait   time.Duration
	maxTextLength int

	frontier *Frontier
	fetcher  Fetcher
	sink     Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	client   *http.Client

	state *runState
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithFetcher replaces the HTTP fetcher built from the configuration.
func WithFetcher(f Fetcher) SpiderOption {
	return func(s *Spider) {
		s.fetcher = f
	}
}

// WithHTTPClient sets the client used by the default fetcher and robots advisor.
func WithHTTPClient(c *http.Client) SpiderOption {
	return func(s *Spider) {
		s.client = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = l
	}
}

// WithMetrics records crawl activity on m.
func WithMetrics(m *metrics.Metrics) SpiderOption {
	return func(s *Spider) {
		s.metrics = m
	}
}

// NewSpider validates cfg and prepares a run. It fails with
// ErrNoAllowedDomains when the allow-list is empty, before any network
// activity happens.
func NewSpider(cfg *config.Config, sink Sink, opts ...SpiderOption) (*Spider, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	domains := NewDomainSet(cfg.AllowDomains)
	if len(domains) == 0 {
		return nil, ErrNoAllowedDomains
	}
	if sink == nil {
		return nil, ErrNilSink
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	filter, err := NewFilter(cfg.IncludePattern, cfg.ExcludePattern)
	if err != nil {
		return nil, fmt.Errorf("invalid URL filter: %w", err)
	}

	s := &Spider{
		seeds:         append([]string(nil), cfg.Seeds...),
		maxPages:      int64(cfg.MaxPages),
		maxDepth:      cfg.MaxDepth,
		concurrency:   cfg.Concurrency,
		dequeueWait:   cfg.DequeueWait,
		maxTextLength: cfg.MaxTextLength,
		frontier:      NewFrontier(domains, filter, cfg.MaxDepth),
		sink:          sink,
		logger:        slog.Default(),
		state:         newRunState(),
	}
	if s.dequeueWait <= 0 {
		s.dequeueWait = config.DefaultDequeueWait
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.fetcher == nil {
		if s.fetcher, err = s.newFetcher(cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// newFetcher wires the HTTP client, robots advisor and per-host limiter.
func (s *Spider) newFetcher(cfg *config.Config) (*fetcher.Fetcher, error) {
	client := s.client
	if client == nil {
		var err error
		client, err = fetcher.NewHTTPClient(fetcher.ClientOptions{
			Timeout:      cfg.RequestTimeout + cfg.RobotsTimeout,
			ProxyAddress: cfg.ProxyAddress,
			AllowRedirect: func(u *url.URL) bool {
				return s.frontier.domains.AllowsHost(u.Hostname())
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP client: %w", err)
		}
	}

	robots := politeness.NewRobotsAdvisor(client,
		politeness.WithRobotsUserAgent(cfg.UserAgent),
		politeness.WithRobotsTimeout(cfg.RobotsTimeout),
		politeness.WithEnforcement(cfg.RobotsMode == config.RobotsEnforce),
		politeness.WithRobotsLogger(s.logger),
		politeness.WithRobotsObserver(s.metrics.RobotsFetched),
	)
	limiter := politeness.NewDomainLimiter(cfg.PerHostDelay, politeness.WithRateLimit(cfg.RateLimit))

	return fetcher.New(client,
		fetcher.WithRobots(robots),
		fetcher.WithLimiter(limiter),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithTimeout(cfg.RequestTimeout),
		fetcher.WithMaxBodySize(cfg.MaxBodySize),
		fetcher.WithLogger(s.logger),
	), nil
}

// Run executes the crawl and blocks until every worker has exited. It
// returns ErrAlreadyStarted if the spider was started or stopped before.
// Per-page failures never end the run.
func (s *Spider) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.state.begin(cancel) {
		return ErrAlreadyStarted
	}
	s.metrics.RunStarted()
	s.logger.Info("crawl started",
		"seeds", len(s.seeds),
		"max_pages", s.maxPages,
		"max_depth", s.maxDepth,
		"concurrency", s.concurrency,
	)

	for _, seed := range s.seeds {
		s.admit(seed, 0)
	}

	var g errgroup.Group
	for i := 0; i < s.concurrency; i++ {
		g.Go(func() error {
			s.worker(runCtx)
			return nil
		})
	}
	_ = g.Wait()

	s.frontier.Close()
	s.state.finish()

	stats := s.state.snapshot()
	s.logger.Info("crawl finished",
		"pages_fetched", stats.PagesFetched,
		"failures", stats.TotalFailures(),
		"duration", stats.Duration().Round(time.Millisecond),
	)
	return nil
}

// Stop asks the run to end and blocks until every worker has exited.
// In-flight requests are canceled and their results discarded. Stop is
// idempotent and may be called before, during or after Run.
func (s *Spider) Stop() {
	s.state.requestStop()
	s.frontier.Close()
	<-s.state.done
}

// Done is closed when the run has fully stopped.
func (s *Spider) Done() <-chan struct{} {
	return s.state.done
}

// State returns the current lifecycle state.
func (s *Spider) State() model.RunState {
	return s.state.current()
}

// Stats returns a snapshot of the run counters.
func (s *Spider) Stats() model.RunStats {
	stats := s.state.snapshot()
	stats.Queued = s.frontier.Len()
	stats.InFlight = s.frontier.InFlight()
	return stats
}

// worker processes frontier entries until the run is stopped, the page
// limit is reached or the frontier is exhausted.
func (s *Spider) worker(ctx context.Context) {
	for {
		if s.state.stopped() || s.state.pagesFetched.Load() >= s.maxPages {
			return
		}

		entry, err := s.frontier.Dequeue(ctx, s.dequeueWait)
		if errors.Is(err, ErrDequeueTimeout) {
			continue
		}
		if err != nil {
			return
		}

		s.process(ctx, entry)
		s.frontier.Done()
	}
}

// process fetches one entry, persists the page and admits its links.
func (s *Spider) process(ctx context.Context, entry Entry) {
	resp, err := s.fetcher.Fetch(ctx, entry.URL)
	if err != nil {
		reason := string(fetcher.ReasonOf(err))
		if reason == "" {
			reason = "error"
		}
		s.fail(entry.URL, reason, err)
		return
	}
	if s.state.stopped() {
		return
	}
	if resp.URL != entry.URL {
		if _, err := s.frontier.ClaimRedirect(entry.URL, resp.URL); err != nil {
			reason := fetcher.ReasonRedirectSeen
			if errors.Is(err, ErrDomainNotAllowed) {
				reason = fetcher.ReasonRedirectOffsite
			}
			s.fail(entry.URL, string(reason), fmt.Errorf("redirected to %s: %w", resp.URL, err))
			return
		}
	}

	parser, err := NewParser(resp.URL)
	if err != nil {
		s.state.addFailure(string(fetcher.ReasonInvalidURL))
		return
	}
	parsed := parser.Parse(resp.Body)

	page := &model.FetchedPage{
		URL:         resp.URL,
		FetchedAt:   time.Now().UTC(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Title:       parsed.Title,
		Text:        model.Truncate(parsed.Text, s.maxTextLength),
		Depth:       entry.Depth,
		Metadata:    withHeaders(parsed.Metadata, resp.Header),
	}
	page.ComputeHash()

	// The sink write is not canceled by Stop so that a fetched page is never half-written.
	if err := s.sink.InsertItem(context.WithoutCancel(ctx), page); err != nil {
		s.state.sinkErrors.Add(1)
		s.metrics.SinkFailed()
		s.logger.Error("failed to persist page", "url", page.URL, "error", err)
	}

	total := s.state.addPage(hostOf(page.URL))
	s.metrics.PageFetched(resp.Elapsed)
	if total >= s.maxPages {
		s.frontier.Close()
	}

	next := entry.Depth + 1
	if next > s.maxDepth {
		return
	}
	for _, link := range parsed.Links {
		s.admit(link, next)
	}
}

func (s *Spider) fail(rawURL, reason string, err error) {
	s.state.addFailure(reason)
	s.metrics.FetchFailed(reason)
	s.logger.Debug("fetch failed", "url", rawURL, "reason", reason, "error", err)
}

// admit enqueues rawURL and records the outcome.
func (s *Spider) admit(rawURL string, depth int) {
	u, err := s.frontier.Enqueue(rawURL, depth)
	if err != nil {
		reason := rejectionReason(err)
		s.state.addRejection(reason)
		s.metrics.Rejected(reason)
		if reason != "seen" {
			s.logger.Debug("url rejected", "url", u, "depth", depth, "reason", reason)
		}
		return
	}
	s.state.enqueued.Add(1)
}

func withHeaders(meta map[string]string, h http.Header) map[string]string {
	for _, name := range metadataHeaders {
		v := h.Get(name)
		if v == "" {
			continue
		}
		if meta == nil {
			meta = make(map[string]string)
		}
		meta["header:"+name] = v
	}
	return meta
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
