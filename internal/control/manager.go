package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/crawler"
	"github.com/nao1215/publiccrawler/internal/metrics"
	"github.com/nao1215/publiccrawler/internal/model"
)

var (
	// ErrAlreadyRunning is returned by Start while another run is active.
	ErrAlreadyRunning = errors.New("a crawl is already running")
	// ErrUnknownRun is returned for a handle that was never issued.
	ErrUnknownRun = errors.New("unknown crawl run")
)

// Handle identifies a run started by a Manager.
type Handle string

// Status describes one run.
type Status struct {
	RunID               string         `json:"run_id,omitempty"`
	State               model.RunState `json:"state"`
	Running             bool           `json:"running"`
	PagesFetched        int64          `json:"pages_fetched"`
	TotalItemsPersisted int64          `json:"total_items"`
	Failures            int64          `json:"failures"`
	StartedAt           time.Time      `json:"started_at,omitzero"`
	FinishedAt          time.Time      `json:"finished_at,omitzero"`
}

// run tracks one background spider.
type run struct {
	spider *crawler.Spider
	done   chan struct{}
	err    error
}

func (r *run) active() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Manager owns the crawl runs of one process.
type Manager struct {
	sink       crawler.Sink
	logger     *slog.Logger
	metrics    *metrics.Metrics
	spiderOpts []crawler.SpiderOption

	mu     sync.Mutex
	runs   map[Handle]*run
	latest Handle
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger passed to every spider.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = l
	}
}

// WithMetrics sets the metrics passed to every spider.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) {
		m.metrics = mt
	}
}

// WithSpiderOptions appends options applied to every spider, after the
// logger and metrics.
func WithSpiderOptions(opts ...crawler.SpiderOption) Option {
	return func(m *Manager) {
		m.spiderOpts = append(m.spiderOpts, opts...)
	}
}

// NewManager returns a Manager that stores pages in sink.
func NewManager(sink crawler.Sink, opts ...Option) *Manager {
	m := &Manager{
		sink:   sink,
		logger: slog.Default(),
		runs:   make(map[Handle]*run),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start builds a spider from cfg and runs it in the background. It fails
// with ErrAlreadyRunning, leaving the active run untouched, if a run has
// not finished yet.
func (m *Manager) Start(cfg *config.Config) (Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runs[m.latest]; ok && r.active() {
		return "", ErrAlreadyRunning
	}

	opts := append([]crawler.SpiderOption{
		crawler.WithLogger(m.logger),
		crawler.WithMetrics(m.metrics),
	}, m.spiderOpts...)
	spider, err := crawler.NewSpider(cfg, m.sink, opts...)
	if err != nil {
		return "", err
	}

	h := Handle(uuid.NewString())
	r := &run{spider: spider, done: make(chan struct{})}
	m.runs[h] = r
	m.latest = h

	go func() {
		defer close(r.done)
		r.err = spider.Run(context.Background())
		if r.err != nil {
			m.logger.Debug("crawl ended", "run_id", string(h), "error", r.err)
		}
	}()

	m.logger.Info("crawl run started", "run_id", string(h))
	return h, nil
}

// Stop ends the run and blocks until its workers have exited. An empty
// handle means the latest run; with no run at all it does nothing.
// Stopping a finished run is a no-op.
func (m *Manager) Stop(h Handle) error {
	r, h, err := m.lookup(h)
	if err != nil {
		return err
	}
	if r == nil {
		return nil
	}
	r.spider.Stop()
	<-r.done
	m.logger.Info("crawl run stopped", "run_id", string(h))
	return nil
}

// Wait blocks until the run finishes or ctx is done.
func (m *Manager) Wait(ctx context.Context, h Handle) error {
	r, _, err := m.lookup(h)
	if err != nil || r == nil {
		return err
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status reports on a run. An empty handle means the latest run; before
// any run it reports a stopped crawler with zero pages. TotalItemsPersisted
// always comes from the sink.
func (m *Manager) Status(ctx context.Context, h Handle) (Status, error) {
	r, h, err := m.lookup(h)
	if err != nil {
		return Status{}, err
	}

	var st Status
	if r != nil {
		stats := r.spider.Stats()
		st = Status{
			RunID:        string(h),
			State:        stats.State,
			Running:      r.active(),
			PagesFetched: stats.PagesFetched,
			Failures:     stats.TotalFailures(),
			StartedAt:    stats.StartedAt,
			FinishedAt:   stats.FinishedAt,
		}
	}

	total, err := m.sink.CountItems(ctx)
	if err != nil {
		return st, fmt.Errorf("failed to count stored items: %w", err)
	}
	st.TotalItemsPersisted = total
	return st, nil
}

// Stats returns the full counters of a run.
func (m *Manager) Stats(h Handle) (model.RunStats, error) {
	r, _, err := m.lookup(h)
	if err != nil {
		return model.RunStats{}, err
	}
	if r == nil {
		return model.RunStats{}, nil
	}
	return r.spider.Stats(), nil
}

// lookup resolves h. It returns a nil run and no error for an empty
// handle when nothing was started yet.
func (m *Manager) lookup(h Handle) (*run, Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h == "" {
		h = m.latest
		if h == "" {
			return nil, "", nil
		}
	}
	r, ok := m.runs[h]
	if !ok {
		return nil, h, ErrUnknownRun
	}
	return r, h, nil
}
