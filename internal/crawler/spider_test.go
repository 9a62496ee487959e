package crawler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/metrics"
	"github.com/nao1215/publiccrawler/internal/model"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// memSink is an in-memory Sink.
type memSink struct {
	mu    sync.Mutex
	pages []*model.FetchedPage
	err   error
}

func (m *memSink) InsertItem(_ context.Context, p *model.FetchedPage) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages = append(m.pages, p)
	return nil
}

func (m *memSink) CountItems(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.pages)), nil
}

func (m *memSink) paths(t *testing.T) []string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, p := range m.pages {
		u, err := url.Parse(p.URL)
		if err != nil {
			t.Fatalf("stored invalid url %q", p.URL)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// site serves a fixed link graph and records every page request.
type site struct {
	mu    sync.Mutex
	hits  map[string]int
	times map[string][]time.Time
	links map[string][]string
}

func newSite(links map[string][]string) *site {
	return &site{hits: map[string]int{}, times: map[string][]time.Time{}, links: links}
}

func (s *site) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/robots.txt" {
		http.NotFound(w, r)
		return
	}
	s.mu.Lock()
	s.hits[r.URL.Path]++
	s.times[r.Host] = append(s.times[r.Host], time.Now())
	out, ok := s.links[r.URL.Path]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>page %s</title></head><body><p>content of %s</p>", r.URL.Path, r.URL.Path)
	for _, l := range out {
		fmt.Fprintf(&b, `<a href="%s">link</a>`, l)
	}
	b.WriteString("</body></html>")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}

func (s *site) hitCount(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func testConfig(base string) *config.Config {
	cfg := config.NewConfig()
	cfg.Seeds = []string{base + "/"}
	cfg.AllowDomains = []string{"127.0.0.1"}
	cfg.PerHostDelay = 0
	cfg.RequestTimeout = 5 * time.Second
	cfg.Concurrency = 3
	return cfg
}

func runSpider(t *testing.T, cfg *config.Config, sink Sink, opts ...SpiderOption) *Spider {
	t.Helper()
	s, err := NewSpider(cfg, sink, opts...)
	if err != nil {
		t.Fatalf("NewSpider: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(20 * time.Second):
		s.Stop()
		t.Fatal("crawl did not finish")
	}
	return s
}

func TestSpiderCrawl(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{
		"/":  {"/a", "/b", "http://other.invalid/x", "mailto:me@example.com"},
		"/a": {"/c", "/"},
		"/b": {"/a/", "/a#frag"},
		"/c": {"/d"},
		"/d": {},
	})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	sink := &memSink{}
	m := metrics.New()
	s := runSpider(t, testConfig(srv.URL), sink, WithMetrics(m))

	got := sink.paths(t)
	want := []string{"/", "/a", "/b", "/c"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("persisted %v, want %v", got, want)
	}
	for _, p := range want {
		if n := st.hitCount(p); n != 1 {
			t.Errorf("%s fetched %d times, want 1", p, n)
		}
	}
	if st.hitCount("/d") != 0 {
		t.Error("/d is beyond max depth and must not be fetched")
	}

	stats := s.Stats()
	if stats.State != model.RunStopped {
		t.Errorf("expected stopped state, got %v", stats.State)
	}
	if stats.PagesFetched != 4 {
		t.Errorf("expected 4 pages, got %d", stats.PagesFetched)
	}
	if stats.Rejections["domain"] != 1 {
		t.Errorf("expected one domain rejection, got %v", stats.Rejections)
	}
	if stats.Rejections["too_deep"] != 0 {
		t.Errorf("links at max depth must not even be offered, got %v", stats.Rejections)
	}
	if got := testutil.ToFloat64(m.PagesFetched); got != 4 {
		t.Errorf("metrics counted %v pages", got)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, p := range sink.pages {
		if !strings.HasPrefix(p.Title, "page ") || p.Hash == "" || p.StatusCode != http.StatusOK {
			t.Errorf("unexpected stored page %+v", p)
		}
		if strings.Contains(p.Text, "page /") {
			t.Errorf("title leaked into text: %q", p.Text)
		}
	}
}

func TestSpiderMaxDepthZero(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{"/": {"/a", "/b"}, "/a": {}, "/b": {}})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.MaxDepth = 0
	sink := &memSink{}
	s := runSpider(t, cfg, sink)

	if got := sink.paths(t); len(got) != 1 || got[0] != "/" {
		t.Errorf("expected only the seed, got %v", got)
	}
	if stats := s.Stats(); stats.Enqueued != 1 {
		t.Errorf("expected only the seed enqueued, got %d", stats.Enqueued)
	}
}

func TestSpiderNonHTMLIsNotCounted(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	t.Cleanup(srv.Close)

	sink := &memSink{}
	s := runSpider(t, testConfig(srv.URL), sink)

	stats := s.Stats()
	if stats.PagesFetched != 0 || len(sink.pages) != 0 {
		t.Errorf("pdf must not be persisted or counted: %+v", stats)
	}
	if stats.Failures["not_html"] != 1 {
		t.Errorf("expected one not_html failure, got %v", stats.Failures)
	}
}

func TestSpiderDuplicateSeeds(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{"/x": {}})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Seeds = []string{srv.URL + "/x", srv.URL + "/x/", srv.URL + "/x#top"}
	runSpider(t, cfg, &memSink{})

	if n := st.hitCount("/x"); n != 1 {
		t.Errorf("expected one fetch, got %d", n)
	}
}

func TestSpiderStopBeforeAnyFetchCompletes(t *testing.T) {
	t.Parallel()

	arrived := make(chan struct{}, 16)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		arrived <- struct{}{}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>late</p>"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})

	cfg := testConfig(srv.URL)
	cfg.Seeds = []string{srv.URL + "/1", srv.URL + "/2", srv.URL + "/3"}
	sink := &memSink{}
	s, err := NewSpider(cfg, sink)
	if err != nil {
		t.Fatalf("NewSpider: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background()) }()

	select {
	case <-arrived:
	case <-time.After(5 * time.Second):
		t.Fatal("no request reached the server")
	}

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}

	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	stats := s.Stats()
	if stats.PagesFetched != 0 || len(sink.pages) != 0 {
		t.Errorf("expected nothing fetched, got %+v", stats)
	}
	if stats.State != model.RunStopped || stats.InFlight != 0 {
		t.Errorf("expected a fully stopped run, got %+v", stats)
	}

	s.Stop()
}

func TestSpiderPageLimit(t *testing.T) {
	t.Parallel()

	// Every page links to ten new pages.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		for i := range 10 {
			fmt.Fprintf(&b, `<a href="%s/%d">x</a>`, strings.TrimSuffix(r.URL.Path, "/"), i)
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(b.String()))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.MaxPages = 5
	cfg.MaxDepth = 5
	cfg.Concurrency = 4
	sink := &memSink{}
	s := runSpider(t, cfg, sink)

	stats := s.Stats()
	if stats.PagesFetched < 5 || stats.PagesFetched > int64(cfg.MaxPages+cfg.Concurrency-1) {
		t.Errorf("pages fetched %d outside [5, %d]", stats.PagesFetched, cfg.MaxPages+cfg.Concurrency-1)
	}
	if n, _ := sink.CountItems(context.Background()); n != stats.PagesFetched {
		t.Errorf("sink holds %d pages, counter says %d", n, stats.PagesFetched)
	}
}

func TestSpiderPoliteness(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{
		"/":  {"/a", "/b", "/c", "/d"},
		"/a": {}, "/b": {}, "/c": {}, "/d": {},
	})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	const delay = 100 * time.Millisecond
	cfg := testConfig(srv.URL)
	cfg.PerHostDelay = delay
	cfg.Concurrency = 4
	runSpider(t, cfg, &memSink{})

	st.mu.Lock()
	defer st.mu.Unlock()
	for host, times := range st.times {
		if len(times) != 5 {
			t.Errorf("expected 5 requests to %s, got %d", host, len(times))
		}
		sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
		for i := 1; i < len(times); i++ {
			if gap := times[i].Sub(times[i-1]); gap < delay-20*time.Millisecond {
				t.Errorf("gap %d to %s was %v, want >= %v", i, host, gap, delay)
			}
		}
	}
}

func TestSpiderFilters(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{
		"/":             {"/docs/a", "/docs/private", "/blog/x"},
		"/docs/a":       {},
		"/docs/private": {},
		"/blog/x":       {},
	})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Seeds = []string{srv.URL + "/?start=1"}
	cfg.IncludePattern = `/docs/|start=`
	cfg.ExcludePattern = `private`
	sink := &memSink{}
	s := runSpider(t, cfg, sink)

	if got := sink.paths(t); strings.Join(got, ",") != "/,/docs/a" {
		t.Errorf("unexpected pages %v", got)
	}
	if s.Stats().Rejections["filtered"] != 2 {
		t.Errorf("expected 2 filtered links, got %v", s.Stats().Rejections)
	}
}

func TestSpiderRedirectUsesFinalURL(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{"/new/": {"child"}, "/new/child": {}})
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new/", http.StatusMovedPermanently)
	})
	mux.Handle("/", st)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Seeds = []string{srv.URL + "/old"}
	sink := &memSink{}
	runSpider(t, cfg, sink)

	if got := sink.paths(t); strings.Join(got, ",") != "/new/,/new/child" {
		t.Errorf("unexpected pages %v", got)
	}
}

func TestSpiderRedirectOffsite(t *testing.T) {
	t.Parallel()

	var offsiteHits atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/robots.txt":
			http.NotFound(w, r)
		case r.Host == "offsite.invalid":
			offsiteHits.Add(1)
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><title>offsite</title></html>"))
		default:
			http.Redirect(w, r, "http://offsite.invalid/landing", http.StatusFound)
		}
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	check := func(t *testing.T, s *Spider, sink *memSink) {
		t.Helper()
		if n, _ := sink.CountItems(context.Background()); n != 0 {
			t.Errorf("expected nothing persisted, got %d pages", n)
		}
		stats := s.Stats()
		if stats.PagesFetched != 0 {
			t.Errorf("expected 0 pages fetched, got %d", stats.PagesFetched)
		}
		if stats.Failures["redirect_offsite"] != 1 {
			t.Errorf("expected one redirect_offsite failure, got %v", stats.Failures)
		}
	}

	t.Run("default client refuses the hop", func(t *testing.T) {
		t.Parallel()
		sink := &memSink{}
		s := runSpider(t, testConfig(srv.URL), sink)
		check(t, s, sink)
	})

	t.Run("followed hop is dropped", func(t *testing.T) {
		t.Parallel()
		// Every connection goes to the test server, so the offsite page is served.
		client := &http.Client{Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, srv.Listener.Addr().String())
			},
		}}
		sink := &memSink{}
		s := runSpider(t, testConfig(srv.URL), sink, WithHTTPClient(client))
		check(t, s, sink)
		if offsiteHits.Load() == 0 {
			t.Error("expected the offsite page to be requested")
		}
	})
}

func TestSpiderRedirectToSeenURL(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{"/": {"/a", "/b"}, "/a": {}})
	mux := http.NewServeMux()
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/a", http.StatusFound)
	})
	mux.Handle("/", st)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	cfg := testConfig(srv.URL)
	cfg.Concurrency = 1
	sink := &memSink{}
	s := runSpider(t, cfg, sink)

	if got := sink.paths(t); strings.Join(got, ",") != "/,/a" {
		t.Errorf("expected /a persisted once, got %v", got)
	}
	if s.Stats().Failures["redirect_seen"] != 1 {
		t.Errorf("expected one redirect_seen failure, got %v", s.Stats().Failures)
	}
}

func TestSpiderSinkFailureDoesNotAbort(t *testing.T) {
	t.Parallel()

	st := newSite(map[string][]string{"/": {"/a"}, "/a": {}})
	srv := httptest.NewServer(st)
	t.Cleanup(srv.Close)

	s := runSpider(t, testConfig(srv.URL), &memSink{err: errors.New("disk full")})

	stats := s.Stats()
	if stats.PagesFetched != 2 || stats.SinkErrors != 2 {
		t.Errorf("expected 2 pages and 2 sink errors, got %+v", stats)
	}
}

func TestNewSpiderErrors(t *testing.T) {
	t.Parallel()

	t.Run("empty allow-list", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{" "}
		if _, err := NewSpider(cfg, &memSink{}); !errors.Is(err, ErrNoAllowedDomains) {
			t.Errorf("expected ErrNoAllowedDomains, got %v", err)
		}
	})

	t.Run("nil sink", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		if _, err := NewSpider(cfg, nil); !errors.Is(err, ErrNilSink) {
			t.Errorf("expected ErrNilSink, got %v", err)
		}
	})

	t.Run("invalid pattern", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		cfg.ExcludePattern = "("
		if _, err := NewSpider(cfg, &memSink{}); !errors.Is(err, config.ErrInvalidPattern) {
			t.Errorf("expected ErrInvalidPattern, got %v", err)
		}
	})

	t.Run("invalid proxy", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		cfg.ProxyAddress = "nope"
		if _, err := NewSpider(cfg, &memSink{}); err == nil {
			t.Error("expected proxy error")
		}
	})
}

func TestSpiderLifecycle(t *testing.T) {
	t.Parallel()

	t.Run("stop before run", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		s, err := NewSpider(cfg, &memSink{})
		if err != nil {
			t.Fatalf("NewSpider: %v", err)
		}
		s.Stop()
		s.Stop()
		if s.State() != model.RunStopped {
			t.Errorf("expected stopped, got %v", s.State())
		}
		if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
	})

	t.Run("run twice", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		s, err := NewSpider(cfg, &memSink{})
		if err != nil {
			t.Fatalf("NewSpider: %v", err)
		}
		if err := s.Run(context.Background()); err != nil {
			t.Fatalf("first run: %v", err)
		}
		if err := s.Run(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
		select {
		case <-s.Done():
		default:
			t.Error("Done must be closed after Run returns")
		}
	})

	t.Run("no seeds finishes immediately", func(t *testing.T) {
		t.Parallel()
		cfg := config.NewConfig()
		cfg.AllowDomains = []string{"example.com"}
		s, _ := NewSpider(cfg, &memSink{})
		start := time.Now()
		_ = s.Run(context.Background())
		if time.Since(start) > time.Second {
			t.Error("empty crawl took too long")
		}
		if s.Stats().PagesFetched != 0 {
			t.Error("expected no pages")
		}
	})
}
