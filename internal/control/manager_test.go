package control

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/model"
)

type memSink struct {
	mu    sync.Mutex
	pages []*model.FetchedPage
}

func (m *memSink) InsertItem(_ context.Context, p *model.FetchedPage) error {
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

// newSlowServer serves pages that block until the request is canceled or
// the test ends.
func newSlowServer(t *testing.T) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		select {
		case <-release:
		case <-r.Context().Done():
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<p>slow</p>"))
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func newFastServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<title>home</title><a href="/a">a</a>`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(base string) *config.Config {
	cfg := config.NewConfig()
	cfg.Seeds = []string{base + "/"}
	cfg.AllowDomains = []string{"127.0.0.1"}
	cfg.PerHostDelay = 0
	cfg.MaxDepth = 1
	return cfg
}

func TestStatusBeforeAnyRun(t *testing.T) {
	t.Parallel()

	m := NewManager(&memSink{})
	st, err := m.Status(context.Background(), "")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running || st.PagesFetched != 0 || st.RunID != "" {
		t.Errorf("unexpected status %+v", st)
	}
	if err := m.Stop(""); err != nil {
		t.Errorf("Stop with no run: %v", err)
	}
}

func TestStartRunsToCompletion(t *testing.T) {
	t.Parallel()

	srv := newFastServer(t)
	sink := &memSink{}
	m := NewManager(sink)

	h, err := m.Start(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h == "" {
		t.Fatal("expected a handle")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.Wait(ctx, h); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	st, err := m.Status(context.Background(), h)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Running || st.State != model.RunStopped {
		t.Errorf("expected finished run, got %+v", st)
	}
	if st.PagesFetched != 2 || st.TotalItemsPersisted != 2 {
		t.Errorf("expected 2 pages, got %+v", st)
	}
	if st.RunID != string(h) || st.StartedAt.IsZero() || st.FinishedAt.IsZero() {
		t.Errorf("missing run identity or times: %+v", st)
	}

	latest, err := m.Status(context.Background(), "")
	if err != nil || latest.RunID != string(h) {
		t.Errorf("empty handle should resolve to latest run, got %+v, %v", latest, err)
	}

	// A finished run does not block a new one.
	h2, err := m.Start(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if h2 == h {
		t.Error("handles must be unique")
	}
	if err := m.Stop(h2); err != nil {
		t.Errorf("Stop: %v", err)
	}
}

func TestStartWhileRunning(t *testing.T) {
	t.Parallel()

	srv := newSlowServer(t)
	m := NewManager(&memSink{})

	h, err := m.Start(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := m.Start(testConfig(srv.URL)); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}

	st, err := m.Status(context.Background(), h)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !st.Running {
		t.Errorf("first run must be unaffected, got %+v", st)
	}

	if err := m.Stop(h); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := m.Stop(h); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	st, _ = m.Status(context.Background(), h)
	if st.Running || st.State != model.RunStopped || st.PagesFetched != 0 {
		t.Errorf("expected stopped run with no pages, got %+v", st)
	}
}

func TestUnknownHandle(t *testing.T) {
	t.Parallel()

	m := NewManager(&memSink{})
	if err := m.Stop("nope"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("Stop: expected ErrUnknownRun, got %v", err)
	}
	if _, err := m.Status(context.Background(), "nope"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("Status: expected ErrUnknownRun, got %v", err)
	}
	if _, err := m.Stats("nope"); !errors.Is(err, ErrUnknownRun) {
		t.Errorf("Stats: expected ErrUnknownRun, got %v", err)
	}
}

func TestStartInvalidConfig(t *testing.T) {
	t.Parallel()

	m := NewManager(&memSink{})
	cfg := config.NewConfig()
	if _, err := m.Start(cfg); err == nil {
		t.Fatal("expected error for empty allow-list")
	}
	st, err := m.Status(context.Background(), "")
	if err != nil || st.RunID != "" {
		t.Errorf("failed start must not record a run: %+v, %v", st, err)
	}
}
