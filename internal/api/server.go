package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/control"
	"github.com/nao1215/publiccrawler/internal/database"
	"github.com/nao1215/publiccrawler/internal/metrics"
	"github.com/nao1215/publiccrawler/internal/model"
)

// ItemStore is the read side of the page store.
type ItemStore interface {
	CountItems(ctx context.Context) (int64, error)
	ListItems(ctx context.Context, opts database.ListOptions) ([]*model.FetchedPage, error)
	ExportNDJSON(ctx context.Context, w io.Writer) error
}

// Server holds the dependencies of the HTTP API.
type Server struct {
	base       *config.Config
	manager    *control.Manager
	store      ItemStore
	metrics    *metrics.Metrics
	logger     *slog.Logger
	router     http.Handler
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the metrics served on /metrics. It should be the same
// instance the manager records to.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer builds the API. cfg supplies the listen address, the API key,
// the allowed origins and the defaults for crawls started over HTTP.
func NewServer(cfg *config.Config, manager *control.Manager, store ItemStore, opts ...Option) *Server {
	s := &Server{
		base:    cfg,
		manager: manager,
		store:   store,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	s.router = s.setupRouter()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on l until Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("api listening", "addr", l.Addr().String())
	if err := s.httpServer.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ListenAndServe listens on the configured address.
func (s *Server) ListenAndServe() error {
	l, err := net.Listen("tcp", s.base.APIAddress)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
