package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// defaultTimeout is used when no request timeout is configured.
const defaultTimeout = 15 * time.Second

// RobotsChecker decides whether a URL may be fetched.
type RobotsChecker interface {
	CanFetch(ctx context.Context, target *url.URL) bool
}

// HostLimiter blocks until a request to host may start.
type HostLimiter interface {
	Wait(ctx context.Context, host string) error
}

// Response is a successfully fetched HTML page.
type Response struct {
	// URL is the final URL after redirects.
	URL string

	StatusCode  int
	ContentType string

	// Body is the decoded document text.
	Body string

	Header http.Header

	// Elapsed is the time spent on the HTTP exchange, excluding politeness waits.
	Elapsed time.Duration
}

// Fetcher performs polite single-page fetches.
type Fetcher struct {
	client      *http.Client
	robots      RobotsChecker
	limiter     HostLimiter
	userAgent   string
	timeout     time.Duration
	maxBodySize int64
	logger      *slog.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRobots sets the robots checker consulted before every request.
func WithRobots(r RobotsChecker) Option {
	return func(f *Fetcher) {
		f.robots = r
	}
}

// WithLimiter sets the per-host limiter waited on before every request.
func WithLimiter(l HostLimiter) Option {
	return func(f *Fetcher) {
		f.limiter = l
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		f.timeout = d
	}
}

// WithMaxBodySize sets the maximum number of decoded body bytes read.
func WithMaxBodySize(n int64) Option {
	return func(f *Fetcher) {
		f.maxBodySize = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = l
	}
}

// New creates a Fetcher using client for all requests.
func New(client *http.Client, opts ...Option) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{
		client:      client,
		timeout:     defaultTimeout,
		maxBodySize: 5 * 1024 * 1024,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch retrieves rawURL. On success it returns the decoded page; otherwise
// it returns an *Error whose Reason tells why no page was produced.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	target, err := url.Parse(rawURL)
	if err != nil || target.Host == "" || (target.Scheme != "http" && target.Scheme != "https") {
		if err == nil {
			err = errors.New("not an absolute http(s) URL")
		}
		return nil, &Error{Reason: ReasonInvalidURL, URL: rawURL, Err: err}
	}

	if f.robots != nil && !f.robots.CanFetch(ctx, target) {
		return nil, &Error{Reason: ReasonRobotsDenied, URL: rawURL}
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, target.Host); err != nil {
			return nil, &Error{Reason: classify(ctx, err), URL: rawURL, Err: err}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &Error{Reason: ReasonInvalidURL, URL: rawURL, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &Error{Reason: classify(ctx, err), URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode != http.StatusOK {
		return nil, &Error{Reason: ReasonBadStatus, URL: rawURL, StatusCode: resp.StatusCode}
	}
	if !strings.Contains(strings.ToLower(contentType), "text/html") {
		return nil, &Error{Reason: ReasonNotHTML, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := readBody(resp, f.maxBodySize)
	if err != nil {
		reason := classify(ctx, err)
		if reason == ReasonNetwork {
			reason = ReasonBody
		}
		return nil, &Error{Reason: reason, URL: rawURL, Err: err}
	}

	final := target.String()
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}

	f.logger.Debug("fetched page", "url", final, "status", resp.StatusCode, "bytes", len(body))

	return &Response{
		URL:         final,
		StatusCode:  resp.StatusCode,
		ContentType: contentType,
		Body:        decodeText(body, contentType),
		Header:      resp.Header.Clone(),
		Elapsed:     time.Since(start),
	}, nil
}

// classify maps a transport error to a Reason. Cancellation of the parent
// context wins over a timeout of the request itself.
func classify(parent context.Context, err error) Reason {
	switch {
	case errors.Is(err, ErrRedirectNotAllowed):
		return ReasonRedirectOffsite
	case parent.Err() != nil && errors.Is(parent.Err(), context.Canceled):
		return ReasonCanceled
	case errors.Is(err, context.Canceled):
		return ReasonCanceled
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return ReasonTimeout
	}
	var ne interface{ Timeout() bool }
	if errors.As(err, &ne) && ne.Timeout() {
		return ReasonTimeout
	}
	return ReasonNetwork
}
