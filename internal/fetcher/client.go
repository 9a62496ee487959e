package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/net/proxy"
)

// maxRedirects bounds redirect chains.
const maxRedirects = 10

// ClientOptions configures the HTTP client used for page and robots requests.
type ClientOptions struct {
	// Timeout is the overall client timeout. Per-request timeouts are applied
	// separately by the fetcher through the request context.
	Timeout time.Duration

	// ProxyAddress routes all connections through a SOCKS5 proxy when set.
	ProxyAddress string

	// AllowRedirect, when set, is asked before every redirect hop. A refused
	// target is never requested and the fetch fails with ErrRedirectNotAllowed.
	AllowRedirect func(*url.URL) bool
}

// NewHTTPClient creates the shared HTTP client. Transparent compression is
// disabled because the fetcher negotiates and decodes encodings itself.
func NewHTTPClient(opts ClientOptions) (*http.Client, error) {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}

	if opts.ProxyAddress != "" {
		if !isValidProxyAddress(opts.ProxyAddress) {
			return nil, ErrInvalidProxyAddress
		}
		socks, err := proxy.SOCKS5("tcp", opts.ProxyAddress, nil, dialer)
		if err != nil {
			return nil, fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
		}
		transport.DialContext = contextDialer(socks)
	}

	return &http.Client{
		Transport: transport,
		Timeout:   opts.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			if opts.AllowRedirect != nil && !opts.AllowRedirect(req.URL) {
				return fmt.Errorf("%w: %s", ErrRedirectNotAllowed, req.URL.Redacted())
			}
			return nil
		},
	}, nil
}

// contextDialer adapts a proxy.Dialer to the DialContext signature. The
// SOCKS5 dialer from x/net implements proxy.ContextDialer; other dialers are
// raced against the context.
func contextDialer(d proxy.Dialer) func(ctx context.Context, network, addr string) (net.Conn, error) {
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		type dialResult struct {
			conn net.Conn
			err  error
		}
		ch := make(chan dialResult, 1)
		go func() {
			conn, err := d.Dial(network, addr)
			ch <- dialResult{conn, err}
		}()
		select {
		case r := <-ch:
			return r.conn, r.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// isValidProxyAddress checks for a non-empty host and a port in 1..65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}
