package config

import (
	"path/filepath"
	"regexp"
	"time"

	"github.com/adrg/xdg"
	"golang.org/x/net/publicsuffix"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "publiccrawler"

	// DefaultMaxPages is the maximum number of pages fetched per run.
	DefaultMaxPages = 200

	// DefaultMaxDepth is the maximum link distance from a seed.
	// Depth 0 means only the seeds are fetched.
	DefaultMaxDepth = 2

	// DefaultConcurrency is the number of workers pulling from the frontier.
	DefaultConcurrency = 6

	// DefaultPerHostDelay is the minimum spacing between two requests to the same host.
	DefaultPerHostDelay = 1 * time.Second

	// DefaultRequestTimeout bounds a single page request.
	DefaultRequestTimeout = 15 * time.Second

	// DefaultRobotsTimeout bounds the one-off robots.txt request per host.
	DefaultRobotsTimeout = 8 * time.Second

	// DefaultDequeueWait is how long an idle worker waits on the frontier
	// before re-checking the stop flag and the page limit.
	DefaultDequeueWait = 1 * time.Second

	// DefaultUserAgent identifies the crawler in HTTP requests.
	DefaultUserAgent = "PublicCrawler/1.0 (+https://github.com/nao1215/publiccrawler; polite)"

	// DefaultMaxBodySize limits the response body read per page.
	DefaultMaxBodySize = 5 * 1024 * 1024 // 5MB

	// DefaultMaxTextLength caps the stored visible text, in characters.
	DefaultMaxTextLength = 20000

	// DefaultAPIAddress is the listen address of the control API.
	DefaultAPIAddress = "127.0.0.1:8080"

	// DefaultDBFile is the SQLite file name inside the data directory.
	DefaultDBFile = "publiccrawler.db"

	// DefaultRedisKey is the list key used by the redis storage driver.
	DefaultRedisKey = "publiccrawler:items"
)

// Robots handling modes.
const (
	// RobotsAdvisory fetches and caches robots.txt but never denies a URL.
	RobotsAdvisory = "advisory"
	// RobotsEnforce denies URLs disallowed for the configured user agent.
	RobotsEnforce = "enforce"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// StorageConfig selects and configures the sink that receives fetched pages.
type StorageConfig struct {
	// Driver is one of DriverSQLite, DriverPostgres or DriverRedis.
	Driver string

	// Dir is the directory holding the SQLite database file.
	Dir string

	// DSN is the connection string for postgres or redis.
	DSN string

	// RedisKey is the list key for the redis driver.
	RedisKey string
}

// Config holds all configuration options for a crawl run and the tools around it.
// It is populated from defaults, the config file and CLI flags, then passed
// down explicitly; nothing reads it from global state.
type Config struct {
	// Seeds are the start URLs, admitted at depth 0.
	Seeds []string

	// AllowDomains restricts the crawl to these hosts and their subdomains.
	// An empty list is a configuration error.
	AllowDomains []string

	// MaxPages is the soft cap on pages fetched per run.
	MaxPages int

	// MaxDepth is the maximum link distance from any seed.
	MaxDepth int

	// Concurrency is the number of workers.
	Concurrency int

	// PerHostDelay is the minimum spacing between request starts to one host.
	PerHostDelay time.Duration

	// RequestTimeout bounds each page request.
	RequestTimeout time.Duration

	// IncludePattern, when set, must match a URL for it to be admitted.
	IncludePattern string

	// ExcludePattern, when set, rejects every URL it matches.
	ExcludePattern string

	UserAgent string

	// MaxBodySize is the number of body bytes read per page. Longer bodies are truncated.
	MaxBodySize int64

	// MaxTextLength caps the extracted text in characters.
	MaxTextLength int

	// RobotsMode is RobotsAdvisory or RobotsEnforce.
	RobotsMode string

	RobotsTimeout time.Duration

	// RateLimit is an optional per-host requests-per-second ceiling applied
	// on top of PerHostDelay. Zero disables it.
	RateLimit float64

	// ProxyAddress is an optional SOCKS5 proxy in "host:port" form.
	ProxyAddress string

	// DequeueWait is how long an idle worker blocks on the frontier.
	DequeueWait time.Duration

	Storage StorageConfig

	// Verbose enables debug logging.
	Verbose bool

	// LogFormat is LogFormatText or LogFormatJSON.
	LogFormat string

	// ConfigFilePath is the explicit config file path, if any.
	ConfigFilePath string

	// APIAddress is the listen address for the serve command.
	APIAddress string

	// APIKey protects the mutating API endpoints. Empty disables auth.
	APIKey string

	// AllowedOrigins lists the browser origins allowed to call the API.
	AllowedOrigins []string

	// ReportFile receives a Markdown summary after a CLI crawl.
	ReportFile string

	// JSONReport prints the run summary as JSON instead of text.
	JSONReport bool
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		MaxPages:       DefaultMaxPages,
		MaxDepth:       DefaultMaxDepth,
		Concurrency:    DefaultConcurrency,
		PerHostDelay:   DefaultPerHostDelay,
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodySize:    DefaultMaxBodySize,
		MaxTextLength:  DefaultMaxTextLength,
		RobotsMode:     RobotsAdvisory,
		RobotsTimeout:  DefaultRobotsTimeout,
		DequeueWait:    DefaultDequeueWait,
		Storage: StorageConfig{
			Driver:   DriverSQLite,
			Dir:      XDGDataDir(),
			RedisKey: DefaultRedisKey,
		},
		LogFormat:  LogFormatText,
		APIAddress: DefaultAPIAddress,
	}
}

// XDGDataDir returns the XDG data directory for publiccrawler.
// On Linux: ~/.local/share/publiccrawler
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for publiccrawler.
// On Linux: ~/.config/publiccrawler
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks if the configuration is valid and returns the first problem found.
func (c *Config) Validate() error {
	if len(c.AllowDomains) == 0 {
		return ErrNoAllowedDomains
	}
	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.PerHostDelay < 0 {
		return ErrInvalidDelay
	}
	if c.RequestTimeout <= 0 || c.RobotsTimeout < 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.RateLimit < 0 {
		return ErrInvalidRateLimit
	}
	switch c.RobotsMode {
	case "", RobotsAdvisory, RobotsEnforce:
	default:
		return ErrUnknownRobotsMode
	}
	for _, p := range []string{c.IncludePattern, c.ExcludePattern} {
		if p == "" {
			continue
		}
		if _, err := regexp.Compile(p); err != nil {
			return ErrInvalidPattern
		}
	}
	switch c.Storage.Driver {
	case "", DriverSQLite, DriverPostgres, DriverRedis:
	default:
		return ErrUnknownStorageDriver
	}
	if (c.Storage.Driver == DriverPostgres || c.Storage.Driver == DriverRedis) && c.Storage.DSN == "" {
		return ErrMissingDSN
	}
	return nil
}

// BroadAllowDomains returns the allow-list entries that are bare public
// suffixes such as "com" or "co.uk". Such an entry admits every site under
// that suffix, which is rarely intended.
func (c *Config) BroadAllowDomains() []string {
	var broad []string
	for _, d := range c.AllowDomains {
		suffix, icann := publicsuffix.PublicSuffix(d)
		if icann && suffix == d {
			broad = append(broad, d)
		}
	}
	return broad
}

// DBPath returns the SQLite database path for the configured data directory.
func (c *Config) DBPath() string {
	dir := c.Storage.Dir
	if dir == "" {
		dir = XDGDataDir()
	}
	return filepath.Join(dir, DefaultDBFile)
}
