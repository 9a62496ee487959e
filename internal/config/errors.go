package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoAllowedDomains is returned when the allow-list is empty.
	// Crawling without a domain boundary is refused.
	ErrNoAllowedDomains = errors.New("no allowed domains: at least one domain must be allowed")

	// ErrNoSeeds is returned by commands that need at least one start URL.
	ErrNoSeeds = errors.New("no seeds specified: provide at least one start URL")

	ErrInvalidMaxPages    = errors.New("invalid max pages: must be positive")
	ErrInvalidMaxDepth    = errors.New("invalid max depth: must be non-negative")
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidDelay is returned when the per-host delay is negative. Use 0 for no delay.
	ErrInvalidDelay = errors.New("invalid per-host delay: must be non-negative")

	ErrInvalidTimeout     = errors.New("invalid timeout: must be positive")
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")
	ErrInvalidRateLimit   = errors.New("invalid rate limit: must be non-negative")

	// ErrInvalidPattern is returned when the include or exclude pattern is not a valid regular expression.
	ErrInvalidPattern = errors.New("invalid URL filter pattern")

	ErrUnknownRobotsMode    = errors.New("unknown robots mode: use advisory or enforce")
	ErrUnknownStorageDriver = errors.New("unknown storage driver: use sqlite, postgres or redis")

	// ErrMissingDSN is returned when a network storage driver has no connection string.
	ErrMissingDSN = errors.New("storage driver requires a DSN")
)
