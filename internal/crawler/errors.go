package crawler

import "errors"

// Frontier admission errors. Enqueue returns one of these when a URL is refused.
var (
	ErrSeen             = errors.New("url already seen")
	ErrTooDeep          = errors.New("url exceeds max depth")
	ErrDomainNotAllowed = errors.New("url host not in allowed domains")
	ErrFiltered         = errors.New("url rejected by include/exclude filter")
)

// Frontier retrieval errors.
var (
	// ErrFrontierExhausted means the queue is empty and no URL is being
	// processed, so nothing can be added any more.
	ErrFrontierExhausted = errors.New("frontier exhausted")

	// ErrDequeueTimeout means nothing arrived within the wait period.
	ErrDequeueTimeout = errors.New("dequeue timed out")
)

// Orchestrator errors.
var (
	ErrNoAllowedDomains = errors.New("at least one allowed domain is required")
	ErrNilSink          = errors.New("sink must not be nil")
	ErrAlreadyStarted   = errors.New("spider already started")
)

// rejectionReason maps an admission error to a short metric label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrSeen):
		return "seen"
	case errors.Is(err, ErrTooDeep):
		return "too_deep"
	case errors.Is(err, ErrDomainNotAllowed):
		return "domain"
	case errors.Is(err, ErrFiltered):
		return "filtered"
	default:
		return "other"
	}
}
