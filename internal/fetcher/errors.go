package fetcher

import (
	"errors"
	"fmt"
)

// Reason classifies why a fetch produced no page.
type Reason string

const (
	ReasonInvalidURL   Reason = "invalid_url"
	ReasonRobotsDenied Reason = "robots_denied"
	ReasonNetwork      Reason = "network"
	ReasonTimeout      Reason = "timeout"
	ReasonCanceled     Reason = "canceled"
	ReasonBadStatus    Reason = "bad_status"
	ReasonNotHTML      Reason = "not_html"
	ReasonBody         Reason = "body"

	// ReasonRedirectOffsite means a redirect led outside the allowed domains.
	ReasonRedirectOffsite Reason = "redirect_offsite"
	// ReasonRedirectSeen means a redirect led to a URL the crawl already admitted.
	ReasonRedirectSeen Reason = "redirect_seen"
)

// ErrInvalidProxyAddress is returned when the proxy is not in "host:port" form.
var ErrInvalidProxyAddress = errors.New("invalid proxy address: expected host:port")

// ErrRedirectNotAllowed is returned by the client when ClientOptions.AllowRedirect refuses a hop.
var ErrRedirectNotAllowed = errors.New("redirect target not allowed")

// Error is the failure result of Fetch.
type Error struct {
	Reason Reason
	URL    string

	// StatusCode is set for ReasonBadStatus and ReasonNotHTML.
	StatusCode int

	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Reason, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("fetch %s: %s (status %d)", e.URL, e.Reason, e.StatusCode)
	default:
		return fmt.Sprintf("fetch %s: %s", e.URL, e.Reason)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ReasonOf returns the Reason of a fetch error, or "" if err is not an *Error.
func ReasonOf(err error) Reason {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}
