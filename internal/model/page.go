package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// FetchedPage is the record handed to a sink for every successfully fetched page.
// The crawler keeps no reference to it after the handoff.
type FetchedPage struct {
	// URL is the final URL after redirects.
	URL string `json:"url"`

	// FetchedAt is the time the page was received.
	FetchedAt time.Time `json:"fetched_at"`

	// StatusCode is the HTTP status code; always 200 for stored pages.
	StatusCode int `json:"status_code"`

	// ContentType is the Content-Type response header.
	ContentType string `json:"content_type"`

	// Title is the first <title> of the document, trimmed and capped.
	// Empty when the page has no title.
	Title string `json:"title,omitempty"`

	// Text is the visible text with whitespace collapsed.
	Text string `json:"text"`

	// Depth is the link distance from the seed that led here.
	Depth int `json:"depth"`

	// Hash is the SHA-256 of Text, used to spot duplicate content.
	Hash string `json:"hash"`

	// Metadata holds document metadata (description, canonical, og:*)
	// and a few response headers.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MaxTitleLength is the maximum title length in characters.
const MaxTitleLength = 300

// ComputeHash calculates and sets the SHA-256 hash of the page text.
func (p *FetchedPage) ComputeHash() {
	if p.Text == "" {
		p.Hash = ""
		return
	}
	sum := sha256.Sum256([]byte(p.Text))
	p.Hash = hex.EncodeToString(sum[:])
}

// Truncate returns s cut to at most limit characters (runes).
// A non-positive limit returns s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
