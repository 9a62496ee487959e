package crawler

import (
	"net/url"
	"regexp"
	"strings"
)

// Normalize returns the canonical form of a URL used for deduplication.
// It strips the fragment, prefixes "http://" when the URL has no scheme,
// and drops trailing slashes unless the URL carries a query string.
//
// Normalize is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(raw string) string {
	s, _, _ := strings.Cut(raw, "#")

	sep := schemeSeparator(s)
	if sep < 0 {
		if strings.HasPrefix(s, "//") {
			s = "http:" + s
		} else {
			s = "http://" + s
		}
		sep = strings.Index(s, "://")
	}

	if strings.Contains(s, "?") {
		return s
	}
	head, rest := s[:sep+3], s[sep+3:]
	return head + strings.TrimRight(rest, "/")
}

// schemeSeparator returns the index of "://" when it follows a syntactically
// valid scheme, or -1.
func schemeSeparator(s string) int {
	i := strings.Index(s, "://")
	if i <= 0 {
		return -1
	}
	for j := 0; j < i; j++ {
		c := s[j]
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return -1
		}
	}
	return i
}

// DomainSet is the lowercase allow-list of hosts.
type DomainSet map[string]struct{}

// NewDomainSet builds a DomainSet, lowercasing and trimming each entry.
// Empty entries are ignored.
func NewDomainSet(domains []string) DomainSet {
	set := make(DomainSet, len(domains))
	for _, d := range domains {
		d = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(d)), ".")
		if d != "" {
			set[d] = struct{}{}
		}
	}
	return set
}

// Allows reports whether the URL's host equals an allowed domain or is a
// subdomain of one. Ports are ignored. Unparsable URLs are not allowed.
func (ds DomainSet) Allows(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return ds.AllowsHost(u.Hostname())
}

// AllowsHost is Allows for a bare hostname.
func (ds DomainSet) AllowsHost(host string) bool {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	if host == "" {
		return false
	}
	for d := range ds {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// Filter holds the optional include and exclude patterns applied to URLs.
type Filter struct {
	include *regexp.Regexp
	exclude *regexp.Regexp
}

// NewFilter compiles the include and exclude patterns. Empty patterns are disabled.
func NewFilter(include, exclude string) (*Filter, error) {
	f := &Filter{}
	var err error
	if include != "" {
		if f.include, err = regexp.Compile(include); err != nil {
			return nil, err
		}
	}
	if exclude != "" {
		if f.exclude, err = regexp.Compile(exclude); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Passes reports whether the URL matches the include pattern (when set)
// and does not match the exclude pattern (when set). Matching is a search
// anywhere in the URL, not an anchored match.
func (f *Filter) Passes(rawURL string) bool {
	if f == nil {
		return true
	}
	if f.include != nil && !f.include.MatchString(rawURL) {
		return false
	}
	if f.exclude != nil && f.exclude.MatchString(rawURL) {
		return false
	}
	return true
}
