package report

import (
	"cmp"
	"net"
	"slices"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/publiccrawler/internal/config"
	"github.com/nao1215/publiccrawler/internal/model"
)

// Summary is everything a report shows about one run.
type Summary struct {
	Seeds        []string       `json:"seeds"`
	AllowDomains []string       `json:"allow_domains"`
	MaxPages     int            `json:"max_pages"`
	MaxDepth     int            `json:"max_depth"`
	Stats        model.RunStats `json:"stats"`
	Sites        []SiteCount    `json:"sites"`
	GeneratedAt  time.Time      `json:"generated_at"`
}

// SiteCount is the number of pages fetched from one registrable domain
// ("blog.example.co.uk" and "www.example.co.uk" both count for "example.co.uk").
type SiteCount struct {
	Site  string `json:"site"`
	Pages int64  `json:"pages"`
}

// NewSummary builds a summary from the run configuration and final stats.
func NewSummary(cfg *config.Config, stats model.RunStats) *Summary {
	return &Summary{
		Seeds:        cfg.Seeds,
		AllowDomains: cfg.AllowDomains,
		MaxPages:     cfg.MaxPages,
		MaxDepth:     cfg.MaxDepth,
		Stats:        stats,
		Sites:        groupBySite(stats.PagesByHost),
		GeneratedAt:  time.Now(),
	}
}

// groupBySite folds per-host counts into registrable domains, largest first.
func groupBySite(byHost map[string]int64) []SiteCount {
	totals := make(map[string]int64)
	for host, n := range byHost {
		totals[siteOf(host)] += n
	}

	sites := make([]SiteCount, 0, len(totals))
	for site, n := range totals {
		sites = append(sites, SiteCount{Site: site, Pages: n})
	}
	slices.SortFunc(sites, func(a, b SiteCount) int {
		if c := cmp.Compare(b.Pages, a.Pages); c != 0 {
			return c
		}
		return cmp.Compare(a.Site, b.Site)
	})
	return sites
}

// siteOf returns the registrable domain of host, or host itself for IPs
// and names that have none, such as "localhost".
func siteOf(host string) string {
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	site, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return site
}

// sortedKeys returns the keys of m in order.
func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
