package crawler

import (
	"html"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	xhtml "golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/nao1215/publiccrawler/internal/model"
)

// hrefPattern matches quoted href attribute values anywhere in the document.
// Unlike a DOM walk it still finds hrefs in malformed markup. Unquoted
// values are not matched.
var hrefPattern = regexp.MustCompile(`(?i)href=['"](.*?)['"]`)

// Parser extracts the title, visible text, outgoing links and metadata of an
// HTML document fetched from baseURL.
type Parser struct {
	// baseURL is the final URL of the page, used to resolve relative links.
	baseURL *url.URL
}

// ParseResult contains everything extracted from one page.
type ParseResult struct {
	// Title is the first <title>, trimmed and capped at model.MaxTitleLength characters.
	Title string

	// Text is the visible text with script, style and noscript content removed.
	Text string

	// Links are absolute URLs in document order. They are not normalized or filtered.
	Links []string

	// Metadata holds document-level metadata such as description and canonical.
	Metadata map[string]string
}

// NewParser creates a parser that resolves links against baseURL.
func NewParser(baseURL string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u}, nil
}

// Parse extracts all information from doc. Malformed markup never fails;
// whatever could be recovered is returned.
func (p *Parser) Parse(doc string) *ParseResult {
	title, text := ExtractTextAndTitle(doc)
	return &ParseResult{
		Title:    title,
		Text:     text,
		Links:    p.links(doc),
		Metadata: ExtractMetadata(doc),
	}
}

// ExtractTextAndTitle scans doc once with a streaming tokenizer.
// Text inside script, style and noscript elements is skipped, with nesting
// tracked by a depth counter. Text inside <title> never goes to the body text;
// only the first title is kept. Remaining text fragments are trimmed, joined
// with single spaces and whitespace-collapsed.
func ExtractTextAndTitle(doc string) (title, text string) {
	z := xhtml.NewTokenizer(strings.NewReader(doc))

	var (
		skipDepth int
		inTitle   bool
		haveTitle bool
		parts     []string
	)

	for {
		switch z.Next() {
		case xhtml.ErrorToken:
			return title, strings.Join(strings.Fields(strings.Join(parts, " ")), " ")

		case xhtml.StartTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript:
				skipDepth++
			case atom.Title:
				inTitle = true
			}

		case xhtml.SelfClosingTagToken:
			// The tokenizer still reads the content of <script/> as raw
			// text up to </script>, so it must be skipped as well.
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript:
				skipDepth++
			}

		case xhtml.EndTagToken:
			name, _ := z.TagName()
			switch atom.Lookup(name) {
			case atom.Script, atom.Style, atom.Noscript:
				if skipDepth > 0 {
					skipDepth--
				}
			case atom.Title:
				inTitle = false
			}

		case xhtml.TextToken:
			if skipDepth > 0 {
				continue
			}
			data := string(z.Text())
			if inTitle {
				if !haveTitle {
					title = model.Truncate(strings.TrimSpace(data), model.MaxTitleLength)
					haveTitle = true
				}
				continue
			}
			if t := strings.TrimSpace(data); t != "" {
				parts = append(parts, t)
			}
		}
	}
}

// ExtractLinks returns every quoted href value in doc resolved against base.
// mailto: and javascript: links and values that do not parse as URLs are skipped.
func ExtractLinks(base, doc string) []string {
	p, err := NewParser(base)
	if err != nil {
		return nil
	}
	return p.links(doc)
}

func (p *Parser) links(doc string) []string {
	matches := hrefPattern.FindAllStringSubmatch(doc, -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		href := strings.TrimSpace(html.UnescapeString(m[1]))
		lower := strings.ToLower(href)
		if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "javascript:") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		links = append(links, p.baseURL.ResolveReference(ref).String())
	}
	return links
}

// metaNames are the <meta name=...> keys copied into the page metadata.
var metaNames = map[string]bool{
	"description": true,
	"keywords":    true,
	"author":      true,
	"robots":      true,
	"generator":   true,
}

// ExtractMetadata collects document metadata: the html lang attribute,
// selected <meta> names, OpenGraph properties and the canonical link.
// It returns nil when nothing was found.
func ExtractMetadata(doc string) map[string]string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	meta := make(map[string]string)
	if lang, ok := d.Find("html").Attr("lang"); ok && strings.TrimSpace(lang) != "" {
		meta["lang"] = strings.TrimSpace(lang)
	}

	d.Find("meta").Each(func(_ int, s *goquery.Selection) {
		content, ok := s.Attr("content")
		if !ok {
			return
		}
		content = strings.TrimSpace(content)
		key := strings.ToLower(s.AttrOr("name", ""))
		if key == "" {
			key = strings.ToLower(s.AttrOr("property", ""))
		}
		if !metaNames[key] && !strings.HasPrefix(key, "og:") {
			return
		}
		if _, dup := meta[key]; !dup && content != "" {
			meta[key] = content
		}
	})

	d.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(s.AttrOr("rel", ""), "canonical") {
			return true
		}
		if href := strings.TrimSpace(s.AttrOr("href", "")); href != "" {
			meta["canonical"] = href
			return false
		}
		return true
	})

	if len(meta) == 0 {
		return nil
	}
	return meta
}
