package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// maxChartSlices keeps the pie chart readable; smaller sites are merged into "other".
const maxChartSlices = 8

// MarkdownWriter outputs the summary as a Markdown document.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the document.
func (w *MarkdownWriter) Write(s *Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, s)
	w.writeAlert(md, s)
	w.writeSites(md, s)
	w.writeCounts(md, "Failures", "Reason", s.Stats.Failures)
	w.writeCounts(md, "Rejected URLs", "Reason", s.Stats.Rejections)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by publiccrawler at %s*", s.GeneratedAt.Format(time.RFC3339))

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *Summary) {
	st := s.Stats
	md.H1("Crawl Report")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seeds", codeList(s.Seeds)},
			{"Allowed domains", codeList(s.AllowDomains)},
			{"Started", formatTime(st.StartedAt)},
			{"Duration", st.Duration().Round(time.Millisecond).String()},
			{"State", st.State.String()},
			{"Pages fetched", strconv.FormatInt(st.PagesFetched, 10) + " / " + strconv.Itoa(s.MaxPages)},
			{"Max depth", strconv.Itoa(s.MaxDepth)},
			{"URLs enqueued", strconv.FormatInt(st.Enqueued, 10)},
			{"Failures", strconv.FormatInt(st.TotalFailures(), 10)},
			{"Storage errors", strconv.FormatInt(st.SinkErrors, 10)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *Summary) {
	st := s.Stats
	switch {
	case st.SinkErrors > 0:
		md.Cautionf("%d fetched page(s) could not be stored.", st.SinkErrors)
	case st.PagesFetched == 0:
		md.Warningf("No pages were fetched. Check the seeds and allowed domains.")
	case st.TotalFailures() > 0:
		md.Note(fmt.Sprintf("%d URL(s) could not be fetched; see Failures below.", st.TotalFailures()))
	default:
		md.Tip("Every dequeued URL was fetched successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeSites(md *markdown.Markdown, s *Summary) {
	md.H2("Pages by Site")
	md.PlainText("")
	if len(s.Sites) == 0 {
		md.PlainText("No pages fetched.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Sites))
	for i, site := range s.Sites {
		rows[i] = []string{"`" + site.Site + "`", strconv.FormatInt(site.Pages, 10)}
	}
	md.Table(markdown.TableSet{Header: []string{"Site", "Pages"}, Rows: rows})
	md.PlainText("")

	if len(s.Sites) > 1 {
		w.writePieChart(md, s.Sites)
	}
}

func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, sites []SiteCount) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Pages by Site"),
		piechart.WithShowData(true),
	)
	var other int64
	for i, site := range sites {
		if i >= maxChartSlices-1 && len(sites) > maxChartSlices {
			other += site.Pages
			continue
		}
		chart.LabelAndIntValue(site.Site, uint64(site.Pages)) //nolint:gosec // page counts are never negative
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other)) //nolint:gosec // page counts are never negative
	}

	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, title, label string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	md.H2(title)
	md.PlainText("")
	keys := sortedKeys(counts)
	rows := make([][]string, len(keys))
	for i, k := range keys {
		rows[i] = []string{k, strconv.FormatInt(counts[k], 10)}
	}
	md.Table(markdown.TableSet{Header: []string{label, "Count"}, Rows: rows})
	md.PlainText("")
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = "`" + s + "`"
	}
	return strings.Join(quoted, ", ")
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05 MST")
}
