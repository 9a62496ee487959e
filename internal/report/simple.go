package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const ruleWidth = 60

// SimpleWriter prints a plain-text summary for the terminal.
type SimpleWriter struct {
	baseWriter

	// verbose adds per-host counts and rejection reasons.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose adds per-host counts and rejection reasons.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write prints the summary.
func (w *SimpleWriter) Write(s *Summary) (int, error) {
	var sb strings.Builder

	st := s.Stats
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	sb.WriteString("CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", ruleWidth) + "\n")
	fmt.Fprintf(&sb, "State:          %s\n", st.State)
	fmt.Fprintf(&sb, "Duration:       %s\n", st.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "Pages fetched:  %d (limit %d)\n", st.PagesFetched, s.MaxPages)
	fmt.Fprintf(&sb, "URLs enqueued:  %d\n", st.Enqueued)
	fmt.Fprintf(&sb, "Failures:       %d\n", st.TotalFailures())
	if st.SinkErrors > 0 {
		fmt.Fprintf(&sb, "Storage errors: %d\n", st.SinkErrors)
	}

	if len(s.Sites) > 0 {
		sb.WriteString("\n" + strings.Repeat("-", ruleWidth) + "\n")
		sb.WriteString("PAGES BY SITE\n")
		sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
		for _, site := range s.Sites {
			fmt.Fprintf(&sb, "  %-40s %6d\n", site.Site, site.Pages)
		}
	}

	writeCounts(&sb, "FAILURES", st.Failures)
	if w.verbose {
		writeCounts(&sb, "REJECTED URLS", st.Rejections)
		writeCounts(&sb, "PAGES BY HOST", st.PagesByHost)
	}

	return w.output.Write([]byte(sb.String()))
}

func writeCounts(sb *strings.Builder, title string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	sb.WriteString("\n" + strings.Repeat("-", ruleWidth) + "\n")
	sb.WriteString(title + "\n")
	sb.WriteString(strings.Repeat("-", ruleWidth) + "\n")
	for _, k := range sortedKeys(counts) {
		fmt.Fprintf(sb, "  %-40s %6d\n", k, counts[k])
	}
}
