// Package report renders the summary of a finished crawl.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: the summary as JSON for scripts
//   - MarkdownWriter: a Markdown document with tables and a Mermaid pie chart
//
// Writers implement the Writer interface and can be combined with MultiWriter.
package report
