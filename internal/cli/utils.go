// Package cli provides output formatting for the utsushi command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sync"

	"github.com/hyperjump/utsushi/internal/models"
)

// SearchOutputFormat is the format for search result output.
type SearchOutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText SearchOutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON SearchOutputFormat = "json"
	// OutputCompact prints one tab-separated line per result.
	OutputCompact SearchOutputFormat = "compact"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (SearchOutputFormat, error) {
	switch f := SearchOutputFormat(s); f {
	case OutputText, OutputJSON, OutputCompact:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text, json or compact)", s)
	}
}

// WriteSearchResults writes search results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format SearchOutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	case OutputCompact:
		writeSearchResultsCompact(w, response)
		return nil
	default:
		writeSearchResultsText(w, response)
		return nil
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) {
	if response.IndexEmpty {
		fmt.Fprintln(w, "\nNothing has been indexed yet. Add a folder with: utsushi folders add <path>")
		return
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (page %d, %d per page)\n\n",
		response.Total, response.QueryTime, response.Page, response.PageSize)
	for _, result := range response.Results {
		writeOneResult(w, result)
	}
}

func writeOneResult(w io.Writer, result *models.SearchResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Score: %.4f | %s\n", result.Rank, result.Score, result.FileType)
	fmt.Fprintf(w, "File: %s\n", Truncate(result.FilePath, 200))
	if result.Timestamp != nil {
		fmt.Fprintf(w, "At: %s\n", FormatTimestamp(*result.Timestamp))
	}
	if result.FramePath != "" {
		fmt.Fprintf(w, "Frame: %s\n", result.FramePath)
	}
	fmt.Fprintln(w)
}

func writeSearchResultsCompact(w io.Writer, response *models.SearchResponse) {
	for _, r := range response.Results {
		if r.Timestamp != nil {
			fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.FilePath, FormatTimestamp(*r.Timestamp))
			continue
		}
		fmt.Fprintf(w, "%d\t%.4f\t%s\n", r.Rank, r.Score, r.FilePath)
	}
}

// PrintSearchResults prints search results to stdout in text format.
func PrintSearchResults(response *models.SearchResponse) {
	_ = WriteSearchResults(os.Stdout, response, OutputText)
}

// FormatTimestamp renders seconds as m:ss.s, or h:mm:ss.s past an hour.
func FormatTimestamp(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	tenths := int64(math.Round(seconds * 10))
	h := tenths / 36000
	m := (tenths / 600) % 60
	s := float64(tenths%600) / 10
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%04.1f", h, m, s)
	}
	return fmt.Sprintf("%d:%04.1f", m, s)
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// ProgressPrinter writes refresh and indexing progress lines to a writer.
type ProgressPrinter struct {
	w  io.Writer
	mu sync.Mutex
}

// NewProgressPrinter returns a printer writing to w.
func NewProgressPrinter(w io.Writer) *ProgressPrinter {
	return &ProgressPrinter{w: w}
}

// Progress prints the folder being processed and how far along it is.
func (p *ProgressPrinter) Progress(folder string, processed, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "\r%s: %d/%d", folder, processed, total)
	if processed == total {
		fmt.Fprintln(p.w)
	}
}

// Finished prints the final counts.
func (p *ProgressPrinter) Finished(stats models.RefreshStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "Done: %d added, %d removed, %d failed\n", stats.Added, stats.Removed, stats.Failed)
}
