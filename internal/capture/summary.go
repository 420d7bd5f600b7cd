package capture

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// PreviewChars is the rune length of CaptureSummary.Preview.
const PreviewChars = 80

var whitespaceRegex = regexp.MustCompile(`\s+`)

// CaptureSummary is a capture without its full text.
// Used by list-style reads to keep responses small.
type CaptureSummary struct {
	ID          int64       `json:"id"`
	Timestamp   time.Time   `json:"timestamp"`
	SourceApp   *string     `json:"source_app,omitempty"`
	CaptureType CaptureType `json:"capture_type"`
	ContentHash string      `json:"content_hash"`
	Chars       int         `json:"chars"`
	Preview     string      `json:"preview"`
}

// ToSummary strips the full text, keeping a single-line preview.
func (c *Capture) ToSummary() CaptureSummary {
	var id int64
	if c.ID != nil {
		id = *c.ID
	}
	return CaptureSummary{
		ID:          id,
		Timestamp:   c.Timestamp,
		SourceApp:   c.SourceApp,
		CaptureType: c.CaptureType,
		ContentHash: c.ContentHash,
		Chars:       CountChars(c.Content),
		Preview:     Preview(c.Content, PreviewChars),
	}
}

// Preview collapses whitespace and cuts text to at most n runes, adding "..." when cut.
func Preview(text string, n int) string {
	s := strings.TrimSpace(whitespaceRegex.ReplaceAllString(text, " "))
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// CountChars returns the character count as runes (not bytes).
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
