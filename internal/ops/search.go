package ops

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

// Search limits
const (
	MaxQueryLength  = 1000
	MaxSnippetChars = 300
	// snippetLead is how many bytes of context precede the match.
	snippetLead = 60
)

var snippetSpace = regexp.MustCompile(`\s+`)

// SearchInput contains parameters for the Search operation.
type SearchInput struct {
	Query          string    // required
	App            string    // optional, exact source app
	Type           string    // optional capture type
	Since          time.Time // optional, inclusive
	Until          time.Time // optional, inclusive
	Limit          int       // default: 20, max: 100
	Offset         int       // default: 0
	IncludeContent bool
}

// SearchResultItem wraps an Item with a match snippet.
type SearchResultItem struct {
	Item
	// Snippet is HTML-safe: captured text is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string `json:"snippet"`
}

// SearchOutput contains the result of the Search operation.
type SearchOutput struct {
	Items      []SearchResultItem `json:"items"`
	Pagination Pagination         `json:"pagination"`
	Sort       string             `json:"sort"`
}

// Search finds captures whose content contains the query, newest first.
// Matching is a case-insensitive substring match (ASCII case folding).
func Search(ctx context.Context, store *db.Store, input SearchInput) (*SearchOutput, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(query) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}
	if !input.Since.IsZero() && !input.Until.IsZero() && input.Until.Before(input.Since) {
		return nil, errors.NewInvalidRequest("until is before since")
	}

	typ, err := parseTypeFilter(input.Type)
	if err != nil {
		return nil, err
	}

	// The full text is needed for snippets even when the caller does not want it
	listed, err := list(ctx, store, db.QueryFilter{
		Text:  query,
		App:   input.App,
		Type:  typ,
		Since: input.Since,
		Until: input.Until,
	}, input.Limit, input.Offset, true)
	if err != nil {
		return nil, err
	}

	items := make([]SearchResultItem, len(listed.Items))
	for i, it := range listed.Items {
		snippet := escapeSnippetHTML(buildSnippet(it.Content, query))
		snippet = truncateSnippet(snippet, MaxSnippetChars)

		if !input.IncludeContent {
			it.Content = ""
		}
		items[i] = SearchResultItem{Item: it, Snippet: snippet}
	}

	return &SearchOutput{
		Items:      items,
		Pagination: listed.Pagination,
		Sort:       listed.Sort,
	}, nil
}

// Highlight markers placed around the match before escaping.
const (
	openMarker  = "[[[B]]]"
	closeMarker = "[[[/B]]]"
)

// buildSnippet cuts content around the first match of query and marks it.
func buildSnippet(content, query string) string {
	idx := strings.Index(asciiLower(content), asciiLower(query))
	if idx < 0 {
		return collapseSpace(content)
	}
	end := idx + len(query)

	start := max(idx-snippetLead, 0)
	for start > 0 && !utf8.RuneStart(content[start]) {
		start--
	}

	var b strings.Builder
	if start > 0 {
		b.WriteString("...")
	}
	b.WriteString(collapseSpace(content[start:idx]))
	b.WriteString(openMarker)
	b.WriteString(collapseSpace(content[idx:end]))
	b.WriteString(closeMarker)
	b.WriteString(collapseSpace(content[end:]))
	return b.String()
}

// asciiLower folds ASCII letters only, so byte offsets are preserved.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func collapseSpace(s string) string {
	return snippetSpace.ReplaceAllString(s, " ")
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}

	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// Trim any partial tag or entity left at the cut
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	unclosed := strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>")
	for range unclosed {
		truncated += "</b>"
	}

	return truncated + "..."
}

// escapeSnippetHTML escapes captured text in a snippet while turning the
// highlight markers into <b> tags.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00FR_B_OPEN\x00"
		closePlaceholder = "\x00FR_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, openMarker, openPlaceholder)
	s = strings.ReplaceAll(s, closeMarker, closePlaceholder)

	s = html.EscapeString(s)

	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")
	return s
}
