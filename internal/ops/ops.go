// Package ops implements the read and maintenance operations over the
// capture store shared by the CLI and the MCP server.
package ops

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// clampLimit applies the default and maximum to a requested page size.
func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}

// ParseID parses a capture ID given as text.
func ParseID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.NewInvalidRequest("id is required")
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid capture id %q", s))
	}
	return id, nil
}

func validateID(id int64) error {
	if id <= 0 {
		return errors.NewInvalidRequest("id must be a positive integer")
	}
	return nil
}

// ParseAge parses a duration such as "90m", "12h", "7d" or "2w".
// Day and week suffixes are accepted on top of time.ParseDuration.
func ParseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.NewInvalidRequest("duration is required")
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "w"):
		unit = 7 * 24 * time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(strings.TrimSpace(s[:len(s)-1]))
		if err != nil || n < 0 {
			return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid duration %q", s))
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, errors.NewInvalidRequest(fmt.Sprintf("invalid duration %q", s))
	}
	return d, nil
}

// ParseTime parses an RFC 3339 timestamp, a date (2006-01-02, UTC), or an
// age such as "2h" or "7d" meaning that long before now.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	d, err := ParseAge(s)
	if err != nil {
		return time.Time{}, errors.NewInvalidRequest(fmt.Sprintf("invalid time %q (expected RFC 3339, YYYY-MM-DD, or an age like 2h or 7d)", s))
	}
	return now.UTC().Add(-d), nil
}

// parseTypeFilter validates an optional capture type filter.
func parseTypeFilter(s string) (capture.CaptureType, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	t, err := capture.ParseType(s)
	if err != nil {
		return "", errors.NewInvalidRequest(err.Error())
	}
	return t, nil
}

// Item is a capture summary, optionally carrying the full text.
type Item struct {
	capture.CaptureSummary
	Content string `json:"content,omitempty"`
}

func toItems(cs []capture.Capture, includeContent bool) []Item {
	items := make([]Item, len(cs))
	for i := range cs {
		items[i] = Item{CaptureSummary: cs[i].ToSummary()}
		if includeContent {
			items[i].Content = cs[i].Content
		}
	}
	return items
}
