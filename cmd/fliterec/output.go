package main

import (
	"fmt"
	"html"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
	"github.com/hpungsan/flightrecorder/internal/ops"
)

// List output formats.
const (
	formatPlain = "plain"
	formatTable = "table"
	formatJSON  = "json"
)

// timeLayout is how capture times are shown, in local time.
const timeLayout = "2006-01-02 15:04:05"

// tableTextChars caps the text column of table output.
const tableTextChars = 60

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

func parseOutputFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "", formatPlain:
		return formatPlain, nil
	case formatTable, formatJSON:
		return f, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown output format %q (expected plain, table, or json)", s))
}

// row is one capture in list output. snippet, when set, replaces the preview.
type row struct {
	item    ops.Item
	snippet string
}

func (r row) text() string {
	if r.snippet != "" {
		return r.snippet
	}
	return r.item.Preview
}

func appName(app *string) string {
	if app == nil {
		return "-"
	}
	return *app
}

// printRows writes a capture list as plain text or a table.
func printRows(w io.Writer, format string, rows []row, page ops.Pagination) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No captures found")
		return
	}

	if format == formatTable {
		fmt.Fprintln(w, renderTable(rows))
	} else {
		for _, r := range rows {
			it := r.item
			fmt.Fprintf(w, "#%d  %s  %s  %s  (%d chars)\n",
				it.ID, it.Timestamp.Local().Format(timeLayout), it.CaptureType, appName(it.SourceApp), it.Chars)
			if it.Content != "" {
				fmt.Fprintln(w, indent(it.Content, "    "))
			} else {
				fmt.Fprintf(w, "    %s\n", r.text())
			}
		}
	}

	if page.HasMore {
		fmt.Fprintf(w, "Showing %d-%d of %d\n", page.Offset+1, page.Offset+len(rows), page.Total)
	}
}

func renderTable(rows []row) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		Headers("ID", "TIME", "TYPE", "APP", "CHARS", "TEXT").
		StyleFunc(func(r, _ int) lipgloss.Style {
			if r == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	for _, r := range rows {
		it := r.item
		t.Row(
			strconv.FormatInt(it.ID, 10),
			it.Timestamp.Local().Format(timeLayout),
			string(it.CaptureType),
			appName(it.SourceApp),
			strconv.Itoa(it.Chars),
			capture.Preview(r.text(), tableTextChars),
		)
	}
	return t.String()
}

// printCapture writes one capture's metadata followed by its full text.
func printCapture(w io.Writer, c *ops.FetchOutput) {
	fmt.Fprintf(w, "ID:       %d\n", c.ID)
	fmt.Fprintf(w, "Time:     %s\n", c.Timestamp.Local().Format(timeLayout))
	fmt.Fprintf(w, "Type:     %s\n", c.CaptureType)
	fmt.Fprintf(w, "App:      %s\n", appName(c.SourceApp))
	fmt.Fprintf(w, "Chars:    %d\n", c.Chars)
	fmt.Fprintf(w, "Hash:     %s\n", c.ContentHash)
	fmt.Fprintln(w)
	fmt.Fprintln(w, c.Content)
}

// printStatus writes the status report as aligned text.
func printStatus(w io.Writer, s *ops.StatusOutput) {
	enabled := func(b bool) string {
		if b {
			return "enabled"
		}
		return "disabled"
	}

	fmt.Fprintf(w, "Clipboard capture:      %s\n", enabled(s.ClipboardEnabled))
	access := enabled(s.AccessibilityEnabled)
	if s.AccessibilityEnabled && !s.AccessibilityPermission {
		access += " (permission not granted)"
	}
	fmt.Fprintf(w, "Text field capture:     %s\n", access)
	if s.AccessibilityEnabled && s.PermissionInstructions != "" {
		fmt.Fprintln(w, indent(s.PermissionInstructions, "  "))
	}

	privacy := enabled(s.FiltersEnabled)
	if s.FiltersEnabled {
		privacy += ", mode " + s.PrivacyMode
	}
	fmt.Fprintf(w, "Privacy filter:         %s\n", privacy)
	fmt.Fprintf(w, "Excluded apps:          %d\n", s.ExcludedApps)
	fmt.Fprintf(w, "Retention:              %s\n", retentionText(s.MaxAgeDays, s.MaxCaptures))

	if st := s.Store; st != nil {
		fmt.Fprintf(w, "Database:               %s (%s)\n", st.DBPath, humanize.IBytes(uint64(max(st.SizeBytes, 0))))
		fmt.Fprintf(w, "Captures:               %d\n", st.TotalCaptures)
		if st.Oldest != nil && st.Newest != nil {
			fmt.Fprintf(w, "Range:                  %s to %s\n", humanize.Time(*st.Oldest), humanize.Time(*st.Newest))
		}
	}
}

func retentionText(days, maxCaptures int) string {
	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%d days", days))
	}
	if maxCaptures > 0 {
		parts = append(parts, fmt.Sprintf("%d captures", maxCaptures))
	}
	if len(parts) == 0 {
		return "unlimited"
	}
	return strings.Join(parts, ", ")
}

func indent(s, prefix string) string {
	return prefix + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n"+prefix)
}

// plainSnippet strips the highlight markup from a search snippet for terminal output.
func plainSnippet(s string) string {
	return html.UnescapeString(strings.NewReplacer("<b>", "", "</b>", "").Replace(s))
}
