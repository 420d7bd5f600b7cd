package ops

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/yuin/goldmark"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/db"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

// ExportFormat selects the export file layout.
type ExportFormat string

const (
	// FormatJSONL writes a header line followed by one capture per line.
	FormatJSONL ExportFormat = "jsonl"
	// FormatHTML writes a self-contained HTML report.
	FormatHTML ExportFormat = "html"
)

// ParseExportFormat converts a user-supplied format name. Empty means JSONL.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsonl":
		return FormatJSONL, nil
	case "html":
		return FormatHTML, nil
	}
	return "", errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q (expected jsonl or html)", s))
}

// Ext returns the file extension for the format, including the dot.
func (f ExportFormat) Ext() string {
	return "." + string(f)
}

// ExportInput contains parameters for the Export operation.
type ExportInput struct {
	Path   string       // optional, default: <Dir>/captures[-<app>]-<timestamp>.<ext>
	Dir    string       // directory for the default path
	Format ExportFormat // default: jsonl

	// Optional filters
	App   string
	Type  string
	Since time.Time

	// MaxBytes aborts the export with FILE_TOO_LARGE once the output exceeds it. Zero disables the limit.
	MaxBytes int64
}

// ExportOutput contains the result of the Export operation.
type ExportOutput struct {
	Path       string       `json:"path"`
	Format     ExportFormat `json:"format"`
	ExportID   string       `json:"export_id"`
	Count      int          `json:"count"`
	Bytes      int64        `json:"bytes"`
	ExportedAt int64        `json:"exported_at"`
}

// Export writes captures, oldest first, to a JSONL file or an HTML report.
// The file is written to a temp path and renamed into place, so an existing
// file at Path is preserved if the export fails.
func Export(ctx context.Context, store *db.Store, input ExportInput) (*ExportOutput, error) {
	now := time.Now().UTC()

	format := input.Format
	if format == "" {
		format = FormatJSONL
	}
	if format != FormatJSONL && format != FormatHTML {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("unknown export format %q", format))
	}

	typ, err := parseTypeFilter(input.Type)
	if err != nil {
		return nil, err
	}
	filter := db.QueryFilter{App: input.App, Type: typ, Since: input.Since}

	exportPath := input.Path
	if exportPath == "" {
		if input.Dir == "" {
			return nil, errors.NewInvalidRequest("path or export directory is required")
		}
		exportPath = defaultExportPath(input.Dir, input.App, format, now)
	}
	if err := ValidateExportPath(exportPath, format); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(exportPath), 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export directory: %w", err))
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := exportPath + "." + hex.EncodeToString(randBytes) + ".tmp"
	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to create export file: %w", err))
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	out := &limitWriter{w: file, max: input.MaxBytes}
	exportID := ulid.Make().String()

	var count int
	switch format {
	case FormatHTML:
		count, err = writeHTML(ctx, out, store, filter, exportID, now)
	default:
		count, err = writeJSONL(ctx, out, store, filter, exportID, now)
	}
	if err != nil {
		return nil, err
	}

	if err := file.Sync(); err != nil {
		return nil, errors.NewInternal(err)
	}
	// Close before rename (required on Windows)
	if err := file.Close(); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("failed to close export file: %w", err))
	}
	file = nil

	// os.Rename would follow a symlink at the destination
	if info, err := os.Lstat(exportPath); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("export path is a symlink")
	}

	// On Windows, os.Rename fails if the destination exists; the existing file is kept.
	if err := os.Rename(tempPath, exportPath); err != nil {
		if runtime.GOOS == "windows" {
			if _, statErr := os.Stat(exportPath); statErr == nil {
				return nil, errors.NewInvalidRequest("export destination already exists; choose a new path or delete the existing file")
			}
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to finalize export: %w", err))
	}

	success = true
	return &ExportOutput{
		Path:       exportPath,
		Format:     format,
		ExportID:   exportID,
		Count:      count,
		Bytes:      out.n,
		ExportedAt: now.Unix(),
	}, nil
}

func writeJSONL(ctx context.Context, w io.Writer, store *db.Store, filter db.QueryFilter, exportID string, now time.Time) (int, error) {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	header := capture.ExportHeader{
		FlightrecorderExport: true,
		SchemaVersion:        capture.ExportSchemaVersion,
		ExportID:             exportID,
		ExportedAt:           now.Unix(),
	}
	if err := enc.Encode(header); err != nil {
		return 0, exportWriteError(err)
	}

	count := 0
	err := store.ForEach(ctx, filter, func(c capture.Capture) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := enc.Encode(c.ToExportRecord()); err != nil {
			return exportWriteError(err)
		}
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

const htmlHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Flightrecorder export</title>
<style>
body { font-family: -apple-system, system-ui, sans-serif; max-width: 60rem; margin: 2rem auto; padding: 0 1rem; color: #222; }
pre { background: #f6f6f6; padding: 0.75rem; overflow-x: auto; white-space: pre-wrap; word-break: break-word; }
h2 { border-top: 1px solid #ddd; padding-top: 1rem; font-size: 1.1rem; }
</style>
</head>
<body>
`

const htmlTail = `</body>
</html>
`

// writeHTML renders the captures as Markdown and converts it with goldmark.
// Raw HTML in captured text is never passed through.
func writeHTML(ctx context.Context, w io.Writer, store *db.Store, filter db.QueryFilter, exportID string, now time.Time) (int, error) {
	var body bytes.Buffer
	count := 0
	err := store.ForEach(ctx, filter, func(c capture.Capture) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		writeCaptureMarkdown(&body, c)
		count++
		return nil
	})
	if err != nil {
		return 0, err
	}

	var md bytes.Buffer
	md.WriteString("# Flightrecorder export\n\n")
	fmt.Fprintf(&md, "Exported %s. Export ID `%s`. %d %s.\n\n",
		now.Format("2006-01-02 15:04:05 MST"), exportID, count, plural(count, "capture", "captures"))
	md.Write(body.Bytes())

	if _, err := io.WriteString(w, htmlHead); err != nil {
		return 0, exportWriteError(err)
	}
	if err := goldmark.Convert(md.Bytes(), w); err != nil {
		return 0, exportWriteError(err)
	}
	if _, err := io.WriteString(w, htmlTail); err != nil {
		return 0, exportWriteError(err)
	}
	return count, nil
}

func writeCaptureMarkdown(b *bytes.Buffer, c capture.Capture) {
	var id int64
	if c.ID != nil {
		id = *c.ID
	}
	fmt.Fprintf(b, "## Capture %d\n\n", id)
	fmt.Fprintf(b, "- **Time:** %s\n", c.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(b, "- **Type:** %s\n", c.CaptureType)
	if app := c.App(); app != "" {
		fmt.Fprintf(b, "- **App:** %s\n", escapeMarkdown(app))
	}
	fmt.Fprintf(b, "- **Chars:** %d\n\n", capture.CountChars(c.Content))

	fence := strings.Repeat("`", max(3, longestRun(c.Content, '`')+1))
	b.WriteString(fence + "text\n")
	b.WriteString(c.Content)
	if !strings.HasSuffix(c.Content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n\n")
}

// escapeMarkdown backslash-escapes the ASCII punctuation Markdown treats as syntax.
func escapeMarkdown(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune("\\`*_{}[]()<>#+-.!|~", r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// longestRun returns the length of the longest run of ch in s.
func longestRun(s string, ch byte) int {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == ch {
			run++
			longest = max(longest, run)
		} else {
			run = 0
		}
	}
	return longest
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// defaultExportPath generates the default export path.
// Format: <dir>/captures-<timestamp>.<ext> or captures-<app>-<timestamp>.<ext>
func defaultExportPath(dir, app string, format ExportFormat, now time.Time) string {
	name := "captures"
	if app != "" {
		name += "-" + SanitizeForFilename(strings.ToLower(app))
	}
	filename := fmt.Sprintf("%s-%s%s", name, now.Format("2006-01-02T150405"), format.Ext())
	return filepath.Join(dir, filename)
}

// limitWriter counts bytes written and fails once max is exceeded.
type limitWriter struct {
	w   io.Writer
	n   int64
	max int64
}

func (l *limitWriter) Write(p []byte) (int, error) {
	if l.max > 0 && l.n+int64(len(p)) > l.max {
		return 0, errors.NewFileTooLarge(l.max, l.n+int64(len(p)))
	}
	n, err := l.w.Write(p)
	l.n += int64(n)
	return n, err
}

// exportWriteError keeps FILE_TOO_LARGE intact and wraps anything else as INTERNAL.
func exportWriteError(err error) error {
	if errors.Is(err, errors.ErrFileTooLarge) {
		return err
	}
	return errors.NewInternal(fmt.Errorf("failed to write export: %w", err))
}
