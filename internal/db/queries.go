package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

const captureColumns = `id, timestamp, source_app, content, content_hash, capture_type, created_at`

// Insert stores c unless a capture with the same content hash already exists
// anywhere in the history. It returns the new row ID and true, or 0 and false
// for a duplicate. The existing row is left untouched, timestamp included.
func (s *Store) Insert(ctx context.Context, c capture.Capture) (int64, bool, error) {
	// The stored hash is always the fingerprint of the stored content.
	c.ContentHash = capture.Hash(c.Content)
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}

	// ON CONFLICT against the unique hash index keeps check-and-insert atomic
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO captures (timestamp, source_app, content, content_hash, capture_type, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(content_hash) DO NOTHING`,
		toUnixNano(c.Timestamp), toNullString(c.SourceApp), c.Content, c.ContentHash,
		string(c.CaptureType), toUnixNano(time.Now()),
	)
	if err != nil {
		return 0, false, errors.NewInternal(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, errors.NewInternal(err)
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, errors.NewInternal(err)
	}
	return id, true, nil
}

// Get retrieves a capture by ID.
func (s *Store) Get(ctx context.Context, id int64) (*capture.Capture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE id = ?`, id)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// GetByHash retrieves the capture with the given content hash.
func (s *Store) GetByHash(ctx context.Context, hash string) (*capture.Capture, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+captureColumns+` FROM captures WHERE content_hash = ?`, hash)
	c, err := scanCapture(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(hash)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return c, nil
}

// QueryFilter selects captures. Zero-valued fields do not constrain the result.
type QueryFilter struct {
	// Text matches content as a case-insensitive substring (ASCII case folding).
	Text string
	// App matches source_app exactly.
	App string
	Type capture.CaptureType
	// Since and Until bound the timestamp inclusively.
	Since time.Time
	Until time.Time
	// Limit caps the result; zero or less returns every match.
	Limit  int
	Offset int
}

// Query returns matching captures, newest first.
func (s *Store) Query(ctx context.Context, f QueryFilter) ([]capture.Capture, error) {
	where, args := f.where()

	query := `SELECT ` + captureColumns + ` FROM captures` + where + ` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []capture.Capture
	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// ForEach streams matching captures oldest first, calling fn for each.
// Limit and Offset apply as in Query. A non-nil error from fn stops the scan and is returned.
func (s *Store) ForEach(ctx context.Context, f QueryFilter, fn func(capture.Capture) error) error {
	where, args := f.where()

	query := `SELECT ` + captureColumns + ` FROM captures` + where + ` ORDER BY timestamp ASC, id ASC LIMIT ? OFFSET ?`
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(f.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCapture(rows)
		if err != nil {
			return errors.NewInternal(err)
		}
		if err := fn(*c); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// CountMatching returns how many captures match f, ignoring Limit and Offset.
func (s *Store) CountMatching(ctx context.Context, f QueryFilter) (int, error) {
	where, args := f.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM captures`+where, args...).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

func (f QueryFilter) where() (string, []any) {
	var conds []string
	var args []any

	if f.Text != "" {
		conds = append(conds, `content LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.Text)+"%")
	}
	if f.App != "" {
		conds = append(conds, `source_app = ?`)
		args = append(args, f.App)
	}
	if f.Type != "" {
		conds = append(conds, `capture_type = ?`)
		args = append(args, string(f.Type))
	}
	if !f.Since.IsZero() {
		conds = append(conds, `timestamp >= ?`)
		args = append(args, toUnixNano(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, `timestamp <= ?`)
		args = append(args, toUnixNano(f.Until))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// escapeLike escapes LIKE wildcards so the text matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// readCapped runs f with a caller-supplied limit. Unlike QueryFilter.Limit,
// zero returns no rows and a negative limit is rejected.
func (s *Store) readCapped(ctx context.Context, f QueryFilter, limit int) ([]capture.Capture, error) {
	if limit < 0 {
		return nil, errors.NewInvalidRequest("limit must not be negative")
	}
	if limit == 0 {
		return []capture.Capture{}, nil
	}
	f.Limit = limit
	return s.Query(ctx, f)
}

// GetRecent returns up to limit of the newest captures.
func (s *Store) GetRecent(ctx context.Context, limit int) ([]capture.Capture, error) {
	return s.readCapped(ctx, QueryFilter{}, limit)
}

// GetByApp returns the newest captures from app (exact name).
func (s *Store) GetByApp(ctx context.Context, app string, limit int) ([]capture.Capture, error) {
	if app == "" {
		return nil, errors.NewInvalidRequest("app is required")
	}
	return s.readCapped(ctx, QueryFilter{App: app}, limit)
}

// GetByType returns the newest captures of type t.
func (s *Store) GetByType(ctx context.Context, t capture.CaptureType, limit int) ([]capture.Capture, error) {
	if t == "" {
		return nil, errors.NewInvalidRequest("capture type is required")
	}
	return s.readCapped(ctx, QueryFilter{Type: t}, limit)
}

// Search returns the newest captures whose content contains text.
// Matching is a case-insensitive substring match for ASCII letters.
func (s *Store) Search(ctx context.Context, text string, limit int) ([]capture.Capture, error) {
	if text == "" {
		return nil, errors.NewInvalidRequest("search text is required")
	}
	return s.readCapped(ctx, QueryFilter{Text: text}, limit)
}

// GetByTimeRange returns the newest captures with since <= timestamp <= until.
func (s *Store) GetByTimeRange(ctx context.Context, since, until time.Time, limit int) ([]capture.Capture, error) {
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return nil, errors.NewInvalidRequest("until is before since")
	}
	return s.readCapped(ctx, QueryFilter{Since: since, Until: until}, limit)
}

// Delete removes a capture. It reports whether a row existed.
func (s *Store) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE id = ?`, id)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return n > 0, nil
}

// PruneOlderThan deletes captures with timestamp strictly before now-maxAge.
func (s *Store) PruneOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	if maxAge < 0 {
		return 0, errors.NewInvalidRequest("max age must not be negative")
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	return s.PruneBefore(ctx, cutoff)
}

// PruneBefore deletes captures with timestamp strictly before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM captures WHERE timestamp < ?`, toUnixNano(cutoff))
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// PruneKeepRecent deletes all but the n newest captures by timestamp.
func (s *Store) PruneKeepRecent(ctx context.Context, n int) (int64, error) {
	if n < 0 {
		return 0, errors.NewInvalidRequest("keep count must not be negative")
	}
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM captures
		WHERE id NOT IN (
			SELECT id FROM captures ORDER BY timestamp DESC, id DESC LIMIT ?
		)`, n)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return deleted, nil
}

// Count returns the total number of captures.
func (s *Store) Count(ctx context.Context) (int, error) {
	return s.CountMatching(ctx, QueryFilter{})
}

type scanner interface {
	Scan(dest ...any) error
}

// scanCapture scans a row into a Capture.
func scanCapture(row scanner) (*capture.Capture, error) {
	var (
		c          capture.Capture
		id         int64
		ts         int64
		sourceApp  sql.NullString
		captureTyp string
		createdAt  int64
	)

	err := row.Scan(&id, &ts, &sourceApp, &c.Content, &c.ContentHash, &captureTyp, &createdAt)
	if err != nil {
		return nil, err
	}

	c.ID = &id
	c.Timestamp = fromUnixNano(ts)
	c.SourceApp = fromNullString(sourceApp)
	c.CaptureType = capture.CaptureType(captureTyp)
	c.CreatedAt = fromUnixNano(createdAt)
	return &c, nil
}

// Timestamps are stored as UTC Unix nanoseconds so they sort numerically.
func toUnixNano(t time.Time) int64 {
	return t.UTC().UnixNano()
}

func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
