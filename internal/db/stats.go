package db

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/hpungsan/flightrecorder/internal/capture"
	"github.com/hpungsan/flightrecorder/internal/errors"
)

// Stats is a read-only snapshot of the store.
type Stats struct {
	TotalCaptures int        `json:"total_captures"`
	Oldest        *time.Time `json:"oldest,omitempty"`
	Newest        *time.Time `json:"newest,omitempty"`
	// SizeBytes is the on-disk size of the database and its WAL and shared
	// memory files; zero for in-memory stores.
	SizeBytes     int64  `json:"size_bytes"`
	DBPath        string `json:"db_path,omitempty"`
	SchemaVersion int    `json:"schema_version"`

	ByType  map[capture.CaptureType]int `json:"by_type"`
	TopApps []AppCount                  `json:"top_apps"`
}

// AppCount is the number of captures from one source application.
type AppCount struct {
	App   string `json:"app"`
	Count int    `json:"count"`
}

// TopAppsLimit is how many applications Stats reports.
const TopAppsLimit = 10

// Stats returns capture counts, the timestamp range, and the on-disk size.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{DBPath: s.path}

	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), MIN(timestamp), MAX(timestamp) FROM captures`,
	).Scan(&st.TotalCaptures, &oldest, &newest)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if oldest.Valid {
		t := fromUnixNano(oldest.Int64)
		st.Oldest = &t
	}
	if newest.Valid {
		t := fromUnixNano(newest.Int64)
		st.Newest = &t
	}

	version, err := getSchemaVersion(ctx, s.db)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	st.SchemaVersion = version

	if st.ByType, err = s.countByType(ctx); err != nil {
		return nil, err
	}
	if st.TopApps, err = s.topApps(ctx, TopAppsLimit); err != nil {
		return nil, err
	}

	if s.path != "" {
		st.SizeBytes = diskSize(s.path)
	}
	return st, nil
}

// diskSize sums the database file and whichever of its -wal and -shm
// companions exist. Uncheckpointed writes live in the -wal file.
func diskSize(path string) int64 {
	var total int64
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if info, err := os.Stat(p); err == nil {
			total += info.Size()
		}
	}
	return total
}

func (s *Store) countByType(ctx context.Context) (map[capture.CaptureType]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT capture_type, COUNT(*) FROM captures GROUP BY capture_type`)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := make(map[capture.CaptureType]int)
	for rows.Next() {
		var t string
		var n int
		if err := rows.Scan(&t, &n); err != nil {
			return nil, errors.NewInternal(err)
		}
		out[capture.CaptureType(t)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// topApps returns the n applications with the most captures. Captures with
// no known source application are not counted.
func (s *Store) topApps(ctx context.Context, n int) ([]AppCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_app, COUNT(*) AS n FROM captures
		WHERE source_app IS NOT NULL
		GROUP BY source_app
		ORDER BY n DESC, source_app ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	out := []AppCount{}
	for rows.Next() {
		var ac AppCount
		if err := rows.Scan(&ac.App, &ac.Count); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, ac)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}
