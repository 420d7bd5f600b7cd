package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/hpungsan/flightrecorder/internal/config"
	"github.com/hpungsan/flightrecorder/internal/errors"
	_ "modernc.org/sqlite"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 2

// schemaVersionKey is the metadata row holding the applied schema version.
const schemaVersionKey = "schema_version"

// Store is the persistent capture history.
// All methods are safe for concurrent use; SQLite serializes writers.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates the capture database at path and applies pending migrations.
// Failures are returned as STORE_OPEN errors.
func Open(path string) (*Store, error) {
	// Create parent directory with restricted permissions
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, errors.NewStoreOpen(path, fmt.Errorf("failed to create database directory: %w", err))
	}

	// Open database with pragmas in connection string (applies to all connections)
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.NewStoreOpen(path, fmt.Errorf("failed to open database: %w", err))
	}

	// Verify WAL mode is active
	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, errors.NewStoreOpen(path, err)
	}

	// Run migrations (this creates the file if it doesn't exist)
	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.NewStoreOpen(path, err)
	}

	// Set file permissions after file exists (best-effort)
	_ = os.Chmod(path, 0600)

	return &Store{db: db, path: path}, nil
}

// OpenInMemory opens a private in-memory store. Its Stats report a size of zero.
func OpenInMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, errors.NewStoreOpen(":memory:", err)
	}
	// Every connection to :memory: is a separate database
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, errors.NewStoreOpen(":memory:", err)
	}
	return &Store{db: db}, nil
}

// ConfigurePool applies connection pool settings from config.
// Only sets limits if explicitly configured (non-zero values).
// In-memory stores keep their single connection.
func ConfigurePool(s *Store, cfg *config.Config) {
	if cfg == nil || s.path == "" {
		return
	}
	if n := cfg.Storage.DBMaxOpenConns; n > 0 {
		s.db.SetMaxOpenConns(n)
		s.db.SetMaxIdleConns(n)
	}
}

// Path returns the database file path, or "" for an in-memory store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion returns the applied schema version.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	return getSchemaVersion(ctx, s.db)
}

// migrate applies schema migrations recorded in the metadata table.
// Opening a current store only reads the version.
func migrate(db *sql.DB) error {
	ctx := context.Background()

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS metadata (
		  key   TEXT PRIMARY KEY,
		  value TEXT NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	version, err := getSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	// Migration 0 -> 1: captures table
	if version < 1 {
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			schema := `
			CREATE TABLE IF NOT EXISTS captures (
			  id           INTEGER PRIMARY KEY AUTOINCREMENT,
			  timestamp    INTEGER NOT NULL,
			  source_app   TEXT,
			  content      TEXT NOT NULL,
			  content_hash TEXT NOT NULL,
			  capture_type TEXT NOT NULL,
			  created_at   INTEGER NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_captures_timestamp ON captures(timestamp DESC);
			CREATE INDEX IF NOT EXISTS idx_captures_hash ON captures(content_hash);
			CREATE INDEX IF NOT EXISTS idx_captures_app ON captures(source_app);
			CREATE INDEX IF NOT EXISTS idx_captures_type ON captures(capture_type);
			`
			if _, err := tx.ExecContext(ctx, schema); err != nil {
				return err
			}
			return setSchemaVersion(ctx, tx, 1)
		})
		if err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
	}

	// Migration 1 -> 2: content_hash becomes unique so insert dedup is a single statement
	if version < 2 {
		err := inTx(ctx, db, func(tx *sql.Tx) error {
			stmts := []string{
				`DELETE FROM captures WHERE id NOT IN (SELECT MIN(id) FROM captures GROUP BY content_hash)`,
				`DROP INDEX IF EXISTS idx_captures_hash`,
				`CREATE UNIQUE INDEX idx_captures_hash ON captures(content_hash)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			return setSchemaVersion(ctx, tx, 2)
		})
		if err != nil {
			return fmt.Errorf("migration 2 failed: %w", err)
		}
	}

	// Future migrations go here:
	// if version < 3 { ... }

	return nil
}

func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// getSchemaVersion returns the applied version, or 0 for a fresh database.
func getSchemaVersion(ctx context.Context, q queryer) (int, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, schemaVersionKey).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	version, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", value, err)
	}
	return version, nil
}

// setSchemaVersion records the applied schema version.
func setSchemaVersion(ctx context.Context, e execer, version int) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		schemaVersionKey, strconv.Itoa(version))
	if err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}
	return nil
}
