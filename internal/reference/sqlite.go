package reference

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"github.com/couchcryptid/vegplot-etl/internal/domain"
	"github.com/couchcryptid/vegplot-etl/internal/table"
)

// ErrEmptyCache is returned when a snapshot cache has never been filled.
var ErrEmptyCache = errors.New("reference cache is empty; run refs pull")

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS taxon_all (
		taxon_code TEXT NOT NULL,
		taxon_name TEXT NOT NULL,
		taxon_accepted_code TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS ground_element (
		ground_element TEXT NOT NULL,
		ground_element_code TEXT,
		element_type TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS personnel (personnel TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS structural_class (structural_class TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS dictionary (
		field TEXT NOT NULL,
		data_attribute TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS snapshot_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

// Compile-time contract assertion.
var _ Source = (*SQLite)(nil)

// SQLite is a local snapshot of the reference tables for offline runs.
type SQLite struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// OpenSQLite opens or creates a snapshot cache at path for writing.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	for _, stmt := range sqliteSchema {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("create cache schema: %w", err)
		}
	}
	return &SQLite{db: db, path: path}, nil
}

// OpenSQLiteReadOnly opens an existing cache without creating or changing
// it. A missing file or a cache that was never pulled is ErrEmptyCache.
func OpenSQLiteReadOnly(ctx context.Context, path string) (*SQLite, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s does not exist", ErrEmptyCache, path)
		}
		return nil, fmt.Errorf("stat cache: %w", err)
	}
	dsn := url.URL{Scheme: "file", Path: path, RawQuery: "mode=ro&_pragma=query_only(1)"}
	db, err := sql.Open("sqlite", dsn.String())
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: db, path: path, readOnly: true}
	if _, err := s.PulledAt(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Close closes the cache database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Store replaces the cached tables with snap and stamps the pull time.
func (s *SQLite) Store(ctx context.Context, snap *Snapshot) error {
	if s.readOnly {
		return fmt.Errorf("store snapshot: %s is open read-only", s.path)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range []string{"taxon_all", "ground_element", "personnel", "structural_class", "dictionary"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+t); err != nil {
			return fmt.Errorf("clear %s: %w", t, err)
		}
	}

	for _, t := range snap.Taxa {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO taxon_all (taxon_code, taxon_name, taxon_accepted_code) VALUES (?, ?, ?)`,
			t.Code, t.Name, t.AcceptedCode); err != nil {
			return fmt.Errorf("insert taxon: %w", err)
		}
	}
	for _, e := range snap.GroundElements {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ground_element (ground_element, ground_element_code, element_type) VALUES (?, ?, ?)`,
			e.Name, e.Code, e.Type); err != nil {
			return fmt.Errorf("insert ground element: %w", err)
		}
	}
	for _, p := range snap.Personnel {
		if _, err := tx.ExecContext(ctx, `INSERT INTO personnel (personnel) VALUES (?)`, p); err != nil {
			return fmt.Errorf("insert personnel: %w", err)
		}
	}
	for _, c := range snap.StructuralClasses {
		if _, err := tx.ExecContext(ctx, `INSERT INTO structural_class (structural_class) VALUES (?)`, c); err != nil {
			return fmt.Errorf("insert structural class: %w", err)
		}
	}
	for _, d := range snap.Dictionary {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO dictionary (field, data_attribute) VALUES (?, ?)`, d.Field, d.Attribute); err != nil {
			return fmt.Errorf("insert dictionary entry: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshot_meta (key, value) VALUES ('pulled_at', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		domain.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("stamp snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// PulledAt returns when the cache was last filled.
func (s *SQLite) PulledAt(ctx context.Context) (time.Time, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM snapshot_meta WHERE key = 'pulled_at'`).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrEmptyCache
	}
	if err != nil && !tableExists(ctx, s.db, "snapshot_meta") {
		return time.Time{}, ErrEmptyCache
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("read snapshot stamp: %w", err)
	}
	return time.Parse(time.RFC3339, v)
}

// Taxa returns the cached checklist.
func (s *SQLite) Taxa(ctx context.Context) ([]domain.Taxon, error) {
	return queryTaxa(ctx, s.db)
}

// GroundElements returns the cached ground element vocabulary.
func (s *SQLite) GroundElements(ctx context.Context) ([]GroundElement, error) {
	return queryGroundElements(ctx, s.db)
}

// Personnel returns the cached observer names.
func (s *SQLite) Personnel(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, personnelQuery)
}

// StructuralClasses returns the cached structural classes.
func (s *SQLite) StructuralClasses(ctx context.Context) ([]string, error) {
	return queryStrings(ctx, s.db, structuralClassQuery)
}

// Dictionary returns the cached dictionary.
func (s *SQLite) Dictionary(ctx context.Context) ([]DictionaryEntry, error) {
	return queryDictionary(ctx, s.db)
}

// Query runs an ad hoc query against the cache. The connection is switched
// to query_only for the duration, so writes fail even on a writable cache.
func (s *SQLite) Query(ctx context.Context, query string) (*table.Table, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if !s.readOnly {
		if _, err := conn.ExecContext(ctx, `PRAGMA query_only = 1`); err != nil {
			return nil, fmt.Errorf("set query_only: %w", err)
		}
		defer func() { _, _ = conn.ExecContext(context.WithoutCancel(ctx), `PRAGMA query_only = 0`) }()
	}
	return queryTable(ctx, conn, query)
}

func tableExists(ctx context.Context, db querier, name string) bool {
	rows, err := db.QueryContext(ctx, `SELECT 1 FROM sqlite_master WHERE type = 'table' AND name = ?`, name)
	if err != nil {
		return false
	}
	defer func() { _ = rows.Close() }()
	return rows.Next()
}
