package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLStore is the Storage Adapter's relational face: snapshots, deltas,
// the stringified kv mirror, and the migrator's schema ledger all live
// here. Rows are returned as generic maps because collection schemas are
// migrated at runtime — there is no generated model to scan into.
type SQLStore interface {
	Exec(query string, args ...any) error
	Run(query string, args ...any) (sql.Result, error)
	Get(query string, args ...any) (map[string]any, error)
	All(query string, args ...any) ([]map[string]any, error)
	Close() error
}

// SQLite implements SQLStore over modernc.org/sqlite, a pure-Go driver
// with no cgo dependency — suited to an embedded client replica that has
// to run on whatever platform the host ships to.
type SQLite struct {
	db *sql.DB
}

const bootstrapSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	collection TEXT NOT NULL,
	document   TEXT NOT NULL,
	seq        INTEGER NOT NULL,
	vector     TEXT NOT NULL,
	bytes      BLOB NOT NULL,
	PRIMARY KEY (collection, document)
);
CREATE TABLE IF NOT EXISTS deltas (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	document   TEXT NOT NULL,
	before     TEXT NOT NULL,
	bytes      BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_deltas_collection_document ON deltas(collection, document);
CREATE TABLE IF NOT EXISTS kv (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// NewSQLite opens (creating if absent) a sqlite-backed SQLStore under
// dataDir/replicate.sqlite and bootstraps the fixed tables. The
// "__replicate_schema" table is created lazily by the migrator on first
// use, not here, since a client that never registers a collection never
// needs it.
func NewSQLite(dataDir string) (*SQLite, error) {
	dbPath := filepath.Join(dataDir, "replicate.sqlite")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sql database: %w", err)
	}
	db.SetMaxOpenConns(1) // sqlite has one writer; avoid pool-level contention

	if _, err := db.Exec(bootstrapSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Exec runs a statement that returns no rows (DDL, or a write whose
// result the caller doesn't need).
func (s *SQLite) Exec(query string, args ...any) error {
	_, err := s.db.Exec(query, args...)
	return err
}

// Run executes a statement and returns its sql.Result, for callers that
// need LastInsertId or RowsAffected.
func (s *SQLite) Run(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

// Get runs query and returns its first row as a column-name-keyed map,
// or (nil, sql.ErrNoRows) if it produced no rows.
func (s *SQLite) Get(query string, args ...any) (map[string]any, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, sql.ErrNoRows
	}
	row, err := scanRow(rows)
	if err != nil {
		return nil, err
	}
	return row, rows.Err()
}

// All runs query and returns every row as a column-name-keyed map.
func (s *SQLite) All(query string, args ...any) ([]map[string]any, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanRow(rows *sql.Rows) (map[string]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	values := make([]any, len(cols))
	pointers := make([]any, len(cols))
	for i := range values {
		pointers[i] = &values[i]
	}
	if err := rows.Scan(pointers...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		if b, ok := values[i].([]byte); ok {
			row[col] = append([]byte(nil), b...)
		} else {
			row[col] = values[i]
		}
	}
	return row, nil
}
