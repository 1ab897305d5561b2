// CLAUDE:SUMMARY Main SQLite store (modernc, WAL) — users, evaluations and per-agent analyses
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hazyhaar/pkg/idgen"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/factlens/pkg/trace"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

type DB struct {
	*sql.DB
	tracer *trace.Store
}

func Open(path string) (*DB, error) {
	sqlDB, err := openSQLite(path, "journal_mode(WAL)", "foreign_keys(1)", "busy_timeout(5000)")
	if err != nil {
		return nil, err
	}

	db := &DB{DB: sqlDB}
	if err := db.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return db, nil
}

// SetTracer enables SQL timing traces for store operations.
func (db *DB) SetTracer(t *trace.Store) { db.tracer = t }

func (db *DB) migrate() error {
	_, err := db.Exec(schema)
	return err
}

func openSQLite(path string, pragmas ...string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dsn := "file:" + path
	for i, p := range pragmas {
		sep := "&"
		if i == 0 {
			sep = "?"
		}
		dsn += sep + "_pragma=" + p
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("pinging %s: %w", path, err)
	}
	return sqlDB, nil
}

// NewID generates a 12-character base-36 ID.
func NewID() string {
	return idgen.New()
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
