package memory

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

//go:embed migrations/001_add_reflective_insights.sql
var migration001 string

// store is the SQLite-backed persistence layer underneath Store. Grounded
// on the teacher's db.go: embedded schema + numbered migrations run on
// open, WAL mode, a single *sql.DB shared across operations. The driver is
// modernc.org/sqlite (pure Go) rather than the teacher's cgo-based
// mattn/go-sqlite3, so the memory store builds on every platform this
// runtime targets without a C toolchain.
type store struct {
	db *sql.DB
}

func openStore(path string) (*store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create memory db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open memory db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	s := &store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate memory db: %w", err)
	}
	return s, nil
}

func (s *store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("check schema version: %w", err)
	}

	if version < 1 {
		log.Println("[MIGRATION] running migration to v1: reflective insights table")
		if _, err := s.db.Exec(migration001); err != nil {
			return fmt.Errorf("run migration 001: %w", err)
		}
		log.Println("[MIGRATION] migrated to schema v1")
	}

	return nil
}

func (s *store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
