// Package db opens the embedded DuckDB catalog database.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration.
type Config struct {
	DataDir string
	DBName  string
}

// Open creates the data directory if needed and opens the DuckDB file.
// Callers own the returned handle; there is no package-level singleton.
func Open(cfg Config) (*sql.DB, error) {
	duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
	if err := os.MkdirAll(duckdbDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating duckdb directory: %w", err)
	}

	dbPath := filepath.Join(duckdbDir, cfg.DBName+".duckdb")
	conn, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}

	// Extensions might already be installed; a failed INSTALL is fine as
	// long as LOAD works on the next statement that needs it.
	for _, ext := range []string{"spatial", "json"} {
		conn.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext))
	}
	return conn, nil
}

// OpenMemory opens an in-memory database for tests.
func OpenMemory() (*sql.DB, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, err
	}
	conn.Exec("INSTALL json; LOAD json;")
	return conn, nil
}
