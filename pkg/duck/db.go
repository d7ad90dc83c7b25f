// Package duck wraps an embedded in-memory DuckDB instance used to execute
// generated queries against file-backed datasets. An instance is scoped to a
// single execution pass: created, populated with the selected datasets,
// queried, and closed.
package duck

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DB is a scoped in-memory analytical engine.
type DB struct {
	log *slog.Logger
	db  *sql.DB
}

// NewMemory opens a fresh in-memory DuckDB instance.
func NewMemory(ctx context.Context, log *slog.Logger) (*DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{log: log, db: db}, nil
}

// Close tears down the engine instance.
func (d *DB) Close() error {
	return d.db.Close()
}

// RegisterCSV loads the CSV at path into a table with the given logical name,
// replacing any previous registration, and returns the loaded row count.
func (d *DB) RegisterCSV(ctx context.Context, name, path string) (int64, error) {
	stmt := fmt.Sprintf(
		`CREATE OR REPLACE TABLE %s AS SELECT * FROM read_csv_auto(%s)`,
		quoteIdent(name), quoteLiteral(path),
	)
	if _, err := d.db.ExecContext(ctx, stmt); err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", path, err)
	}

	var count int64
	row := d.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, quoteIdent(name)))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count rows in %s: %w", name, err)
	}
	if d.log != nil {
		d.log.Debug("duck: registered table", "name", name, "rows", count)
	}
	return count, nil
}

// quoteIdent quotes a SQL identifier so logical dataset names can carry
// spaces or mixed case.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// quoteLiteral quotes a string literal for inclusion in generated SQL.
func quoteLiteral(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}
