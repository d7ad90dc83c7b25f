package duck

import (
	"context"
	"fmt"
	"strings"
)

// Result holds the outcome of a single query.
type Result struct {
	SQL     string           `json:"sql"`
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
	Count   int              `json:"count"`
}

// Query executes a SQL statement against the registered tables and scans the
// full result set into column-keyed rows.
func (d *DB) Query(ctx context.Context, query string) (Result, error) {
	query = strings.TrimSuffix(strings.TrimSpace(query), ";")

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("failed to execute query: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to get columns: %w", err)
	}

	var resultRows []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("error iterating rows: %w", err)
	}

	return Result{
		SQL:     query,
		Columns: columns,
		Rows:    resultRows,
		Count:   len(resultRows),
	}, nil
}
