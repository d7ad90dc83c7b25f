package duck

import (
	"context"
	"fmt"
	"strings"
)

// Column describes one column of a registered table.
type Column struct {
	Name string
	Type string
}

// Columns returns the column names and DuckDB types of a registered table.
func (d *DB) Columns(ctx context.Context, table string) ([]Column, error) {
	res, err := d.Query(ctx, fmt.Sprintf(`DESCRIBE %s`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	cols := make([]Column, 0, res.Count)
	for _, row := range res.Rows {
		name, _ := row["column_name"].(string)
		typ, _ := row["column_type"].(string)
		cols = append(cols, Column{Name: name, Type: typ})
	}
	return cols, nil
}

// IsNumericType reports whether a DuckDB column type holds numeric values.
func IsNumericType(typ string) bool {
	upper := strings.ToUpper(typ)
	for _, kw := range []string{"INT", "DECIMAL", "FLOAT", "DOUBLE", "REAL", "NUMERIC"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

// Summarize computes per-column descriptive statistics for a registered
// table (min, max, counts, nulls, and numeric aggregates where applicable).
func (d *DB) Summarize(ctx context.Context, table string) ([]map[string]any, error) {
	res, err := d.Query(ctx, fmt.Sprintf(`SUMMARIZE %s`, quoteIdent(table)))
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// Sample returns the first n rows of a registered table.
func (d *DB) Sample(ctx context.Context, table string, n int) ([]map[string]any, error) {
	res, err := d.Query(ctx, fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(table), n))
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}

// DistinctCount returns the number of distinct non-null values in a column.
func (d *DB) DistinctCount(ctx context.Context, table, column string) (int64, error) {
	stmt := fmt.Sprintf(`SELECT count(DISTINCT %s) FROM %s`, quoteIdent(column), quoteIdent(table))
	var count int64
	if err := d.db.QueryRowContext(ctx, stmt).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count distinct values: %w", err)
	}
	return count, nil
}

// GroupBy aggregates metric by dimension, returning count, mean and sum per
// group sorted by descending sum and truncated to limit groups.
func (d *DB) GroupBy(ctx context.Context, table, dimension, metric string, limit int) ([]map[string]any, error) {
	stmt := fmt.Sprintf(
		`SELECT %s, count(*) AS "count", avg(%s) AS "mean", sum(%s) AS "sum"
		 FROM %s GROUP BY %s ORDER BY "sum" DESC LIMIT %d`,
		quoteIdent(dimension), quoteIdent(metric), quoteIdent(metric),
		quoteIdent(table), quoteIdent(dimension), limit,
	)
	res, err := d.Query(ctx, stmt)
	if err != nil {
		return nil, err
	}
	return res.Rows, nil
}
