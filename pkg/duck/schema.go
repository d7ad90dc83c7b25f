package duck

import (
	"context"
	"fmt"
	"log/slog"
)

// FileSchema is the inferred shape of a tabular file, used when registering
// a dataset into the catalog.
type FileSchema struct {
	Columns []Column
	Rows    int64
	// Samples holds a few distinct values per non-numeric column, recorded
	// so later dataset matching can search values as well as column names.
	Samples map[string][]string
}

const maxSampleValues = 5

// InferSchema loads a CSV through a scoped engine instance and reports its
// columns, row count and sample values.
func InferSchema(ctx context.Context, log *slog.Logger, path string) (*FileSchema, error) {
	db, err := NewMemory(ctx, log)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	const table = "inferred"
	rows, err := db.RegisterCSV(ctx, table, path)
	if err != nil {
		return nil, err
	}

	cols, err := db.Columns(ctx, table)
	if err != nil {
		return nil, err
	}

	samples := make(map[string][]string)
	for _, col := range cols {
		if IsNumericType(col.Type) {
			continue
		}
		res, err := db.Query(ctx, fmt.Sprintf(
			`SELECT DISTINCT %s AS v FROM %s WHERE %s IS NOT NULL LIMIT %d`,
			quoteIdent(col.Name), quoteIdent(table), quoteIdent(col.Name), maxSampleValues,
		))
		if err != nil {
			// Sampling is best-effort; the schema is still usable without it.
			continue
		}
		for _, row := range res.Rows {
			samples[col.Name] = append(samples[col.Name], fmt.Sprintf("%v", row["v"]))
		}
	}

	return &FileSchema{Columns: cols, Rows: rows, Samples: samples}, nil
}
