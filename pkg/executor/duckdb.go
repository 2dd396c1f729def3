package executor

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DuckDBExecutor executes queries against a DuckDB database file.
type DuckDBExecutor struct {
	db *sql.DB
}

// NewDuckDBExecutor opens the DuckDB database at path. An empty path opens
// an in-memory database.
func NewDuckDBExecutor(path string) (*DuckDBExecutor, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	return &DuckDBExecutor{db: db}, nil
}

// Close releases the underlying database handle.
func (e *DuckDBExecutor) Close() error {
	return e.db.Close()
}

// Execute runs sql and materializes all rows as column-keyed records.
func (e *DuckDBExecutor) Execute(ctx context.Context, query string) (Result, error) {
	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Result{}, fmt.Errorf("failed to read columns: %w", err)
	}

	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Result{}, fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			record[col] = v
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("row iteration failed: %w", err)
	}

	return Result{
		SQL:       query,
		Columns:   columns,
		Rows:      records,
		TotalRows: len(records),
	}, nil
}
