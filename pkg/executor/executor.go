// Package executor runs fully-qualified SQL against a warehouse and returns
// plain row sets. The analysis core treats it as a black box.
package executor

import "context"

// Result holds the rows returned by a query.
type Result struct {
	SQL       string
	Columns   []string
	Rows      []map[string]any
	TotalRows int
}

// Executor executes SQL queries. Execution failures (syntax, permission,
// timeout) are returned as errors with the warehouse message attached.
type Executor interface {
	Execute(ctx context.Context, sql string) (Result, error)
}
