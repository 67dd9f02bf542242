// Package exec implements the physical query operators from spec section
// 4.15: each planner.Node becomes a Reader, a pull-based iterator with a
// Next/Columns/Row/Close shape, grounded on the teacher's executor.Next()
// iterator style (pkg/sql/executor/iterator.go).
package exec

import "sharc/pkg/sqlvalue"

// Row is one result row: positional values matching Reader.Columns().
type Row = []sqlvalue.Value

// Reader is a pull-based row stream. Next advances to the next row (or
// reports EOF via (false, nil)); Row returns the row most recently made
// current by Next. Columns is stable for the Reader's lifetime.
type Reader interface {
	Columns() []string
	Next() (bool, error)
	Row() Row
	Close() error
}

// Stats accumulates the per-statement counters spec section 4.15 names:
// pages visited, index entries visited, rows materialized.
type Stats struct {
	PagesVisited       int64
	IndexEntriesVisited int64
	RowsMaterialized   int64
}
