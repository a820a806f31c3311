// Package source defines the narrow relational interface the linkage core
// consumes. The core never assumes an execution strategy, only result shape:
// a backend may stream rows from memory, SQL, or a push-down engine.
package source

import (
	"context"
	"iter"

	"github.com/hupe1980/linkgo/core"
)

// Table is an ordered collection of uniquely-keyed rows.
//
// Scan must be restartable: ranging over the returned sequence a second time
// re-reads the table from the start. Implementations stream rows and must not
// require the table to fit in memory.
type Table interface {
	// Name returns the table name. It is also used as the Dataset of every
	// RecordID the table emits.
	Name() string

	// Columns returns the column names of the table. Used by blocking rules
	// and comparison dimensions to fail fast on unknown fields.
	Columns() []string

	// Count returns the number of rows.
	Count(ctx context.Context) (uint64, error)

	// Scan streams all rows, optionally projected to the given columns.
	// With no columns, all columns are returned. The sequence ends early
	// with the context error when ctx is canceled.
	Scan(ctx context.Context, columns ...string) iter.Seq2[core.Record, error]
}

// KeyCount is one group of a group-by-count aggregation.
// Values are ordered like the grouping columns. Rows with a null in any
// grouping column are excluded, since nulls never join.
type KeyCount struct {
	Values []any
	Count  uint64
}

// GroupCounter is an optional pushdown: backends that can aggregate
// server-side implement it. The blocking cost estimator prefers it over
// scanning rows.
type GroupCounter interface {
	// GroupCount streams (key values, row count) per distinct key.
	GroupCount(ctx context.Context, columns ...string) iter.Seq2[KeyCount, error]
}

// EquiJoiner is an optional pushdown: backends that can execute an
// equality join server-side implement it. The key blocker prefers it over
// an in-process hash join.
type EquiJoiner interface {
	// EquiJoin streams row pairs of this table and right that agree on the
	// given key columns. Rows with a null key never match.
	// For a self-join (right is the same table), each unordered pair is
	// emitted once and self-pairs are omitted.
	EquiJoin(ctx context.Context, right Table, columns ...string) iter.Seq2[core.CandidatePair, error]
}

// HasColumn reports whether the table declares the named column.
func HasColumn(t Table, name string) bool {
	for _, c := range t.Columns() {
		if c == name {
			return true
		}
	}
	return false
}
