// Package sqlite provides a source.Table backed by a SQLite database via
// database/sql and the cgo-free modernc.org/sqlite driver.
//
// Group-by counting and equality joins are pushed down as SQL so blocking
// never pulls the full table into memory.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"iter"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

// Open opens (or creates) a SQLite database file. Use ":memory:" for an
// in-memory database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	return db, nil
}

// Table adapts one SQLite table to source.Table.
type Table struct {
	db       *sql.DB
	name     string
	idColumn string
	columns  []string
}

var (
	_ source.Table        = (*Table)(nil)
	_ source.GroupCounter = (*Table)(nil)
	_ source.EquiJoiner   = (*Table)(nil)
)

// NewTable adapts the named table. idColumn must hold a unique integer key;
// the remaining columns are discovered from the schema.
func NewTable(ctx context.Context, db *sql.DB, name, idColumn string) (*Table, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(name)))
	if err != nil {
		return nil, fmt.Errorf("describe table %q: %w", name, err)
	}
	defer rows.Close()

	var columns []string
	idFound := false
	for rows.Next() {
		var (
			cid        int
			col, ctype string
			notnull    int
			dflt       sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &col, &ctype, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("describe table %q: %w", name, err)
		}
		if col == idColumn {
			idFound = true
			continue
		}
		columns = append(columns, col)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !idFound {
		return nil, fmt.Errorf("table %q does not exist or has no id column %q", name, idColumn)
	}
	if len(columns) == 0 {
		return nil, fmt.Errorf("table %q has no data columns besides %q", name, idColumn)
	}

	return &Table{db: db, name: name, idColumn: idColumn, columns: columns}, nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// Columns returns the non-id column names.
func (t *Table) Columns() []string { return t.columns }

// Count returns the number of rows.
func (t *Table) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := t.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(t.name))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", t.name, err)
	}
	return n, nil
}

// Scan streams rows, projected to the requested columns.
func (t *Table) Scan(ctx context.Context, columns ...string) iter.Seq2[core.Record, error] {
	if len(columns) == 0 {
		columns = t.columns
	}
	query := fmt.Sprintf("SELECT %s, %s FROM %s",
		quoteIdent(t.idColumn), quoteIdents(columns), quoteIdent(t.name))

	return func(yield func(core.Record, error) bool) {
		rows, err := t.db.QueryContext(ctx, query)
		if err != nil {
			yield(core.Record{}, fmt.Errorf("scan %q: %w", t.name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var key uint64
			values := make([]any, len(columns))
			dest := make([]any, 0, len(columns)+1)
			dest = append(dest, &key)
			for i := range values {
				dest = append(dest, &values[i])
			}
			if err := rows.Scan(dest...); err != nil {
				yield(core.Record{}, fmt.Errorf("scan %q: %w", t.name, err))
				return
			}
			rec := core.Record{
				ID:     core.RecordID{Dataset: t.name, Key: key},
				Fields: make(map[string]any, len(columns)),
			}
			for i, c := range columns {
				if values[i] != nil {
					rec.Fields[c] = values[i]
				}
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.Record{}, err)
		}
	}
}

// GroupCount pushes the aggregation down as GROUP BY. Rows with a null in
// any grouping column are excluded, matching join semantics.
func (t *Table) GroupCount(ctx context.Context, columns ...string) iter.Seq2[source.KeyCount, error] {
	cols := quoteIdents(columns)
	notNull := make([]string, len(columns))
	for i, c := range columns {
		notNull[i] = quoteIdent(c) + " IS NOT NULL"
	}
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s WHERE %s GROUP BY %s",
		cols, quoteIdent(t.name), strings.Join(notNull, " AND "), cols)

	return func(yield func(source.KeyCount, error) bool) {
		rows, err := t.db.QueryContext(ctx, query)
		if err != nil {
			yield(source.KeyCount{}, fmt.Errorf("group count %q: %w", t.name, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			values := make([]any, len(columns))
			var n uint64
			dest := make([]any, 0, len(columns)+1)
			for i := range values {
				dest = append(dest, &values[i])
			}
			dest = append(dest, &n)
			if err := rows.Scan(dest...); err != nil {
				yield(source.KeyCount{}, err)
				return
			}
			if !yield(source.KeyCount{Values: values, Count: n}, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(source.KeyCount{}, err)
		}
	}
}

// EquiJoin pushes the join down as SQL when right lives in the same
// database, and falls back to the generic in-process hash join otherwise.
func (t *Table) EquiJoin(ctx context.Context, right source.Table, columns ...string) iter.Seq2[core.CandidatePair, error] {
	rt, ok := right.(*Table)
	if !ok || rt.db != t.db {
		return source.HashJoin(ctx, t, right, columns...)
	}

	conds := make([]string, len(columns))
	for i, c := range columns {
		conds[i] = fmt.Sprintf("l.%s = r.%s", quoteIdent(c), quoteIdent(c))
	}
	cond := strings.Join(conds, " AND ")
	if rt == t || rt.name == t.name {
		// Self-join: emit each unordered pair once.
		cond += fmt.Sprintf(" AND l.%s < r.%s", quoteIdent(t.idColumn), quoteIdent(t.idColumn))
	}

	lCols := prefixedIdents("l", t.columns)
	rCols := prefixedIdents("r", rt.columns)
	query := fmt.Sprintf("SELECT l.%s, %s, r.%s, %s FROM %s l JOIN %s r ON %s",
		quoteIdent(t.idColumn), lCols, quoteIdent(rt.idColumn), rCols,
		quoteIdent(t.name), quoteIdent(rt.name), cond)

	return func(yield func(core.CandidatePair, error) bool) {
		rows, err := t.db.QueryContext(ctx, query)
		if err != nil {
			yield(core.CandidatePair{}, fmt.Errorf("equi-join %q with %q: %w", t.name, rt.name, err))
			return
		}
		defer rows.Close()

		nl, nr := len(t.columns), len(rt.columns)
		for rows.Next() {
			var lKey, rKey uint64
			lVals := make([]any, nl)
			rVals := make([]any, nr)
			dest := make([]any, 0, nl+nr+2)
			dest = append(dest, &lKey)
			for i := range lVals {
				dest = append(dest, &lVals[i])
			}
			dest = append(dest, &rKey)
			for i := range rVals {
				dest = append(dest, &rVals[i])
			}
			if err := rows.Scan(dest...); err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			pair := core.CandidatePair{
				Left:  makeRecord(t.name, lKey, t.columns, lVals),
				Right: makeRecord(rt.name, rKey, rt.columns, rVals),
			}
			if !yield(pair, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(core.CandidatePair{}, err)
		}
	}
}

func makeRecord(table string, key uint64, columns []string, values []any) core.Record {
	rec := core.Record{
		ID:     core.RecordID{Dataset: table, Key: key},
		Fields: make(map[string]any, len(columns)),
	}
	for i, c := range columns {
		if values[i] != nil {
			rec.Fields[c] = values[i]
		}
	}
	return rec
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func quoteIdents(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func prefixedIdents(prefix string, names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = prefix + "." + quoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}
