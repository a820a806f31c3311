package source

import (
	"context"
	"fmt"
	"iter"
	"sort"

	"github.com/hupe1980/linkgo/core"
)

// MemoryTable is an in-memory Table. It is the reference backend and the
// test workhorse; it also implements the GroupCount and EquiJoin pushdowns.
type MemoryTable struct {
	name    string
	columns []string
	rows    []core.Record
}

var (
	_ Table        = (*MemoryTable)(nil)
	_ GroupCounter = (*MemoryTable)(nil)
	_ EquiJoiner   = (*MemoryTable)(nil)
)

// NewMemoryTable creates a table from rows. Column names are the union of
// all field names, sorted for determinism. Row ids keep their Dataset if
// set, otherwise they are stamped with the table name.
func NewMemoryTable(name string, rows []core.Record) *MemoryTable {
	seen := make(map[string]struct{})
	stamped := make([]core.Record, len(rows))
	for i, r := range rows {
		if r.ID.Dataset == "" {
			r.ID.Dataset = name
		}
		stamped[i] = r
		for c := range r.Fields {
			seen[c] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for c := range seen {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	return &MemoryTable{name: name, columns: columns, rows: stamped}
}

// Name returns the table name.
func (t *MemoryTable) Name() string { return t.name }

// Columns returns the sorted union of field names.
func (t *MemoryTable) Columns() []string { return t.columns }

// Count returns the number of rows.
func (t *MemoryTable) Count(ctx context.Context) (uint64, error) {
	return uint64(len(t.rows)), nil
}

// Scan streams all rows. Projection copies only the requested fields.
func (t *MemoryTable) Scan(ctx context.Context, columns ...string) iter.Seq2[core.Record, error] {
	return func(yield func(core.Record, error) bool) {
		for _, r := range t.rows {
			if err := ctx.Err(); err != nil {
				yield(core.Record{}, err)
				return
			}
			if len(columns) > 0 {
				proj := core.Record{ID: r.ID, Fields: make(map[string]any, len(columns))}
				for _, c := range columns {
					if v, ok := r.Fields[c]; ok {
						proj.Fields[c] = v
					}
				}
				r = proj
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}

// GroupCount aggregates row counts per distinct key in-process.
func (t *MemoryTable) GroupCount(ctx context.Context, columns ...string) iter.Seq2[KeyCount, error] {
	return func(yield func(KeyCount, error) bool) {
		counts := make(map[string]*KeyCount)
		order := make([]string, 0)
		for _, r := range t.rows {
			if err := ctx.Err(); err != nil {
				yield(KeyCount{}, err)
				return
			}
			key, values, ok := encodeKey(r, columns)
			if !ok {
				continue // null in key never joins
			}
			kc, exists := counts[key]
			if !exists {
				kc = &KeyCount{Values: values}
				counts[key] = kc
				order = append(order, key)
			}
			kc.Count++
		}
		for _, key := range order {
			if !yield(*counts[key], nil) {
				return
			}
		}
	}
}

// EquiJoin hash-joins this table with right on the key columns.
// Only the key index is held in memory, not the cross product.
func (t *MemoryTable) EquiJoin(ctx context.Context, right Table, columns ...string) iter.Seq2[core.CandidatePair, error] {
	return HashJoin(ctx, t, right, columns...)
}

// encodeKey canonicalizes the key column values of a row into a map key.
// ok is false when any key column is null.
func encodeKey(r core.Record, columns []string) (string, []any, bool) {
	values := make([]any, len(columns))
	key := ""
	for i, c := range columns {
		v, ok := r.Field(c)
		if !ok {
			return "", nil, false
		}
		values[i] = v
		key += fmt.Sprintf("%v\x00", v)
	}
	return key, values, true
}
