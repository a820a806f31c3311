package source

import (
	"context"
	"iter"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/resource"
)

// Governed wraps a table so that Scan draws one row token per row from the
// shared resource controller. Use it to keep long blocking or training
// passes from saturating a shared backend. Pushdown capabilities of the
// wrapped table are hidden on purpose: a governed table is always scanned
// row by row, since pushed-down work bypasses the row budget.
func Governed(t Table, c *resource.Controller) Table {
	return &governedTable{inner: t, controller: c}
}

// Throttled wraps a table so that Scan never exceeds rowsPerSec rows per
// second.
func Throttled(t Table, rowsPerSec float64) Table {
	return Governed(t, resource.NewController(resource.Config{RowsPerSecond: rowsPerSec}))
}

type governedTable struct {
	inner      Table
	controller *resource.Controller
}

func (t *governedTable) Name() string      { return t.inner.Name() }
func (t *governedTable) Columns() []string { return t.inner.Columns() }

func (t *governedTable) Count(ctx context.Context) (uint64, error) {
	return t.inner.Count(ctx)
}

func (t *governedTable) Scan(ctx context.Context, columns ...string) iter.Seq2[core.Record, error] {
	return func(yield func(core.Record, error) bool) {
		for r, err := range t.inner.Scan(ctx, columns...) {
			if err != nil {
				yield(core.Record{}, err)
				return
			}
			if err := t.controller.WaitRows(ctx, 1); err != nil {
				yield(core.Record{}, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
