package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/resource"
)

func row(key uint64, fields map[string]any) core.Record {
	return core.Record{ID: core.ID(key), Fields: fields}
}

func cities() *MemoryTable {
	return NewMemoryTable("cities", []core.Record{
		row(1, map[string]any{"name": "springfield", "state": "IL", "pop": 114000}),
		row(2, map[string]any{"name": "springfield", "state": "MA", "pop": 155000}),
		row(3, map[string]any{"name": "salem", "state": "MA", "pop": 44000}),
		row(4, map[string]any{"name": "salem", "state": nil, "pop": 18000}),
	})
}

func TestMemoryTableBasics(t *testing.T) {
	ctx := context.Background()
	tbl := cities()

	require.Equal(t, "cities", tbl.Name())
	require.Equal(t, []string{"name", "pop", "state"}, tbl.Columns())

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(4), n)
}

func TestMemoryTableStampsDataset(t *testing.T) {
	tbl := cities()
	for r, err := range tbl.Scan(context.Background()) {
		require.NoError(t, err)
		require.Equal(t, "cities", r.ID.Dataset)
	}

	// An explicit dataset survives.
	pre := NewMemoryTable("other", []core.Record{
		{ID: core.RecordID{Dataset: "keep", Key: 1}, Fields: map[string]any{"x": 1}},
	})
	for r, err := range pre.Scan(context.Background()) {
		require.NoError(t, err)
		require.Equal(t, "keep", r.ID.Dataset)
	}
}

func TestScanProjection(t *testing.T) {
	ctx := context.Background()
	for r, err := range cities().Scan(ctx, "name") {
		require.NoError(t, err)
		require.Contains(t, r.Fields, "name")
		require.NotContains(t, r.Fields, "state")
		require.NotContains(t, r.Fields, "pop")
	}
}

func TestScanRestartable(t *testing.T) {
	ctx := context.Background()
	seq := cities().Scan(ctx)

	for pass := 0; pass < 2; pass++ {
		n := 0
		for _, err := range seq {
			require.NoError(t, err)
			n++
		}
		require.Equal(t, 4, n)
	}
}

func TestScanHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, err := range cities().Scan(ctx) {
		require.ErrorIs(t, err, context.Canceled)
		return
	}
	t.Fatal("expected a context error")
}

func TestGroupCountSkipsNullKeys(t *testing.T) {
	ctx := context.Background()

	got := map[string]uint64{}
	for kc, err := range cities().GroupCount(ctx, "name") {
		require.NoError(t, err)
		got[kc.Values[0].(string)] = kc.Count
	}
	require.Equal(t, map[string]uint64{"springfield": 2, "salem": 2}, got)

	// Row 4 has a null state and must vanish from the state grouping.
	var total uint64
	for kc, err := range cities().GroupCount(ctx, "state") {
		require.NoError(t, err)
		total += kc.Count
	}
	require.Equal(t, uint64(3), total)
}

func TestHashJoinCross(t *testing.T) {
	ctx := context.Background()
	left := NewMemoryTable("left", []core.Record{
		row(1, map[string]any{"zip": "10001"}),
		row(2, map[string]any{"zip": "10001"}),
		row(3, map[string]any{"zip": "99999"}),
	})
	right := NewMemoryTable("right", []core.Record{
		row(1, map[string]any{"zip": "10001"}),
		row(2, map[string]any{"zip": nil}),
	})

	n := 0
	for cp, err := range HashJoin(ctx, left, right, "zip") {
		require.NoError(t, err)
		require.Equal(t, "left", cp.Left.ID.Dataset)
		require.Equal(t, "right", cp.Right.ID.Dataset)
		n++
	}
	// Two left rows join the single non-null right row.
	require.Equal(t, 2, n)
}

func TestHashJoinSelf(t *testing.T) {
	ctx := context.Background()
	tbl := cities()

	pairs := map[core.Pair]bool{}
	for cp, err := range HashJoin(ctx, tbl, tbl, "name") {
		require.NoError(t, err)
		p := cp.Pair()
		require.False(t, pairs[p], "pair emitted twice: %s", p)
		require.NotEqual(t, cp.Left.ID, cp.Right.ID)
		pairs[p] = true
	}
	// springfield pair and salem pair.
	require.Len(t, pairs, 2)
}

func TestEquiJoinMatchesHashJoin(t *testing.T) {
	ctx := context.Background()
	tbl := cities()

	viaPushdown := map[core.Pair]bool{}
	for cp, err := range tbl.EquiJoin(ctx, tbl, "name") {
		require.NoError(t, err)
		viaPushdown[cp.Pair()] = true
	}
	viaJoin := map[core.Pair]bool{}
	for cp, err := range HashJoin(ctx, tbl, tbl, "name") {
		require.NoError(t, err)
		viaJoin[cp.Pair()] = true
	}
	require.Equal(t, viaJoin, viaPushdown)
}

func TestHasColumn(t *testing.T) {
	tbl := cities()
	require.True(t, HasColumn(tbl, "name"))
	require.False(t, HasColumn(tbl, "zip"))
}

func TestThrottledScan(t *testing.T) {
	ctx := context.Background()

	// Generous limit: behavior identical, no meaningful delay.
	tbl := Throttled(cities(), 100000)
	require.Equal(t, "cities", tbl.Name())

	start := time.Now()
	n := 0
	for _, err := range tbl.Scan(ctx) {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 4, n)
	require.Less(t, time.Since(start), time.Second)

	// A throttled table hides pushdowns so every read is rate-checked.
	_, isGroupCounter := tbl.(GroupCounter)
	require.False(t, isGroupCounter)
}

func TestGovernedScan(t *testing.T) {
	ctx := context.Background()

	// Scans draw row tokens from the shared controller.
	c := resource.NewController(resource.Config{RowsPerSecond: 100000})
	tbl := Governed(cities(), c)
	n := 0
	for _, err := range tbl.Scan(ctx) {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 4, n)

	// A nil controller enforces nothing.
	n = 0
	for _, err := range Governed(cities(), nil).Scan(ctx) {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 4, n)
}
