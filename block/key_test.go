package block

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

func tableWithKeys(t *testing.T, name string, keys []any) *source.MemoryTable {
	t.Helper()
	rows := make([]core.Record, len(keys))
	for i, k := range keys {
		rows[i] = core.Record{
			ID:     core.ID(uint64(i + 1)),
			Fields: map[string]any{"k": k},
		}
	}
	return source.NewMemoryTable(name, rows)
}

func collectPairs(t *testing.T, seq func(func(core.CandidatePair, error) bool)) []core.Pair {
	t.Helper()
	var pairs []core.Pair
	for cp, err := range seq {
		require.NoError(t, err)
		pairs = append(pairs, cp.Pair())
	}
	return pairs
}

func TestNewKeyValidation(t *testing.T) {
	_, err := NewKey()
	require.Error(t, err)
	_, err = NewKey("")
	require.Error(t, err)
	_, err = NewKey("k", "k")
	require.Error(t, err)

	b, err := NewKey("k")
	require.NoError(t, err)
	require.Equal(t, "key(k)", b.Name())
	require.Equal(t, JoinShapeEquality, b.JoinShape())
}

func TestKeyBlockerValidateMissingColumn(t *testing.T) {
	left := tableWithKeys(t, "people", []any{"x"})

	b, err := NewKey("missing")
	require.NoError(t, err)

	err = b.Validate(left, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing")
	require.Contains(t, err.Error(), "people")

	// The same failure surfaces through the stream before any pair.
	for _, err := range b.Block(context.Background(), left, nil) {
		require.Error(t, err)
	}
}

func TestKeyBlockerEstimateCrossTables(t *testing.T) {
	// Value counts [3,2] on the left, [2,4] on the right: 3*2 + 2*4 = 14.
	left := tableWithKeys(t, "a", []any{"x", "x", "x", "y", "y"})
	right := tableWithKeys(t, "b", []any{"x", "x", "y", "y", "y", "y"})

	b, err := NewKey("k")
	require.NoError(t, err)

	est, err := b.EstimateCost(context.Background(), left, right)
	require.NoError(t, err)
	require.False(t, est.Indeterminate)
	require.Equal(t, uint64(14), est.Pairs)
}

func TestKeyBlockerEstimateDedupe(t *testing.T) {
	// Counts [3,2]: 3 + 1 = 4.
	table := tableWithKeys(t, "a", []any{"x", "x", "x", "y", "y"})

	b, err := NewKey("k")
	require.NoError(t, err)

	est, err := b.EstimateCost(context.Background(), table, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(4), est.Pairs)
}

func TestKeyBlockerBlockDedupe(t *testing.T) {
	table := tableWithKeys(t, "a", []any{"x", "x", "x", "y", "y", nil})

	b, err := NewKey("k")
	require.NoError(t, err)

	pairs := collectPairs(t, b.Block(context.Background(), table, nil))
	require.Len(t, pairs, 4)

	seen := make(map[core.Pair]int)
	for _, p := range pairs {
		require.True(t, p.Left.Less(p.Right), "canonical order: %s", p)
		seen[p]++
	}
	for p, n := range seen {
		require.Equal(t, 1, n, "pair %s emitted once", p)
	}
	// The null-key row joins nothing.
	for _, p := range pairs {
		require.NotEqual(t, uint64(6), p.Left.Key)
		require.NotEqual(t, uint64(6), p.Right.Key)
	}
}

func TestKeyBlockerBlockCrossTables(t *testing.T) {
	left := tableWithKeys(t, "a", []any{"x", "y", "z"})
	right := tableWithKeys(t, "b", []any{"x", "x", "y"})

	b, err := NewKey("k")
	require.NoError(t, err)

	pairs := collectPairs(t, b.Block(context.Background(), left, right))
	require.Len(t, pairs, 3)
	for _, p := range pairs {
		require.Equal(t, "a", p.Left.Dataset)
		require.Equal(t, "b", p.Right.Dataset)
	}
}

func TestKeyBlockerRestartable(t *testing.T) {
	table := tableWithKeys(t, "a", []any{"x", "x", "y", "y"})

	b, err := NewKey("k")
	require.NoError(t, err)

	seq := b.Block(context.Background(), table, nil)
	first := collectPairs(t, seq)
	second := collectPairs(t, seq)
	require.ElementsMatch(t, first, second)
}

func TestDerivedKeyBlocker(t *testing.T) {
	rows := []core.Record{
		{ID: core.ID(1), Fields: map[string]any{"name": "Smith"}},
		{ID: core.ID(2), Fields: map[string]any{"name": "smythe"}},
		{ID: core.ID(3), Fields: map[string]any{"name": "Jones"}},
		{ID: core.ID(4), Fields: map[string]any{}},
	}
	table := source.NewMemoryTable("people", rows)

	// Block on the lowercased first letter.
	b, err := NewDerivedKey("initial(name)", func(r core.Record) (any, bool) {
		v, ok := r.Field("name")
		if !ok {
			return nil, false
		}
		return strings.ToLower(v.(string)[:1]), true
	})
	require.NoError(t, err)

	est, err := b.EstimateCost(context.Background(), table, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), est.Pairs)

	pairs := collectPairs(t, b.Block(context.Background(), table, nil))
	require.Equal(t, []core.Pair{core.NewPair(
		core.RecordID{Dataset: "people", Key: 1},
		core.RecordID{Dataset: "people", Key: 2},
	)}, pairs)

	_, err = NewDerivedKey("", nil)
	require.Error(t, err)
	_, err = NewDerivedKey("x", nil)
	require.Error(t, err)
}
