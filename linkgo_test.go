package linkgo_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo"
	"github.com/hupe1980/linkgo/blobstore"
	"github.com/hupe1980/linkgo/block"
	"github.com/hupe1980/linkgo/cluster"
	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/fs"
	"github.com/hupe1980/linkgo/source"
)

func person(id uint64, name, zip string) core.Record {
	return core.Record{
		ID:     core.ID(id),
		Fields: map[string]any{"name": name, "zip": zip},
	}
}

// pid is a dataset-qualified id as the people table stamps it on scan.
func pid(key uint64) core.RecordID {
	return core.RecordID{Dataset: "people", Key: key}
}

// peopleTable has one true duplicate pair (1,2) sharing name and zip, a
// same-zip non-duplicate pair (3,4), and two isolated records.
func peopleTable(t *testing.T) *source.MemoryTable {
	t.Helper()
	return source.NewMemoryTable("people", []core.Record{
		person(1, "alice smith", "10001"),
		person(2, "alice smith", "10001"),
		person(3, "bob jones", "20002"),
		person(4, "carol white", "20002"),
		person(5, "dan brown", "30003"),
		person(6, "eve black", "40004"),
	})
}

func dimensions(t *testing.T) []compare.Comparer {
	t.Helper()
	name, err := compare.NewDimension("name", "name", []compare.Level{
		{Name: "exact", Matches: compare.Exact()},
	})
	require.NoError(t, err)
	zip, err := compare.NewDimension("zip", "zip", []compare.Level{
		{Name: "exact", Matches: compare.Exact()},
	})
	require.NoError(t, err)
	return []compare.Comparer{name, zip}
}

// handWeights is a small model with known scores: both-exact pairs land
// well above +1, zip-only pairs well below 0.
func handWeights(t *testing.T) *fs.Weights {
	t.Helper()
	name, err := fs.NewDimensionWeights("name", []fs.LevelWeights{
		{Name: "exact", M: 0.9, U: 0.05},
	})
	require.NoError(t, err)
	zip, err := fs.NewDimensionWeights("zip", []fs.LevelWeights{
		{Name: "exact", M: 0.8, U: 0.1},
	})
	require.NoError(t, err)
	w, err := fs.New(fs.PriorFromProbability(0.1), name, zip)
	require.NoError(t, err)
	return w
}

func TestDedupeEndToEnd(t *testing.T) {
	ctx := context.Background()
	metrics := &linkgo.BasicMetricsCollector{}

	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
		linkgo.WithMetrics(metrics),
	)
	require.NoError(t, err)

	require.NoError(t, linker.SetWeights(handWeights(t)))

	result, err := linker.Resolve(ctx, 1.0)
	require.NoError(t, err)

	// Only (1,2) scores above threshold; (3,4) shares zip but not name.
	require.Equal(t, 1, result.NumClusters())
	c1, ok := result.ClusterOf(pid(1))
	require.True(t, ok)
	c2, ok := result.ClusterOf(pid(2))
	require.True(t, ok)
	require.Equal(t, c1, c2)
	_, ok = result.ClusterOf(pid(3))
	require.False(t, ok)

	// Result ids carry the table's dataset; a bare key never resolves.
	_, ok = result.ClusterOf(core.ID(1))
	require.False(t, ok)

	require.Equal(t, int64(1), metrics.ResolveRuns.Load())
	require.Greater(t, metrics.BlockPairs.Load(), uint64(0))
}

func TestResolveWithSingletons(t *testing.T) {
	ctx := context.Background()
	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
	)
	require.NoError(t, err)
	require.NoError(t, linker.SetWeights(handWeights(t)))

	all := []core.RecordID{
		pid(1), pid(2), pid(3), pid(4), pid(5), pid(6),
	}
	result, err := linker.Resolve(ctx, 1.0, cluster.WithSingletons(all...))
	require.NoError(t, err)

	// One real cluster plus four singletons (3, 4, 5, 6).
	require.Equal(t, 5, result.NumClusters())
	require.Equal(t, 6, result.Len())
}

func TestEstimatePairs(t *testing.T) {
	ctx := context.Background()
	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
	)
	require.NoError(t, err)

	rules, total, err := linker.EstimatePairs(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.False(t, total.Indeterminate)

	// Zip groups of 2, 2, 1, 1 make C(2,2)+C(2,2) = 2 pairs.
	require.Equal(t, uint64(2), total.Pairs)
}

func TestScoreWithoutWeights(t *testing.T) {
	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
	)
	require.NoError(t, err)

	_, err = linker.ScorePairs(context.Background())
	require.ErrorIs(t, err, linkgo.ErrNoWeights)

	_, err = linker.Resolve(context.Background(), 1.0)
	require.ErrorIs(t, err, linkgo.ErrNoWeights)
}

func TestMaxPairsGuard(t *testing.T) {
	ctx := context.Background()

	strict, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.NewCross()},
		dimensions(t),
		linkgo.WithMaxPairs(1),
	)
	require.NoError(t, err)

	_, err = strict.BlockPairs(ctx)
	var slow *block.SlowJoinError
	require.ErrorAs(t, err, &slow)
	require.Equal(t, "cross", slow.Rule)

	lenient, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.NewCross()},
		dimensions(t),
		linkgo.WithMaxPairs(1),
		linkgo.WithOnSlow(block.OnSlowWarn),
	)
	require.NoError(t, err)

	pairs, err := lenient.BlockPairs(ctx)
	require.NoError(t, err)
	n := 0
	for _, err := range pairs {
		require.NoError(t, err)
		n++
	}
	require.Equal(t, 15, n) // C(6,2)
}

func TestTrainInstallsWeights(t *testing.T) {
	ctx := context.Background()

	// Enough volume for EM to run: five duplicated names per zip plus
	// unrelated records in the same block.
	var rows []core.Record
	id := uint64(1)
	zips := []string{"11111", "22222", "33333", "44444", "55555"}
	for i, zip := range zips {
		dup := "person " + zip
		rows = append(rows,
			person(id, dup, zip),
			person(id+1, dup, zip),
			person(id+2, "alt a "+zips[i], zip),
			person(id+3, "alt b "+zips[i], zip),
		)
		id += 4
	}
	table := source.NewMemoryTable("people", rows)

	linker, err := linkgo.Dedupe(table,
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
		linkgo.WithSeed(42),
	)
	require.NoError(t, err)
	require.Nil(t, linker.Weights())

	result, err := linker.Train(ctx, fs.TrainOptions{MaxIterations: 10})
	require.NoError(t, err)
	require.NotNil(t, result.Weights)
	require.Greater(t, result.Iterations, 0)
	require.Same(t, result.Weights, linker.Weights())
}

func TestSpillAndResolveSpilled(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
		linkgo.WithSpillStore(store),
	)
	require.NoError(t, err)
	require.NoError(t, linker.SetWeights(handWeights(t)))

	n, err := linker.Spill(ctx, "run/scored.lpf")
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)

	direct, err := linker.Resolve(ctx, 1.0)
	require.NoError(t, err)
	spilled, err := linker.ResolveSpilled(ctx, "run/scored.lpf", 1.0)
	require.NoError(t, err)

	require.Equal(t, direct.NumClusters(), spilled.NumClusters())
	require.Equal(t, direct.Membership(), spilled.Membership())
}

func TestSaveLoadWeights(t *testing.T) {
	ctx := context.Background()
	store := blobstore.NewMemoryStore()

	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
		linkgo.WithSpillStore(store),
	)
	require.NoError(t, err)

	require.ErrorIs(t, linker.SaveWeights(ctx, "weights.yaml"), linkgo.ErrNoWeights)

	require.NoError(t, linker.SetWeights(handWeights(t)))
	require.NoError(t, linker.SaveWeights(ctx, "weights.yaml"))

	other, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
		linkgo.WithSpillStore(store),
	)
	require.NoError(t, err)
	require.NoError(t, other.LoadWeights(ctx, "weights.yaml"))

	got, ok := other.Weights().DimensionByName("name")
	require.True(t, ok)
	exact, ok := got.LevelByName("exact")
	require.True(t, ok)
	require.InDelta(t, 0.9, exact.M, 1e-9)
}

func TestSetWeightsShapeMismatch(t *testing.T) {
	linker, err := linkgo.Dedupe(peopleTable(t),
		[]block.Blocker{block.MustKey("zip")},
		dimensions(t),
	)
	require.NoError(t, err)

	// Model missing the zip dimension entirely.
	nameOnly, err := fs.NewDimensionWeights("name", []fs.LevelWeights{
		{Name: "exact", M: 0.9, U: 0.05},
	})
	require.NoError(t, err)
	w, err := fs.New(fs.PriorFromProbability(0.1), nameOnly)
	require.NoError(t, err)
	require.ErrorIs(t, linker.SetWeights(w), linkgo.ErrWeightsMismatch)

	// Model whose name dimension has an extra level the comparer lacks.
	wideName, err := fs.NewDimensionWeights("name", []fs.LevelWeights{
		{Name: "exact", M: 0.8, U: 0.05},
		{Name: "fuzzy", M: 0.1, U: 0.1},
	})
	require.NoError(t, err)
	zip, err := fs.NewDimensionWeights("zip", []fs.LevelWeights{
		{Name: "exact", M: 0.8, U: 0.1},
	})
	require.NoError(t, err)
	w, err = fs.New(fs.PriorFromProbability(0.1), wideName, zip)
	require.NoError(t, err)
	require.ErrorIs(t, linker.SetWeights(w), linkgo.ErrWeightsMismatch)
	require.Nil(t, linker.Weights())

	require.NoError(t, linker.SetWeights(handWeights(t)))
	require.NotNil(t, linker.Weights())
}

func TestConstructorValidation(t *testing.T) {
	table := peopleTable(t)
	dims := dimensions(t)
	blockers := []block.Blocker{block.MustKey("zip")}

	_, err := linkgo.Dedupe(nil, blockers, dims)
	require.ErrorIs(t, err, linkgo.ErrNoTable)

	_, err = linkgo.Dedupe(table, nil, dims)
	require.ErrorIs(t, err, linkgo.ErrNoBlockers)

	_, err = linkgo.Dedupe(table, blockers, nil)
	require.ErrorIs(t, err, linkgo.ErrNoComparers)

	// A dimension reading a column the table lacks fails at build time.
	bad, err := compare.NewDimension("ssn", "ssn", []compare.Level{
		{Name: "exact", Matches: compare.Exact()},
	})
	require.NoError(t, err)
	_, err = linkgo.Dedupe(table, blockers, []compare.Comparer{bad})
	require.Error(t, err)

	// So does a key blocker over a missing column.
	_, err = linkgo.Dedupe(table, []block.Blocker{block.MustKey("ssn")}, dims)
	require.Error(t, err)
}
