package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
)

func exactComparer(t *testing.T, name string) compare.Comparer {
	t.Helper()
	d, err := compare.NewDimension(name, name, []compare.Level{
		{Name: "exact", Matches: compare.Exact()},
	})
	require.NoError(t, err)
	return d
}

// bimodalPairs builds a corpus with a clear match/non-match split: matches
// agree on both dimensions, non-matches agree on neither, plus a thin band
// of partial agreement.
func bimodalPairs(t *testing.T) []compare.Compared {
	t.Helper()
	var pairs []compare.Compared
	key := uint64(0)
	add := func(n int, labels []int) {
		for i := 0; i < n; i++ {
			key += 2
			pairs = append(pairs, compare.Compared{
				Pair:   core.NewPair(core.ID(key), core.ID(key+1)),
				Labels: append([]int(nil), labels...),
			})
		}
	}
	add(50, []int{0, 0})
	add(30, []int{0, 1})
	add(420, []int{1, 1})
	return pairs
}

func TestFitEMSeparatesBimodalData(t *testing.T) {
	comparers := []compare.Comparer{
		exactComparer(t, "surname"),
		exactComparer(t, "city"),
	}
	pairs := bimodalPairs(t)

	res, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 42})
	require.NoError(t, err)
	require.NotNil(t, res.Weights)
	require.Positive(t, res.Iterations)

	for d := 0; d < res.Weights.Len(); d++ {
		dim := res.Weights.Dimension(d)
		exact := dim.Level(0)
		require.Equal(t, "exact", exact.Name)
		// Agreement must be evidence for a match on both dimensions.
		require.Greater(t, exact.M, exact.U, dim.Name())
		require.Positive(t, exact.LogOdds(), dim.Name())
	}

	// The prior should land near the planted match rate.
	prior := LogOddsToProb(res.Weights.PriorLogOdds())
	require.InDelta(t, 0.1, prior, 0.1)
}

func TestFitEMDeterministicForSeed(t *testing.T) {
	comparers := []compare.Comparer{
		exactComparer(t, "surname"),
		exactComparer(t, "city"),
	}
	pairs := bimodalPairs(t)

	run := func() *TrainResult {
		res, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 7})
		require.NoError(t, err)
		return res
	}

	a, b := run(), run()
	require.Equal(t, a.Iterations, b.Iterations)
	require.Equal(t, a.Delta, b.Delta)
	require.Equal(t, a.Weights.PriorLogOdds(), b.Weights.PriorLogOdds())
	for d := 0; d < a.Weights.Len(); d++ {
		require.Equal(t, a.Weights.Dimension(d).Levels(), b.Weights.Dimension(d).Levels())
	}

	other, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 8})
	require.NoError(t, err)
	require.NotEqual(t, a.Weights.Dimension(0).Levels(), other.Weights.Dimension(0).Levels())
}

func TestFitEMParallelMatchesSequential(t *testing.T) {
	comparers := []compare.Comparer{
		exactComparer(t, "surname"),
		exactComparer(t, "city"),
	}
	pairs := bimodalPairs(t)

	seq, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 3})
	require.NoError(t, err)
	par, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 3, Workers: 4})
	require.NoError(t, err)

	require.Equal(t, seq.Iterations, par.Iterations)
	for d := 0; d < seq.Weights.Len(); d++ {
		sl, pl := seq.Weights.Dimension(d).Levels(), par.Weights.Dimension(d).Levels()
		require.Len(t, pl, len(sl))
		for l := range sl {
			require.InDelta(t, sl[l].M, pl[l].M, 1e-9)
			require.InDelta(t, sl[l].U, pl[l].U, 1e-9)
		}
	}
}

func TestFitEMReportsMaxIterations(t *testing.T) {
	comparers := []compare.Comparer{
		exactComparer(t, "surname"),
		exactComparer(t, "city"),
	}
	pairs := bimodalPairs(t)

	res, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{MaxIterations: 1, Seed: 42})
	require.NoError(t, err)
	require.False(t, res.Converged)
	require.Equal(t, TerminationMaxIterations, res.Reason)
	require.Equal(t, 1, res.Iterations)
	require.NotNil(t, res.Weights)
}

func TestFitEMUnseenLevelStaysFinite(t *testing.T) {
	// Three explicit levels but the middle one never occurs in the data.
	d, err := compare.NewDimension("name", "name", []compare.Level{
		{Name: "exact", Matches: compare.Exact()},
		{Name: "fuzzy", Matches: compare.JaccardAtLeast(0.5, nil)},
	})
	require.NoError(t, err)
	comparers := []compare.Comparer{d}

	var pairs []compare.Compared
	for i := 0; i < 40; i++ {
		label := 2
		if i%4 == 0 {
			label = 0
		}
		pairs = append(pairs, compare.Compared{
			Pair:   core.NewPair(core.ID(uint64(2*i)), core.ID(uint64(2*i+1))),
			Labels: []int{label},
		})
	}

	res, err := FitEM(context.Background(), seqOf(pairs), comparers, TrainOptions{Seed: 1})
	require.NoError(t, err)

	fuzzy, ok := res.Weights.Dimension(0).LevelByName("fuzzy")
	require.True(t, ok)
	require.Positive(t, fuzzy.M)
	require.Positive(t, fuzzy.U)
}

func TestFitEMErrors(t *testing.T) {
	comparers := []compare.Comparer{exactComparer(t, "surname")}

	_, err := FitEM(context.Background(), seqOf([]compare.Compared{}), comparers, TrainOptions{})
	require.ErrorIs(t, err, ErrNoPairs)

	_, err = FitEM(context.Background(), seqOf([]compare.Compared{}), nil, TrainOptions{})
	require.ErrorIs(t, err, ErrNoDimensions)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FitEM(ctx, seqOf(bimodalPairs(t)), []compare.Comparer{
		exactComparer(t, "surname"),
		exactComparer(t, "city"),
	}, TrainOptions{})
	require.ErrorIs(t, err, context.Canceled)
}
