package fs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
)

func comparedWith(labels ...[]int) []compare.Compared {
	out := make([]compare.Compared, len(labels))
	for i, l := range labels {
		out[i] = compare.Compared{
			Pair:   core.NewPair(core.ID(uint64(2*i)), core.ID(uint64(2*i+1))),
			Labels: l,
		}
	}
	return out
}

func TestLevelProportions(t *testing.T) {
	comparers := []compare.Comparer{exactComparer(t, "surname")}
	pairs := comparedWith([]int{0}, []int{0}, []int{0}, []int{1})

	props, err := LevelProportions(context.Background(), seqOf(pairs), comparers)
	require.NoError(t, err)
	require.Len(t, props, 1)
	require.InDelta(t, 0.75, props[0][0], 1e-12)
	require.InDelta(t, 0.25, props[0][1], 1e-12)
}

func TestLevelProportionsPseudoCountForUnseen(t *testing.T) {
	comparers := []compare.Comparer{exactComparer(t, "surname")}
	pairs := comparedWith([]int{0}, []int{0}, []int{0})

	props, err := LevelProportions(context.Background(), seqOf(pairs), comparers)
	require.NoError(t, err)
	// The unseen level counts as one observation: 3/4 and 1/4.
	require.InDelta(t, 0.75, props[0][0], 1e-12)
	require.InDelta(t, 0.25, props[0][1], 1e-12)
}

func TestLevelProportionsErrors(t *testing.T) {
	comparers := []compare.Comparer{exactComparer(t, "surname")}

	_, err := LevelProportions(context.Background(), seqOf([]compare.Compared{}), comparers)
	require.ErrorIs(t, err, ErrNoPairs)

	_, err = LevelProportions(context.Background(), seqOf(comparedWith([]int{0, 1})), comparers)
	require.Error(t, err, "label count mismatch")

	_, err = LevelProportions(context.Background(), seqOf(comparedWith([]int{9})), comparers)
	require.Error(t, err, "label out of range")
}

func TestTrainUsingLabels(t *testing.T) {
	comparers := []compare.Comparer{exactComparer(t, "surname")}

	matches := comparedWith([]int{0}, []int{0}, []int{0}, []int{1})
	nonMatches := comparedWith([]int{1}, []int{1}, []int{1}, []int{0})

	w, err := TrainUsingLabels(context.Background(), seqOf(matches), seqOf(nonMatches), comparers, 0.05)
	require.NoError(t, err)

	exact := w.Dimension(0).Level(0)
	require.InDelta(t, 0.75, exact.M, 1e-12)
	require.InDelta(t, 0.25, exact.U, 1e-12)
	require.Positive(t, exact.LogOdds())
	require.InDelta(t, 0.05, LogOddsToProb(w.PriorLogOdds()), 1e-12)

	_, err = TrainUsingLabels(context.Background(), seqOf(matches), seqOf(nonMatches), comparers, 0)
	require.Error(t, err)
}

func TestSample(t *testing.T) {
	items := make([]int, 1000)
	for i := range items {
		items[i] = i
	}

	got, err := Sample(seqOf(items), 10, 99)
	require.NoError(t, err)
	require.Len(t, got, 10)

	again, err := Sample(seqOf(items), 10, 99)
	require.NoError(t, err)
	require.Equal(t, got, again)

	other, err := Sample(seqOf(items), 10, 100)
	require.NoError(t, err)
	require.NotEqual(t, got, other)

	// Fewer items than the cap returns everything in order.
	small, err := Sample(seqOf(items[:3]), 10, 1)
	require.NoError(t, err)
	require.Equal(t, []int{0, 1, 2}, small)

	_, err = Sample(seqOf(items), 0, 1)
	require.Error(t, err)
}
