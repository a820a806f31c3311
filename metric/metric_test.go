package metric

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/linkgo/core"
)

func labeling(groups ...[]string) Labeling[int] {
	l := make(Labeling[int])
	for i, g := range groups {
		for _, id := range g {
			l[core.RecordID{Dataset: id}] = i
		}
	}
	return l
}

func TestAdjustedRandPerfect(t *testing.T) {
	pred := labeling([]string{"1", "2"}, []string{"3"})
	truth := labeling([]string{"1", "2"}, []string{"3"})

	require.InDelta(t, 1.0, AdjustedRand(pred, truth), 1e-12)
	require.InDelta(t, 1.0, RandIndex(pred, truth), 1e-12)
	require.InDelta(t, 1.0, VMeasure(pred, truth), 1e-12)
}

func TestAdjustedRandSingletonsVsOneCluster(t *testing.T) {
	pred := labeling([]string{"1"}, []string{"2"}, []string{"3"})
	truth := labeling([]string{"1", "2", "3"})

	require.InDelta(t, 0.0, AdjustedRand(pred, truth), 1e-12)
	// Rand itself is 0 here: no pair agrees.
	require.InDelta(t, 0.0, RandIndex(pred, truth), 1e-12)
}

func TestAdjustedRandLabelInvariance(t *testing.T) {
	pred := labeling([]string{"a", "b"}, []string{"c", "d"}, []string{"e"})
	truth := labeling([]string{"a", "b", "c"}, []string{"d", "e"})

	renamed := make(Labeling[string])
	names := []string{"zebra", "yak", "wombat"}
	for id, l := range pred {
		renamed[id] = names[l]
	}

	require.Equal(t, AdjustedRand(pred, truth), AdjustedRand(renamed, truth))
	require.Equal(t, NormalizedMutualInfo(pred, truth), NormalizedMutualInfo(renamed, truth))
}

func TestConfusionCounts(t *testing.T) {
	// pred {1,2,3},{4,5}  truth {1,2},{3,4},{5}
	pred := labeling([]string{"1", "2", "3"}, []string{"4", "5"})
	truth := labeling([]string{"1", "2"}, []string{"3", "4"}, []string{"5"})

	pc := Confusion(pred, truth)
	// Together in both: only (1,2).
	require.Equal(t, 1.0, pc.TruePositive)
	// Together only in pred: (1,3), (2,3), (4,5).
	require.Equal(t, 3.0, pc.FalsePositive)
	// Together only in truth: (3,4).
	require.Equal(t, 1.0, pc.FalseNegative)
	// Remaining of C(5,2)=10 pairs.
	require.Equal(t, 5.0, pc.TrueNegative)

	require.InDelta(t, 6.0/10.0, RandIndex(pred, truth), 1e-12)
	require.InDelta(t, 1.0/math.Sqrt(4*2), FowlkesMallows(pred, truth), 1e-12)
}

func TestPartialGroundTruthExcluded(t *testing.T) {
	pred := labeling([]string{"1", "2"}, []string{"3", "4"})
	// No truth for 3 and 4: they must not influence any statistic.
	truth := labeling([]string{"1", "2"})

	require.InDelta(t, 1.0, AdjustedRand(pred, truth), 1e-12)
	require.InDelta(t, 1.0, RandIndex(pred, truth), 1e-12)

	rep := Evaluate(pred, truth)
	require.Equal(t, 2, rep.EvaluatedRecords)
	require.Equal(t, 2, rep.PredictedOnly)
	require.Equal(t, 0, rep.TruthOnly)
	require.Equal(t, 1, rep.PredictedClusters)
	require.Equal(t, 1, rep.TrueClusters)
}

func TestMutualInfoIdenticalEqualsEntropy(t *testing.T) {
	pred := labeling([]string{"1", "2"}, []string{"3", "4"}, []string{"5", "6"})
	truth := labeling([]string{"1", "2"}, []string{"3", "4"}, []string{"5", "6"})

	// Three equal clusters: H = ln 3, and MI(X, X) = H(X).
	require.InDelta(t, math.Log(3), MutualInfo(pred, truth), 1e-12)
	require.InDelta(t, 1.0, NormalizedMutualInfo(pred, truth), 1e-12)
	require.InDelta(t, 1.0, AdjustedMutualInfo(pred, truth), 1e-9)
}

func TestMutualInfoIndependent(t *testing.T) {
	// Split 4 ids two ways that share no information: {1,2}{3,4} vs {1,3}{2,4}.
	pred := labeling([]string{"1", "2"}, []string{"3", "4"})
	truth := labeling([]string{"1", "3"}, []string{"2", "4"})

	require.InDelta(t, 0.0, MutualInfo(pred, truth), 1e-12)
	require.InDelta(t, 0.0, NormalizedMutualInfo(pred, truth), 1e-12)
	require.LessOrEqual(t, AdjustedMutualInfo(pred, truth), 0.0)
}

func TestHomogeneityCompleteness(t *testing.T) {
	// Over-split prediction: pure clusters, but true clusters broken apart.
	pred := labeling([]string{"1"}, []string{"2"}, []string{"3"}, []string{"4"})
	truth := labeling([]string{"1", "2"}, []string{"3", "4"})

	require.InDelta(t, 1.0, Homogeneity(pred, truth), 1e-12)
	require.Less(t, Completeness(pred, truth), 1.0)

	// Over-merged prediction: the mirror image.
	merged := labeling([]string{"1", "2", "3", "4"})
	require.Less(t, Homogeneity(merged, truth), 1.0)
	require.InDelta(t, 1.0, Completeness(merged, truth), 1e-12)

	v := VMeasure(pred, truth)
	require.Greater(t, v, 0.0)
	require.Less(t, v, 1.0)
}

func TestDegenerateInputs(t *testing.T) {
	empty := Labeling[int]{}
	require.InDelta(t, 1.0, AdjustedRand(empty, empty), 1e-12)
	require.InDelta(t, 1.0, RandIndex(empty, empty), 1e-12)
	require.Equal(t, 0.0, FowlkesMallows(empty, empty))

	one := labeling([]string{"1"})
	require.InDelta(t, 1.0, AdjustedRand(one, one), 1e-12)
	require.InDelta(t, 1.0, NormalizedMutualInfo(one, one), 1e-12)
}
