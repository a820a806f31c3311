// Package metric compares a predicted clustering against a ground-truth
// partition with the established clustering-agreement statistics.
//
// All functions take two labelings, record id to cluster label, and are
// pure. Ground truth may be partial: evaluation is restricted to the
// identifiers present in BOTH labelings. An identifier absent from the
// truth is excluded from the comparison, not treated as a singleton
// non-match; this exclusion is part of the contract, not an accident of
// implementation. Label values carry no meaning beyond equality, so
// renumbering clusters never changes any statistic.
package metric

import (
	"math"

	"github.com/hupe1980/linkgo/core"
)

// Labeling maps record identifiers to cluster labels. Only label equality
// matters.
type Labeling[L comparable] map[core.RecordID]L

// contingency is the cross-tabulation of two labelings over their shared
// identifiers.
type contingency struct {
	cells map[[2]int]float64
	rows  []float64 // per predicted cluster
	cols  []float64 // per true cluster
	n     float64
}

func crossTab[P, T comparable](pred Labeling[P], truth Labeling[T]) contingency {
	rowIdx := make(map[P]int)
	colIdx := make(map[T]int)
	ct := contingency{cells: make(map[[2]int]float64)}

	for id, p := range pred {
		tr, ok := truth[id]
		if !ok {
			continue // no ground truth for this id: excluded
		}
		ri, ok := rowIdx[p]
		if !ok {
			ri = len(ct.rows)
			rowIdx[p] = ri
			ct.rows = append(ct.rows, 0)
		}
		ci, ok := colIdx[tr]
		if !ok {
			ci = len(ct.cols)
			colIdx[tr] = ci
			ct.cols = append(ct.cols, 0)
		}
		ct.cells[[2]int{ri, ci}]++
		ct.rows[ri]++
		ct.cols[ci]++
		ct.n++
	}
	return ct
}

// comb2 is n choose 2.
func comb2(n float64) float64 {
	return n * (n - 1) / 2
}

// PairConfusion counts agreement over all unordered identifier pairs:
// together in both partitions (TruePositive), only in the prediction
// (FalsePositive), only in the truth (FalseNegative), or in neither
// (TrueNegative).
type PairConfusion struct {
	TruePositive  float64
	FalsePositive float64
	FalseNegative float64
	TrueNegative  float64
}

// Confusion computes the pair-confusion counts over the shared ids.
func Confusion[P, T comparable](pred Labeling[P], truth Labeling[T]) PairConfusion {
	return crossTab(pred, truth).confusion()
}

func (ct contingency) confusion() PairConfusion {
	var tp float64
	for _, c := range ct.cells {
		tp += comb2(c)
	}
	var samePred, sameTruth float64
	for _, r := range ct.rows {
		samePred += comb2(r)
	}
	for _, c := range ct.cols {
		sameTruth += comb2(c)
	}
	total := comb2(ct.n)
	return PairConfusion{
		TruePositive:  tp,
		FalsePositive: samePred - tp,
		FalseNegative: sameTruth - tp,
		TrueNegative:  total - samePred - sameTruth + tp,
	}
}

// RandIndex is the fraction of identifier pairs on which the two
// partitions agree. 1 means identical partitions.
func RandIndex[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	pc := Confusion(pred, truth)
	total := pc.TruePositive + pc.FalsePositive + pc.FalseNegative + pc.TrueNegative
	if total == 0 {
		return 1
	}
	return (pc.TruePositive + pc.TrueNegative) / total
}

// AdjustedRand is the Rand index corrected for chance: 1 for identical
// partitions, near 0 for random labelings, negative for worse than chance.
func AdjustedRand[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	ct := crossTab(pred, truth)

	var index float64
	for _, c := range ct.cells {
		index += comb2(c)
	}
	var samePred, sameTruth float64
	for _, r := range ct.rows {
		samePred += comb2(r)
	}
	for _, c := range ct.cols {
		sameTruth += comb2(c)
	}

	total := comb2(ct.n)
	if total == 0 {
		return 1
	}
	expected := samePred * sameTruth / total
	max := (samePred + sameTruth) / 2
	if max == expected {
		// Both partitions degenerate the same way and agree perfectly.
		return 1
	}
	return (index - expected) / (max - expected)
}

// FowlkesMallows is the geometric mean of pairwise precision and recall.
func FowlkesMallows[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	pc := Confusion(pred, truth)
	den := math.Sqrt((pc.TruePositive + pc.FalsePositive) * (pc.TruePositive + pc.FalseNegative))
	if den == 0 {
		return 0
	}
	return pc.TruePositive / den
}

// entropy of a marginal distribution, in nats.
func entropy(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	var h float64
	for _, c := range counts {
		if c > 0 {
			p := c / n
			h -= p * math.Log(p)
		}
	}
	return h
}

// MutualInfo is the mutual information between the two labelings in nats.
func MutualInfo[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	return crossTab(pred, truth).mutualInfo()
}

func (ct contingency) mutualInfo() float64 {
	if ct.n == 0 {
		return 0
	}
	var mi float64
	for cell, c := range ct.cells {
		if c == 0 {
			continue
		}
		mi += (c / ct.n) * math.Log(c*ct.n/(ct.rows[cell[0]]*ct.cols[cell[1]]))
	}
	if mi < 0 {
		return 0 // floating noise on independent labelings
	}
	return mi
}

// NormalizedMutualInfo scales mutual information into [0, 1] by the
// arithmetic mean of the two marginal entropies. Two identical trivial
// partitions score 1.
func NormalizedMutualInfo[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	ct := crossTab(pred, truth)
	hp := entropy(ct.rows, ct.n)
	ht := entropy(ct.cols, ct.n)
	if hp == 0 && ht == 0 {
		return 1
	}
	mean := (hp + ht) / 2
	if mean == 0 {
		return 0
	}
	return ct.mutualInfo() / mean
}

// AdjustedMutualInfo corrects mutual information for chance: 1 for
// identical partitions, near 0 for independent labelings, possibly
// negative. The expected MI under the permutation null model is computed
// exactly in log space.
func AdjustedMutualInfo[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	ct := crossTab(pred, truth)
	hp := entropy(ct.rows, ct.n)
	ht := entropy(ct.cols, ct.n)
	if hp == 0 && ht == 0 {
		return 1
	}

	mi := ct.mutualInfo()
	emi := ct.expectedMutualInfo()
	den := (hp+ht)/2 - emi
	if den == 0 {
		return 0
	}
	return (mi - emi) / den
}

// expectedMutualInfo computes E[MI] over random labelings sharing the same
// marginals (Vinh, Epps and Bailey 2010).
func (ct contingency) expectedMutualInfo() float64 {
	n := ct.n
	if n == 0 {
		return 0
	}

	var emi float64
	for _, a := range ct.rows {
		for _, b := range ct.cols {
			lo := math.Max(1, a+b-n)
			hi := math.Min(a, b)
			for nij := lo; nij <= hi; nij++ {
				// Hypergeometric probability of the cell holding nij.
				logP := lgamma(a+1) + lgamma(b+1) + lgamma(n-a+1) + lgamma(n-b+1) -
					lgamma(n+1) - lgamma(nij+1) - lgamma(a-nij+1) - lgamma(b-nij+1) -
					lgamma(n-a-b+nij+1)
				emi += (nij / n) * math.Log(n*nij/(a*b)) * math.Exp(logP)
			}
		}
	}
	return emi
}

func lgamma(x float64) float64 {
	v, _ := math.Lgamma(x)
	return v
}

// Homogeneity is 1 when every predicted cluster contains members of a
// single true cluster.
func Homogeneity[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	ct := crossTab(pred, truth)
	ht := entropy(ct.cols, ct.n)
	if ht == 0 {
		return 1
	}
	return ct.mutualInfo() / ht
}

// Completeness is 1 when all members of each true cluster land in a single
// predicted cluster.
func Completeness[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	ct := crossTab(pred, truth)
	hp := entropy(ct.rows, ct.n)
	if hp == 0 {
		return 1
	}
	return ct.mutualInfo() / hp
}

// VMeasure is the harmonic mean of homogeneity and completeness.
func VMeasure[P, T comparable](pred Labeling[P], truth Labeling[T]) float64 {
	h := Homogeneity(pred, truth)
	c := Completeness(pred, truth)
	if h+c == 0 {
		return 0
	}
	return 2 * h * c / (h + c)
}

// Report bundles every statistic for one prediction-truth comparison.
type Report struct {
	Pairs              PairConfusion
	Rand               float64
	AdjustedRand       float64
	FowlkesMallows     float64
	MutualInfo         float64
	NormalizedMI       float64
	AdjustedMI         float64
	Homogeneity        float64
	Completeness       float64
	VMeasure           float64
	EvaluatedRecords   int
	PredictedOnly      int // ids with a prediction but no ground truth
	TruthOnly          int // ids with ground truth but no prediction
	PredictedClusters  int
	TrueClusters       int
}

// Evaluate computes the full report in one pass over the labelings.
func Evaluate[P, T comparable](pred Labeling[P], truth Labeling[T]) Report {
	ct := crossTab(pred, truth)

	shared := int(ct.n)
	r := Report{
		Pairs:             ct.confusion(),
		Rand:              RandIndex(pred, truth),
		AdjustedRand:      AdjustedRand(pred, truth),
		FowlkesMallows:    FowlkesMallows(pred, truth),
		MutualInfo:        ct.mutualInfo(),
		NormalizedMI:      NormalizedMutualInfo(pred, truth),
		AdjustedMI:        AdjustedMutualInfo(pred, truth),
		Homogeneity:       Homogeneity(pred, truth),
		Completeness:      Completeness(pred, truth),
		VMeasure:          VMeasure(pred, truth),
		EvaluatedRecords:  shared,
		PredictedOnly:     len(pred) - shared,
		PredictedClusters: len(ct.rows),
		TrueClusters:      len(ct.cols),
	}
	for id := range truth {
		if _, ok := pred[id]; !ok {
			r.TruthOnly++
		}
	}
	return r
}
