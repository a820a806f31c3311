package fs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/linkgo/compare"
)

// ErrNoPairs is returned when the training input yields no pairs.
var ErrNoPairs = errors.New("training input yielded no pairs")

// TerminationReason says which condition ended an EM run.
type TerminationReason string

const (
	// TerminationConverged: the maximum parameter delta fell below epsilon.
	TerminationConverged TerminationReason = "converged"
	// TerminationMaxIterations: the iteration budget ran out first.
	TerminationMaxIterations TerminationReason = "max_iterations"
)

// TrainResult is the structured outcome of an EM run. Non-convergence is a
// reported condition, not an error: Weights always holds the best estimate
// so far.
type TrainResult struct {
	Weights    *Weights
	Converged  bool
	Iterations int
	// Delta is the final maximum absolute change across all m/u
	// probabilities and the prior.
	Delta  float64
	Reason TerminationReason
}

// TrainOptions configures FitEM. The zero value is usable.
type TrainOptions struct {
	// MaxIterations caps the EM loop. Default 25.
	MaxIterations int
	// Epsilon is the convergence threshold on the maximum absolute change
	// of any m/u probability or the prior between iterations. Default 1e-4.
	Epsilon float64
	// Seed drives the deterministic jitter applied to the uniform initial m
	// probabilities. The same seed and input always reproduce identical
	// weights.
	Seed int64
	// InitialPrior is the starting overall match-rate probability.
	// Default 0.1.
	InitialPrior float64
	// InitialWeights, when set, skips initialization entirely.
	InitialWeights *Weights
	// Workers parallelizes the E-step. Default 1. The M-step and the
	// iterations themselves are inherently sequential.
	Workers int
}

func (o *TrainOptions) defaults() {
	if o.MaxIterations <= 0 {
		o.MaxIterations = 25
	}
	if o.Epsilon <= 0 {
		o.Epsilon = 1e-4
	}
	if o.InitialPrior <= 0 || o.InitialPrior >= 1 {
		o.InitialPrior = 0.1
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
}

// FitEM estimates Fellegi-Sunter weights from unlabeled compared pairs by
// expectation-maximization.
//
// The input sequence must be restartable: every iteration re-ranges over it
// (plus one initialization pass), so a slice-backed or re-openable source is
// required. Initialization uses uniform (seed-jittered) m probabilities and
// the observed level proportions as u, after splink. Each E-step computes
// the posterior match probability of every pair under the current weights;
// the M-step re-estimates every level's m and u as posterior-weighted
// frequencies and the prior as the mean posterior. A level that never occurs
// in the sample receives a pseudo-observation instead of zero, so no -Inf
// weight can contaminate future scores.
//
// Cancellation is checked between iterations and pair batches, never
// mid-pair.
func FitEM(ctx context.Context, pairs iter.Seq2[compare.Compared, error], comparers []compare.Comparer, opts TrainOptions) (*TrainResult, error) {
	if len(comparers) == 0 {
		return nil, ErrNoDimensions
	}
	opts.defaults()

	weights := opts.InitialWeights
	if weights == nil {
		var err error
		weights, err = initialWeights(ctx, pairs, comparers, opts)
		if err != nil {
			return nil, err
		}
	}

	result := &TrainResult{Weights: weights}
	for iterN := 1; iterN <= opts.MaxIterations; iterN++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		acc, err := eStep(ctx, pairs, weights, opts.Workers)
		if err != nil {
			return nil, err
		}
		if acc.pairs == 0 {
			return nil, ErrNoPairs
		}

		next, err := mStep(comparers, acc)
		if err != nil {
			return nil, err
		}

		delta := maxDelta(weights, next)
		weights = next
		result.Weights = weights
		result.Iterations = iterN
		result.Delta = delta

		if delta < opts.Epsilon {
			result.Converged = true
			result.Reason = TerminationConverged
			return result, nil
		}
	}

	result.Reason = TerminationMaxIterations
	return result, nil
}

// initialWeights builds the starting model: jittered-uniform m, observed
// level proportions as u, prior from InitialPrior.
func initialWeights(ctx context.Context, pairs iter.Seq2[compare.Compared, error], comparers []compare.Comparer, opts TrainOptions) (*Weights, error) {
	props, err := LevelProportions(ctx, pairs, comparers)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	dims := make([]*DimensionWeights, len(comparers))
	for i, c := range comparers {
		names := c.Levels()
		n := len(names)

		ms := make([]float64, n)
		var sum float64
		for l := range ms {
			// Small deterministic jitter breaks ties between levels that
			// start out identical.
			ms[l] = (1 + 0.01*(rng.Float64()-0.5)) / float64(n)
			sum += ms[l]
		}

		levels := make([]LevelWeights, n)
		for l, name := range names {
			levels[l] = LevelWeights{Name: name, M: ms[l] / sum, U: props[i][l]}
		}
		dims[i], err = newCompleteDimensionWeights(c.Name(), levels)
		if err != nil {
			return nil, err
		}
	}
	return New(PriorFromProbability(opts.InitialPrior), dims...)
}

// accumulator holds one E-step's sufficient statistics.
type accumulator struct {
	// mSoft[d][l] is the posterior-weighted count of label l on dimension d
	// among matches; uSoft the complement. seen[d][l] counts raw occurrences.
	mSoft [][]float64
	uSoft [][]float64
	seen  [][]uint64

	posteriorSum float64
	pairs        uint64
}

func newAccumulator(w *Weights) *accumulator {
	acc := &accumulator{
		mSoft: make([][]float64, w.Len()),
		uSoft: make([][]float64, w.Len()),
		seen:  make([][]uint64, w.Len()),
	}
	for d := 0; d < w.Len(); d++ {
		n := w.Dimension(d).Len()
		acc.mSoft[d] = make([]float64, n)
		acc.uSoft[d] = make([]float64, n)
		acc.seen[d] = make([]uint64, n)
	}
	return acc
}

func (acc *accumulator) add(c compare.Compared, w *Weights) error {
	score, err := w.Score(c.Labels)
	if err != nil {
		return err
	}
	p := LogOddsToProb(score)
	if math.IsNaN(p) {
		// Conflicting certain evidence (+Inf and -Inf in one pair):
		// fall back to the prior so the pair stays informative-neutral.
		p = LogOddsToProb(w.PriorLogOdds())
	}
	for d, label := range c.Labels {
		acc.mSoft[d][label] += p
		acc.uSoft[d][label] += 1 - p
		acc.seen[d][label]++
	}
	acc.posteriorSum += p
	acc.pairs++
	return nil
}

func (acc *accumulator) merge(other *accumulator) {
	for d := range acc.mSoft {
		for l := range acc.mSoft[d] {
			acc.mSoft[d][l] += other.mSoft[d][l]
			acc.uSoft[d][l] += other.uSoft[d][l]
			acc.seen[d][l] += other.seen[d][l]
		}
	}
	acc.posteriorSum += other.posteriorSum
	acc.pairs += other.pairs
}

const eStepBatchSize = 1024

func eStep(ctx context.Context, pairs iter.Seq2[compare.Compared, error], w *Weights, workers int) (*accumulator, error) {
	if workers <= 1 {
		acc := newAccumulator(w)
		batch := 0
		for c, err := range pairs {
			if err != nil {
				return nil, err
			}
			if err := acc.add(c, w); err != nil {
				return nil, err
			}
			if batch++; batch%eStepBatchSize == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
		}
		return acc, nil
	}

	in := make(chan []compare.Compared, workers)
	accs := make([]*accumulator, workers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(in)
		batch := make([]compare.Compared, 0, eStepBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			select {
			case in <- batch:
				batch = make([]compare.Compared, 0, eStepBatchSize)
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		for c, err := range pairs {
			if err != nil {
				return err
			}
			batch = append(batch, c)
			if len(batch) == eStepBatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
		return flush()
	})

	for i := 0; i < workers; i++ {
		acc := newAccumulator(w)
		accs[i] = acc
		g.Go(func() error {
			for batch := range in {
				for _, c := range batch {
					if err := acc.add(c, w); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := accs[0]
	for _, acc := range accs[1:] {
		total.merge(acc)
	}
	return total, nil
}

// mStep turns E-step statistics into the next Weights value.
func mStep(comparers []compare.Comparer, acc *accumulator) (*Weights, error) {
	dims := make([]*DimensionWeights, len(comparers))
	for d, c := range comparers {
		names := c.Levels()
		mCounts := make([]float64, len(names))
		uCounts := make([]float64, len(names))
		var mTotal, uTotal float64
		for l := range names {
			m, u := acc.mSoft[d][l], acc.uSoft[d][l]
			if acc.seen[d][l] == 0 {
				// Unseen level: pretend we saw it once on both sides rather
				// than estimating zero, which would poison every future
				// score with -Inf.
				m, u = 1, 1
			}
			mCount := math.Max(m, 1e-9)
			uCount := math.Max(u, 1e-9)
			mCounts[l] = mCount
			uCounts[l] = uCount
			mTotal += mCount
			uTotal += uCount
		}

		levels := make([]LevelWeights, len(names))
		for l, name := range names {
			levels[l] = LevelWeights{Name: name, M: mCounts[l] / mTotal, U: uCounts[l] / uTotal}
		}
		dw, err := newCompleteDimensionWeights(c.Name(), levels)
		if err != nil {
			return nil, fmt.Errorf("m-step: %w", err)
		}
		dims[d] = dw
	}

	prior := PriorFromProbability(acc.posteriorSum / float64(acc.pairs))
	return New(prior, dims...)
}

// maxDelta is the convergence measure: the largest absolute change of any
// m/u probability or the prior probability between two models.
func maxDelta(prev, next *Weights) float64 {
	delta := math.Abs(LogOddsToProb(prev.PriorLogOdds()) - LogOddsToProb(next.PriorLogOdds()))
	for d := 0; d < prev.Len(); d++ {
		pd, nd := prev.Dimension(d), next.Dimension(d)
		for l := 0; l < pd.Len(); l++ {
			if dm := math.Abs(pd.Level(l).M - nd.Level(l).M); dm > delta {
				delta = dm
			}
			if du := math.Abs(pd.Level(l).U - nd.Level(l).U); du > delta {
				delta = du
			}
		}
	}
	return delta
}
