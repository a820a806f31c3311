package linkgo

import (
	"context"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	"github.com/hupe1980/linkgo/block"
	"github.com/hupe1980/linkgo/cluster"
	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/fs"
	"github.com/hupe1980/linkgo/pairfile"
	"github.com/hupe1980/linkgo/source"
)

// Linker runs the full linkage pipeline over one or two tables. It is safe
// for concurrent use; weights are swapped atomically so long-running scoring
// passes keep the weights they started with.
type Linker struct {
	left     source.Table
	right    source.Table // nil for dedupe
	blocking block.Blocker
	rules    []block.Blocker
	compare  []compare.Comparer
	weights  atomic.Pointer[fs.Weights]
	opts     options
}

// Link builds a Linker that joins records across two tables.
func Link(left, right source.Table, blockers []block.Blocker, comparers []compare.Comparer, opts ...Option) (*Linker, error) {
	return newLinker(left, right, blockers, comparers, opts)
}

// Dedupe builds a Linker that finds duplicates within a single table.
func Dedupe(table source.Table, blockers []block.Blocker, comparers []compare.Comparer, opts ...Option) (*Linker, error) {
	return newLinker(table, nil, blockers, comparers, opts)
}

// fieldValidator is the optional interface comparers implement to have
// their field names checked against the table schemas at construction.
// compare.Dimension implements it; custom Comparers may opt in.
type fieldValidator interface {
	Validate(leftColumns, rightColumns []string) error
}

func newLinker(left, right source.Table, blockers []block.Blocker, comparers []compare.Comparer, opts []Option) (*Linker, error) {
	if left == nil {
		return nil, ErrNoTable
	}
	if len(blockers) == 0 {
		return nil, ErrNoBlockers
	}
	if len(comparers) == 0 {
		return nil, ErrNoComparers
	}

	o := applyOptions(opts)

	var blocking block.Blocker
	if len(blockers) == 1 {
		blocking = blockers[0]
	} else {
		e, err := block.NewEnsemble(blockers...)
		if err != nil {
			return nil, err
		}
		e.UseController(o.controller)
		blocking = e
	}
	if err := blocking.Validate(left, right); err != nil {
		return nil, err
	}

	leftCols := left.Columns()
	rightCols := leftCols
	if right != nil {
		rightCols = right.Columns()
	}
	for _, c := range comparers {
		v, ok := c.(fieldValidator)
		if !ok {
			continue
		}
		if err := v.Validate(leftCols, rightCols); err != nil {
			return nil, err
		}
	}

	return &Linker{
		left:     left,
		right:    right,
		blocking: blocking,
		rules:    blockers,
		compare:  comparers,
		opts:     o,
	}, nil
}

// Weights returns the current model weights, nil before training/loading.
func (l *Linker) Weights() *fs.Weights {
	return l.weights.Load()
}

// SetWeights installs model weights, replacing any previous ones. The model
// must carry one dimension per configured comparer with matching name and
// level count; a mismatched model fails here rather than mid-stream.
func (l *Linker) SetWeights(w *fs.Weights) error {
	if err := l.validateWeights(w); err != nil {
		return err
	}
	l.weights.Store(w)
	return nil
}

func (l *Linker) validateWeights(w *fs.Weights) error {
	for _, c := range l.compare {
		dw, ok := w.DimensionByName(c.Name())
		if !ok {
			return fmt.Errorf("%w: missing dimension %q", ErrWeightsMismatch, c.Name())
		}
		if dw.Len() != len(c.Levels()) {
			return fmt.Errorf("%w: dimension %q has %d levels, comparer has %d",
				ErrWeightsMismatch, c.Name(), dw.Len(), len(c.Levels()))
		}
	}
	return nil
}

// RuleEstimate is the predicted cost of one blocking rule.
type RuleEstimate struct {
	Rule     string
	Shape    block.JoinShape
	Estimate block.Estimate
}

// EstimatePairs predicts the candidate pair volume of every blocking rule
// without reading pair data. The total is an upper bound since rules may
// overlap.
func (l *Linker) EstimatePairs(ctx context.Context) ([]RuleEstimate, block.Estimate, error) {
	var total block.Estimate
	out := make([]RuleEstimate, 0, len(l.rules))
	for _, b := range l.rules {
		est, err := b.EstimateCost(ctx, l.left, l.right)
		if err != nil {
			return nil, block.Estimate{}, fmt.Errorf("estimate rule %s: %w", b.Name(), err)
		}
		out = append(out, RuleEstimate{Rule: b.Name(), Shape: b.JoinShape(), Estimate: est})
		if est.Indeterminate {
			total.Indeterminate = true
			continue
		}
		sum := total.Pairs + est.Pairs
		if sum < total.Pairs {
			total.Indeterminate = true
			continue
		}
		total.Pairs = sum
	}
	return out, total, nil
}

// checkJoins applies the slow-join guard to every rule before blocking.
func (l *Linker) checkJoins(ctx context.Context) error {
	for _, b := range l.rules {
		warning, err := block.CheckJoin(ctx, b, l.left, l.right, l.opts.maxPairs, l.opts.onSlow)
		if err != nil {
			return err
		}
		if warning != nil {
			l.opts.logger.LogSlowJoin(warning.Rule, warning.Estimate.Pairs, warning.MaxPairs)
		}
	}
	return nil
}

// BlockPairs runs the guarded blocking pass and returns the deduplicated
// candidate pair stream. The sequence is restartable; every range re-runs
// blocking.
func (l *Linker) BlockPairs(ctx context.Context) (iter.Seq2[core.CandidatePair, error], error) {
	if err := l.checkJoins(ctx); err != nil {
		return nil, err
	}
	inner := l.blocking.Block(ctx, l.left, l.right)

	return func(yield func(core.CandidatePair, error) bool) {
		start := time.Now()
		var pairs uint64
		var failed error
		for cp, err := range inner {
			if err != nil {
				failed = err
				yield(core.CandidatePair{}, err)
				break
			}
			pairs++
			if !yield(cp, nil) {
				break
			}
		}
		l.opts.metrics.RecordBlock(pairs, time.Since(start), failed)
	}, nil
}

// ComparePairs blocks and labels candidate pairs on all dimensions.
func (l *Linker) ComparePairs(ctx context.Context) (iter.Seq2[compare.Compared, error], error) {
	pairs, err := l.BlockPairs(ctx)
	if err != nil {
		return nil, err
	}
	return compare.Pairs(ctx, pairs, l.compare, compare.WithWorkers(l.opts.workers)), nil
}

// ScorePairs runs the pipeline through scoring with the current weights.
func (l *Linker) ScorePairs(ctx context.Context) (iter.Seq2[core.ScoredPair, error], error) {
	w := l.weights.Load()
	if w == nil {
		return nil, ErrNoWeights
	}
	compared, err := l.ComparePairs(ctx)
	if err != nil {
		return nil, err
	}
	inner := fs.Score(ctx, compared, w)

	return func(yield func(core.ScoredPair, error) bool) {
		start := time.Now()
		var pairs uint64
		var failed error
		for sp, err := range inner {
			if err != nil {
				failed = err
				yield(core.ScoredPair{}, err)
				break
			}
			pairs++
			if !yield(sp, nil) {
				break
			}
		}
		l.opts.metrics.RecordScore(pairs, time.Since(start), failed)
	}, nil
}

// Train fits the Fellegi-Sunter model by EM over the blocked pairs and
// installs the resulting weights. Zero-valued fields of opts take the
// training defaults; the Linker's seed and worker options apply unless
// opts overrides them.
func (l *Linker) Train(ctx context.Context, opts fs.TrainOptions) (*fs.TrainResult, error) {
	if opts.Seed == 0 {
		opts.Seed = l.opts.seed
	}
	if opts.Workers == 0 {
		opts.Workers = l.opts.workers
	}

	compared, err := l.ComparePairs(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if l.opts.controller != nil {
		if err := l.opts.controller.AcquireJob(ctx); err != nil {
			return nil, err
		}
		defer l.opts.controller.ReleaseJob()
	}

	result, err := fs.FitEM(ctx, compared, l.compare, opts)
	if err != nil {
		l.opts.metrics.RecordTrain(0, false, time.Since(start), err)
		return nil, err
	}

	l.weights.Store(result.Weights)
	l.opts.metrics.RecordTrain(result.Iterations, result.Converged, time.Since(start), nil)
	l.opts.logger.LogTraining(result.Iterations, result.Converged, result.Delta, time.Since(start))
	return result, nil
}

// SaveWeights persists the current weights to the configured spill store.
// The format follows the name's extension, "weights.yaml.gz" for example.
func (l *Linker) SaveWeights(ctx context.Context, name string) error {
	w := l.weights.Load()
	if w == nil {
		return ErrNoWeights
	}
	if l.opts.spillStore == nil {
		return ErrNoSpillStore
	}
	return fs.Save(ctx, l.opts.spillStore, name, w)
}

// LoadWeights restores weights from the configured spill store.
func (l *Linker) LoadWeights(ctx context.Context, name string) error {
	if l.opts.spillStore == nil {
		return ErrNoSpillStore
	}
	w, err := fs.Load(ctx, l.opts.spillStore, name)
	if err != nil {
		return err
	}
	return l.SetWeights(w)
}

// Spill scores all pairs and writes them to a pair file in the configured
// store, returning the number of pairs written. Use ResolveSpilled to
// cluster from the file instead of re-running the pipeline.
func (l *Linker) Spill(ctx context.Context, name string) (uint64, error) {
	if l.opts.spillStore == nil {
		return 0, ErrNoSpillStore
	}
	scored, err := l.ScorePairs(ctx)
	if err != nil {
		return 0, err
	}
	return pairfile.WriteAll(ctx, l.opts.spillStore, name, scored,
		pairfile.WithCompression(l.opts.compression),
		pairfile.WithController(l.opts.controller))
}

// Resolve scores all pairs and clusters those at or above threshold into
// entities. Records never touched by an edge only appear when passed via
// cluster.WithSingletons.
func (l *Linker) Resolve(ctx context.Context, threshold float64, opts ...cluster.Option) (*cluster.Result, error) {
	scored, err := l.ScorePairs(ctx)
	if err != nil {
		return nil, err
	}
	return l.resolve(ctx, scored, threshold, opts)
}

// ResolveSpilled clusters from a previously written spill file.
func (l *Linker) ResolveSpilled(ctx context.Context, name string, threshold float64, opts ...cluster.Option) (*cluster.Result, error) {
	if l.opts.spillStore == nil {
		return nil, ErrNoSpillStore
	}
	return l.resolve(ctx, pairfile.Pairs(ctx, l.opts.spillStore, name), threshold, opts)
}

func (l *Linker) resolve(ctx context.Context, scored iter.Seq2[core.ScoredPair, error], threshold float64, opts []cluster.Option) (*cluster.Result, error) {
	start := time.Now()
	result, err := cluster.Resolve(ctx, scored, threshold, opts...)
	if err != nil {
		l.opts.metrics.RecordResolve(0, time.Since(start), err)
		return nil, err
	}
	l.opts.metrics.RecordResolve(result.NumClusters(), time.Since(start), nil)
	l.opts.logger.LogResolve(threshold, result.Len(), result.NumClusters(), time.Since(start))
	return result, nil
}
