package block

import (
	"context"
	"iter"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

// CrossBlocker emits the full cross product. It exists for sampling random
// pairs during training and for tiny tables; its join shape is nested-loop,
// so CheckJoin refuses it at any realistic size unless the caller opts out.
type CrossBlocker struct{}

// NewCross creates a cross blocker.
func NewCross() *CrossBlocker { return &CrossBlocker{} }

// Name identifies the rule.
func (*CrossBlocker) Name() string { return "cross" }

// JoinShape is nested-loop: no key bounds the join.
func (*CrossBlocker) JoinShape() JoinShape { return JoinShapeNestedLoop }

// Validate never fails: the cross product references no fields.
func (*CrossBlocker) Validate(left, right source.Table) error { return nil }

// EstimateCost is nL*nR, or n*(n-1)/2 for dedupe.
func (*CrossBlocker) EstimateCost(ctx context.Context, left, right source.Table) (Estimate, error) {
	nl, err := left.Count(ctx)
	if err != nil {
		return Estimate{}, err
	}

	if right == nil {
		pairs, ok := selfPairs(nl)
		if !ok {
			return Estimate{Indeterminate: true}, nil
		}
		return Estimate{Pairs: pairs}, nil
	}

	nr, err := right.Count(ctx)
	if err != nil {
		return Estimate{}, err
	}
	pairs, ok := mulPairs(nl, nr)
	if !ok {
		return Estimate{Indeterminate: true}, nil
	}
	return Estimate{Pairs: pairs}, nil
}

// Block streams every pair. Dedupe emits each unordered pair once with the
// smaller record id on the left.
func (*CrossBlocker) Block(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	if right == nil {
		return crossSelf(ctx, left)
	}
	return func(yield func(core.CandidatePair, error) bool) {
		for l, err := range left.Scan(ctx, left.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			for r, err := range right.Scan(ctx, right.Columns()...) {
				if err != nil {
					yield(core.CandidatePair{}, err)
					return
				}
				if !yield(core.CandidatePair{Left: l, Right: r}, nil) {
					return
				}
			}
		}
	}
}

func crossSelf(ctx context.Context, t source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		var rows []core.Record
		for r, err := range t.Scan(ctx, t.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			rows = append(rows, r)
		}
		for i := 0; i < len(rows); i++ {
			if err := ctx.Err(); err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			for j := i + 1; j < len(rows); j++ {
				pair := core.CandidatePair{Left: rows[i], Right: rows[j]}
				if rows[j].ID.Less(rows[i].ID) {
					pair = core.CandidatePair{Left: rows[j], Right: rows[i]}
				}
				if !yield(pair, nil) {
					return
				}
			}
		}
	}
}
