package block

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/internal/intern"
	"github.com/hupe1980/linkgo/resource"
	"github.com/hupe1980/linkgo/source"
)

// Ensemble unions the candidate streams of several blocking rules and
// deduplicates by pair identity, so no pair reaches comparison twice even
// when multiple rules produce it. Rules run in order; a pair is attributed
// to the first rule that emits it.
type Ensemble struct {
	name       string
	blockers   []Blocker
	controller *resource.Controller
}

// NewEnsemble combines blocking rules.
func NewEnsemble(blockers ...Blocker) (*Ensemble, error) {
	if len(blockers) == 0 {
		return nil, errors.New("ensemble: at least one blocker is required")
	}
	names := make([]string, len(blockers))
	seen := make(map[string]struct{}, len(blockers))
	for i, b := range blockers {
		if b == nil {
			return nil, errors.New("ensemble: blocker must not be nil")
		}
		if _, dup := seen[b.Name()]; dup {
			return nil, fmt.Errorf("ensemble: duplicate blocker %q", b.Name())
		}
		seen[b.Name()] = struct{}{}
		names[i] = b.Name()
	}
	return &Ensemble{
		name:     "ensemble(" + strings.Join(names, " | ") + ")",
		blockers: blockers,
	}, nil
}

// Name identifies the combined rule.
func (e *Ensemble) Name() string { return e.name }

// UseController charges the dedup bitmap against the controller's memory
// ceiling while blocking runs. A nil controller enforces nothing.
func (e *Ensemble) UseController(c *resource.Controller) { e.controller = c }

// JoinShape is the worst shape among the members.
func (e *Ensemble) JoinShape() JoinShape {
	shape := JoinShapeEquality
	for _, b := range e.blockers {
		if b.JoinShape() == JoinShapeNestedLoop {
			shape = JoinShapeNestedLoop
		}
	}
	return shape
}

// Validate fails fast on the first member that references a missing field.
func (e *Ensemble) Validate(left, right source.Table) error {
	for _, b := range e.blockers {
		if err := b.Validate(left, right); err != nil {
			return err
		}
	}
	return nil
}

// EstimateCost sums the members' estimates. The sum ignores overlap
// between rules, so it over-estimates the deduplicated pair count: it is
// an upper bound, suitable for a combined-cost ceiling. Per-rule ceilings
// are checked separately via CheckJoin on each member.
func (e *Ensemble) EstimateCost(ctx context.Context, left, right source.Table) (Estimate, error) {
	var total uint64
	for _, b := range e.blockers {
		est, err := b.EstimateCost(ctx, left, right)
		if err != nil {
			return Estimate{}, err
		}
		if est.Indeterminate {
			return Estimate{Indeterminate: true}, nil
		}
		var ok bool
		if total, ok = addEstimate(total, est.Pairs); !ok {
			return Estimate{Indeterminate: true}, nil
		}
	}
	return Estimate{Pairs: total}, nil
}

// memCheckEvery is how many accepted pairs pass between bitmap size checks.
const memCheckEvery = 4096

// Block streams the union of the members' candidate pairs, each distinct
// pair exactly once. Pair identity is tracked as packed interned-id keys in
// a roaring bitmap, O(distinct pairs) bits rather than materialized pairs.
// With a controller attached, bitmap growth reserves against the memory
// ceiling and the stream fails with resource.ErrMemoryLimit when it is hit.
func (e *Ensemble) Block(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		ids := intern.NewFactorizer()
		seen := roaring64.New()

		var reserved int64
		defer func() { e.controller.ReleaseMemory(reserved) }()
		charge := func() error {
			size := int64(seen.GetSizeInBytes())
			if size <= reserved {
				return nil
			}
			if err := e.controller.ReserveMemory(size - reserved); err != nil {
				return fmt.Errorf("%s: dedup buffer: %w", e.name, err)
			}
			reserved = size
			return nil
		}

		n := 0
		for _, b := range e.blockers {
			for pair, err := range b.Block(ctx, left, right) {
				if err != nil {
					yield(core.CandidatePair{}, err)
					return
				}
				packed := intern.PackPair(ids.Intern(pair.Left.ID), ids.Intern(pair.Right.ID))
				if !seen.CheckedAdd(packed) {
					continue
				}
				if n++; n%memCheckEvery == 0 {
					if err := charge(); err != nil {
						yield(core.CandidatePair{}, err)
						return
					}
				}
				if !yield(pair, nil) {
					return
				}
			}
		}
	}
}
