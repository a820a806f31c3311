// Package block generates candidate pairs from one or two tables.
//
// A Blocker turns the intractable full cross product into a tractable
// candidate stream: key blockers equi-join on shared values, the minhash
// blocker joins on LSH band collisions, and ensembles union several rules
// with pair-identity dedup. Every blocker classifies its join shape and
// estimates its pair count up front, so callers can refuse quadratic joins
// before touching data.
package block

import (
	"context"
	"iter"
	"math/bits"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

// JoinShape classifies the predicate a blocking rule pushes into the join.
type JoinShape int

const (
	// JoinShapeEquality joins on exact key equality (hash- or index-friendly).
	JoinShapeEquality JoinShape = iota
	// JoinShapeNestedLoop cannot avoid comparing every row combination.
	JoinShapeNestedLoop
)

// String returns the shape name used in errors and logs.
func (s JoinShape) String() string {
	switch s {
	case JoinShapeEquality:
		return "equality"
	case JoinShapeNestedLoop:
		return "nested-loop"
	default:
		return "unknown"
	}
}

// Estimate is a pre-flight candidate-pair count. When the true count
// overflows uint64 the estimate is Indeterminate, never a wrapped number.
type Estimate struct {
	Pairs         uint64
	Indeterminate bool
}

// Blocker is a pluggable blocking rule.
//
// right is nil for deduplication within left; implementations then emit
// each unordered pair at most once, smaller record id first. The returned
// sequence is lazy and restartable: each range re-reads the source.
type Blocker interface {
	// Name identifies the rule in errors, logs and warnings.
	Name() string
	// JoinShape classifies the rule's join predicate.
	JoinShape() JoinShape
	// Validate fails fast when the rule references fields the tables do
	// not have.
	Validate(left, right source.Table) error
	// EstimateCost counts candidate pairs without materializing them.
	EstimateCost(ctx context.Context, left, right source.Table) (Estimate, error)
	// Block streams candidate pairs.
	Block(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error]
}

// addEstimate accumulates pair counts with overflow detection.
func addEstimate(total uint64, n uint64) (uint64, bool) {
	sum, carry := bits.Add64(total, n, 0)
	return sum, carry == 0
}

// mulPairs multiplies two group sizes with overflow detection.
func mulPairs(a, b uint64) (uint64, bool) {
	hi, lo := bits.Mul64(a, b)
	return lo, hi == 0
}

// selfPairs returns n*(n-1)/2 with overflow detection.
func selfPairs(n uint64) (uint64, bool) {
	if n < 2 {
		return 0, true
	}
	a, b := n, n-1
	if a%2 == 0 {
		a /= 2
	} else {
		b /= 2
	}
	return mulPairs(a, b)
}

func yieldErr[T any](err error) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		var zero T
		yield(zero, err)
	}
}
