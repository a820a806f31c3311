package fs

import (
	"context"
	"fmt"
	"iter"
	"math/rand"

	"github.com/hupe1980/linkgo/compare"
)

// LevelProportions computes, per dimension, the fraction of pairs carrying
// each comparison level. Levels that never occur receive a single
// pseudo-observation so every proportion stays strictly positive.
func LevelProportions(ctx context.Context, pairs iter.Seq2[compare.Compared, error], comparers []compare.Comparer) ([][]float64, error) {
	if len(comparers) == 0 {
		return nil, ErrNoDimensions
	}

	counts := make([][]float64, len(comparers))
	for d, c := range comparers {
		counts[d] = make([]float64, len(c.Levels()))
	}

	var n uint64
	for c, err := range pairs {
		if err != nil {
			return nil, err
		}
		if len(c.Labels) != len(comparers) {
			return nil, fmt.Errorf("pair %s carries %d labels, want %d", c.Pair, len(c.Labels), len(comparers))
		}
		for d, label := range c.Labels {
			if label < 0 || label >= len(counts[d]) {
				return nil, fmt.Errorf("dimension %q: label %d out of range", comparers[d].Name(), label)
			}
			counts[d][label]++
		}
		if n++; n%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	if n == 0 {
		return nil, ErrNoPairs
	}

	props := make([][]float64, len(counts))
	for d, levels := range counts {
		total := 0.0
		for l, c := range levels {
			if c == 0 {
				levels[l] = 1
				c = 1
			}
			total += c
		}
		props[d] = make([]float64, len(levels))
		for l, c := range levels {
			props[d][l] = c / total
		}
	}
	return props, nil
}

// TrainUsingLabels estimates weights directly from labeled pairs: the m
// probabilities come from the level frequencies among known matches, the u
// probabilities from the frequencies among known non-matches. priorProb is
// the assumed overall match rate in (0, 1).
//
// Non-match pairs are typically obtained by sampling random pairs, which at
// realistic match rates are almost all non-matches.
func TrainUsingLabels(ctx context.Context, matches, nonMatches iter.Seq2[compare.Compared, error], comparers []compare.Comparer, priorProb float64) (*Weights, error) {
	if priorProb <= 0 || priorProb >= 1 {
		return nil, fmt.Errorf("prior probability %v outside (0, 1)", priorProb)
	}

	ms, err := LevelProportions(ctx, matches, comparers)
	if err != nil {
		return nil, fmt.Errorf("match pairs: %w", err)
	}
	us, err := LevelProportions(ctx, nonMatches, comparers)
	if err != nil {
		return nil, fmt.Errorf("non-match pairs: %w", err)
	}

	dims := make([]*DimensionWeights, len(comparers))
	for d, c := range comparers {
		names := c.Levels()
		levels := make([]LevelWeights, len(names))
		for l, name := range names {
			levels[l] = LevelWeights{Name: name, M: ms[d][l], U: us[d][l]}
		}
		dims[d], err = newCompleteDimensionWeights(c.Name(), levels)
		if err != nil {
			return nil, err
		}
	}
	return New(PriorFromProbability(priorProb), dims...)
}

// Sample draws up to max elements from a sequence by reservoir sampling.
// The draw is deterministic for a fixed seed and input order. The whole
// sequence is consumed either way.
func Sample[T any](seq iter.Seq2[T, error], max int, seed int64) ([]T, error) {
	if max <= 0 {
		return nil, fmt.Errorf("sample size %d must be positive", max)
	}

	rng := rand.New(rand.NewSource(seed))
	reservoir := make([]T, 0, max)
	n := 0
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		if len(reservoir) < max {
			reservoir = append(reservoir, v)
		} else if j := rng.Intn(n + 1); j < max {
			reservoir[j] = v
		}
		n++
	}
	return reservoir, nil
}
