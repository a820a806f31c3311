// Package fs implements the Fellegi-Sunter model: per-dimension, per-level
// match and non-match probabilities that combine into a single log-odds
// match score, plus the expectation-maximization trainer that estimates them
// from unlabeled candidate pairs.
package fs

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math"

	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
)

// Tolerance is the floating tolerance within which per-dimension m and u
// probabilities must each sum to 1.
const Tolerance = 1e-6

// ErrNoDimensions is returned when a Weights value is built without any
// dimension weights.
var ErrNoDimensions = errors.New("at least one dimension is required")

// LevelWeights holds the match evidence of one agreement level.
//
// M is the proportion of true matches that land on this level; U is the
// proportion of true non-matches that do. Their ratio is how much observing
// this level shifts the odds of a match.
type LevelWeights struct {
	Name string
	M    float64
	U    float64
}

// Odds returns M/U. U == 0 gives +Inf (certain match evidence).
func (lw LevelWeights) Odds() float64 {
	if lw.U == 0 {
		return math.Inf(1)
	}
	return lw.M / lw.U
}

// LogOdds returns log10(M/U). M == 0 gives -Inf, U == 0 gives +Inf; both
// propagate through scoring as signed infinities, never NaN or a clamped
// finite value.
func (lw LevelWeights) LogOdds() float64 {
	return OddsToLogOdds(lw.Odds())
}

// DimensionWeights is the ordered set of level weights for one comparison
// dimension, including the trailing catch-all level.
type DimensionWeights struct {
	name   string
	levels []LevelWeights
	byName map[string]int
}

// NewDimensionWeights builds the weights for one dimension from its explicit
// levels. The catch-all is derived, not supplied: its m and u are whatever
// probability mass the explicit levels leave over, so each column always
// sums to 1.
func NewDimensionWeights(name string, levels []LevelWeights) (*DimensionWeights, error) {
	if name == "" {
		return nil, errors.New("dimension weights: name must not be empty")
	}
	var sumM, sumU float64
	for _, lw := range levels {
		if lw.Name == compare.ElseLevel {
			return nil, fmt.Errorf("dimension weights %q: level %q is derived, not supplied", name, compare.ElseLevel)
		}
		if lw.M < 0 || lw.M > 1 || lw.U < 0 || lw.U > 1 {
			return nil, fmt.Errorf("dimension weights %q: level %q probabilities out of [0,1]: m=%v u=%v", name, lw.Name, lw.M, lw.U)
		}
		sumM += lw.M
		sumU += lw.U
	}
	if sumM > 1+Tolerance || sumU > 1+Tolerance {
		return nil, fmt.Errorf("dimension weights %q: m or u sum exceeds 1: m=%v u=%v", name, sumM, sumU)
	}

	full := make([]LevelWeights, 0, len(levels)+1)
	full = append(full, levels...)
	full = append(full, LevelWeights{
		Name: compare.ElseLevel,
		M:    clamp01(1 - sumM),
		U:    clamp01(1 - sumU),
	})
	return newCompleteDimensionWeights(name, full)
}

// newCompleteDimensionWeights validates a full level set (catch-all last)
// whose columns already sum to 1. Used by the trainers, which estimate every
// level directly.
func newCompleteDimensionWeights(name string, levels []LevelWeights) (*DimensionWeights, error) {
	if len(levels) < 2 {
		return nil, fmt.Errorf("dimension weights %q: at least two levels are required", name)
	}
	byName := make(map[string]int, len(levels))
	var sumM, sumU float64
	for i, lw := range levels {
		if _, dup := byName[lw.Name]; dup {
			return nil, fmt.Errorf("dimension weights %q: duplicate level name %q", name, lw.Name)
		}
		byName[lw.Name] = i
		sumM += lw.M
		sumU += lw.U
	}
	if math.Abs(sumM-1) > Tolerance {
		return nil, fmt.Errorf("dimension weights %q: m probabilities sum to %v, want 1", name, sumM)
	}
	if math.Abs(sumU-1) > Tolerance {
		return nil, fmt.Errorf("dimension weights %q: u probabilities sum to %v, want 1", name, sumU)
	}
	return &DimensionWeights{name: name, levels: levels, byName: byName}, nil
}

// Name returns the dimension name these weights are for.
func (dw *DimensionWeights) Name() string { return dw.name }

// Len returns the number of levels including the catch-all.
func (dw *DimensionWeights) Len() int { return len(dw.levels) }

// Level returns the weights of the i-th level.
func (dw *DimensionWeights) Level(i int) LevelWeights { return dw.levels[i] }

// LevelByName returns the weights of the named level.
func (dw *DimensionWeights) LevelByName(name string) (LevelWeights, bool) {
	i, ok := dw.byName[name]
	if !ok {
		return LevelWeights{}, false
	}
	return dw.levels[i], true
}

// Levels returns a copy of all level weights, catch-all last.
func (dw *DimensionWeights) Levels() []LevelWeights {
	out := make([]LevelWeights, len(dw.levels))
	copy(out, dw.levels)
	return out
}

// Weights is the complete, immutable Fellegi-Sunter model: one
// DimensionWeights per comparison dimension plus the global prior log-odds.
//
// Scoring never mutates a Weights value; callers swap in a new value
// atomically between passes instead of mutating in place.
type Weights struct {
	prior  float64 // log10 odds
	dims   []*DimensionWeights
	byName map[string]int
}

// New assembles a model from a prior (log10 odds, see PriorFromProbability)
// and one weights set per dimension, in scoring order.
func New(priorLogOdds float64, dims ...*DimensionWeights) (*Weights, error) {
	if len(dims) == 0 {
		return nil, ErrNoDimensions
	}
	byName := make(map[string]int, len(dims))
	for i, dw := range dims {
		if _, dup := byName[dw.name]; dup {
			return nil, fmt.Errorf("weights: duplicate dimension %q", dw.name)
		}
		byName[dw.name] = i
	}
	return &Weights{prior: priorLogOdds, dims: dims, byName: byName}, nil
}

// PriorLogOdds returns the global prior in log10 odds.
func (w *Weights) PriorLogOdds() float64 { return w.prior }

// Len returns the number of dimensions.
func (w *Weights) Len() int { return len(w.dims) }

// Dimension returns the i-th dimension weights, in scoring order.
func (w *Weights) Dimension(i int) *DimensionWeights { return w.dims[i] }

// DimensionByName returns the named dimension weights.
func (w *Weights) DimensionByName(name string) (*DimensionWeights, bool) {
	i, ok := w.byName[name]
	if !ok {
		return nil, false
	}
	return w.dims[i], true
}

// Score converts a level assignment into the total match score:
// prior + Σ per-dimension level log-odds. Signed infinities from degenerate
// levels propagate deliberately. Re-scoring the same labels is idempotent
// and reproducible bit for bit.
func (w *Weights) Score(labels []int) (float64, error) {
	if len(labels) != len(w.dims) {
		return 0, fmt.Errorf("score: got %d labels, model has %d dimensions", len(labels), len(w.dims))
	}
	score := w.prior
	for i, label := range labels {
		dw := w.dims[i]
		if label < 0 || label >= len(dw.levels) {
			return 0, fmt.Errorf("score: label %d out of range for dimension %q (%d levels)", label, dw.name, len(dw.levels))
		}
		score += dw.levels[label].LogOdds()
	}
	return score, nil
}

// MatchProbability returns the posterior match probability of a level
// assignment under the model.
func (w *Weights) MatchProbability(labels []int) (float64, error) {
	score, err := w.Score(labels)
	if err != nil {
		return 0, err
	}
	return LogOddsToProb(score), nil
}

// Score streams scored pairs from a compared-pair sequence. The Weights
// value is read-only for the duration of the pass.
func Score(ctx context.Context, compared iter.Seq2[compare.Compared, error], w *Weights) iter.Seq2[core.ScoredPair, error] {
	return func(yield func(core.ScoredPair, error) bool) {
		for c, err := range compared {
			if err != nil {
				yield(core.ScoredPair{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(core.ScoredPair{}, err)
				return
			}
			score, err := w.Score(c.Labels)
			if err != nil {
				yield(core.ScoredPair{}, err)
				return
			}
			if !yield(core.ScoredPair{Pair: c.Pair, Score: score}, nil) {
				return
			}
		}
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
