package block

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/linkgo/compare"
	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/internal/intern"
	"github.com/hupe1980/linkgo/internal/minhash"
	"github.com/hupe1980/linkgo/source"
)

// MinhashLSHBlocker pairs rows whose token sets are approximately similar:
// records are minhashed into banded signatures and any shared band becomes
// a blocking key. The false-negative rate is tunable: a true pair with
// Jaccard similarity j is missed with probability
// (1 - j^bandSize)^numBands (see MissProbability).
//
// Records with an empty token set are treated as null and never block.
type MinhashLSHBlocker struct {
	name     string
	field    string
	hasher   *minhash.Hasher
	tokenize compare.Tokenizer

	numBands int
	bandSize int
	seed     uint64
}

// MinhashOption customizes a MinhashLSHBlocker.
type MinhashOption func(*MinhashLSHBlocker)

// WithBands sets the band count and band size. More bands catch more true
// pairs at lower similarity; longer bands demand closer agreement.
// Default 16 bands of 4 hashes.
func WithBands(numBands, bandSize int) MinhashOption {
	return func(b *MinhashLSHBlocker) {
		b.numBands = numBands
		b.bandSize = bandSize
	}
}

// WithSeed fixes the hash family. The same seed reproduces identical
// signatures and therefore identical candidate sets. Default 0.
func WithSeed(seed uint64) MinhashOption {
	return func(b *MinhashLSHBlocker) { b.seed = seed }
}

// WithTokenizer overrides the token extraction.
// Default compare.DefaultTokenizer.
func WithTokenizer(t compare.Tokenizer) MinhashOption {
	return func(b *MinhashLSHBlocker) { b.tokenize = t }
}

// NewMinhashLSH creates a minhash LSH blocker over a token field.
func NewMinhashLSH(field string, opts ...MinhashOption) (*MinhashLSHBlocker, error) {
	if field == "" {
		return nil, errors.New("minhash blocker: field must not be empty")
	}

	b := &MinhashLSHBlocker{
		name:     fmt.Sprintf("minhash(%s)", field),
		field:    field,
		tokenize: compare.DefaultTokenizer,
		numBands: 16,
		bandSize: 4,
	}
	for _, opt := range opts {
		opt(b)
	}

	hasher, err := minhash.New(b.numBands, b.bandSize, b.seed)
	if err != nil {
		return nil, fmt.Errorf("minhash blocker %q: %w", b.name, err)
	}
	b.hasher = hasher
	return b, nil
}

// Name identifies the rule.
func (b *MinhashLSHBlocker) Name() string { return b.name }

// JoinShape is equality: band keys equi-join like any other blocking key.
func (b *MinhashLSHBlocker) JoinShape() JoinShape { return JoinShapeEquality }

// BlockProbability returns the chance a pair with Jaccard similarity j
// shares at least one band under this blocker's configuration.
func (b *MinhashLSHBlocker) BlockProbability(j float64) float64 {
	return minhash.BlockProbability(j, b.numBands, b.bandSize)
}

// MissProbability is the complement: the false-negative rate at similarity j.
func (b *MinhashLSHBlocker) MissProbability(j float64) float64 {
	return minhash.MissProbability(j, b.numBands, b.bandSize)
}

// Validate fails fast when the token field is missing from either table.
func (b *MinhashLSHBlocker) Validate(left, right source.Table) error {
	if !source.HasColumn(left, b.field) {
		return fmt.Errorf("blocking rule %q: table %q has no column %q", b.name, left.Name(), b.field)
	}
	if right != nil && !source.HasColumn(right, b.field) {
		return fmt.Errorf("blocking rule %q: table %q has no column %q", b.name, right.Name(), b.field)
	}
	return nil
}

// EstimateCost sums per-band-key group products, like key blocking over
// band keys. Band collisions overlap across bands, so this is an upper
// bound on the deduplicated pair count.
func (b *MinhashLSHBlocker) EstimateCost(ctx context.Context, left, right source.Table) (Estimate, error) {
	leftCounts, err := b.bandCounts(ctx, left)
	if err != nil {
		return Estimate{}, err
	}

	var total uint64
	if right == nil {
		for _, n := range leftCounts {
			pairs, ok := selfPairs(n)
			if !ok {
				return Estimate{Indeterminate: true}, nil
			}
			if total, ok = addEstimate(total, pairs); !ok {
				return Estimate{Indeterminate: true}, nil
			}
		}
		return Estimate{Pairs: total}, nil
	}

	rightCounts, err := b.bandCounts(ctx, right)
	if err != nil {
		return Estimate{}, err
	}
	for key, nl := range leftCounts {
		nr, shared := rightCounts[key]
		if !shared {
			continue
		}
		pairs, ok := mulPairs(nl, nr)
		if !ok {
			return Estimate{Indeterminate: true}, nil
		}
		if total, ok = addEstimate(total, pairs); !ok {
			return Estimate{Indeterminate: true}, nil
		}
	}
	return Estimate{Pairs: total}, nil
}

func (b *MinhashLSHBlocker) bandCounts(ctx context.Context, t source.Table) (map[uint64]uint64, error) {
	counts := make(map[uint64]uint64)
	for r, err := range t.Scan(ctx, b.field) {
		if err != nil {
			return nil, err
		}
		for _, key := range b.bandKeysOf(r) {
			counts[key]++
		}
	}
	return counts, nil
}

func (b *MinhashLSHBlocker) bandKeysOf(r core.Record) []uint64 {
	v, ok := r.Field(b.field)
	if !ok {
		return nil
	}
	return b.hasher.BandKeys(b.hasher.Signature(b.tokenize(v)))
}

// Block streams candidate pairs. Each unordered pair is emitted once even
// when it collides in several bands: emitted pairs are tracked in a packed
// roaring bitmap over interned dense ids.
func (b *MinhashLSHBlocker) Block(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	if err := b.Validate(left, right); err != nil {
		return yieldErr[core.CandidatePair](err)
	}
	if right == nil {
		return b.selfJoin(ctx, left)
	}
	return b.crossJoin(ctx, left, right)
}

func (b *MinhashLSHBlocker) selfJoin(ctx context.Context, t source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		buckets := make(map[uint64][]core.Record)
		for r, err := range t.Scan(ctx, t.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			for _, key := range b.bandKeysOf(r) {
				buckets[key] = append(buckets[key], r)
			}
		}

		ids := intern.NewFactorizer()
		seen := roaring64.New()
		for _, rows := range buckets {
			for i := 0; i < len(rows); i++ {
				if err := ctx.Err(); err != nil {
					yield(core.CandidatePair{}, err)
					return
				}
				for j := i + 1; j < len(rows); j++ {
					packed := intern.PackPair(ids.Intern(rows[i].ID), ids.Intern(rows[j].ID))
					if !seen.CheckedAdd(packed) {
						continue
					}
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
}

func (b *MinhashLSHBlocker) crossJoin(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		buckets := make(map[uint64][]core.Record)
		for r, err := range left.Scan(ctx, left.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			for _, key := range b.bandKeysOf(r) {
				buckets[key] = append(buckets[key], r)
			}
		}

		ids := intern.NewFactorizer()
		seen := roaring64.New()
		for r, err := range right.Scan(ctx, right.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			rid := ids.Intern(r.ID)
			for _, key := range b.bandKeysOf(r) {
				for _, l := range buckets[key] {
					packed := intern.PackPair(ids.Intern(l.ID), rid)
					if !seen.CheckedAdd(packed) {
						continue
					}
					if !yield(core.CandidatePair{Left: l, Right: r}, nil) {
						return
					}
				}
			}
		}
	}
}
