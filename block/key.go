package block

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/source"
)

// KeyFunc derives a blocking key from a record in-process. ok is false when
// the record has no key (treated like a null: it never joins).
type KeyFunc func(core.Record) (key any, ok bool)

// KeyBlocker pairs rows sharing an exact value on its key columns, or on a
// derived key computed by a KeyFunc. Column keys push the equi-join and the
// group-count aggregation down to the source where it supports them;
// derived keys always run in-process.
type KeyBlocker struct {
	name    string
	columns []string
	keyFn   KeyFunc
}

// NewKey creates a key blocker over one or more columns.
func NewKey(columns ...string) (*KeyBlocker, error) {
	if len(columns) == 0 {
		return nil, errors.New("key blocker: at least one column is required")
	}
	seen := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		if c == "" {
			return nil, errors.New("key blocker: column name must not be empty")
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("key blocker: duplicate column %q", c)
		}
		seen[c] = struct{}{}
	}
	return &KeyBlocker{
		name:    "key(" + strings.Join(columns, ",") + ")",
		columns: columns,
	}, nil
}

// MustKey is NewKey for statically known columns; it panics on invalid
// input.
func MustKey(columns ...string) *KeyBlocker {
	b, err := NewKey(columns...)
	if err != nil {
		panic(err)
	}
	return b
}

// NewDerivedKey creates a key blocker over an in-process derived key, e.g.
// a soundex code or a normalized prefix.
func NewDerivedKey(name string, fn KeyFunc) (*KeyBlocker, error) {
	if name == "" {
		return nil, errors.New("derived key blocker: name must not be empty")
	}
	if fn == nil {
		return nil, fmt.Errorf("derived key blocker %q: key function must not be nil", name)
	}
	return &KeyBlocker{name: name, keyFn: fn}, nil
}

// Name identifies the rule.
func (b *KeyBlocker) Name() string { return b.name }

// JoinShape is equality: key blocking is always a hash-joinable predicate.
func (b *KeyBlocker) JoinShape() JoinShape { return JoinShapeEquality }

// Validate fails fast when a key column is missing from either table.
func (b *KeyBlocker) Validate(left, right source.Table) error {
	for _, col := range b.columns {
		if !source.HasColumn(left, col) {
			return fmt.Errorf("blocking rule %q: table %q has no column %q", b.name, left.Name(), col)
		}
		if right != nil && !source.HasColumn(right, col) {
			return fmt.Errorf("blocking rule %q: table %q has no column %q", b.name, right.Name(), col)
		}
	}
	return nil
}

// EstimateCost sums, per distinct key, nL*nR across tables or n*(n-1)/2
// for dedupe, without materializing pairs. Overflow reports Indeterminate.
func (b *KeyBlocker) EstimateCost(ctx context.Context, left, right source.Table) (Estimate, error) {
	leftCounts, err := b.keyCounts(ctx, left)
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

	rightCounts, err := b.keyCounts(ctx, right)
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

// keyCounts returns row counts per canonical key, via the source's group
// aggregation where available.
func (b *KeyBlocker) keyCounts(ctx context.Context, t source.Table) (map[string]uint64, error) {
	counts := make(map[string]uint64)

	if b.keyFn == nil {
		if gc, ok := t.(source.GroupCounter); ok {
			for kc, err := range gc.GroupCount(ctx, b.columns...) {
				if err != nil {
					return nil, err
				}
				counts[canonKey(kc.Values)] += kc.Count
			}
			return counts, nil
		}
	}

	for r, err := range t.Scan(ctx, b.scanColumns(t)...) {
		if err != nil {
			return nil, err
		}
		key, ok := b.keyOf(r)
		if !ok {
			continue
		}
		counts[key]++
	}
	return counts, nil
}

func (b *KeyBlocker) scanColumns(t source.Table) []string {
	if b.keyFn != nil {
		return t.Columns()
	}
	return b.columns
}

// keyOf canonicalizes a record's blocking key. ok is false for null keys,
// which never join.
func (b *KeyBlocker) keyOf(r core.Record) (string, bool) {
	if b.keyFn != nil {
		v, ok := b.keyFn(r)
		if !ok || v == nil {
			return "", false
		}
		return canonKey([]any{v}), true
	}

	values := make([]any, len(b.columns))
	for i, col := range b.columns {
		v, ok := r.Field(col)
		if !ok {
			return "", false
		}
		values[i] = v
	}
	return canonKey(values), true
}

// Block streams candidate pairs. Column keys delegate to the source's
// equi-join pushdown when present; derived keys bucket in-process, holding
// the left table's key index in memory but never the cross product.
func (b *KeyBlocker) Block(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	if err := b.Validate(left, right); err != nil {
		return yieldErr[core.CandidatePair](err)
	}

	if b.keyFn == nil {
		other := right
		if other == nil {
			other = left
		}
		if ej, ok := left.(source.EquiJoiner); ok {
			return ej.EquiJoin(ctx, other, b.columns...)
		}
		return source.HashJoin(ctx, left, other, b.columns...)
	}

	if right == nil {
		return b.derivedSelfJoin(ctx, left)
	}
	return b.derivedCrossJoin(ctx, left, right)
}

func (b *KeyBlocker) buckets(ctx context.Context, t source.Table) (map[string][]core.Record, error) {
	buckets := make(map[string][]core.Record)
	for r, err := range t.Scan(ctx, t.Columns()...) {
		if err != nil {
			return nil, err
		}
		if key, ok := b.keyOf(r); ok {
			buckets[key] = append(buckets[key], r)
		}
	}
	return buckets, nil
}

func (b *KeyBlocker) derivedSelfJoin(ctx context.Context, t source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		buckets, err := b.buckets(ctx, t)
		if err != nil {
			yield(core.CandidatePair{}, err)
			return
		}
		for _, rows := range buckets {
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
}

func (b *KeyBlocker) derivedCrossJoin(ctx context.Context, left, right source.Table) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		buckets, err := b.buckets(ctx, left)
		if err != nil {
			yield(core.CandidatePair{}, err)
			return
		}
		for r, err := range right.Scan(ctx, right.Columns()...) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			key, ok := b.keyOf(r)
			if !ok {
				continue
			}
			for _, l := range buckets[key] {
				if !yield(core.CandidatePair{Left: l, Right: r}, nil) {
					return
				}
			}
		}
	}
}

// canonKey flattens key values into a map key. The encoding only needs to
// be self-consistent within one pass.
func canonKey(values []any) string {
	var sb strings.Builder
	for _, v := range values {
		fmt.Fprintf(&sb, "%v\x00", v)
	}
	return sb.String()
}
