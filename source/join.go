package source

import (
	"context"
	"iter"

	"github.com/hupe1980/linkgo/core"
)

// HashJoin is the in-process equality join used when a backend offers no
// join pushdown. It indexes the left table by key (one map entry per row,
// never the cross product) and streams the right table against it.
//
// When left and right are the same Table value, the join degrades to a
// self-join: each unordered pair is emitted once, self-pairs are omitted.
func HashJoin(ctx context.Context, left, right Table, columns ...string) iter.Seq2[core.CandidatePair, error] {
	return func(yield func(core.CandidatePair, error) bool) {
		selfJoin := left == right

		index := make(map[string][]core.Record)
		for r, err := range left.Scan(ctx) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			key, _, ok := encodeKey(r, columns)
			if !ok {
				continue // null keys never join
			}
			index[key] = append(index[key], r)
		}

		if selfJoin {
			for _, bucket := range index {
				for i := 0; i < len(bucket); i++ {
					for j := i + 1; j < len(bucket); j++ {
						if err := ctx.Err(); err != nil {
							yield(core.CandidatePair{}, err)
							return
						}
						if !yield(core.CandidatePair{Left: bucket[i], Right: bucket[j]}, nil) {
							return
						}
					}
				}
			}
			return
		}

		for rr, err := range right.Scan(ctx) {
			if err != nil {
				yield(core.CandidatePair{}, err)
				return
			}
			key, _, ok := encodeKey(rr, columns)
			if !ok {
				continue
			}
			for _, lr := range index[key] {
				if !yield(core.CandidatePair{Left: lr, Right: rr}, nil) {
					return
				}
			}
		}
	}
}
