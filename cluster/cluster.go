// Package cluster resolves scored pairs into entity clusters.
//
// Pairs with score >= threshold become edges of an undirected graph over
// record identifiers; connected components of that graph are the clusters.
// Edges stream through a union-find, so only the disjoint-set structure is
// held in memory, never the graph itself.
//
// Cluster ids are dense indices assigned in first-seen order of the
// underlying arena. They are implementation artifacts: recomputing with a
// different edge order may renumber clusters, so consumers and tests must
// compare membership, never raw ids.
package cluster

import (
	"context"
	"iter"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/linkgo/core"
	"github.com/hupe1980/linkgo/internal/intern"
)

type options struct {
	singletons []core.RecordID
}

// Option customizes Resolve.
type Option func(*options)

// WithSingletons includes identifiers in the result even when no surviving
// edge touches them, each as its own cluster. Without this, an identifier
// with no edge above the threshold simply does not appear.
func WithSingletons(ids ...core.RecordID) Option {
	return func(o *options) {
		o.singletons = append(o.singletons, ids...)
	}
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

const checkEvery = 4096

// Resolve consumes a stream of scored pairs and returns the connected
// components over edges with score >= threshold. Edge order does not
// affect the resulting partition. Cancellation is checked between batches
// of edges.
func Resolve(ctx context.Context, pairs iter.Seq2[core.ScoredPair, error], threshold float64, opts ...Option) (*Result, error) {
	o := applyOptions(opts)

	ids := intern.NewFactorizer()
	uf := newUnionFind()
	var degree []uint32

	for _, id := range o.singletons {
		idx := ids.Intern(id)
		uf.grow(ids.Len())
		for int(idx) >= len(degree) {
			degree = append(degree, 0)
		}
	}

	n := 0
	for sp, err := range pairs {
		if err != nil {
			return nil, err
		}
		if n++; n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		// NaN scores fail this comparison and are dropped with the rest.
		if !(sp.Score >= threshold) {
			continue
		}

		a := ids.Intern(sp.Pair.Left)
		b := ids.Intern(sp.Pair.Right)
		uf.grow(ids.Len())
		for ids.Len() > len(degree) {
			degree = append(degree, 0)
		}
		degree[a]++
		degree[b]++
		uf.union(a, b)
	}

	// Number components in first-seen dense-id order.
	compOf := make([]uint32, ids.Len())
	compIndex := make(map[uint32]uint32)
	members := make([]*roaring.Bitmap, 0)
	for idx := 0; idx < ids.Len(); idx++ {
		root := uf.find(uint32(idx))
		comp, ok := compIndex[root]
		if !ok {
			comp = uint32(len(members))
			compIndex[root] = comp
			members = append(members, roaring.New())
		}
		compOf[idx] = comp
		members[comp].Add(uint32(idx))
	}

	return &Result{ids: ids, compOf: compOf, members: members, degree: degree}, nil
}

// Result is a resolved clustering.
type Result struct {
	ids     *intern.Factorizer
	compOf  []uint32
	members []*roaring.Bitmap
	degree  []uint32
}

// Len returns the number of record identifiers in the clustering.
func (r *Result) Len() int { return r.ids.Len() }

// NumClusters returns the number of clusters.
func (r *Result) NumClusters() int { return len(r.members) }

// ClusterOf returns the cluster id of a record identifier. The id is a
// non-semantic arena index; compare membership, not ids.
func (r *Result) ClusterOf(id core.RecordID) (uint32, bool) {
	idx, ok := r.ids.Lookup(id)
	if !ok {
		return 0, false
	}
	return r.compOf[idx], true
}

// Members returns the record identifiers of one cluster.
func (r *Result) Members(cluster uint32) []core.RecordID {
	if int(cluster) >= len(r.members) {
		return nil
	}
	out := make([]core.RecordID, 0, r.members[cluster].GetCardinality())
	r.members[cluster].Iterate(func(idx uint32) bool {
		out = append(out, r.ids.ID(idx))
		return true
	})
	return out
}

// Membership returns the full record-to-cluster labeling. This is the
// input shape the metric package evaluates.
func (r *Result) Membership() map[core.RecordID]uint32 {
	m := make(map[core.RecordID]uint32, r.ids.Len())
	for idx := 0; idx < r.ids.Len(); idx++ {
		m[r.ids.ID(uint32(idx))] = r.compOf[idx]
	}
	return m
}

// Degree returns the number of surviving edges touching an identifier.
func (r *Result) Degree(id core.RecordID) (uint32, bool) {
	idx, ok := r.ids.Lookup(id)
	if !ok {
		return 0, false
	}
	return r.degree[idx], true
}

// DegreeStat is one identifier's edge count.
type DegreeStat struct {
	ID     core.RecordID
	Degree uint32
}

// TopDegrees returns the n highest-degree identifiers, descending. Ties
// break by record id for determinism. High-degree "super-connectors"
// usually point at an overly loose blocking or comparison rule.
func (r *Result) TopDegrees(n int) []DegreeStat {
	stats := make([]DegreeStat, 0, r.ids.Len())
	for idx := 0; idx < r.ids.Len(); idx++ {
		stats = append(stats, DegreeStat{ID: r.ids.ID(uint32(idx)), Degree: r.degree[idx]})
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Degree != stats[j].Degree {
			return stats[i].Degree > stats[j].Degree
		}
		return stats[i].ID.Less(stats[j].ID)
	})
	if n < len(stats) {
		stats = stats[:n]
	}
	return stats
}
