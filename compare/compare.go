// Package compare evaluates candidate pairs against independent comparison
// dimensions, each partitioned into ordered discrete agreement levels, and
// emits one level-assignment vector per pair.
//
// Evaluation is pure: it reads already-materialized field values and has no
// side effects. Any normalization (geocoding, nickname expansion, phone
// canonicalization) happens upstream.
package compare

import (
	"context"
	"iter"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/linkgo/core"
)

// Compared is one candidate pair with its level assignment: Labels[i] is the
// level index assigned by the i-th comparer.
type Compared struct {
	Pair   core.Pair
	Labels []int
}

type options struct {
	workers int
}

// Option configures a comparison pass.
type Option func(*options)

// WithWorkers fans the pass out over n goroutines. Pair ordering across
// workers is not guaranteed; no downstream stage may rely on it.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

func applyOptions(opts []Option) options {
	o := options{workers: 1}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// Pairs labels every candidate pair against all comparers. The result is a
// lazy sequence; ranging over it again re-runs the pass (the input must be
// restartable for that).
func Pairs(ctx context.Context, pairs iter.Seq2[core.CandidatePair, error], comparers []Comparer, opts ...Option) iter.Seq2[Compared, error] {
	o := applyOptions(opts)
	if o.workers <= 1 {
		return sequential(ctx, pairs, comparers)
	}
	return parallel(ctx, pairs, comparers, o.workers)
}

// Label runs all comparers against one pair.
func Label(pair core.CandidatePair, comparers []Comparer) Compared {
	labels := make([]int, len(comparers))
	for i, c := range comparers {
		labels[i] = c.Label(pair)
	}
	return Compared{Pair: pair.Pair(), Labels: labels}
}

func sequential(ctx context.Context, pairs iter.Seq2[core.CandidatePair, error], comparers []Comparer) iter.Seq2[Compared, error] {
	return func(yield func(Compared, error) bool) {
		for p, err := range pairs {
			if err != nil {
				yield(Compared{}, err)
				return
			}
			if err := ctx.Err(); err != nil {
				yield(Compared{}, err)
				return
			}
			if !yield(Label(p, comparers), nil) {
				return
			}
		}
	}
}

func parallel(ctx context.Context, pairs iter.Seq2[core.CandidatePair, error], comparers []Comparer, workers int) iter.Seq2[Compared, error] {
	return func(yield func(Compared, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		in := make(chan core.CandidatePair, workers*2)
		out := make(chan Compared, workers*2)

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			defer close(in)
			for p, err := range pairs {
				if err != nil {
					return err
				}
				select {
				case in <- p:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})

		var workersDone sync.WaitGroup
		workersDone.Add(workers)
		for i := 0; i < workers; i++ {
			g.Go(func() error {
				defer workersDone.Done()
				for p := range in {
					select {
					case out <- Label(p, comparers):
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		go func() {
			workersDone.Wait()
			close(out)
		}()

		for c := range out {
			if !yield(c, nil) {
				return // deferred cancel unwinds the pipeline
			}
		}
		if err := g.Wait(); err != nil {
			yield(Compared{}, err)
		}
	}
}
