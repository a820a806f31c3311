package linkgo

import (
	"github.com/hupe1980/linkgo/blobstore"
	"github.com/hupe1980/linkgo/block"
	"github.com/hupe1980/linkgo/pairfile"
	"github.com/hupe1980/linkgo/resource"
)

type options struct {
	logger      *Logger
	metrics     MetricsCollector
	controller  *resource.Controller
	workers     int
	maxPairs    uint64
	onSlow      block.OnSlow
	spillStore  blobstore.Store
	compression pairfile.Compression
	seed        int64
}

// Option configures a Linker at construction time.
type Option func(*options)

func applyOptions(opts []Option) options {
	o := options{
		logger:      NoopLogger(),
		metrics:     NoopMetricsCollector{},
		workers:     1,
		onSlow:      block.OnSlowError,
		compression: pairfile.CompressionZstd,
	}
	for _, fn := range opts {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// WithLogger sets the structured logger. Nil restores the silent default.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metrics = m
	}
}

// WithController attaches a resource controller that bounds memory, job
// concurrency and source read rate for this Linker's operations.
func WithController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
	}
}

// WithWorkers fans comparison and EM E-steps out over n goroutines.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMaxPairs sets the estimated-pair ceiling checked before every
// blocking pass. 0 disables the check.
func WithMaxPairs(n uint64) Option {
	return func(o *options) {
		o.maxPairs = n
	}
}

// WithOnSlow sets the policy applied when a blocking rule's estimate
// exceeds the pair ceiling.
func WithOnSlow(p block.OnSlow) Option {
	return func(o *options) {
		o.onSlow = p
	}
}

// WithSpillStore attaches a blob store for scored-pair spill files and
// weight documents.
func WithSpillStore(s blobstore.Store) Option {
	return func(o *options) {
		o.spillStore = s
	}
}

// WithSpillCompression selects the spill file compression, zstd by default.
func WithSpillCompression(c pairfile.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithSeed fixes the random seed used by training initialization and
// sampling, making runs reproducible.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}
