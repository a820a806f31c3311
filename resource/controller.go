// Package resource bounds what a linkage run may consume.
//
// Blocking and comparison are quadratic-shaped workloads: a single bad
// rule can buffer millions of candidate pairs or hammer a shared source
// database. The Controller puts three independent brakes on a run:
// a hard ceiling on tracked buffer memory, a semaphore on concurrent
// pipeline jobs, and a token-bucket limit on the row read rate.
//
// A nil *Controller is valid and enforces nothing, so callers thread it
// through unconditionally.
package resource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// ErrMemoryLimit is returned when a reservation would push tracked memory
// past the configured ceiling.
var ErrMemoryLimit = errors.New("resource: memory limit exceeded")

// Config holds the limits for one linkage run.
type Config struct {
	// MemoryLimitBytes caps tracked pair-buffer memory. 0 tracks without
	// enforcing.
	MemoryLimitBytes int64

	// MaxJobs caps concurrent pipeline jobs (block, compare, spill).
	// 0 defaults to 1.
	MaxJobs int64

	// RowsPerSecond throttles reads from the record sources. 0 means
	// unthrottled.
	RowsPerSecond float64
}

// Controller enforces the run limits. Methods are safe for concurrent use.
type Controller struct {
	cfg Config

	memSem  *semaphore.Weighted // nil when MemoryLimitBytes is 0
	memUsed atomic.Int64

	jobSem *semaphore.Weighted

	rowLimiter *rate.Limiter // nil when RowsPerSecond is 0
}

// NewController builds a Controller from cfg.
func NewController(cfg Config) *Controller {
	if cfg.MaxJobs <= 0 {
		cfg.MaxJobs = 1
	}

	c := &Controller{
		cfg:    cfg,
		jobSem: semaphore.NewWeighted(cfg.MaxJobs),
	}
	if cfg.MemoryLimitBytes > 0 {
		c.memSem = semaphore.NewWeighted(cfg.MemoryLimitBytes)
	}
	if cfg.RowsPerSecond > 0 {
		burst := int(cfg.RowsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.rowLimiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSecond), burst)
	}
	return c
}

// ReserveMemory reserves n bytes without blocking. It fails with
// ErrMemoryLimit when the ceiling would be exceeded; the caller decides
// whether to spill, shrink, or abort.
func (c *Controller) ReserveMemory(n int64) error {
	if c == nil || n <= 0 {
		return nil
	}
	if c.memSem != nil && !c.memSem.TryAcquire(n) {
		return ErrMemoryLimit
	}
	c.memUsed.Add(n)
	return nil
}

// ReleaseMemory returns n previously reserved bytes.
func (c *Controller) ReleaseMemory(n int64) {
	if c == nil || n <= 0 {
		return
	}
	if c.memSem != nil {
		c.memSem.Release(n)
	}
	c.memUsed.Add(-n)
}

// MemoryUsage reports currently reserved bytes.
func (c *Controller) MemoryUsage() int64 {
	if c == nil {
		return 0
	}
	return c.memUsed.Load()
}

// MemoryLimit reports the configured ceiling, 0 when unenforced.
func (c *Controller) MemoryLimit() int64 {
	if c == nil {
		return 0
	}
	return c.cfg.MemoryLimitBytes
}

// AcquireJob blocks until a job slot is free or ctx is done.
func (c *Controller) AcquireJob(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.jobSem.Acquire(ctx, 1)
}

// ReleaseJob frees a job slot.
func (c *Controller) ReleaseJob() {
	if c == nil {
		return
	}
	c.jobSem.Release(1)
}

// WaitRows blocks until the rate limit admits n more rows, or ctx is done.
func (c *Controller) WaitRows(ctx context.Context, n int) error {
	if c == nil || c.rowLimiter == nil || n <= 0 {
		return nil
	}
	// WaitN rejects n > burst outright, so admit oversized batches in
	// burst-sized slices.
	burst := c.rowLimiter.Burst()
	for n > 0 {
		take := n
		if take > burst {
			take = burst
		}
		if err := c.rowLimiter.WaitN(ctx, take); err != nil {
			return fmt.Errorf("resource: row rate wait: %w", err)
		}
		n -= take
	}
	return nil
}
