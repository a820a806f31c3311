package linkgo

import (
	"sync/atomic"
	"time"
)

// MetricsCollector receives operational measurements from a Linker.
// Implement it to feed a monitoring system; every method must be safe for
// concurrent use.
type MetricsCollector interface {
	// RecordBlock is called once per completed blocking pass.
	RecordBlock(pairs uint64, duration time.Duration, err error)

	// RecordScore is called once per completed scoring pass.
	RecordScore(pairs uint64, duration time.Duration, err error)

	// RecordTrain is called after each EM training run.
	RecordTrain(iterations int, converged bool, duration time.Duration, err error)

	// RecordResolve is called after each clustering run.
	RecordResolve(clusters int, duration time.Duration, err error)
}

// NoopMetricsCollector discards all measurements.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBlock(uint64, time.Duration, error)     {}
func (NoopMetricsCollector) RecordScore(uint64, time.Duration, error)     {}
func (NoopMetricsCollector) RecordTrain(int, bool, time.Duration, error)  {}
func (NoopMetricsCollector) RecordResolve(int, time.Duration, error)      {}

// BasicMetricsCollector keeps simple in-process counters. Useful for tests
// and debugging without an external monitoring stack.
type BasicMetricsCollector struct {
	BlockPasses   atomic.Int64
	BlockPairs    atomic.Uint64
	BlockErrors   atomic.Int64
	ScorePasses   atomic.Int64
	ScorePairs    atomic.Uint64
	ScoreErrors   atomic.Int64
	TrainRuns     atomic.Int64
	TrainErrors   atomic.Int64
	ResolveRuns   atomic.Int64
	ResolveErrors atomic.Int64
}

func (m *BasicMetricsCollector) RecordBlock(pairs uint64, _ time.Duration, err error) {
	m.BlockPasses.Add(1)
	m.BlockPairs.Add(pairs)
	if err != nil {
		m.BlockErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordScore(pairs uint64, _ time.Duration, err error) {
	m.ScorePasses.Add(1)
	m.ScorePairs.Add(pairs)
	if err != nil {
		m.ScoreErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordTrain(_ int, _ bool, _ time.Duration, err error) {
	m.TrainRuns.Add(1)
	if err != nil {
		m.TrainErrors.Add(1)
	}
}

func (m *BasicMetricsCollector) RecordResolve(_ int, _ time.Duration, err error) {
	m.ResolveRuns.Add(1)
	if err != nil {
		m.ResolveErrors.Add(1)
	}
}
