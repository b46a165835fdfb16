package scaler

import "context"

// ClusterMutator changes pool membership to a target worker count.
// Implementations must be safe to retry with the same target: a retry after
// an ambiguous failure must not add or remove a second worker.
// Failures should be reported as *ResizeError; ErrRosterExhausted means the
// pool cannot grow any further.
type ClusterMutator interface {
	Resize(ctx context.Context, target int) error
}

// SyncBarrier re-broadcasts shared training state to the current membership.
// It is invoked before the first measured step after a successful resize.
type SyncBarrier interface {
	Resync(ctx context.Context) error
}

// Trainer runs one training step on the current pool.
type Trainer interface {
	Step(ctx context.Context, workers int) error
}

// MetricsSink persists one Row per step. Flush is called once when the run
// ends, including cancelled and failed runs.
type MetricsSink interface {
	Record(row Row) error
	Flush() error
}

// MetricsCollector receives operational metrics. Implementations must not block.
type MetricsCollector interface {
	ObserveStep(workers int, duration, throughput float64)
	RecordInvalidMeasurement()
	RecordDecision(action Action)
	RecordResize(target int, success bool)
	SetWorkers(workers int)
	SetFrozen(frozen bool)
}

// NopCollector discards all metrics.
type NopCollector struct{}

var _ MetricsCollector = NopCollector{}

func (NopCollector) ObserveStep(_ int, _, _ float64) {}
func (NopCollector) RecordInvalidMeasurement()       {}
func (NopCollector) RecordDecision(_ Action)         {}
func (NopCollector) RecordResize(_ int, _ bool)      {}
func (NopCollector) SetWorkers(_ int)                {}
func (NopCollector) SetFrozen(_ bool)                {}

// TrainerFunc adapts a function to the Trainer interface.
type TrainerFunc func(ctx context.Context, workers int) error

func (f TrainerFunc) Step(ctx context.Context, workers int) error { return f(ctx, workers) }

// BarrierFunc adapts a function to the SyncBarrier interface.
type BarrierFunc func(ctx context.Context) error

func (f BarrierFunc) Resync(ctx context.Context) error { return f(ctx) }

// MutatorFunc adapts a function to the ClusterMutator interface.
type MutatorFunc func(ctx context.Context, target int) error

func (f MutatorFunc) Resize(ctx context.Context, target int) error { return f(ctx, target) }
