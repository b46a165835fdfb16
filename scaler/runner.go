// scaler/runner.go
package scaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/adascale/scaler/trace"
)

// Runner is the step loop around one Controller: it resyncs when owed,
// measures each step, feeds the window, lets the controller decide at window
// boundaries and records one Row per step.
type Runner struct {
	cfg        Config
	clock      Clock
	trainer    Trainer
	barrier    SyncBarrier
	sink       MetricsSink
	collector  MetricsCollector
	sampler    *ThroughputSampler
	averager   *WindowedAverager
	controller *Controller

	syncOnStart    bool
	controllerOpts []ControllerOption
	hasRun         bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the system clock, e.g. with a virtual clock for simulations.
func WithClock(clock Clock) RunnerOption {
	return func(r *Runner) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// WithRunnerCollector routes step and decision metrics to mc.
func WithRunnerCollector(mc MetricsCollector) RunnerOption {
	return func(r *Runner) {
		if mc != nil {
			r.collector = mc
		}
	}
}

// WithDecisionTrace records every boundary decision into dt.
func WithDecisionTrace(dt *trace.DecisionTrace) RunnerOption {
	return func(r *Runner) { r.controllerOpts = append(r.controllerOpts, WithTrace(dt)) }
}

// WithRunnerResizeTimeout bounds each membership change.
func WithRunnerResizeTimeout(d time.Duration) RunnerOption {
	return func(r *Runner) { r.controllerOpts = append(r.controllerOpts, WithResizeTimeout(d)) }
}

// WithSyncOnStart runs the barrier before the first step so every worker
// starts from the same state.
func WithSyncOnStart(enabled bool) RunnerOption {
	return func(r *Runner) { r.syncOnStart = enabled }
}

// NewRunner wires a Runner. Panics if cfg is invalid or a collaborator is nil.
func NewRunner(cfg Config, trainer Trainer, mutator ClusterMutator, barrier SyncBarrier, sink MetricsSink, opts ...RunnerOption) *Runner {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Runner: %v", err))
	}
	if trainer == nil || barrier == nil || sink == nil {
		panic("Runner: trainer, barrier and sink must be non-nil")
	}
	r := &Runner{
		cfg:       cfg,
		clock:     SystemClock{},
		trainer:   trainer,
		barrier:   barrier,
		sink:      sink,
		collector: NopCollector{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.sampler = NewThroughputSampler(cfg.BatchSize, r.clock)
	r.averager = NewWindowedAverager(cfg.ChangeStep)
	ctrlOpts := append([]ControllerOption{WithCollector(r.collector)}, r.controllerOpts...)
	r.controller = NewController(cfg, r.averager, mutator, ctrlOpts...)
	return r
}

// Controller exposes the controller for inspection.
func (r *Runner) Controller() *Controller { return r.controller }

// Run executes steps 1..NumTrainingSteps. Row 0 records the initial pool
// before training, so a complete run yields NumTrainingSteps+1 rows.
//
// Cancellation is honoured at window boundaries. The sink is flushed on
// every exit path. Only resync and trainer failures abort the run; resize
// failures and bad measurements are absorbed.
// Panics if called more than once.
func (r *Runner) Run(ctx context.Context) (err error) {
	if r.hasRun {
		panic("Runner.Run() called more than once")
	}
	r.hasRun = true

	defer func() {
		if ferr := r.sink.Flush(); ferr != nil {
			err = errors.Join(err, fmt.Errorf("flushing metrics sink: %w", ferr))
		}
	}()

	logrus.Infof("Starting scaling run: %d steps, window %d, alpha %.3f, %d..%d workers",
		r.cfg.NumTrainingSteps, r.cfg.ChangeStep, r.cfg.Alpha, r.controller.Workers(), r.cfg.MaxWorkers)

	if r.syncOnStart {
		r.controller.RequestResync()
	}
	if err := r.sink.Record(Row{Workers: r.controller.Workers()}); err != nil {
		return fmt.Errorf("recording initial row: %w", err)
	}

	for step := int64(1); step <= int64(r.cfg.NumTrainingSteps); step++ {
		if err := r.resyncIfNeeded(ctx, step); err != nil {
			return err
		}

		workers := r.controller.Workers()
		subStep := int(step % int64(r.cfg.ChangeStep))

		r.sampler.Start()
		if err := r.trainer.Step(ctx, workers); err != nil {
			return fmt.Errorf("training step %d: %w", step, err)
		}
		sample, serr := r.sampler.End(step)

		throughput := 0.0
		if serr != nil {
			// Empty the slot so a sample from an earlier window, possibly at
			// another worker count, does not stand in for this step.
			r.averager.Invalidate(subStep)
			logrus.Warnf("[step %07d] dropping sample: %v", step, serr)
			r.collector.RecordInvalidMeasurement()
		} else {
			throughput = sample.Throughput
			r.averager.Put(subStep, throughput)
			r.collector.ObserveStep(workers, sample.Duration.Seconds(), throughput)
			logrus.Debugf("[step %07d] %d workers, %.4fs, %.2f units/s", step, workers, sample.Duration.Seconds(), throughput)
		}

		if subStep == 0 {
			r.controller.Boundary(ctx, step)
		}

		row := Row{
			Step:            step,
			SubStep:         subStep,
			Workers:         workers,
			Duration:        sample.Duration.Seconds(),
			Throughput:      throughput,
			DecisionLatency: r.clock.Now().Sub(sample.EndedAt).Seconds(),
		}
		if err := r.sink.Record(row); err != nil {
			return fmt.Errorf("recording step %d: %w", step, err)
		}

		if subStep == 0 {
			if err := ctx.Err(); err != nil {
				logrus.Infof("[step %07d] run cancelled at %d workers", step, r.controller.Workers())
				return err
			}
		}
	}

	logrus.Infof("Scaling run complete: %d workers, state %s", r.controller.Workers(), r.controller.State())
	return nil
}

// resyncIfNeeded runs the barrier owed after a membership change. It runs
// before the sampler starts, so barrier time never counts toward a step.
func (r *Runner) resyncIfNeeded(ctx context.Context, step int64) error {
	if !r.controller.NeedsResync() {
		return nil
	}
	start := r.clock.Now()
	if err := r.barrier.Resync(ctx); err != nil {
		return fmt.Errorf("%w before step %d at %d workers: %w", ErrSyncFailed, step, r.controller.Workers(), err)
	}
	r.controller.ClearResync()
	logrus.Debugf("[step %07d] resync took %v", step, r.clock.Now().Sub(start))
	return nil
}
