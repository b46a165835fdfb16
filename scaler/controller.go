// scaler/controller.go
package scaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/adascale/scaler/trace"
)

// ActionKind enumerates controller outputs at a window boundary.
type ActionKind int

const (
	ActionFreeze ActionKind = iota
	ActionScaleUp
	ActionScaleDown
)

func (k ActionKind) String() string {
	switch k {
	case ActionFreeze:
		return "freeze"
	case ActionScaleUp:
		return "scale_up"
	case ActionScaleDown:
		return "scale_down"
	default:
		return fmt.Sprintf("ActionKind(%d)", int(k))
	}
}

// Action is a decision together with the worker count it leads to.
// For Freeze, Target is the current worker count.
type Action struct {
	Kind   ActionKind
	Target int
}

func ScaleUp(target int) Action   { return Action{Kind: ActionScaleUp, Target: target} }
func ScaleDown(target int) Action { return Action{Kind: ActionScaleDown, Target: target} }
func Freeze(workers int) Action   { return Action{Kind: ActionFreeze, Target: workers} }

// IsResize reports whether the action changes membership.
func (a Action) IsResize() bool {
	return a.Kind == ActionScaleUp || a.Kind == ActionScaleDown
}

func (a Action) String() string {
	return fmt.Sprintf("%s(%d)", a.Kind, a.Target)
}

// State is the controller lifecycle state.
type State int

const (
	// StateProbing permits scaling.
	StateProbing State = iota
	// StateFrozen is terminal: membership is fixed for the rest of the run.
	StateFrozen
)

func (s State) String() string {
	if s == StateFrozen {
		return "frozen"
	}
	return "probing"
}

// Decision is the outcome of one window boundary as seen by the step runner.
type Decision struct {
	Step    int64
	Action  Action
	Retry   bool  // reissue of an action whose resize failed earlier
	Applied bool  // membership changed
	Err     error // resize failure, nil when Applied or when no resize was needed
}

// evaluation holds the numbers behind the latest decision, for tracing.
type evaluation struct {
	aggregate float64
	baseline  float64
	threshold float64
	reason    string
}

// Controller is the marginal-efficiency scaling state machine.
//
// At every window boundary it records the aggregate throughput of the current
// worker count and compares it with the aggregate at one fewer worker. A
// gain below (1 + alpha/n) × baseline sheds the newest worker and freezes;
// otherwise the pool grows by one until MaxWorkers, where it freezes.
//
// Not safe for concurrent use; one Controller serves one step loop.
type Controller struct {
	alpha         float64
	maxWorkers    int
	averager      *WindowedAverager
	mutator       ClusterMutator
	collector     MetricsCollector
	trace         *trace.DecisionTrace
	resizeTimeout time.Duration

	history     map[int]float64 // worker count → aggregate throughput
	workers     int
	state       State
	needsResync bool
	pending     *Action // resize that failed and is reissued at the next boundary
	eval        evaluation
}

// ControllerOption configures optional Controller collaborators.
type ControllerOption func(*Controller)

// WithCollector routes operational metrics to mc.
func WithCollector(mc MetricsCollector) ControllerOption {
	return func(c *Controller) {
		if mc != nil {
			c.collector = mc
		}
	}
}

// WithTrace records every boundary decision into dt.
func WithTrace(dt *trace.DecisionTrace) ControllerOption {
	return func(c *Controller) { c.trace = dt }
}

// WithResizeTimeout bounds each Resize call. Expiry counts as a failed
// resize and is retried at the next boundary. Zero means no deadline.
func WithResizeTimeout(d time.Duration) ControllerOption {
	return func(c *Controller) { c.resizeTimeout = d }
}

// NewController creates a Controller in StateProbing at cfg.InitialWorkers
// (1 when unset). Panics if averager or mutator is nil, or if the averager
// window does not match cfg.ChangeStep.
func NewController(cfg Config, averager *WindowedAverager, mutator ClusterMutator, opts ...ControllerOption) *Controller {
	if averager == nil {
		panic("Controller: averager is nil")
	}
	if mutator == nil {
		panic("Controller: mutator is nil")
	}
	if averager.Len() != cfg.ChangeStep {
		panic(fmt.Sprintf("Controller: averager window %d does not match change step %d", averager.Len(), cfg.ChangeStep))
	}
	workers := cfg.InitialWorkers
	if workers < 1 {
		workers = 1
	}
	c := &Controller{
		alpha:      cfg.Alpha,
		maxWorkers: cfg.MaxWorkers,
		averager:   averager,
		mutator:    mutator,
		collector:  NopCollector{},
		history:    make(map[int]float64),
		workers:    workers,
		state:      StateProbing,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.collector.SetWorkers(c.workers)
	c.collector.SetFrozen(false)
	return c
}

// OnWindowBoundary evaluates the window that just completed at workerCount
// and returns the action to take. It does not touch membership.
//
// A frozen controller returns Freeze without reading the window or writing
// history. A window whose trailing half holds no valid sample also yields
// Freeze, but the controller stays Probing and writes no history.
// Panics if workerCount < 1.
func (c *Controller) OnWindowBoundary(step int64, workerCount int) Action {
	if workerCount < 1 {
		panic(fmt.Sprintf("Controller: worker count must be >= 1, got %d", workerCount))
	}
	if c.state == StateFrozen {
		c.eval = evaluation{reason: "frozen"}
		return Freeze(workerCount)
	}

	mean, ok := c.averager.TrailingHalfMean()
	if !ok {
		// Every trailing sample was dropped. Keep probing at this count and
		// measure it again over the next window.
		c.eval = evaluation{reason: "no valid samples in the trailing half-window"}
		logrus.Warnf("[step %07d] no valid samples at %d workers; measuring another window", step, workerCount)
		return Freeze(workerCount)
	}
	aggregate := mean * float64(workerCount)
	c.history[workerCount] = aggregate

	baseline := 0.0
	if workerCount > 1 {
		if prev, ok := c.history[workerCount-1]; ok {
			baseline = prev
		}
	}
	threshold := (1 + c.alpha/float64(workerCount)) * baseline
	c.eval = evaluation{aggregate: aggregate, baseline: baseline, threshold: threshold}

	logrus.Infof("[step %07d] aggregate throughput %.2f at %d workers (baseline %.2f, threshold %.2f)",
		step, aggregate, workerCount, baseline, threshold)

	if aggregate < threshold {
		if workerCount == 1 {
			c.eval.reason = "below tolerance at a single worker"
			c.freeze(step, c.eval.reason)
			return Freeze(workerCount)
		}
		c.eval.reason = fmt.Sprintf("worker %d added less than the tolerated gain", workerCount)
		c.freeze(step, c.eval.reason)
		return ScaleDown(workerCount - 1)
	}
	if workerCount < c.maxWorkers {
		c.eval.reason = "marginal gain within tolerance"
		return ScaleUp(workerCount + 1)
	}
	c.eval.reason = fmt.Sprintf("reached max workers %d", c.maxWorkers)
	c.freeze(step, c.eval.reason)
	return Freeze(workerCount)
}

// Boundary runs one window boundary for the step runner: it reissues a
// previously failed resize, or evaluates the window, and applies any
// resulting membership change through the ClusterMutator.
//
// A failed resize leaves the worker count and the resync flag untouched; the
// same action is retried at the next boundary without re-evaluating.
// ErrRosterExhausted freezes the controller instead.
func (c *Controller) Boundary(ctx context.Context, step int64) Decision {
	workers := c.workers
	wasFrozen := c.state == StateFrozen
	var d Decision
	if c.pending != nil {
		d = Decision{Step: step, Action: *c.pending, Retry: true}
		c.eval = evaluation{reason: "retry of failed resize"}
		logrus.Infof("[step %07d] retrying %s", step, d.Action)
	} else {
		d = Decision{Step: step, Action: c.OnWindowBoundary(step, workers)}
	}
	c.collector.RecordDecision(d.Action)

	if d.Action.IsResize() {
		d.Err = c.apply(ctx, step, d.Action)
		d.Applied = d.Err == nil
	} else if wasFrozen {
		logrus.Debugf("[step %07d] frozen at %d workers", step, workers)
	}
	c.record(d, workers)
	return d
}

func (c *Controller) apply(ctx context.Context, step int64, action Action) error {
	if c.resizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.resizeTimeout)
		defer cancel()
	}
	err := c.mutator.Resize(ctx, action.Target)
	c.collector.RecordResize(action.Target, err == nil)
	if err == nil {
		logrus.Infof("[step %07d] %s applied: %d -> %d workers", step, action.Kind, c.workers, action.Target)
		c.workers = action.Target
		c.needsResync = true
		c.pending = nil
		c.collector.SetWorkers(c.workers)
		return nil
	}
	if errors.Is(err, ErrRosterExhausted) {
		logrus.Warnf("[step %07d] %s: %v", step, action, err)
		c.pending = nil
		c.freeze(step, "roster exhausted")
		return err
	}
	logrus.Warnf("[step %07d] %s failed, staying at %d workers until the next window: %v",
		step, action, c.workers, err)
	retry := action
	c.pending = &retry
	return err
}

// freeze performs the one-way Probing → Frozen transition.
func (c *Controller) freeze(step int64, reason string) {
	if c.state == StateFrozen {
		return
	}
	c.state = StateFrozen
	c.collector.SetFrozen(true)
	logrus.Infof("[step %07d] stop scaling at %d workers: %s", step, c.workers, reason)
}

func (c *Controller) record(d Decision, workers int) {
	if c.trace == nil {
		return
	}
	rec := trace.DecisionRecord{
		Step:      d.Step,
		Workers:   workers,
		Aggregate: c.eval.aggregate,
		Baseline:  c.eval.baseline,
		Threshold: c.eval.threshold,
		Action:    d.Action.Kind.String(),
		Target:    d.Action.Target,
		Reason:    c.eval.reason,
		Retry:     d.Retry,
		Applied:   d.Applied,
		Frozen:    c.state == StateFrozen,
	}
	if d.Err != nil {
		rec.Error = d.Err.Error()
	}
	c.trace.Record(rec)
}

// Workers returns the current worker count.
func (c *Controller) Workers() int { return c.workers }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state }

// Frozen reports whether scaling has stopped for this run.
func (c *Controller) Frozen() bool { return c.state == StateFrozen }

// NeedsResync reports whether a membership change is awaiting its barrier.
func (c *Controller) NeedsResync() bool { return c.needsResync }

// RequestResync asks for a barrier before the next step, for runs that
// broadcast initial state before training starts.
func (c *Controller) RequestResync() { c.needsResync = true }

// ClearResync is called by the step runner once the barrier has completed.
func (c *Controller) ClearResync() { c.needsResync = false }

// Pending returns the resize awaiting retry, if any.
func (c *Controller) Pending() (Action, bool) {
	if c.pending == nil {
		return Action{}, false
	}
	return *c.pending, true
}

// Aggregate returns the recorded aggregate throughput for a worker count.
func (c *Controller) Aggregate(workers int) (float64, bool) {
	v, ok := c.history[workers]
	return v, ok
}

// History returns a copy of the worker count → aggregate throughput map.
func (c *Controller) History() map[int]float64 {
	out := make(map[int]float64, len(c.history))
	for k, v := range c.history {
		out[k] = v
	}
	return out
}
