package scaler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/adascale/scaler/internal/testutil"
	"github.com/inference-sim/adascale/scaler/trace"
)

// rowRecorder is an in-memory MetricsSink.
type rowRecorder struct {
	rows    []Row
	flushed int
}

func (s *rowRecorder) Record(r Row) error { s.rows = append(s.rows, r); return nil }
func (s *rowRecorder) Flush() error       { s.flushed++; return nil }

// scriptedTrainer advances the clock by a per-worker-count step time.
type scriptedTrainer struct {
	clock    *testutil.ManualClock
	stepTime map[int]time.Duration
	calls    []int
	failAt   int // 1-based call index that errors; 0 never
}

func (tr *scriptedTrainer) Step(_ context.Context, workers int) error {
	tr.calls = append(tr.calls, workers)
	if tr.failAt > 0 && len(tr.calls) == tr.failAt {
		return errors.New("allreduce aborted")
	}
	tr.clock.Advance(tr.stepTime[workers])
	return nil
}

type countingBarrier struct {
	clock *testutil.ManualClock
	cost  time.Duration
	calls int
	err   error
}

func (b *countingBarrier) Resync(context.Context) error {
	b.calls++
	if b.err != nil {
		return b.err
	}
	if b.clock != nil {
		b.clock.Advance(b.cost)
	}
	return nil
}

// scenarioA returns step times matching the efficient-growth fixture.
func scenarioA(clock *testutil.ManualClock) *scriptedTrainer {
	return &scriptedTrainer{clock: clock, stepTime: map[int]time.Duration{
		1: time.Second,
		2: 600 * time.Millisecond,
		3: 580 * time.Millisecond,
	}}
}

func TestRunner_RecordsOneRowPerStepPlusInitialRow(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	cfg := NewConfig(32, 3, 14, 4, 0.33)
	r := NewRunner(cfg, scenarioA(clock), &recordingMutator{}, &countingBarrier{}, sink, WithClock(clock))

	require.NoError(t, r.Run(context.Background()))

	require.Len(t, sink.rows, 15)
	assert.Equal(t, Row{Workers: 1}, sink.rows[0])
	for i, row := range sink.rows[1:] {
		step := int64(i + 1)
		assert.Equal(t, step, row.Step)
		assert.Equal(t, int(step%4), row.SubStep)
	}
	assert.Equal(t, 1, sink.flushed)
}

func TestRunner_ScalesLikeTheControllerDecides(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	mut := &recordingMutator{}
	dt := trace.NewDecisionTrace(0.33, 4)
	cfg := NewConfig(32, 3, 16, 4, 0.33)
	r := NewRunner(cfg, scenarioA(clock), mut, &countingBarrier{}, sink,
		WithClock(clock), WithDecisionTrace(dt))

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, []int{2, 3}, mut.targets)
	assert.Equal(t, StateFrozen, r.Controller().State())
	assert.Equal(t, 3, r.Controller().Workers())

	// A row reports the workers the step ran with, including the boundary step.
	assert.Equal(t, 1, sink.rows[4].Workers)
	assert.Equal(t, 2, sink.rows[5].Workers)
	assert.Equal(t, 2, sink.rows[8].Workers)
	assert.Equal(t, 3, sink.rows[9].Workers)

	require.Len(t, dt.Decisions, 4)
	testutil.AssertFloat64Equal(t, "aggregate at 2 workers", 106.666667, dt.Decisions[1].Aggregate, 1e-6)
	assert.Equal(t, "freeze", dt.Decisions[3].Action)
}

func TestRunner_ResyncAfterEachAppliedResize_NotCountedInDurations(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	barrier := &countingBarrier{clock: clock, cost: 5 * time.Second}
	cfg := NewConfig(32, 3, 12, 4, 0.33)
	r := NewRunner(cfg, scenarioA(clock), &recordingMutator{}, barrier, sink, WithClock(clock))

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 2, barrier.calls)
	assert.False(t, r.Controller().NeedsResync())
	assert.InDelta(t, 0.6, sink.rows[5].Duration, 1e-9)
	assert.InDelta(t, 0.58, sink.rows[9].Duration, 1e-9)
}

func TestRunner_SyncOnStart(t *testing.T) {
	clock := testutil.NewManualClock()
	barrier := &countingBarrier{}
	cfg := NewConfig(32, 1, 4, 4, 0.33)
	r := NewRunner(cfg, scenarioA(clock), &recordingMutator{}, barrier, &rowRecorder{},
		WithClock(clock), WithSyncOnStart(true))

	require.NoError(t, r.Run(context.Background()))
	assert.Equal(t, 1, barrier.calls)
}

func TestRunner_SyncFailure_AbortsAndFlushes(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	barrier := &countingBarrier{err: errors.New("peer 1 left")}
	cfg := NewConfig(32, 3, 12, 4, 0.33)
	r := NewRunner(cfg, scenarioA(clock), &recordingMutator{}, barrier, sink, WithClock(clock))

	err := r.Run(context.Background())

	require.ErrorIs(t, err, ErrSyncFailed)
	assert.Contains(t, err.Error(), "peer 1 left")
	assert.Len(t, sink.rows, 5, "initial row plus the first window")
	assert.Equal(t, 1, sink.flushed)
}

func TestRunner_TrainerError_IsFatal(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := scenarioA(clock)
	tr.failAt = 3
	sink := &rowRecorder{}
	r := NewRunner(NewConfig(32, 3, 12, 4, 0.33), tr, &recordingMutator{}, &countingBarrier{}, sink, WithClock(clock))

	err := r.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "training step 3")
	assert.Len(t, sink.rows, 3)
	assert.Equal(t, 1, sink.flushed)
}

func TestRunner_InvalidMeasurement_RecordsZeroThroughput(t *testing.T) {
	clock := testutil.NewManualClock()
	tr := &scriptedTrainer{clock: clock, stepTime: map[int]time.Duration{1: time.Second}}
	sink := &rowRecorder{}
	cfg := NewConfig(32, 1, 4, 4, 0.33)
	r := NewRunner(cfg, TrainerFunc(func(ctx context.Context, workers int) error {
		if len(tr.calls) == 1 {
			tr.calls = append(tr.calls, workers) // second step takes no time
			return nil
		}
		return tr.Step(ctx, workers)
	}), &recordingMutator{}, &countingBarrier{}, sink, WithClock(clock))

	require.NoError(t, r.Run(context.Background()))

	assert.InDelta(t, 32.0, sink.rows[1].Throughput, 1e-9)
	assert.Zero(t, sink.rows[2].Throughput)
	assert.Zero(t, sink.rows[2].Duration)
	assert.InDelta(t, 32.0, sink.rows[3].Throughput, 1e-9)
}

func TestRunner_DroppedSample_DoesNotReuseEarlierWindow(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	mut := &recordingMutator{}
	second := float64(time.Second)
	slow := time.Duration(second * 32 / 9.6) // 9.6 units/s per worker

	step := 0
	tr := TrainerFunc(func(_ context.Context, workers int) error {
		step++
		switch {
		case step == 6: // trailing half of the second window, no time measured
		case workers == 1:
			clock.Advance(time.Second)
		default:
			clock.Advance(slow)
		}
		return nil
	})
	r := NewRunner(NewConfig(32, 3, 8, 4, 0.33), tr, mut, &countingBarrier{}, sink, WithClock(clock))

	require.NoError(t, r.Run(context.Background()))

	// Only step 7 counts at two workers: 2 × 9.6 = 19.2 < 1.165 × 32.
	agg, ok := r.Controller().Aggregate(2)
	require.True(t, ok)
	testutil.AssertFloat64Equal(t, "aggregate(2)", 19.2, agg, 1e-6)
	assert.Equal(t, []int{2, 1}, mut.targets)
	assert.Equal(t, StateFrozen, r.Controller().State())
	assert.Zero(t, sink.rows[6].Throughput)
}

func TestRunner_CancellationAtWindowBoundary(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	steps := 0
	tr := TrainerFunc(func(context.Context, int) error {
		steps++
		clock.Advance(time.Second)
		if steps == 2 {
			cancel()
		}
		return nil
	})
	r := NewRunner(NewConfig(32, 3, 100, 4, 0.33), tr, &recordingMutator{}, &countingBarrier{}, sink, WithClock(clock))

	err := r.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.rows, 5, "rows 0..4")
	assert.Equal(t, 1, sink.flushed)
}

func TestRunner_DecisionLatency_CoversResize(t *testing.T) {
	clock := testutil.NewManualClock()
	sink := &rowRecorder{}
	slowMutator := MutatorFunc(func(context.Context, int) error {
		clock.Advance(250 * time.Millisecond)
		return nil
	})
	r := NewRunner(NewConfig(32, 2, 4, 4, 0.33), scenarioA(clock), slowMutator, &countingBarrier{}, sink, WithClock(clock))

	require.NoError(t, r.Run(context.Background()))

	assert.Zero(t, sink.rows[1].DecisionLatency)
	assert.InDelta(t, 0.25, sink.rows[4].DecisionLatency, 1e-9)
}

func TestRunner_Collector_ObservesSteps(t *testing.T) {
	clock := testutil.NewManualClock()
	mc := &stepCollector{countingCollector: newCountingCollector()}
	r := NewRunner(NewConfig(32, 3, 8, 4, 0.33), scenarioA(clock), &recordingMutator{}, &countingBarrier{}, &rowRecorder{},
		WithClock(clock), WithRunnerCollector(mc))

	require.NoError(t, r.Run(context.Background()))

	assert.Equal(t, 8, mc.steps)
	assert.Len(t, mc.decisions, 2)
	assert.Equal(t, 3, mc.workers)
}

type stepCollector struct {
	*countingCollector
	steps int
}

func (c *stepCollector) ObserveStep(int, float64, float64) { c.steps++ }

func TestRunner_RunTwice_Panics(t *testing.T) {
	clock := testutil.NewManualClock()
	r := NewRunner(NewConfig(32, 1, 4, 4, 0.33), scenarioA(clock), &recordingMutator{}, &countingBarrier{}, &rowRecorder{}, WithClock(clock))
	require.NoError(t, r.Run(context.Background()))
	assert.Panics(t, func() { _ = r.Run(context.Background()) })
}

func TestNewRunner_Panics(t *testing.T) {
	clock := testutil.NewManualClock()
	good := NewConfig(32, 3, 12, 4, 0.33)
	bad := good
	bad.Alpha = 0

	assert.Panics(t, func() { NewRunner(bad, scenarioA(clock), &recordingMutator{}, &countingBarrier{}, &rowRecorder{}) })
	assert.Panics(t, func() { NewRunner(good, nil, &recordingMutator{}, &countingBarrier{}, &rowRecorder{}) })
	assert.Panics(t, func() { NewRunner(good, scenarioA(clock), nil, &countingBarrier{}, &rowRecorder{}) })
	assert.Panics(t, func() { NewRunner(good, scenarioA(clock), &recordingMutator{}, nil, &rowRecorder{}) })
	assert.Panics(t, func() { NewRunner(good, scenarioA(clock), &recordingMutator{}, &countingBarrier{}, nil) })
}
