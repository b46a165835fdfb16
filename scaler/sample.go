package scaler

import (
	"fmt"
	"time"
)

// Clock abstracts wall time so runs can be replayed on a virtual clock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Sample is one step's measurement. Throughput is work units per second for a
// single worker (batch size / duration).
type Sample struct {
	Step       int64
	Duration   time.Duration
	Throughput float64
	EndedAt    time.Time
}

// ThroughputSampler converts step wall time into throughput samples.
// Storage of the samples is the caller's responsibility.
type ThroughputSampler struct {
	batchSize int
	clock     Clock
	start     time.Time
	started   bool
}

// NewThroughputSampler panics if batchSize < 1. A nil clock reads the system clock.
func NewThroughputSampler(batchSize int, clock Clock) *ThroughputSampler {
	if batchSize < 1 {
		panic(fmt.Sprintf("ThroughputSampler: batch size must be positive, got %d", batchSize))
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &ThroughputSampler{batchSize: batchSize, clock: clock}
}

// Start captures the step start timestamp.
func (s *ThroughputSampler) Start() {
	s.start = s.clock.Now()
	s.started = true
}

// End closes the measurement opened by Start.
// A non-positive duration (clock anomaly) or a missing Start returns
// ErrInvalidMeasurement together with a Sample that carries the observed
// duration and zero throughput.
func (s *ThroughputSampler) End(step int64) (Sample, error) {
	now := s.clock.Now()
	sample := Sample{Step: step, EndedAt: now}
	if !s.started {
		return sample, fmt.Errorf("%w: step %d ended without a start", ErrInvalidMeasurement, step)
	}
	s.started = false
	sample.Duration = now.Sub(s.start)
	if sample.Duration <= 0 {
		return sample, fmt.Errorf("%w: step %d took %v", ErrInvalidMeasurement, step, sample.Duration)
	}
	sample.Throughput = float64(s.batchSize) / sample.Duration.Seconds()
	return sample, nil
}
