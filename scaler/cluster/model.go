package cluster

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// StepModel is the per-step time of a data-parallel job at n workers:
//
//	base × (1 + contention·(n−1) + coherency·n·(n−1)) × (1 ± jitter)
//
// Contention models the serialized share of an all-reduce; coherency models
// the pairwise exchange cost that eventually makes extra workers a net loss.
type StepModel struct {
	Base       time.Duration `yaml:"base" mapstructure:"base"`
	Contention float64       `yaml:"contention" mapstructure:"contention"`
	Coherency  float64       `yaml:"coherency" mapstructure:"coherency"`
	// Jitter is the half-width of the uniform multiplicative noise, in [0, 1).
	Jitter float64 `yaml:"jitter" mapstructure:"jitter"`
}

// DefaultStepModel peaks at five workers.
func DefaultStepModel() StepModel {
	return StepModel{
		Base:       500 * time.Millisecond,
		Contention: 0.05,
		Coherency:  0.02,
		Jitter:     0.02,
	}
}

// Validate rejects models that could produce non-positive step times.
func (m StepModel) Validate() error {
	switch {
	case m.Base <= 0:
		return fmt.Errorf("step model: base must be positive, got %v", m.Base)
	case m.Contention < 0 || m.Coherency < 0:
		return fmt.Errorf("step model: contention and coherency must be >= 0")
	case m.Jitter < 0 || m.Jitter >= 1:
		return fmt.Errorf("step model: jitter must be in [0, 1), got %v", m.Jitter)
	}
	return nil
}

// Slowdown is the noise-free step time at n workers relative to one worker.
func (m StepModel) Slowdown(n int) float64 {
	fn := float64(n)
	return 1 + m.Contention*(fn-1) + m.Coherency*fn*(fn-1)
}

// StepTime draws one step time at n workers. rng may be nil when Jitter is 0.
func (m StepModel) StepTime(n int, rng *rand.Rand) time.Duration {
	factor := m.Slowdown(n)
	if m.Jitter > 0 && rng != nil {
		factor *= 1 + m.Jitter*(2*rng.Float64()-1)
	}
	return time.Duration(math.Round(float64(m.Base) * factor))
}
