package scaler

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Config holds the recognized controller options. ChangeStep is fixed for the
// lifetime of a controller: the threshold compares aggregates of equal-length
// windows.
type Config struct {
	// BatchSize is the number of work units one worker processes per step.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
	// MaxWorkers bounds the pool size.
	MaxWorkers int `yaml:"max_workers" mapstructure:"max_workers"`
	// NumTrainingSteps is the run length; steps are numbered 1..N.
	NumTrainingSteps int `yaml:"num_training_steps" mapstructure:"num_training_steps"`
	// ChangeStep is the window length in steps.
	ChangeStep int `yaml:"change_step" mapstructure:"change_step"`
	// Alpha is the marginal-efficiency tolerance.
	Alpha float64 `yaml:"alpha" mapstructure:"alpha"`
	// InitialWorkers is the pool size before the first step.
	InitialWorkers int `yaml:"initial_workers" mapstructure:"initial_workers"`
}

// NewConfig creates a Config starting from a single worker.
func NewConfig(batchSize, maxWorkers, numTrainingSteps, changeStep int, alpha float64) Config {
	return Config{
		BatchSize:        batchSize,
		MaxWorkers:       maxWorkers,
		NumTrainingSteps: numTrainingSteps,
		ChangeStep:       changeStep,
		Alpha:            alpha,
		InitialWorkers:   1,
	}
}

// DefaultConfig returns the settings the controller was tuned with:
// 100-step windows and alpha 0.33.
func DefaultConfig() Config {
	return NewConfig(32, 8, 1000, 100, 0.33)
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
// An odd ChangeStep is accepted with a warning; its trailing half is then
// one slot longer than its leading half.
func (c Config) Validate() error {
	switch {
	case c.BatchSize < 1:
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	case c.MaxWorkers < 1:
		return fmt.Errorf("%w: max workers must be >= 1, got %d", ErrInvalidConfig, c.MaxWorkers)
	case c.NumTrainingSteps < 1:
		return fmt.Errorf("%w: num training steps must be positive, got %d", ErrInvalidConfig, c.NumTrainingSteps)
	case c.ChangeStep < 1:
		return fmt.Errorf("%w: change step must be positive, got %d", ErrInvalidConfig, c.ChangeStep)
	case !(c.Alpha > 0):
		return fmt.Errorf("%w: alpha must be > 0, got %v", ErrInvalidConfig, c.Alpha)
	case c.InitialWorkers < 1 || c.InitialWorkers > c.MaxWorkers:
		return fmt.Errorf("%w: initial workers must be in [1, %d], got %d", ErrInvalidConfig, c.MaxWorkers, c.InitialWorkers)
	}
	if c.ChangeStep%2 != 0 {
		logrus.Warnf("change step %d is odd; trailing half averages %d of %d slots",
			c.ChangeStep, c.ChangeStep-c.ChangeStep/2, c.ChangeStep)
	}
	return nil
}
