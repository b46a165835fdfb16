package trace

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DecisionTrace collects decision records during a run.
type DecisionTrace struct {
	Alpha      float64          `yaml:"alpha"`
	ChangeStep int              `yaml:"change_step"`
	Decisions  []DecisionRecord `yaml:"decisions"`
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(alpha float64, changeStep int) *DecisionTrace {
	return &DecisionTrace{
		Alpha:      alpha,
		ChangeStep: changeStep,
		Decisions:  make([]DecisionRecord, 0),
	}
}

// Record appends a decision record.
func (dt *DecisionTrace) Record(record DecisionRecord) {
	dt.Decisions = append(dt.Decisions, record)
}

// WriteFile writes the trace as YAML.
func (dt *DecisionTrace) WriteFile(path string) error {
	data, err := yaml.Marshal(dt)
	if err != nil {
		return fmt.Errorf("marshaling decision trace: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing decision trace: %w", err)
	}
	return nil
}

// LoadFile reads a trace written by WriteFile.
func LoadFile(path string) (*DecisionTrace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading decision trace: %w", err)
	}
	var dt DecisionTrace
	if err := yaml.Unmarshal(data, &dt); err != nil {
		return nil, fmt.Errorf("parsing decision trace: %w", err)
	}
	return &dt, nil
}
