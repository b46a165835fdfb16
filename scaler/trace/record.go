// Package trace provides decision-trace recording for offline analysis of a
// scaling run. It holds plain data and does not import scaler.
package trace

// DecisionRecord captures one window-boundary decision.
type DecisionRecord struct {
	Step      int64   `yaml:"step"`
	Workers   int     `yaml:"workers"`
	Aggregate float64 `yaml:"aggregate"` // mean trailing-half throughput × workers
	Baseline  float64 `yaml:"baseline"`  // aggregate recorded at workers-1, 0 if none
	Threshold float64 `yaml:"threshold"` // (1 + alpha/workers) × baseline
	Action    string  `yaml:"action"`
	Target    int     `yaml:"target"`
	Reason    string  `yaml:"reason"`
	Retry     bool    `yaml:"retry,omitempty"`   // reissue of a previously failed resize
	Applied   bool    `yaml:"applied,omitempty"` // membership change succeeded
	Error     string  `yaml:"error,omitempty"`
	Frozen    bool    `yaml:"frozen,omitempty"` // controller state after the decision
}
