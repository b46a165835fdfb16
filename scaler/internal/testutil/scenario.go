// Package testutil provides shared test infrastructure for the scaler
// packages: scenario fixtures, a manual clock and float assertions.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

// ScenarioSet represents the structure of testdata/scenarios.json.
type ScenarioSet struct {
	Scenarios []Scenario `json:"scenarios"`
}

// Scenario is a scripted run: per-window step durations at a fixed worker
// count and the decision expected at each window boundary.
type Scenario struct {
	Name           string           `json:"name"`
	BatchSize      int              `json:"batch_size"`
	ChangeStep     int              `json:"change_step"`
	Alpha          float64          `json:"alpha"`
	MaxWorkers     int              `json:"max_workers"`
	InitialWorkers int              `json:"initial_workers"`
	Windows        []ScenarioWindow `json:"windows"`
	Expected       []ExpectedAction `json:"expected"`
	FinalState     string           `json:"final_state"`
	FinalWorkers   int              `json:"final_workers"`
}

// ScenarioWindow lists the step durations (seconds) of one window.
type ScenarioWindow struct {
	Workers   int       `json:"workers"`
	Durations []float64 `json:"durations"`
}

// ExpectedAction is the decision expected at a window boundary.
// Aggregate is 0 when the controller is frozen and evaluates nothing.
type ExpectedAction struct {
	Step      int64   `json:"step"`
	Action    string  `json:"action"`
	Target    int     `json:"target"`
	Aggregate float64 `json:"aggregate"`
}

// Durations flattens the windows into per-step durations for steps 1..N.
func (s Scenario) Durations() []time.Duration {
	var out []time.Duration
	for _, w := range s.Windows {
		for _, d := range w.Durations {
			out = append(out, time.Duration(d*float64(time.Second)))
		}
	}
	return out
}

// LoadScenarios loads the scenario fixtures from the repo root testdata directory.
// The path is resolved relative to this source file: scaler/internal/testutil/ → testdata/.
func LoadScenarios(t *testing.T) *ScenarioSet {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "scenarios.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read scenarios: %v", err)
	}

	var set ScenarioSet
	if err := json.Unmarshal(data, &set); err != nil {
		t.Fatalf("Failed to parse scenarios: %v", err)
	}
	return &set
}

// ManualClock is a clock that only moves when told to. Safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts at a fixed, arbitrary instant.
func NewManualClock() *ManualClock {
	return &ManualClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock by d. Negative d moves it backwards, which is how
// tests provoke clock anomalies.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
