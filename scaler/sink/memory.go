package sink

import (
	"sync"

	"github.com/inference-sim/adascale/scaler"
)

// Memory keeps rows in memory. Safe for concurrent use.
type Memory struct {
	mu      sync.Mutex
	rows    []scaler.Row
	flushes int
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Record(r scaler.Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, r)
	return nil
}

func (m *Memory) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

// Rows returns a copy of the recorded rows.
func (m *Memory) Rows() []scaler.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]scaler.Row, len(m.rows))
	copy(out, m.rows)
	return out
}

// Flushes reports how many times Flush was called.
func (m *Memory) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// Multi fans every row out to several sinks. The first error stops the fan-out.
type Multi []scaler.MetricsSink

func (ms Multi) Record(r scaler.Row) error {
	for _, s := range ms {
		if err := s.Record(r); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes every sink and returns the first error.
func (ms Multi) Flush() error {
	var first error
	for _, s := range ms {
		if err := s.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
