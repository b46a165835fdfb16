package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDecisionTrace_RecordAppendsInOrder(t *testing.T) {
	dt := NewDecisionTrace(0.33, 4)
	dt.Record(DecisionRecord{Step: 4, Workers: 1, Action: "scale_up", Target: 2})
	dt.Record(DecisionRecord{Step: 8, Workers: 2, Action: "scale_up", Target: 3})

	require.Len(t, dt.Decisions, 2)
	assert.Equal(t, int64(4), dt.Decisions[0].Step)
	assert.Equal(t, int64(8), dt.Decisions[1].Step)
}

func TestDecisionTrace_WriteFile_RoundTripsThroughYAML(t *testing.T) {
	dt := NewDecisionTrace(0.33, 4)
	dt.Record(DecisionRecord{Step: 8, Workers: 2, Aggregate: 30, Baseline: 32, Threshold: 37.28,
		Action: "scale_down", Target: 1, Reason: "below tolerance", Applied: true})

	path := filepath.Join(t.TempDir(), "decisions.yaml")
	require.NoError(t, dt.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got DecisionTrace
	require.NoError(t, yaml.Unmarshal(data, &got))
	assert.Equal(t, *dt, got)
}

func TestLoadFile(t *testing.T) {
	dt := NewDecisionTrace(0.5, 2)
	dt.Record(DecisionRecord{Step: 2, Workers: 2, Aggregate: 64, Action: "scale_up", Target: 3, Applied: true})
	path := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, dt.WriteFile(path))

	got, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, dt, got)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
