package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_NilTrace_ReturnsZeroSummary(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.TotalDecisions)
	assert.NotNil(t, s.ActionsByWorker)
}

func TestSummarize_CountsActionsAndFreezePoint(t *testing.T) {
	dt := NewDecisionTrace(0.33, 4)
	dt.Record(DecisionRecord{Step: 4, Workers: 1, Aggregate: 32, Action: "scale_up", Target: 2, Applied: true})
	dt.Record(DecisionRecord{Step: 8, Workers: 2, Aggregate: 106, Action: "scale_up", Target: 3, Error: "rejected"})
	dt.Record(DecisionRecord{Step: 12, Workers: 2, Action: "scale_up", Target: 3, Retry: true, Applied: true})
	dt.Record(DecisionRecord{Step: 16, Workers: 3, Aggregate: 110, Action: "scale_down", Target: 2, Applied: true})
	dt.Record(DecisionRecord{Step: 20, Workers: 2, Action: "freeze", Target: 2})

	s := Summarize(dt)
	assert.Equal(t, 5, s.TotalDecisions)
	assert.Equal(t, 2, s.ScaleUps)
	assert.Equal(t, 1, s.ScaleDowns)
	assert.Equal(t, 1, s.Freezes)
	assert.Equal(t, 1, s.Retries)
	assert.Equal(t, 1, s.FailedResizes)
	assert.Equal(t, int64(16), s.FrozenAtStep)
	assert.InDelta(t, 110.0, s.PeakAggregate, 1e-9)
	assert.Equal(t, 3, s.PeakWorkers)
	assert.Equal(t, "freeze", s.ActionsByWorker[2])
}

func TestSummarize_FailedScaleDown_StillFreezes(t *testing.T) {
	dt := NewDecisionTrace(0.33, 4)
	dt.Record(DecisionRecord{Step: 4, Workers: 1, Aggregate: 32, Action: "scale_up", Target: 2, Applied: true})
	dt.Record(DecisionRecord{Step: 8, Workers: 2, Aggregate: 30, Action: "scale_down", Target: 1, Error: "timeout", Frozen: true})
	dt.Record(DecisionRecord{Step: 12, Workers: 2, Action: "scale_down", Target: 1, Retry: true, Applied: true, Frozen: true})

	s := Summarize(dt)
	assert.Equal(t, int64(8), s.FrozenAtStep)
	assert.Equal(t, 1, s.Retries)
}

func TestSummarize_FreezeWhileProbing_IsNotTheFreezePoint(t *testing.T) {
	dt := NewDecisionTrace(0.33, 4)
	dt.Record(DecisionRecord{Step: 4, Workers: 1, Action: "freeze", Target: 1, Reason: "no valid samples"})
	dt.Record(DecisionRecord{Step: 8, Workers: 1, Aggregate: 32, Action: "scale_up", Target: 2, Applied: true})
	dt.Record(DecisionRecord{Step: 12, Workers: 2, Aggregate: 64, Action: "freeze", Target: 2, Frozen: true})

	assert.Equal(t, int64(12), Summarize(dt).FrozenAtStep)
}
