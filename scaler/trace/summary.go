package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	TotalDecisions  int
	ScaleUps        int
	ScaleDowns      int
	Freezes         int
	Retries         int
	FailedResizes   int
	FrozenAtStep    int64 // first decision that left the controller frozen; 0 if it never froze
	PeakAggregate   float64
	PeakWorkers     int // worker count that produced PeakAggregate
	ActionsByWorker map[int]string // worker count → last action decided there
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		ActionsByWorker: make(map[int]string),
	}
	if dt == nil {
		return summary
	}

	summary.TotalDecisions = len(dt.Decisions)
	for _, d := range dt.Decisions {
		switch d.Action {
		case "scale_up":
			summary.ScaleUps++
		case "scale_down":
			summary.ScaleDowns++
		case "freeze":
			summary.Freezes++
		}
		if d.Retry {
			summary.Retries++
		}
		if d.Error != "" {
			summary.FailedResizes++
		}
		// A scale-down freezes whether or not the resize went through.
		if summary.FrozenAtStep == 0 && (d.Frozen || (d.Action == "scale_down" && !d.Retry)) {
			summary.FrozenAtStep = d.Step
		}
		if d.Aggregate > summary.PeakAggregate {
			summary.PeakAggregate = d.Aggregate
			summary.PeakWorkers = d.Workers
		}
		summary.ActionsByWorker[d.Workers] = d.Action
	}
	return summary
}
