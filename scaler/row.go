package scaler

// RowColumns is the fixed schema of the per-step output.
var RowColumns = []string{
	"global_step", "sub_step", "num_workers", "duration", "throughput", "after_run_duration",
}

// Row is one step's output. Durations are in seconds.
// DecisionLatency spans from the end of the step through the decision and
// any resize it triggered.
type Row struct {
	Step            int64
	SubStep         int
	Workers         int
	Duration        float64
	Throughput      float64
	DecisionLatency float64
}
