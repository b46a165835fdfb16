package sink

import (
	"math"
	"slices"
	"sort"

	"github.com/inference-sim/adascale/scaler"
)

// Distribution summarizes the values a column took at one worker count.
// StdDev is the population deviation, a direct read on measurement noise.
type Distribution struct {
	Count    int
	Mean     float64
	StdDev   float64
	Min, Max float64
	P50, P95 float64
}

// NewDistribution returns the zero Distribution for no values.
func NewDistribution(values []float64) Distribution {
	n := len(values)
	if n == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(n)
	var sq float64
	for _, v := range sorted {
		sq += (v - mean) * (v - mean)
	}
	return Distribution{
		Count:  n,
		Mean:   mean,
		StdDev: math.Sqrt(sq / float64(n)),
		Min:    sorted[0],
		Max:    sorted[n-1],
		P50:    quantile(sorted, 0.50),
		P95:    quantile(sorted, 0.95),
	}
}

// quantile interpolates linearly between closest ranks of a sorted slice.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(pos)
	if lo+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[lo] + (pos-float64(lo))*(sorted[lo+1]-sorted[lo])
}

// WorkerSummary describes the steps run at one worker count.
type WorkerSummary struct {
	Workers    int
	Steps      int
	Throughput Distribution // per-worker units per second
	Duration   Distribution // seconds
	// Aggregate is the mean throughput scaled by the worker count.
	Aggregate float64
}

// SummarizeByWorkers groups rows by worker count, ordered by count. Row 0
// and rows with zero throughput (dropped measurements) are skipped.
func SummarizeByWorkers(rows []scaler.Row) []WorkerSummary {
	throughputs := make(map[int][]float64)
	durations := make(map[int][]float64)
	for _, r := range rows {
		if r.Step == 0 || r.Throughput <= 0 {
			continue
		}
		throughputs[r.Workers] = append(throughputs[r.Workers], r.Throughput)
		durations[r.Workers] = append(durations[r.Workers], r.Duration)
	}

	counts := make([]int, 0, len(throughputs))
	for w := range throughputs {
		counts = append(counts, w)
	}
	sort.Ints(counts)

	out := make([]WorkerSummary, 0, len(counts))
	for _, w := range counts {
		tp := NewDistribution(throughputs[w])
		out = append(out, WorkerSummary{
			Workers:    w,
			Steps:      tp.Count,
			Throughput: tp,
			Duration:   NewDistribution(durations[w]),
			Aggregate:  tp.Mean * float64(w),
		})
	}
	return out
}
