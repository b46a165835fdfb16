package sink

import (
	"bytes"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inference-sim/adascale/scaler"
)

func sampleRows() []scaler.Row {
	return []scaler.Row{
		{Workers: 1},
		{Step: 1, SubStep: 1, Workers: 1, Duration: 1, Throughput: 32},
		{Step: 2, SubStep: 0, Workers: 1, Duration: 0.5, Throughput: 64, DecisionLatency: 0.012},
		{Step: 3, SubStep: 1, Workers: 2, Duration: 0.6, Throughput: 53.333333333333336},
		{Step: 4, SubStep: 0, Workers: 2, Duration: 0, Throughput: 0},
	}
}

func TestCSV_WritesHeaderThenRows(t *testing.T) {
	var buf bytes.Buffer
	s, err := NewCSV(&buf)
	require.NoError(t, err)
	for _, r := range sampleRows()[:3] {
		require.NoError(t, s.Record(r))
	}
	require.NoError(t, s.Flush())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "global_step,sub_step,num_workers,duration,throughput,after_run_duration", lines[0])
	assert.Equal(t, "0,0,1,0,0,0", lines[1])
	assert.Equal(t, "2,0,1,0.5,64,0.012", lines[3])
}

func TestCSV_RoundTripThroughFile(t *testing.T) {
	path := OutputPath(t.TempDir(), 3)
	assert.Equal(t, "out_3.csv", filepath.Base(path))

	s, err := CreateCSV(path)
	require.NoError(t, err)
	for _, r := range sampleRows() {
		require.NoError(t, s.Record(r))
	}
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush(), "second flush is a no-op")
	assert.Error(t, s.Record(scaler.Row{Step: 5}), "closed sink rejects rows")

	got, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), got)
}

func TestOutputPath_WithoutRank(t *testing.T) {
	assert.Equal(t, "out.csv", OutputPath("", -1))
	assert.Equal(t, filepath.Join("runs", "out_0.csv"), OutputPath("runs", 0))
}

func TestReadCSV_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"short row", "global_step,sub_step,num_workers,duration,throughput,after_run_duration\n1,1,1\n"},
		{"bad number", "global_step,sub_step,num_workers,duration,throughput,after_run_duration\n1,1,two,0.5,64,0\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestMemory_RecordsAndCountsFlushes(t *testing.T) {
	m := NewMemory()
	for _, r := range sampleRows() {
		require.NoError(t, m.Record(r))
	}
	require.NoError(t, m.Flush())

	rows := m.Rows()
	assert.Equal(t, sampleRows(), rows)
	rows[0].Workers = 99
	assert.Equal(t, 1, m.Rows()[0].Workers, "Rows returns a copy")
	assert.Equal(t, 1, m.Flushes())
}

func TestMulti_FansOut(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	multi := Multi{a, b}
	require.NoError(t, multi.Record(scaler.Row{Step: 1, Workers: 1}))
	require.NoError(t, multi.Flush())
	assert.Len(t, a.Rows(), 1)
	assert.Len(t, b.Rows(), 1)
	assert.Equal(t, 1, b.Flushes())
}

func TestNewDistribution(t *testing.T) {
	d := NewDistribution([]float64{4, 1, 3, 2, 5})
	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 3.0, d.Mean, 1e-12)
	assert.InDelta(t, 3.0, d.P50, 1e-12)
	assert.InDelta(t, 4.8, d.P95, 1e-12)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 5.0, d.Max)
	assert.InDelta(t, math.Sqrt2, d.StdDev, 1e-12)

	assert.Equal(t, Distribution{}, NewDistribution(nil))
	single := NewDistribution([]float64{7})
	assert.Equal(t, 7.0, single.P95)
	assert.Zero(t, single.StdDev)
}

func TestSummarizeByWorkers_SkipsPlaceholderAndDroppedSamples(t *testing.T) {
	got := SummarizeByWorkers(sampleRows())

	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].Workers)
	assert.Equal(t, 2, got[0].Steps)
	assert.InDelta(t, 48.0, got[0].Throughput.Mean, 1e-9)
	assert.InDelta(t, 48.0, got[0].Aggregate, 1e-9)

	assert.Equal(t, 2, got[1].Workers)
	assert.Equal(t, 1, got[1].Steps)
	assert.InDelta(t, 106.666666, got[1].Aggregate, 1e-5)
	assert.InDelta(t, 0.6, got[1].Duration.Mean, 1e-12)
}

func TestRunHeader_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	csvPath := OutputPath(dir, 1)
	headerPath := HeaderPath(csvPath)
	assert.Equal(t, "out_1.yaml", filepath.Base(headerPath))

	cfg := scaler.NewConfig(32, 8, 1000, 100, 0.33)
	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, WriteHeader(headerPath, RunHeader{StartedAt: started, Rank: 1, Mutator: "http", Config: cfg}))

	h, err := LoadHeader(headerPath)
	require.NoError(t, err)
	assert.Equal(t, 1, h.Version)
	assert.Equal(t, "http", h.Mutator)
	assert.True(t, started.Equal(h.StartedAt))
	assert.Equal(t, cfg, h.Config)
}
