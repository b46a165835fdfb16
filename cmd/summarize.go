package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/adascale/scaler/sink"
	"github.com/inference-sim/adascale/scaler/trace"
)

var summarizeTrace string // Decision trace to summarize alongside the CSV

// summarizeCmd prints per-worker-count throughput statistics of a run.
var summarizeCmd = &cobra.Command{
	Use:   "summarize <out.csv>",
	Short: "Summarize throughput by worker count from a run's CSV output",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		rows, err := sink.LoadCSV(args[0])
		if err != nil {
			logrus.Fatalf("Failed to load %s: %v", args[0], err)
		}
		if h, err := sink.LoadHeader(sink.HeaderPath(args[0])); err == nil {
			fmt.Printf("Run started %s, alpha %.3f, window %d, max %d workers\n",
				h.StartedAt.Format("2006-01-02 15:04:05"), h.Config.Alpha, h.Config.ChangeStep, h.Config.MaxWorkers)
		}
		writeWorkerTable(os.Stdout, sink.SummarizeByWorkers(rows))

		if summarizeTrace != "" {
			dt, err := trace.LoadFile(summarizeTrace)
			if err != nil {
				logrus.Fatalf("Failed to load trace: %v", err)
			}
			printTraceSummary(trace.Summarize(dt))
		}
	},
}

func init() {
	summarizeCmd.Flags().StringVar(&summarizeTrace, "trace", "", "Decision trace YAML written by run --trace-out")
}

// writeWorkerTable renders one line per worker count.
func writeWorkerTable(w io.Writer, summaries []sink.WorkerSummary) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "workers\tsteps\tmean\tp50\tp95\tmin\tmax\taggregate\tstep_time")
	for _, s := range summaries {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.4fs\n",
			s.Workers, s.Steps, s.Throughput.Mean, s.Throughput.P50, s.Throughput.P95,
			s.Throughput.Min, s.Throughput.Max, s.Aggregate, s.Duration.Mean)
	}
	_ = tw.Flush()
}

func printTraceSummary(s *trace.TraceSummary) {
	fmt.Printf("=== Decisions ===\n")
	fmt.Printf("Total:           %d (%d scale up, %d scale down, %d freeze)\n",
		s.TotalDecisions, s.ScaleUps, s.ScaleDowns, s.Freezes)
	fmt.Printf("Failed resizes:  %d (%d retries)\n", s.FailedResizes, s.Retries)
	if s.FrozenAtStep > 0 {
		fmt.Printf("Frozen at step:  %d\n", s.FrozenAtStep)
	}
	if s.PeakWorkers > 0 {
		fmt.Printf("Peak aggregate:  %.2f at %d workers\n", s.PeakAggregate, s.PeakWorkers)
	}

	workers := make([]int, 0, len(s.ActionsByWorker))
	for w := range s.ActionsByWorker {
		workers = append(workers, w)
	}
	sort.Ints(workers)
	for _, w := range workers {
		fmt.Printf("  %d workers: %s\n", w, s.ActionsByWorker[w])
	}
}
