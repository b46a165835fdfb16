package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/cluster"
	"github.com/inference-sim/adascale/scaler/metrics"
	"github.com/inference-sim/adascale/scaler/mutator"
	"github.com/inference-sim/adascale/scaler/roster"
	"github.com/inference-sim/adascale/scaler/sink"
	"github.com/inference-sim/adascale/scaler/trace"
)

// runCmd drives the scaling controller against a simulated training job.
// Membership changes go to the simulated cluster or, with --mutator http or
// nats, to an external cluster manager.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the adaptive scaling controller over a training job",
	Run: func(cmd *cobra.Command, args []string) {
		setupLogging()

		v, err := newRunViper(cmd.Flags(), configFile)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		cfg, err := loadRunConfig(v)
		if err != nil {
			logrus.Fatalf("Invalid configuration: %v", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		res, err := runScaling(ctx, cfg)
		if err != nil {
			if errors.Is(err, context.Canceled) && res != nil {
				logrus.Warnf("Run interrupted; partial results in %s", res.OutputPath)
				return
			}
			logrus.Fatalf("Run failed: %v", err)
		}
		printRunReport(res)
	},
}

// runResult describes a finished run.
type runResult struct {
	OutputPath   string
	HeaderPath   string
	TracePath    string
	FinalWorkers int
	State        scaler.State
	History      map[int]float64
	Trace        *trace.DecisionTrace
	Cluster      cluster.Stats
	Elapsed      time.Duration // simulated
}

// runScaling wires the collaborators described by cfg and runs the
// controller to completion. On cancellation it returns the partial result
// together with the context error.
func runScaling(ctx context.Context, cfg RunConfig) (*runResult, error) {
	sc := cfg.Scaler
	sim := cluster.New(cfg.Cluster, sc.InitialWorkers)

	mut, closeMutator, maxWorkers, err := buildMutator(cfg, sim)
	if err != nil {
		return nil, err
	}
	defer closeMutator()
	if maxWorkers < sc.MaxWorkers {
		logrus.Infof("Roster describes %d workers; capping max workers at %d", maxWorkers, maxWorkers)
		sc.MaxWorkers = maxWorkers
		if err := sc.Validate(); err != nil {
			return nil, err
		}
	}

	res := &runResult{OutputPath: sink.OutputPath(cfg.OutDir, cfg.Rank), TracePath: cfg.TraceOut}
	res.HeaderPath = sink.HeaderPath(res.OutputPath)
	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}
	header := sink.RunHeader{StartedAt: time.Now().UTC(), Rank: cfg.Rank, Mutator: cfg.Mutator, Config: sc}
	if err := sink.WriteHeader(res.HeaderPath, header); err != nil {
		return nil, err
	}
	out, err := sink.CreateCSV(res.OutputPath)
	if err != nil {
		return nil, err
	}

	opts := []scaler.RunnerOption{
		scaler.WithClock(sim.Clock()),
		scaler.WithSyncOnStart(cfg.SyncOnStart),
		scaler.WithRunnerResizeTimeout(cfg.ResizeTimeout),
	}
	res.Trace = trace.NewDecisionTrace(sc.Alpha, sc.ChangeStep)
	opts = append(opts, scaler.WithDecisionTrace(res.Trace))

	if cfg.MetricsAddr != "" {
		collector, shutdown, err := serveMetrics(cfg.MetricsAddr)
		if err != nil {
			_ = out.Flush()
			return nil, err
		}
		defer shutdown()
		opts = append(opts, scaler.WithRunnerCollector(collector))
	}

	runner := scaler.NewRunner(sc, sim, mut, sim, out, opts...)
	runErr := runner.Run(ctx)

	ctrl := runner.Controller()
	res.FinalWorkers = ctrl.Workers()
	res.State = ctrl.State()
	res.History = ctrl.History()
	res.Cluster = sim.Stats()
	res.Elapsed = sim.Clock().Elapsed()

	if cfg.TraceOut != "" {
		if err := res.Trace.WriteFile(cfg.TraceOut); err != nil {
			return res, errors.Join(runErr, err)
		}
	}
	return res, runErr
}

// buildMutator returns the ClusterMutator selected by cfg, a cleanup func
// and the largest pool its roster can describe.
func buildMutator(cfg RunConfig, sim *cluster.Cluster) (scaler.ClusterMutator, func(), int, error) {
	noop := func() {}
	if cfg.Mutator == MutatorSim {
		return sim, noop, cfg.Scaler.MaxWorkers, nil
	}

	r, err := roster.Load(cfg.Roster)
	if err != nil {
		return nil, noop, 0, err
	}
	initial := cfg.Scaler.InitialWorkers

	switch cfg.Mutator {
	case MutatorHTTP:
		logrus.Infof("Membership changes go to %s", cfg.ClusterURL)
		return mutator.NewHTTP(cfg.ClusterURL, r, initial), noop, r.MaxWorkers(), nil
	case MutatorNATS:
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("adascale"), nats.Timeout(5*time.Second))
		if err != nil {
			return nil, noop, 0, fmt.Errorf("connecting to NATS at %s: %w", cfg.NATSURL, err)
		}
		logrus.Infof("Membership changes go to %s on %s", cfg.NATSSubject, cfg.NATSURL)
		m := mutator.NewNATS(nc, r, initial, mutator.WithSubjectPrefix(cfg.NATSSubject))
		return m, nc.Close, r.MaxWorkers(), nil
	default:
		return nil, noop, 0, fmt.Errorf("%w: unknown mutator %q", scaler.ErrInvalidConfig, cfg.Mutator)
	}
}

// serveMetrics exposes a fresh registry on addr/metrics until shutdown is called.
func serveMetrics(addr string) (*metrics.Prometheus, func(), error) {
	reg := prometheus.NewRegistry()
	collector, err := metrics.NewPrometheus(reg, "")
	if err != nil {
		return nil, nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Errorf("Metrics server: %v", err)
		}
	}()
	logrus.Infof("Serving metrics on %s/metrics", addr)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
	return collector, shutdown, nil
}

func printRunReport(res *runResult) {
	fmt.Printf("=== Scaling Run ===\n")
	fmt.Printf("Output:          %s\n", res.OutputPath)
	if res.TracePath != "" {
		fmt.Printf("Decision trace:  %s\n", res.TracePath)
	}
	fmt.Printf("Final workers:   %d (%s)\n", res.FinalWorkers, res.State)
	fmt.Printf("Simulated time:  %v\n", res.Elapsed)
	fmt.Printf("Barrier syncs:   %d\n", res.Cluster.Syncs)
	printTraceSummary(trace.Summarize(res.Trace))
}
