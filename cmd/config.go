package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/cluster"
	"github.com/inference-sim/adascale/scaler/mutator"
)

// envPrefix namespaces environment overrides: ADASCALE_SCALER_ALPHA=0.5.
const envPrefix = "ADASCALE"

// Mutator transports selectable with --mutator.
const (
	MutatorSim  = "sim"
	MutatorHTTP = "http"
	MutatorNATS = "nats"
)

// RunConfig is everything `adascale run` needs. It is assembled from, in
// increasing precedence: defaults, the --config YAML file, ADASCALE_*
// environment variables and explicit flags.
type RunConfig struct {
	Scaler  scaler.Config  `mapstructure:"scaler" yaml:"scaler"`
	Cluster cluster.Config `mapstructure:"cluster" yaml:"cluster"`

	Mutator     string `mapstructure:"mutator" yaml:"mutator"`
	ClusterURL  string `mapstructure:"cluster_url" yaml:"cluster_url"`
	NATSURL     string `mapstructure:"nats_url" yaml:"nats_url"`
	NATSSubject string `mapstructure:"nats_subject" yaml:"nats_subject"`
	Roster      string `mapstructure:"roster" yaml:"roster"`

	// Rank selects out_<rank>.csv; negative means out.csv.
	Rank          int           `mapstructure:"rank" yaml:"rank"`
	OutDir        string        `mapstructure:"out_dir" yaml:"out_dir"`
	TraceOut      string        `mapstructure:"trace_out" yaml:"trace_out"`
	MetricsAddr   string        `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	ResizeTimeout time.Duration `mapstructure:"resize_timeout" yaml:"resize_timeout"`
	SyncOnStart   bool          `mapstructure:"sync_on_start" yaml:"sync_on_start"`
}

// DefaultRunConfig runs the default controller against the simulated cluster.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Scaler:      scaler.DefaultConfig(),
		Cluster:     cluster.DefaultConfig(),
		Mutator:     MutatorSim,
		ClusterURL:  mutator.DefaultBaseURL,
		NATSURL:     "nats://127.0.0.1:4222",
		NATSSubject: mutator.DefaultSubjectPrefix,
		Rank:        -1,
	}
}

// Validate checks cross-field constraints not covered by the sub-configs.
func (c RunConfig) Validate() error {
	if err := c.Scaler.Validate(); err != nil {
		return err
	}
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("%w: cluster: %w", scaler.ErrInvalidConfig, err)
	}
	switch c.Mutator {
	case MutatorSim:
	case MutatorHTTP, MutatorNATS:
		if c.Roster == "" {
			return fmt.Errorf("%w: --roster is required with --mutator %s", scaler.ErrInvalidConfig, c.Mutator)
		}
	default:
		return fmt.Errorf("%w: unknown mutator %q (want sim, http or nats)", scaler.ErrInvalidConfig, c.Mutator)
	}
	if c.ResizeTimeout < 0 {
		return fmt.Errorf("%w: resize timeout must be >= 0", scaler.ErrInvalidConfig)
	}
	return nil
}

// flagKeys maps run flags to their viper keys.
var flagKeys = map[string]string{
	"batch-size":              "scaler.batch_size",
	"max-workers":             "scaler.max_workers",
	"steps":                   "scaler.num_training_steps",
	"change-step":             "scaler.change_step",
	"alpha":                   "scaler.alpha",
	"initial-workers":         "scaler.initial_workers",
	"mutator":                 "mutator",
	"cluster-url":             "cluster_url",
	"nats-url":                "nats_url",
	"nats-subject":            "nats_subject",
	"roster":                  "roster",
	"rank":                    "rank",
	"out-dir":                 "out_dir",
	"trace-out":               "trace_out",
	"metrics-addr":            "metrics_addr",
	"resize-timeout":          "resize_timeout",
	"sync-on-start":           "sync_on_start",
	"seed":                    "cluster.seed",
	"sim-step-base":           "cluster.model.base",
	"sim-contention":          "cluster.model.contention",
	"sim-coherency":           "cluster.model.coherency",
	"sim-jitter":              "cluster.model.jitter",
	"sim-capacity":            "cluster.capacity",
	"sim-resize-latency":      "cluster.resize_latency",
	"sim-resize-failure-rate": "cluster.resize_failure_rate",
	"sim-sync-cost":           "cluster.sync_cost",
	"sim-sync-failure-rate":   "cluster.sync_failure_rate",
}

// registerRunFlags declares the run flags with DefaultRunConfig values.
func registerRunFlags(fs *pflag.FlagSet) {
	d := DefaultRunConfig()

	fs.Int("batch-size", d.Scaler.BatchSize, "Work units processed by one worker per step")
	fs.Int("max-workers", d.Scaler.MaxWorkers, "Upper bound on the pool size")
	fs.Int("steps", d.Scaler.NumTrainingSteps, "Number of training steps")
	fs.Int("change-step", d.Scaler.ChangeStep, "Window length in steps; a decision is made at the end of each window")
	fs.Float64("alpha", d.Scaler.Alpha, "Marginal-efficiency tolerance")
	fs.Int("initial-workers", d.Scaler.InitialWorkers, "Pool size before the first step")

	fs.String("mutator", d.Mutator, "Membership transport (sim, http, nats)")
	fs.String("cluster-url", d.ClusterURL, "Cluster manager base URL for --mutator http")
	fs.String("nats-url", d.NATSURL, "NATS server URL for --mutator nats")
	fs.String("nats-subject", d.NATSSubject, "Subject prefix of the cluster manager for --mutator nats")
	fs.String("roster", d.Roster, "Worker roster file (YAML or JSON), required for http and nats")

	fs.Int("rank", d.Rank, "Rank of this process; names the output out_<rank>.csv (negative: out.csv)")
	fs.String("out-dir", d.OutDir, "Directory for the CSV output and its YAML header")
	fs.String("trace-out", d.TraceOut, "Write the decision trace as YAML to this file")
	fs.String("metrics-addr", d.MetricsAddr, "Serve Prometheus metrics on this address during the run (e.g. :9090)")
	fs.Duration("resize-timeout", d.ResizeTimeout, "Deadline for each resize; expiry is retried at the next window (0: none)")
	fs.Bool("sync-on-start", d.SyncOnStart, "Run the synchronization barrier before the first step")

	fs.Int64("seed", d.Cluster.Seed, "Seed for the simulated cluster")
	fs.Duration("sim-step-base", d.Cluster.Model.Base, "Simulated step time at one worker")
	fs.Float64("sim-contention", d.Cluster.Model.Contention, "Simulated serialized share of each added worker")
	fs.Float64("sim-coherency", d.Cluster.Model.Coherency, "Simulated pairwise exchange cost")
	fs.Float64("sim-jitter", d.Cluster.Model.Jitter, "Simulated multiplicative step-time noise, in [0, 1)")
	fs.Int("sim-capacity", d.Cluster.Capacity, "Largest pool the simulated cluster can host (0: unbounded)")
	fs.Duration("sim-resize-latency", d.Cluster.ResizeLatency, "Simulated time per resize")
	fs.Float64("sim-resize-failure-rate", d.Cluster.ResizeFailureRate, "Probability a simulated resize is rejected")
	fs.Duration("sim-sync-cost", d.Cluster.SyncCost, "Simulated time per synchronization barrier")
	fs.Float64("sim-sync-failure-rate", d.Cluster.SyncFailureRate, "Probability a simulated barrier fails")
}

// newRunViper layers defaults, the optional config file, environment
// variables and the flags in fs.
func newRunViper(fs *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v, DefaultRunConfig())

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configFile, err)
		}
	}

	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			return nil, fmt.Errorf("flag --%s is not registered", name)
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper, d RunConfig) {
	v.SetDefault("scaler.batch_size", d.Scaler.BatchSize)
	v.SetDefault("scaler.max_workers", d.Scaler.MaxWorkers)
	v.SetDefault("scaler.num_training_steps", d.Scaler.NumTrainingSteps)
	v.SetDefault("scaler.change_step", d.Scaler.ChangeStep)
	v.SetDefault("scaler.alpha", d.Scaler.Alpha)
	v.SetDefault("scaler.initial_workers", d.Scaler.InitialWorkers)
	v.SetDefault("mutator", d.Mutator)
	v.SetDefault("cluster_url", d.ClusterURL)
	v.SetDefault("nats_url", d.NATSURL)
	v.SetDefault("nats_subject", d.NATSSubject)
	v.SetDefault("roster", d.Roster)
	v.SetDefault("rank", d.Rank)
	v.SetDefault("out_dir", d.OutDir)
	v.SetDefault("trace_out", d.TraceOut)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("resize_timeout", d.ResizeTimeout)
	v.SetDefault("sync_on_start", d.SyncOnStart)
	v.SetDefault("cluster.seed", d.Cluster.Seed)
	v.SetDefault("cluster.model.base", d.Cluster.Model.Base)
	v.SetDefault("cluster.model.contention", d.Cluster.Model.Contention)
	v.SetDefault("cluster.model.coherency", d.Cluster.Model.Coherency)
	v.SetDefault("cluster.model.jitter", d.Cluster.Model.Jitter)
	v.SetDefault("cluster.capacity", d.Cluster.Capacity)
	v.SetDefault("cluster.resize_latency", d.Cluster.ResizeLatency)
	v.SetDefault("cluster.resize_failure_rate", d.Cluster.ResizeFailureRate)
	v.SetDefault("cluster.sync_cost", d.Cluster.SyncCost)
	v.SetDefault("cluster.sync_failure_rate", d.Cluster.SyncFailureRate)
}

// loadRunConfig decodes and validates the layered settings.
func loadRunConfig(v *viper.Viper) (RunConfig, error) {
	var cfg RunConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return RunConfig{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}
