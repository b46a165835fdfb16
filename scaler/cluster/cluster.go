// Package cluster simulates an elastic data-parallel training job on a
// virtual clock. A Cluster is at once the Trainer, the ClusterMutator and the
// SyncBarrier of a scaler.Runner, and it can also sit behind the HTTP and
// NATS membership transports as the cluster manager.
package cluster

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inference-sim/adascale/scaler"
	"github.com/inference-sim/adascale/scaler/roster"
)

// Config describes the simulated job and its failure modes.
type Config struct {
	Seed  int64     `yaml:"seed" mapstructure:"seed"`
	Model StepModel `yaml:"model" mapstructure:"model"`
	// Capacity is the largest pool the cluster can host; 0 means unbounded.
	// Growing past it reports scaler.ErrRosterExhausted.
	Capacity int `yaml:"capacity" mapstructure:"capacity"`
	// ResizeLatency is charged to the virtual clock for each resize request.
	ResizeLatency time.Duration `yaml:"resize_latency" mapstructure:"resize_latency"`
	// ResizeFailureRate is the probability a resize request is rejected.
	ResizeFailureRate float64 `yaml:"resize_failure_rate" mapstructure:"resize_failure_rate"`
	// SyncCost is charged to the virtual clock for each barrier.
	SyncCost time.Duration `yaml:"sync_cost" mapstructure:"sync_cost"`
	// SyncFailureRate is the probability a barrier fails.
	SyncFailureRate float64 `yaml:"sync_failure_rate" mapstructure:"sync_failure_rate"`
}

// DefaultConfig is a fault-free cluster running DefaultStepModel.
func DefaultConfig() Config {
	return Config{
		Seed:          42,
		Model:         DefaultStepModel(),
		ResizeLatency: 200 * time.Millisecond,
		SyncCost:      2 * time.Second,
	}
}

func (c Config) Validate() error {
	if err := c.Model.Validate(); err != nil {
		return err
	}
	switch {
	case c.Capacity < 0:
		return fmt.Errorf("capacity must be >= 0, got %d", c.Capacity)
	case c.ResizeFailureRate < 0 || c.ResizeFailureRate > 1:
		return fmt.Errorf("resize failure rate must be in [0, 1], got %v", c.ResizeFailureRate)
	case c.SyncFailureRate < 0 || c.SyncFailureRate > 1:
		return fmt.Errorf("sync failure rate must be in [0, 1], got %v", c.SyncFailureRate)
	case c.ResizeLatency < 0 || c.SyncCost < 0:
		return fmt.Errorf("latencies must be >= 0")
	}
	return nil
}

// Stats counts what happened to the cluster.
type Stats struct {
	Steps          int
	Resizes        int
	FailedResizes  int
	Syncs          int
	FailedSyncs    int
	PeakWorkers    int
	BusyTime       time.Duration // time spent in steps
	MembershipTime time.Duration // time spent resizing and syncing
}

// Cluster is safe for concurrent use.
type Cluster struct {
	mu      sync.Mutex
	cfg     Config
	clock   *VirtualClock
	rng     *PartitionedRNG
	workers int
	members []roster.Worker // descriptors added through AddWorker
	stats   Stats
}

var (
	_ scaler.Trainer        = (*Cluster)(nil)
	_ scaler.ClusterMutator = (*Cluster)(nil)
	_ scaler.SyncBarrier    = (*Cluster)(nil)
)

// New creates a cluster with initial workers. Panics on an invalid config or
// initial < 1.
func New(cfg Config, initial int) *Cluster {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("cluster: %v", err))
	}
	if initial < 1 {
		panic(fmt.Sprintf("cluster: initial workers must be >= 1, got %d", initial))
	}
	return &Cluster{
		cfg:     cfg,
		clock:   NewVirtualClock(),
		rng:     NewPartitionedRNG(SimulationKey(cfg.Seed)),
		workers: initial,
		stats:   Stats{PeakWorkers: initial},
	}
}

// Clock is the cluster's virtual clock; pass it to the Runner.
func (c *Cluster) Clock() *VirtualClock { return c.clock }

// Workers returns the current pool size.
func (c *Cluster) Workers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workers
}

// Stats returns a snapshot of the counters.
func (c *Cluster) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Step runs one training step at the given pool size. A simulated step
// always completes; cancellation is left to the window boundaries.
func (c *Cluster) Step(_ context.Context, workers int) error {
	if workers < 1 {
		return fmt.Errorf("step with %d workers", workers)
	}
	c.mu.Lock()
	d := c.cfg.Model.StepTime(workers, c.rng.ForSubsystem(SubsystemStep))
	c.stats.Steps++
	c.stats.BusyTime += d
	c.mu.Unlock()

	c.clock.Advance(d)
	return nil
}

// Resize sets the pool size. A resize to the current size succeeds without
// charging latency, so retries are safe.
func (c *Cluster) Resize(ctx context.Context, target int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target == c.workers {
		return nil
	}
	return c.changeLocked(ctx, target)
}

func (c *Cluster) changeLocked(ctx context.Context, target int) error {
	if target < 1 {
		return scaler.Rejected(target, "pool cannot shrink below one worker")
	}
	if c.cfg.Capacity > 0 && target > c.cfg.Capacity {
		return fmt.Errorf("%w: cluster capacity is %d workers", scaler.ErrRosterExhausted, c.cfg.Capacity)
	}

	c.clock.Advance(c.cfg.ResizeLatency)
	c.stats.MembershipTime += c.cfg.ResizeLatency
	if err := ctx.Err(); err != nil {
		c.stats.FailedResizes++
		return scaler.TransportError(target, err)
	}
	if c.draw(SubsystemResize, c.cfg.ResizeFailureRate) {
		c.stats.FailedResizes++
		return scaler.Rejected(target, "injected resize failure")
	}

	logrus.Debugf("cluster resized %d -> %d workers", c.workers, target)
	c.workers = target
	c.stats.Resizes++
	if target > c.stats.PeakWorkers {
		c.stats.PeakWorkers = target
	}
	return nil
}

// Resync charges the barrier cost to the virtual clock.
func (c *Cluster) Resync(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	c.clock.Advance(c.cfg.SyncCost)
	c.stats.MembershipTime += c.cfg.SyncCost
	if c.draw(SubsystemSync, c.cfg.SyncFailureRate) {
		c.stats.FailedSyncs++
		return fmt.Errorf("injected barrier failure at %d workers", c.workers)
	}
	c.stats.Syncs++
	return nil
}

// AddWorker grows the pool by one, as a cluster manager receiving a roster
// descriptor would. size is the pool size the add produces; when the pool is
// already there the request is a resend of an applied change and succeeds
// without touching the pool. size 0 adds unconditionally.
func (c *Cluster) AddWorker(size int, w roster.Worker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > 0 {
		if size == c.workers {
			logrus.Debugf("add to %d workers already applied", size)
			return nil
		}
		if size != c.workers+1 {
			return scaler.Rejected(size, fmt.Sprintf("pool is at %d workers, one add cannot reach %d", c.workers, size))
		}
	}
	if err := c.changeLocked(context.Background(), c.workers+1); err != nil {
		return err
	}
	c.members = append(c.members, w)
	return nil
}

// RemoveWorker shrinks the pool by one. w must be the newest added worker.
// size follows the AddWorker rules.
func (c *Cluster) RemoveWorker(size int, w roster.Worker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if size > 0 {
		if size == c.workers {
			logrus.Debugf("remove to %d workers already applied", size)
			return nil
		}
		if size != c.workers-1 {
			return scaler.Rejected(size, fmt.Sprintf("pool is at %d workers, one remove cannot reach %d", c.workers, size))
		}
	}
	if n := len(c.members); n > 0 && !reflect.DeepEqual(c.members[n-1], w) {
		return fmt.Errorf("worker %v is not the newest member", w)
	}
	if err := c.changeLocked(context.Background(), c.workers-1); err != nil {
		return err
	}
	if n := len(c.members); n > 0 {
		c.members = c.members[:n-1]
	}
	return nil
}

// draw reports whether an event with probability p fires. p == 0 never
// consumes randomness, so enabling faults elsewhere leaves draws unchanged.
func (c *Cluster) draw(subsystem string, p float64) bool {
	if p <= 0 {
		return false
	}
	return c.rng.ForSubsystem(subsystem).Float64() < p
}
