// Package scaler provides the throughput-driven scaling controller for elastic
// training jobs.
//
// # Reading Guide
//
// Start with these files to understand the control loop:
//   - sample.go: ThroughputSampler turns one step's wall time into a Sample
//   - window.go: WindowedAverager, the per-window circular buffer
//   - controller.go: the Probing/Frozen decision state machine
//   - runner.go: the step loop that measures, decides, resizes and records
//
// # Architecture
//
// The scaler package defines the controller and the narrow interfaces it
// consumes; implementations live in sub-packages:
//   - scaler/cluster/: simulated elastic training cluster (trainer, mutator, barrier)
//   - scaler/mutator/: HTTP and NATS membership transports
//   - scaler/roster/: worker roster files
//   - scaler/sink/: CSV and in-memory metrics sinks, CSV summaries
//   - scaler/trace/: decision trace recording
//   - scaler/metrics/: Prometheus metrics collector
//
// # Key Interfaces
//
//   - ClusterMutator: change the pool to a target worker count
//   - SyncBarrier: re-broadcast shared state after a membership change
//   - Trainer: run one training step at the current worker count
//   - MetricsSink: persist one Row per step
//   - MetricsCollector: operational metrics (decisions, resizes, throughput)
//
// A Controller is single-threaded. Decisions are a deterministic function of
// the measurement stream, so decentralized copies running on every worker
// agree without coordination.
package scaler
