// Package metrics exports controller activity to Prometheus.
package metrics

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/inference-sim/adascale/scaler"
)

// Prometheus implements scaler.MetricsCollector. Safe for concurrent use.
type Prometheus struct {
	stepDuration        *prometheus.HistogramVec
	stepThroughput      *prometheus.GaugeVec
	invalidMeasurements prometheus.Counter
	decisions           *prometheus.CounterVec
	resizes             *prometheus.CounterVec
	workers             prometheus.Gauge
	frozen              prometheus.Gauge
}

var _ scaler.MetricsCollector = (*Prometheus)(nil)

// NewPrometheus creates and registers the collector's metrics with reg
// (prometheus.DefaultRegisterer if nil). An empty namespace means "adascale".
func NewPrometheus(reg prometheus.Registerer, namespace string) (*Prometheus, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "adascale"
	}

	p := &Prometheus{
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "duration_seconds",
			Help:      "Measured training step duration by worker count.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"workers"}),
		stepThroughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "throughput",
			Help:      "Per-worker throughput of the latest step, in units per second, by worker count.",
		}, []string{"workers"}),
		invalidMeasurements: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "step",
			Name:      "invalid_measurements_total",
			Help:      "Steps whose duration was not positive and were dropped from the window.",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "decisions_total",
			Help:      "Window boundary decisions by action (scale_up, scale_down, freeze).",
		}, []string{"action"}),
		resizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "resizes_total",
			Help:      "Resize attempts by result (success, failure).",
		}, []string{"result"}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "workers",
			Help:      "Current worker count.",
		}),
		frozen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "controller",
			Name:      "frozen",
			Help:      "1 once scaling has stopped for the run.",
		}),
	}

	for _, c := range []prometheus.Collector{
		p.stepDuration, p.stepThroughput, p.invalidMeasurements,
		p.decisions, p.resizes, p.workers, p.frozen,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) ObserveStep(workers int, duration, throughput float64) {
	label := strconv.Itoa(workers)
	p.stepDuration.WithLabelValues(label).Observe(duration)
	p.stepThroughput.WithLabelValues(label).Set(throughput)
}

func (p *Prometheus) RecordInvalidMeasurement() { p.invalidMeasurements.Inc() }

func (p *Prometheus) RecordDecision(a scaler.Action) {
	p.decisions.WithLabelValues(a.Kind.String()).Inc()
}

func (p *Prometheus) RecordResize(_ int, success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	p.resizes.WithLabelValues(result).Inc()
}

func (p *Prometheus) SetWorkers(n int) { p.workers.Set(float64(n)) }

func (p *Prometheus) SetFrozen(frozen bool) {
	v := 0.0
	if frozen {
		v = 1
	}
	p.frozen.Set(v)
}
