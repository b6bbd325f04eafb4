// Package metrics defines the Prometheus instruments exported by coeftune
// and the event bus subscriber that feeds them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "coeftune"

var (
	// Coordinator
	CoordinatorTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "ticks_total",
		Help:      "Total control loop ticks",
	})

	CoordinatorTickErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "tick_errors_total",
		Help:      "Ticks that ended with a non-fatal error or recovered panic",
	})

	CoordinatorTickLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "tick_duration_seconds",
		Help:      "Control loop tick processing duration",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	CoordinatorState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "state",
		Help:      "1 for the current coordinator state, 0 otherwise",
	}, []string{"state"})

	CoordinatorTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "coordinator",
		Name:      "transitions_total",
		Help:      "State transitions by destination state",
	}, []string{"to"})

	// Shots
	ShotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shots",
		Name:      "total",
		Help:      "Shots seen by outcome (hit, miss, rejected)",
	}, []string{"coefficient", "outcome"})

	ShotFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "shots",
		Name:      "faults_total",
		Help:      "Times the consecutive rejection limit was reached",
	}, []string{"coefficient"})

	// Coefficients
	CoefficientValue = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "coefficient",
		Name:      "value",
		Help:      "Last published value per coefficient",
	}, []string{"coefficient"})

	OptimizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "optimizer",
		Name:      "runs_total",
		Help:      "Optimizer invocations by result (applied, failed)",
	}, []string{"coefficient", "result"})

	OptimizerLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "optimizer",
		Name:      "suggest_duration_seconds",
		Help:      "Duration of the external suggest call",
		Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10},
	})

	SequenceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sequence",
		Name:      "events_total",
		Help:      "Advances, backtracks and manual changes",
	}, []string{"kind"})

	// Link
	ChannelWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "writes_total",
		Help:      "Channel writes by path class and result (applied, deferred, queued)",
	}, []string{"class", "result"})

	ChannelReads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "channel",
		Name:      "reads_total",
		Help:      "Channel reads by source (cache, store, error, offline)",
	}, []string{"source"})

	LinkUp = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "link",
		Name:      "up",
		Help:      "1 when the source (channel, peer) is reachable",
	}, []string{"source"})

	InterlockResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "interlock",
		Name:      "timeout_resets_total",
		Help:      "Gates re-satisfied after the reset timeout",
	}, []string{"gate"})
)
