package metrics

import (
	"github.com/Iron-Ham/coeftune/internal/event"
)

// Subscribe feeds the coordinator's events into the Prometheus instruments.
// It returns the subscription IDs so callers can detach.
func Subscribe(bus *event.Bus) []string {
	return []string{
		bus.Subscribe(event.TypeStateChanged, func(e event.Event) {
			ev := e.(event.StateChangedEvent)
			if ev.From != "" {
				CoordinatorState.WithLabelValues(ev.From).Set(0)
			}
			CoordinatorState.WithLabelValues(ev.To).Set(1)
			CoordinatorTransitions.WithLabelValues(ev.To).Inc()
		}),
		bus.Subscribe(event.TypeShotAccepted, func(e event.Event) {
			ev := e.(event.ShotAcceptedEvent)
			outcome := "miss"
			if ev.Hit {
				outcome = "hit"
			}
			ShotsTotal.WithLabelValues(ev.Coefficient, outcome).Inc()
		}),
		bus.Subscribe(event.TypeShotRejected, func(e event.Event) {
			ShotsTotal.WithLabelValues("", "rejected").Inc()
		}),
		bus.Subscribe(event.TypeShotFault, func(e event.Event) {
			ShotFaults.WithLabelValues(e.(event.ShotFaultEvent).Coefficient).Inc()
		}),
		bus.Subscribe(event.TypeOptimizationApplied, func(e event.Event) {
			ev := e.(event.OptimizationAppliedEvent)
			OptimizationsTotal.WithLabelValues(ev.Coefficient, "applied").Inc()
			OptimizerLatency.Observe(ev.Duration.Seconds())
			CoefficientValue.WithLabelValues(ev.Coefficient).Set(ev.Value)
		}),
		bus.Subscribe(event.TypeOptimizationFailed, func(e event.Event) {
			ev := e.(event.OptimizationFailedEvent)
			OptimizationsTotal.WithLabelValues(ev.Coefficient, "failed").Inc()
			OptimizerLatency.Observe(ev.Duration.Seconds())
		}),
		bus.Subscribe(event.TypeManualChange, func(e event.Event) {
			ev := e.(event.ManualChangeEvent)
			SequenceEvents.WithLabelValues("manual_change").Inc()
			CoefficientValue.WithLabelValues(ev.Coefficient).Set(ev.Value)
		}),
		bus.Subscribe(event.TypeAdvanced, func(e event.Event) {
			SequenceEvents.WithLabelValues("advance").Inc()
		}),
		bus.Subscribe(event.TypeBacktracked, func(e event.Event) {
			SequenceEvents.WithLabelValues("backtrack").Inc()
		}),
		bus.Subscribe(event.TypeConnectivity, func(e event.Event) {
			ev := e.(event.ConnectivityEvent)
			up := 0.0
			if ev.Connected {
				up = 1
			}
			LinkUp.WithLabelValues(ev.Source).Set(up)
		}),
		bus.Subscribe(event.TypeInterlockReset, func(e event.Event) {
			InterlockResets.WithLabelValues(e.(event.InterlockResetEvent).Gate).Inc()
		}),
	}
}
