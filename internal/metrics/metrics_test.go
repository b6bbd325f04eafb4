package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/Iron-Ham/coeftune/internal/event"
)

func TestMetrics_AllVariablesNonNil(t *testing.T) {
	vars := []struct {
		name string
		val  any
	}{
		{"CoordinatorTicksTotal", CoordinatorTicksTotal},
		{"CoordinatorTickErrors", CoordinatorTickErrors},
		{"CoordinatorTickLatency", CoordinatorTickLatency},
		{"CoordinatorState", CoordinatorState},
		{"CoordinatorTransitions", CoordinatorTransitions},
		{"ShotsTotal", ShotsTotal},
		{"CoefficientValue", CoefficientValue},
		{"OptimizationsTotal", OptimizationsTotal},
		{"OptimizerLatency", OptimizerLatency},
		{"SequenceEvents", SequenceEvents},
		{"ChannelWrites", ChannelWrites},
		{"ChannelReads", ChannelReads},
		{"LinkUp", LinkUp},
		{"InterlockResets", InterlockResets},
		{"ShotFaults", ShotFaults},
	}

	for _, v := range vars {
		assert.NotNilf(t, v.val, "%s should not be nil", v.name)
	}
}

func TestSubscribe_UpdatesInstruments(t *testing.T) {
	bus := event.NewBus(nil)
	ids := Subscribe(bus)
	defer func() {
		for _, id := range ids {
			bus.Unsubscribe(id)
		}
	}()
	at := time.Now()

	bus.Publish(event.NewStateChangedEvent(at, "s", "DISABLED", "WAITING", "enabled"))
	assert.Equal(t, 1.0, testutil.ToFloat64(CoordinatorState.WithLabelValues("WAITING")))
	assert.Equal(t, 0.0, testutil.ToFloat64(CoordinatorState.WithLabelValues("DISABLED")))

	hitsBefore := testutil.ToFloat64(ShotsTotal.WithLabelValues("MetricsTestCoef", "hit"))
	bus.Publish(event.NewShotAcceptedEvent(at, "MetricsTestCoef", true, 1, 1))
	assert.Equal(t, hitsBefore+1, testutil.ToFloat64(ShotsTotal.WithLabelValues("MetricsTestCoef", "hit")))

	bus.Publish(event.NewOptimizationAppliedEvent(at, "MetricsTestCoef", 0.4, 0.45, 3, time.Millisecond))
	assert.Equal(t, 0.45, testutil.ToFloat64(CoefficientValue.WithLabelValues("MetricsTestCoef")))

	bus.Publish(event.NewConnectivityEvent(at, "peer", false))
	assert.Equal(t, 0.0, testutil.ToFloat64(LinkUp.WithLabelValues("peer")))
	bus.Publish(event.NewConnectivityEvent(at, "peer", true))
	assert.Equal(t, 1.0, testutil.ToFloat64(LinkUp.WithLabelValues("peer")))

	resetsBefore := testutil.ToFloat64(InterlockResets.WithLabelValues("ShotLogged"))
	bus.Publish(event.NewInterlockResetEvent(at, "ShotLogged", 31*time.Second))
	assert.Equal(t, resetsBefore+1, testutil.ToFloat64(InterlockResets.WithLabelValues("ShotLogged")))

	faultsBefore := testutil.ToFloat64(ShotFaults.WithLabelValues("DragCoefficient"))
	bus.Publish(event.NewShotFaultEvent(at, "DragCoefficient", 5, "distance out of range"))
	assert.Equal(t, faultsBefore+1, testutil.ToFloat64(ShotFaults.WithLabelValues("DragCoefficient")))
}
