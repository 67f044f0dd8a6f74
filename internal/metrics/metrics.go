// Package metrics exposes Prometheus instrumentation for the calibration engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Set bundles the Prometheus collectors used across the engine. A nil *Set is
// valid and turns every observation into a no-op, which keeps instrumentation
// optional in tests.
type Set struct {
	// ReadingsTotal counts readings ingested per sensor.
	ReadingsTotal *prometheus.CounterVec
	// SpikesTotal counts detected spikes per sensor and severity.
	SpikesTotal *prometheus.CounterVec
	// CrisisTransitions counts crisis mode transitions by direction.
	CrisisTransitions *prometheus.CounterVec
	// ThresholdAdaptations counts threshold value changes per threshold.
	ThresholdAdaptations *prometheus.CounterVec
	// SensorBaseline reports the current baseline per sensor.
	SensorBaseline *prometheus.GaugeVec
	// SnapshotsTotal counts snapshot save attempts by outcome.
	SnapshotsTotal *prometheus.CounterVec
}

// NewSet registers the engine collectors on the given registerer.
//
// Parameters:
//
//	reg: Target registry, typically prometheus.DefaultRegisterer.
//
// Returns:
//
//	*Set: The registered collector set.
func NewSet(reg prometheus.Registerer) *Set {
	factory := promauto.With(reg)

	return &Set{
		ReadingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calibra_readings_total",
				Help: "Total number of sensor readings ingested",
			},
			[]string{"sensor"},
		),
		SpikesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calibra_spikes_total",
				Help: "Total number of spikes detected",
			},
			[]string{"sensor", "severity"},
		),
		CrisisTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calibra_crisis_transitions_total",
				Help: "Crisis mode transitions by direction (enter/exit)",
			},
			[]string{"direction"},
		),
		ThresholdAdaptations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calibra_threshold_adaptations_total",
				Help: "Threshold value changes applied by the adapter",
			},
			[]string{"threshold"},
		),
		SensorBaseline: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "calibra_sensor_baseline",
				Help: "Current adaptive baseline per sensor",
			},
			[]string{"sensor"},
		),
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "calibra_snapshots_total",
				Help: "Snapshot save attempts by outcome (ok/error)",
			},
			[]string{"outcome"},
		),
	}
}

// ObserveReading records one ingested reading for a sensor.
func (s *Set) ObserveReading(sensor string, baseline float64) {
	if s == nil {
		return
	}
	s.ReadingsTotal.WithLabelValues(sensor).Inc()
	s.SensorBaseline.WithLabelValues(sensor).Set(baseline)
}

// ObserveSpike records one detected spike.
func (s *Set) ObserveSpike(sensor, severity string) {
	if s == nil {
		return
	}
	s.SpikesTotal.WithLabelValues(sensor, severity).Inc()
}

// ObserveCrisisTransition records a crisis mode transition.
func (s *Set) ObserveCrisisTransition(entered bool) {
	if s == nil {
		return
	}
	direction := "exit"
	if entered {
		direction = "enter"
	}
	s.CrisisTransitions.WithLabelValues(direction).Inc()
}

// ObserveThresholdChange records one applied threshold adaptation.
func (s *Set) ObserveThresholdChange(threshold string) {
	if s == nil {
		return
	}
	s.ThresholdAdaptations.WithLabelValues(threshold).Inc()
}

// ObserveSnapshot records a snapshot save attempt.
func (s *Set) ObserveSnapshot(err error) {
	if s == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.SnapshotsTotal.WithLabelValues(outcome).Inc()
}
