package models

import (
	"encoding/json"
	"time"
)

// MetricSnapshot carries the wellbeing metrics produced by the conversation
// layer for a single turn. All values are normalized to the 0.0-1.0 range.
type MetricSnapshot struct {
	// Pain measures emotional strain detected in the exchange.
	Pain float64 `json:"pain"`
	// Drift measures divergence from the established persona.
	Drift float64 `json:"drift"`
	// Clarity measures coherence of the current dialogue state.
	Clarity float64 `json:"clarity"`
	// Trust measures the rapport level of the session.
	Trust float64 `json:"trust"`
	// Chaos measures topical and structural instability.
	Chaos float64 `json:"chaos"`
	// MirrorSync measures alignment between user and agent framing. The
	// field is optional on the wire and defaults to the neutral 0.5; a zero
	// default would register as a severe deviation on a fresh baseline.
	MirrorSync float64 `json:"mirror_sync"`
}

// UnmarshalJSON decodes a snapshot, substituting the neutral value for an
// absent mirror_sync field. The other metrics keep the plain zero default.
func (m *MetricSnapshot) UnmarshalJSON(data []byte) error {
	type alias MetricSnapshot
	aux := struct {
		MirrorSync *float64 `json:"mirror_sync"`
		*alias
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.MirrorSync == nil {
		m.MirrorSync = 0.5
	} else {
		m.MirrorSync = *aux.MirrorSync
	}
	return nil
}

// Phase identifies the narrative phase of the current session.
type Phase string

const (
	PhaseDarkness    Phase = "darkness"
	PhaseEcho        Phase = "echo"
	PhaseTransition  Phase = "transition"
	PhaseDeepDive    Phase = "deep_dive"
	PhaseSynthesis   Phase = "synthesis"
	PhaseExperiment  Phase = "experiment"
	PhaseDissolution Phase = "dissolution"
	PhaseRealization Phase = "realization"
)

// Valid reports whether p is one of the eight known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseDarkness, PhaseEcho, PhaseTransition, PhaseDeepDive,
		PhaseSynthesis, PhaseExperiment, PhaseDissolution, PhaseRealization:
		return true
	}
	return false
}

// SpikeSeverity classifies how far a reading deviates from its baseline.
type SpikeSeverity string

const (
	// SeverityMinor is a small deviation, informational only.
	SeverityMinor SpikeSeverity = "minor"
	// SeverityModerate is a notable spike that warrants attention.
	SeverityModerate SpikeSeverity = "moderate"
	// SeveritySevere is a significant spike where intervention is recommended.
	SeveritySevere SpikeSeverity = "severe"
	// SeverityCritical is an extreme spike requiring immediate action.
	SeverityCritical SpikeSeverity = "critical"
)

// severityRank orders severities from minor (1) to critical (4).
var severityRank = map[SpikeSeverity]int{
	SeverityMinor:    1,
	SeverityModerate: 2,
	SeveritySevere:   3,
	SeverityCritical: 4,
}

// Rank returns the numeric order of the severity, 0 for unknown values.
func (s SpikeSeverity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is at least as severe as other.
func (s SpikeSeverity) AtLeast(other SpikeSeverity) bool {
	return s.Rank() >= other.Rank()
}

// AllSeverities lists every severity tier in ascending order.
func AllSeverities() []SpikeSeverity {
	return []SpikeSeverity{SeverityMinor, SeverityModerate, SeveritySevere, SeverityCritical}
}

// TrendDirection is the direction classification of a metric trend.
type TrendDirection string

const (
	TrendRising   TrendDirection = "rising"
	TrendFalling  TrendDirection = "falling"
	TrendStable   TrendDirection = "stable"
	TrendVolatile TrendDirection = "volatile"
)

// SpikeEvent records a single detected deviation from baseline. Events are
// immutable once created.
type SpikeEvent struct {
	// ID uniquely identifies the event.
	ID string `json:"id"`
	// Sensor is the name of the sensor that produced the event.
	Sensor string `json:"sensor"`
	// Timestamp is when the triggering reading was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Value is the clamped reading that triggered the spike.
	Value float64 `json:"value"`
	// Baseline is the sensor baseline at detection time.
	Baseline float64 `json:"baseline"`
	// Deviation is value minus baseline, sign preserved.
	Deviation float64 `json:"deviation"`
	// Severity is the highest tier whose threshold the deviation crossed.
	Severity SpikeSeverity `json:"severity"`
}

// Magnitude returns the absolute deviation of the spike.
func (e SpikeEvent) Magnitude() float64 {
	if e.Deviation < 0 {
		return -e.Deviation
	}
	return e.Deviation
}

// TrendAnalysis is the result of a least-squares fit over recent readings.
// It is derived on demand and never persisted.
type TrendAnalysis struct {
	Direction TrendDirection `json:"direction"`
	// Slope is the fitted change in value per reading.
	Slope float64 `json:"slope"`
	// Momentum is the change in slope since the previous analysis.
	Momentum float64 `json:"momentum"`
	// RSquared is the quality of the linear fit.
	RSquared float64 `json:"r_squared"`
	// Confidence combines fit quality and window completeness.
	Confidence float64 `json:"confidence"`
	// WindowSize is the number of readings that contributed.
	WindowSize int `json:"window_size"`
}
