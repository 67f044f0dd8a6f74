// Package calibration implements the adaptive sensor engine: per-metric
// running statistics, spike detection with severity tiers, trend analysis,
// and the manager that coordinates sensors and crisis mode.
package calibration

import (
	"sort"
	"time"
)

// Profile is an immutable bundle of calibration constants. Profiles are
// selected by name from the fixed registry and never mutated; switching
// profiles replaces the whole value.
type Profile struct {
	// Name identifies the profile in the registry.
	Name string `json:"name"`

	// SpikeMinor through SpikeCritical are the deviation thresholds for the
	// four severity tiers, strictly increasing.
	SpikeMinor    float64 `json:"spike_minor_threshold"`
	SpikeModerate float64 `json:"spike_moderate_threshold"`
	SpikeSevere   float64 `json:"spike_severe_threshold"`
	SpikeCritical float64 `json:"spike_critical_threshold"`

	// EMAFastAlpha and EMASlowAlpha are the smoothing factors for the two
	// exponential moving averages.
	EMAFastAlpha float64 `json:"ema_fast_alpha"`
	EMASlowAlpha float64 `json:"ema_slow_alpha"`

	// BaselineRate is the adaptation rate of the slow-moving baseline.
	BaselineRate float64 `json:"baseline_adaptation_rate"`
	// BaselineMinSamples is the number of readings required before the
	// baseline starts adapting.
	BaselineMinSamples int `json:"baseline_min_samples"`

	// ValueHalfLife controls baseline decay toward neutral during
	// maintenance passes.
	ValueHalfLife time.Duration `json:"value_half_life"`

	// PainSensitivity and EchoSensitivity scale deviations for the
	// respective sensors before tier classification.
	PainSensitivity float64 `json:"pain_sensitivity"`
	EchoSensitivity float64 `json:"echo_sensitivity"`
}

// SensitivityFor returns the deviation multiplier applied to the named
// sensor. Sensors without a dedicated multiplier use 1.0.
func (p Profile) SensitivityFor(sensor string) float64 {
	switch sensor {
	case SensorPain:
		return p.PainSensitivity
	case SensorEcho:
		return p.EchoSensitivity
	default:
		return 1.0
	}
}

// Profile registry names.
const (
	ProfileDefault   = "default"
	ProfileSensitive = "sensitive"
	ProfileRelaxed   = "relaxed"
	ProfileCrisis    = "crisis"
)

var profiles = map[string]Profile{
	ProfileDefault: {
		Name:               ProfileDefault,
		SpikeMinor:         0.15,
		SpikeModerate:      0.25,
		SpikeSevere:        0.40,
		SpikeCritical:      0.60,
		EMAFastAlpha:       0.3,
		EMASlowAlpha:       0.05,
		BaselineRate:       0.02,
		BaselineMinSamples: 10,
		ValueHalfLife:      time.Hour,
		PainSensitivity:    1.0,
		EchoSensitivity:    1.0,
	},
	ProfileSensitive: {
		Name:               ProfileSensitive,
		SpikeMinor:         0.10,
		SpikeModerate:      0.20,
		SpikeSevere:        0.35,
		SpikeCritical:      0.50,
		EMAFastAlpha:       0.3,
		EMASlowAlpha:       0.05,
		BaselineRate:       0.02,
		BaselineMinSamples: 10,
		ValueHalfLife:      time.Hour,
		PainSensitivity:    1.2,
		EchoSensitivity:    1.2,
	},
	ProfileRelaxed: {
		Name:               ProfileRelaxed,
		SpikeMinor:         0.20,
		SpikeModerate:      0.35,
		SpikeSevere:        0.50,
		SpikeCritical:      0.70,
		EMAFastAlpha:       0.3,
		EMASlowAlpha:       0.05,
		BaselineRate:       0.02,
		BaselineMinSamples: 10,
		ValueHalfLife:      time.Hour,
		PainSensitivity:    0.8,
		EchoSensitivity:    0.8,
	},
	ProfileCrisis: {
		Name:               ProfileCrisis,
		SpikeMinor:         0.05,
		SpikeModerate:      0.10,
		SpikeSevere:        0.20,
		SpikeCritical:      0.35,
		EMAFastAlpha:       0.5,
		EMASlowAlpha:       0.05,
		BaselineRate:       0.01,
		BaselineMinSamples: 10,
		ValueHalfLife:      time.Hour,
		PainSensitivity:    1.5,
		EchoSensitivity:    1.3,
	},
}

// ProfileByName looks up a calibration profile in the registry.
//
// Returns:
//   - The profile and true if found, the default profile and false otherwise.
func ProfileByName(name string) (Profile, bool) {
	p, ok := profiles[name]
	if !ok {
		return profiles[ProfileDefault], false
	}
	return p, true
}

// ProfileNames returns the registry names in sorted order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
