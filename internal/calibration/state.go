package calibration

import (
	"time"

	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
)

// ReadingState is the persisted form of one reading.
type ReadingState struct {
	// Timestamp is the reading time as unix seconds.
	Timestamp float64 `json:"ts"`
	Value     float64 `json:"value"`
	Source    string  `json:"source"`
}

// SensorState is the persisted form of a sensor. A restore fully replaces
// the in-memory state; there is no incremental log.
type SensorState struct {
	Name            string         `json:"name"`
	ProfileName     string         `json:"profile_name"`
	History         []ReadingState `json:"history"`
	EMAFast         float64        `json:"ema_fast"`
	EMASlow         float64        `json:"ema_slow"`
	Baseline        float64        `json:"baseline"`
	BaselineSamples int            `json:"baseline_samples"`
	TotalReadings   int64          `json:"total_readings"`
	TotalSpikes     int64          `json:"total_spikes"`
}

// ManagerState is the persisted form of the calibration manager.
type ManagerState struct {
	Sensors        map[string]SensorState `json:"sensors"`
	CurrentProfile string                 `json:"current_profile"`
	CrisisMode     bool                   `json:"crisis_mode"`
}

// State exports the sensor for persistence. Only the most recent readings
// are carried; spike history is derived data and not persisted.
func (s *Sensor) State() SensorState {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.history
	if len(history) > exportHistoryLimit {
		history = history[len(history)-exportHistoryLimit:]
	}
	exported := make([]ReadingState, 0, len(history))
	for _, r := range history {
		exported = append(exported, ReadingState{
			Timestamp: float64(r.Timestamp.UnixNano()) / float64(time.Second),
			Value:     r.Value,
			Source:    r.Source,
		})
	}

	return SensorState{
		Name:            s.name,
		ProfileName:     s.profile.Name,
		History:         exported,
		EMAFast:         s.emaFast,
		EMASlow:         s.emaSlow,
		Baseline:        s.baseline,
		BaselineSamples: s.baselineSamples,
		TotalReadings:   s.totalReadings,
		TotalSpikes:     s.totalSpikes,
	}
}

// RestoreSensor rebuilds a sensor from persisted state. An unknown profile
// name falls back to the default profile with a warning; readings are
// clamped on the way in so a tampered payload cannot break invariants.
func RestoreSensor(state SensorState, historyLimit int, logger logging.Logger, mset *metrics.Set) *Sensor {
	profile, ok := ProfileByName(state.ProfileName)
	if !ok {
		logger.Warn("Unknown profile %q in persisted state, using default", state.ProfileName)
	}

	sensor := NewSensor(state.Name, profile, historyLimit, logger, mset)

	for _, r := range state.History {
		sensor.history = append(sensor.history, Reading{
			Value:     clamp01(r.Value),
			Timestamp: time.Unix(0, int64(r.Timestamp*float64(time.Second))),
			Source:    r.Source,
		})
	}
	if len(sensor.history) > sensor.historyLimit {
		sensor.history = sensor.history[len(sensor.history)-sensor.historyLimit:]
	}

	sensor.emaFast = clamp01(state.EMAFast)
	sensor.emaSlow = clamp01(state.EMASlow)
	sensor.baseline = clamp01(state.Baseline)
	sensor.baselineSamples = state.BaselineSamples
	sensor.totalReadings = state.TotalReadings
	sensor.totalSpikes = state.TotalSpikes

	return sensor
}
