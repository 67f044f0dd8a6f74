package calibration

import (
	"sync"
	"time"

	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
	"github.com/iskralabs/calibra/internal/models"
)

// crisisSpikeCount is how many severe-or-worse spikes in one batch force
// crisis mode.
const crisisSpikeCount = 2

// crisisExitPain is the pain level below which crisis mode may end.
const crisisExitPain = 0.5

// trackedSensors lists every sensor the manager owns, in feed order. The
// echo sensor exists but is not populated from the standard metric snapshot;
// it only receives readings through UpdateReading.
var trackedSensors = []string{SensorPain, SensorEcho, SensorDrift, SensorClarity, SensorMirrorSync}

// Manager owns one calibrated sensor per tracked metric, detects
// system-wide crisis conditions, and computes cross-sensor correlation.
// All methods are safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	sensors        map[string]*Sensor
	currentProfile string
	crisisMode     bool
	historyLimit   int

	logger  logging.Logger
	metrics *metrics.Set
}

// AggregateReport is a full report across all sensors.
type AggregateReport struct {
	Sensors map[string]SensorStatus `json:"sensors"`
	// Correlations holds the key cross-sensor correlation pairs.
	Correlations   map[string]float64 `json:"correlations"`
	CrisisMode     bool               `json:"crisis_mode"`
	CurrentProfile string             `json:"current_profile"`
}

// NewManager creates the calibration manager with one sensor per tracked
// metric, all starting on the named profile.
//
// Parameters:
//
//	defaultProfile: Registry name of the starting profile; unknown names
//	fall back to "default".
//	historyLimit: Reading history cap per sensor; 0 uses the default.
//	logger: Logger instance.
//	mset: Prometheus collectors, may be nil.
//
// Returns:
//
//	*Manager: The initialized manager.
func NewManager(defaultProfile string, historyLimit int, logger logging.Logger, mset *metrics.Set) *Manager {
	log := logger.WithComponent("calibration_manager")

	profile, ok := ProfileByName(defaultProfile)
	if !ok {
		log.Warn("Unknown default profile %q, using default", defaultProfile)
		defaultProfile = ProfileDefault
	}

	sensors := make(map[string]*Sensor, len(trackedSensors))
	for _, name := range trackedSensors {
		sensors[name] = NewSensor(name, profile, historyLimit, logger, mset)
	}

	return &Manager{
		sensors:        sensors,
		currentProfile: defaultProfile,
		historyLimit:   historyLimit,
		logger:         log,
		metrics:        mset,
	}
}

// UpdateReading records a single observation on one named sensor. Unknown
// sensor names are logged and ignored.
func (m *Manager) UpdateReading(sensorName string, value float64, ts time.Time, source string) *models.SpikeEvent {
	m.mu.Lock()
	sensor, ok := m.sensors[sensorName]
	m.mu.Unlock()
	if !ok {
		m.logger.Warn("Unknown sensor: %s", sensorName)
		return nil
	}
	return sensor.AddReading(value, ts, source)
}

// UpdateFromMetrics feeds the current metric snapshot into every tracked
// sensor, collects resulting spikes, and evaluates crisis transitions.
//
// Returns:
//
//	[]models.SpikeEvent: All spikes detected in this batch.
func (m *Manager) UpdateFromMetrics(snapshot models.MetricSnapshot) []models.SpikeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	feed := []struct {
		name  string
		value float64
	}{
		{SensorPain, snapshot.Pain},
		{SensorDrift, snapshot.Drift},
		{SensorClarity, snapshot.Clarity},
		{SensorMirrorSync, snapshot.MirrorSync},
	}

	var spikes []models.SpikeEvent
	for _, f := range feed {
		if spike := m.sensors[f.name].AddReading(f.value, now, "metrics"); spike != nil {
			spikes = append(spikes, *spike)
		}
	}

	m.checkCrisisLocked(spikes)

	return spikes
}

// checkCrisisLocked applies the two-state hysteresis gate. Entry requires at
// least crisisSpikeCount severe-or-critical spikes in the current batch;
// exit requires the pain sensor to sit below crisisExitPain with a trend
// that is not rising. Caller must hold m.mu.
func (m *Manager) checkCrisisLocked(spikes []models.SpikeEvent) {
	hardSpikes := 0
	for _, spike := range spikes {
		if spike.Severity.AtLeast(models.SeveritySevere) {
			hardSpikes++
		}
	}

	if hardSpikes >= crisisSpikeCount && !m.crisisMode {
		m.crisisMode = true
		for _, sensor := range m.sensors {
			sensor.SetProfile(ProfileCrisis)
		}
		m.metrics.ObserveCrisisTransition(true)
		m.logger.Warn("Crisis mode activated")
		return
	}

	if m.crisisMode {
		pain := m.sensors[SensorPain]
		latest, ok := pain.LatestValue()
		if !ok {
			return
		}
		trend := pain.AnalyzeTrend(20)
		if latest < crisisExitPain && trend.Direction != models.TrendRising {
			m.crisisMode = false
			for _, sensor := range m.sensors {
				sensor.SetProfile(m.currentProfile)
			}
			m.metrics.ObserveCrisisTransition(false)
			m.logger.Info("Crisis mode deactivated")
		}
	}
}

// CrisisMode reports whether crisis calibration is currently active.
func (m *Manager) CrisisMode() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crisisMode
}

// SetGlobalProfile sets the calibration profile for all sensors. While in
// crisis mode the change is recorded but deferred until crisis ends; the
// crisis profile always wins. Unknown names are logged and ignored.
func (m *Manager) SetGlobalProfile(profileName string) {
	if _, ok := ProfileByName(profileName); !ok {
		m.logger.Warn("Unknown calibration profile: %s", profileName)
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.currentProfile = profileName
	if m.crisisMode {
		m.logger.Info("Profile change to %q deferred until crisis mode ends", profileName)
		return
	}
	for _, sensor := range m.sensors {
		sensor.SetProfile(profileName)
	}
}

// CurrentProfile returns the manager's configured profile name. Note this
// is the profile sensors revert to after crisis, not necessarily the one
// currently applied.
func (m *Manager) CurrentProfile() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentProfile
}

// Sensor returns the named sensor, or false for unknown names.
func (m *Manager) Sensor(name string) (*Sensor, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sensor, ok := m.sensors[name]
	return sensor, ok
}

// Correlation computes the Pearson correlation between two sensors over
// their trailing histories.
//
// Histories are aligned positionally from the end of each sequence, not by
// timestamp. Sensors fed at different rates therefore correlate shifted
// views; the standard feed path updates all sensors in lock-step, where the
// two orderings agree.
//
// Returns:
//
//	float64: Correlation in [-1, 1]; 0.0 when either sensor has fewer than
//	3 readings or a name is unknown.
func (m *Manager) Correlation(sensorA, sensorB string, window int) float64 {
	m.mu.Lock()
	a, okA := m.sensors[sensorA]
	b, okB := m.sensors[sensorB]
	m.mu.Unlock()

	if !okA || !okB {
		m.logger.Warn("Unknown sensor in correlation request: %s / %s", sensorA, sensorB)
		return 0.0
	}
	if window <= 0 {
		window = 50
	}

	valuesA := a.RecentValues(window)
	valuesB := b.RecentValues(window)
	if len(valuesA) < 3 || len(valuesB) < 3 {
		return 0.0
	}

	n := len(valuesA)
	if len(valuesB) < n {
		n = len(valuesB)
	}
	return calculateCorrelation(valuesA[len(valuesA)-n:], valuesB[len(valuesB)-n:])
}

// ApplyDecay runs the baseline decay maintenance pass on every sensor.
func (m *Manager) ApplyDecay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sensor := range m.sensors {
		sensor.ApplyDecay()
	}
}

// AggregateState assembles the full report across all sensors, including
// the key correlation pairs.
func (m *Manager) AggregateState() AggregateReport {
	m.mu.Lock()
	sensors := make(map[string]*Sensor, len(m.sensors))
	for name, sensor := range m.sensors {
		sensors[name] = sensor
	}
	crisisMode := m.crisisMode
	currentProfile := m.currentProfile
	m.mu.Unlock()

	statuses := make(map[string]SensorStatus, len(sensors))
	for name, sensor := range sensors {
		statuses[name] = sensor.Status()
	}

	return AggregateReport{
		Sensors: statuses,
		Correlations: map[string]float64{
			"pain_drift":        m.Correlation(SensorPain, SensorDrift, 50),
			"pain_clarity":      m.Correlation(SensorPain, SensorClarity, 50),
			"drift_mirror_sync": m.Correlation(SensorDrift, SensorMirrorSync, 50),
		},
		CrisisMode:     crisisMode,
		CurrentProfile: currentProfile,
	}
}

// State exports the manager and all sensors for persistence.
func (m *Manager) State() ManagerState {
	m.mu.Lock()
	defer m.mu.Unlock()

	sensorStates := make(map[string]SensorState, len(m.sensors))
	for name, sensor := range m.sensors {
		sensorStates[name] = sensor.State()
	}

	return ManagerState{
		Sensors:        sensorStates,
		CurrentProfile: m.currentProfile,
		CrisisMode:     m.crisisMode,
	}
}

// Restore replaces the manager's in-memory state with a persisted snapshot.
// Sensor entries that do not match a tracked sensor are skipped with a
// warning; the rest of the restore proceeds.
func (m *Manager) Restore(state ManagerState, logger logging.Logger) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if state.CurrentProfile != "" {
		if _, ok := ProfileByName(state.CurrentProfile); ok {
			m.currentProfile = state.CurrentProfile
		} else {
			m.logger.Warn("Unknown profile %q in persisted state, keeping %q", state.CurrentProfile, m.currentProfile)
		}
	}
	m.crisisMode = state.CrisisMode

	for name, sensorState := range state.Sensors {
		if _, ok := m.sensors[name]; !ok {
			m.logger.Warn("Skipping unknown sensor %q in persisted state", name)
			continue
		}
		// The map key is authoritative; a payload whose name field disagrees
		// must not produce a sensor reporting the wrong identity.
		sensorState.Name = name
		m.sensors[name] = RestoreSensor(sensorState, m.historyLimit, logger, m.metrics)
	}
}
