package calibration

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
	"github.com/iskralabs/calibra/internal/models"
)

// Tracked sensor names.
const (
	SensorPain       = "pain"
	SensorEcho       = "echo"
	SensorDrift      = "drift"
	SensorClarity    = "clarity"
	SensorMirrorSync = "mirror_sync"
)

const (
	// DefaultHistoryLimit caps the reading history per sensor.
	DefaultHistoryLimit = 500
	// spikeHistoryLimit caps the retained spike events per sensor.
	spikeHistoryLimit = 100
	// exportHistoryLimit caps the readings carried in a state export.
	exportHistoryLimit = 100
	// neutralValue is the resting point baselines decay toward.
	neutralValue = 0.5
	// slopeEpsilon is the stable/directional cutoff for trend slopes.
	slopeEpsilon = 0.001
	// volatileRSquared marks fits too poor to trust a direction.
	volatileRSquared = 0.3
)

// Reading is one recorded observation. Immutable once appended.
type Reading struct {
	// Value is the clamped observation in [0, 1].
	Value float64 `json:"value"`
	// Timestamp is when the observation was recorded.
	Timestamp time.Time `json:"timestamp"`
	// Source labels where the observation came from.
	Source string `json:"source"`
}

// Sensor ingests scalar readings for one metric and maintains running
// statistics: dual EMAs, a slow-moving baseline, spike detection, and
// on-demand trend analysis. All methods are safe for concurrent use.
type Sensor struct {
	mu sync.Mutex

	name         string
	profile      Profile
	historyLimit int

	history []Reading
	spikes  []models.SpikeEvent

	emaFast  float64
	emaSlow  float64
	baseline float64

	baselineSamples int
	lastSlope       float64

	totalReadings int64
	totalSpikes   int64

	logger  logging.Logger
	metrics *metrics.Set
}

// SensorStatus is a point-in-time report of a sensor's statistics.
type SensorStatus struct {
	Sensor       string               `json:"sensor"`
	ProfileName  string               `json:"profile"`
	CurrentValue float64              `json:"current_value"`
	EMAFast      float64              `json:"ema_fast"`
	EMASlow      float64              `json:"ema_slow"`
	Baseline     float64              `json:"baseline"`
	Trend        models.TrendAnalysis `json:"trend"`
	// RecentSpikes counts spikes recorded within the last hour.
	RecentSpikes int `json:"recent_spikes"`
	// SpikeBreakdown splits recent spikes by severity tier.
	SpikeBreakdown map[models.SpikeSeverity]int `json:"spike_breakdown"`
	TotalReadings  int64                        `json:"total_readings"`
	TotalSpikes    int64                        `json:"total_spikes"`
}

// NewSensor creates a calibrated sensor for one metric.
//
// Parameters:
//
//	name: Sensor identifier (e.g., "pain", "echo").
//	profile: Calibration profile to start with.
//	historyLimit: Maximum retained readings; 0 uses DefaultHistoryLimit.
//	logger: Logger instance.
//	mset: Prometheus collectors, may be nil.
//
// Returns:
//
//	*Sensor: The initialized sensor.
func NewSensor(name string, profile Profile, historyLimit int, logger logging.Logger, mset *metrics.Set) *Sensor {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Sensor{
		name:         name,
		profile:      profile,
		historyLimit: historyLimit,
		emaFast:      neutralValue,
		emaSlow:      neutralValue,
		baseline:     neutralValue,
		logger:       logger.WithSensor(name),
		metrics:      mset,
	}
}

// Name returns the sensor identifier.
func (s *Sensor) Name() string {
	return s.name
}

// Profile returns the active calibration profile.
func (s *Sensor) Profile() Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// AddReading records a new observation and detects any resulting spike.
// Out-of-range values are clamped to [0, 1]; this method never fails.
//
// Parameters:
//
//	value: Observation value; clamped to [0, 1].
//	ts: Observation time; the zero value means now.
//	source: Source label for the reading.
//
// Returns:
//
//	*models.SpikeEvent: The detected spike, or nil if the deviation stayed
//	below every tier threshold.
func (s *Sensor) AddReading(value float64, ts time.Time, source string) *models.SpikeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ts.IsZero() {
		ts = time.Now()
	}
	value = clamp01(value)

	s.history = append(s.history, Reading{Value: value, Timestamp: ts, Source: source})
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	s.totalReadings++

	s.emaFast = s.profile.EMAFastAlpha*value + (1-s.profile.EMAFastAlpha)*s.emaFast
	s.emaSlow = s.profile.EMASlowAlpha*value + (1-s.profile.EMASlowAlpha)*s.emaSlow

	// The baseline only starts moving once enough samples have been seen,
	// and then much slower than either EMA.
	s.baselineSamples++
	if s.baselineSamples >= s.profile.BaselineMinSamples {
		s.baseline = s.profile.BaselineRate*value + (1-s.profile.BaselineRate)*s.baseline
	}

	s.metrics.ObserveReading(s.name, s.baseline)

	spike := s.detectSpike(value, ts)
	if spike != nil {
		s.spikes = append(s.spikes, *spike)
		if len(s.spikes) > spikeHistoryLimit {
			s.spikes = s.spikes[len(s.spikes)-spikeHistoryLimit:]
		}
		s.totalSpikes++
		s.metrics.ObserveSpike(s.name, string(spike.Severity))
		s.logger.WithFields(map[string]interface{}{
			"severity": spike.Severity,
			"value":    value,
			"baseline": s.baseline,
		}).Info("Spike detected")
	}

	return spike
}

// detectSpike classifies the deviation of value from the baseline into the
// highest severity tier it crosses. Caller must hold s.mu.
func (s *Sensor) detectSpike(value float64, ts time.Time) *models.SpikeEvent {
	deviation := value - s.baseline
	adjusted := math.Abs(deviation) * s.profile.SensitivityFor(s.name)

	var severity models.SpikeSeverity
	switch {
	case adjusted >= s.profile.SpikeCritical:
		severity = models.SeverityCritical
	case adjusted >= s.profile.SpikeSevere:
		severity = models.SeveritySevere
	case adjusted >= s.profile.SpikeModerate:
		severity = models.SeverityModerate
	case adjusted >= s.profile.SpikeMinor:
		severity = models.SeverityMinor
	default:
		return nil
	}

	return &models.SpikeEvent{
		ID:        uuid.NewString(),
		Sensor:    s.name,
		Timestamp: ts,
		Value:     value,
		Baseline:  s.baseline,
		Deviation: deviation,
		Severity:  severity,
	}
}

// AnalyzeTrend fits a least-squares line through the most recent readings.
// With fewer than 3 readings the result is degenerate: stable direction,
// zero slope, zero confidence.
//
// Momentum is the slope delta since the previous AnalyzeTrend call on this
// sensor; use TrendBetween for a reproducible momentum over two explicit
// snapshots.
func (s *Sensor) AnalyzeTrend(windowSize int) models.TrendAnalysis {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzeTrendLocked(windowSize)
}

func (s *Sensor) analyzeTrendLocked(windowSize int) models.TrendAnalysis {
	if windowSize <= 0 {
		windowSize = 20
	}

	recent := s.history
	if len(recent) > windowSize {
		recent = recent[len(recent)-windowSize:]
	}
	n := len(recent)
	if n < 3 {
		return models.TrendAnalysis{
			Direction:  models.TrendStable,
			WindowSize: n,
		}
	}

	values := make([]float64, n)
	for i, r := range recent {
		values[i] = r.Value
	}

	slope, rSquared := fitLine(values)

	momentum := slope - s.lastSlope
	s.lastSlope = slope

	var direction models.TrendDirection
	switch {
	case math.Abs(slope) < slopeEpsilon:
		direction = models.TrendStable
	case rSquared < volatileRSquared:
		direction = models.TrendVolatile
	case slope > 0:
		direction = models.TrendRising
	default:
		direction = models.TrendFalling
	}

	confidence := math.Min(1.0, rSquared*float64(n)/float64(windowSize))

	return models.TrendAnalysis{
		Direction:  direction,
		Slope:      slope,
		Momentum:   momentum,
		RSquared:   rSquared,
		Confidence: confidence,
		WindowSize: n,
	}
}

// TrendBetween computes momentum as a pure function of two trend snapshots,
// avoiding the single-slot memory inside AnalyzeTrend.
func TrendBetween(previous, current models.TrendAnalysis) float64 {
	return current.Slope - previous.Slope
}

// ApplyDecay pulls the baseline toward neutral using the half-life of the
// active profile and the age of the oldest retained reading. This is a
// maintenance operation, distinct from the per-reading baseline update.
func (s *Sensor) ApplyDecay() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.history) == 0 {
		return
	}

	halfLife := s.profile.ValueHalfLife.Seconds()
	if halfLife <= 0 {
		return
	}

	oldestAge := time.Since(s.history[0].Timestamp).Seconds()
	decayFactor := math.Pow(0.5, oldestAge/halfLife)

	s.baseline = s.baseline*decayFactor + neutralValue*(1-decayFactor)
}

// SetProfile swaps the active calibration profile by registry name. An
// unknown name is logged and ignored.
func (s *Sensor) SetProfile(profileName string) {
	profile, ok := ProfileByName(profileName)
	if !ok {
		s.logger.Warn("Unknown calibration profile: %s", profileName)
		return
	}

	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()

	s.logger.WithFields(map[string]interface{}{"profile": profileName}).Info("Switched calibration profile")
}

// LatestValue returns the most recent reading value, or false when the
// sensor has no history yet.
func (s *Sensor) LatestValue() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return 0, false
	}
	return s.history[len(s.history)-1].Value, true
}

// RecentValues returns up to window most recent reading values, oldest first.
func (s *Sensor) RecentValues(window int) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := 0
	if window > 0 && len(s.history) > window {
		start = len(s.history) - window
	}
	values := make([]float64, 0, len(s.history)-start)
	for _, r := range s.history[start:] {
		values = append(values, r.Value)
	}
	return values
}

// Status assembles a point-in-time report of the sensor's statistics,
// including a fresh trend analysis and a breakdown of the last hour's spikes.
func (s *Sensor) Status() SensorStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	trend := s.analyzeTrendLocked(20)

	currentValue := neutralValue
	if len(s.history) > 0 {
		currentValue = s.history[len(s.history)-1].Value
	}

	breakdown := make(map[models.SpikeSeverity]int, 4)
	for _, severity := range models.AllSeverities() {
		breakdown[severity] = 0
	}
	recentSpikes := 0
	cutoff := time.Now().Add(-time.Hour)
	for _, spike := range s.spikes {
		if spike.Timestamp.After(cutoff) {
			recentSpikes++
			breakdown[spike.Severity]++
		}
	}

	return SensorStatus{
		Sensor:         s.name,
		ProfileName:    s.profile.Name,
		CurrentValue:   currentValue,
		EMAFast:        s.emaFast,
		EMASlow:        s.emaSlow,
		Baseline:       s.baseline,
		Trend:          trend,
		RecentSpikes:   recentSpikes,
		SpikeBreakdown: breakdown,
		TotalReadings:  s.totalReadings,
		TotalSpikes:    s.totalSpikes,
	}
}
