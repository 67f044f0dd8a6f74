package calibration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/models"
)

func testLogger() logging.Logger {
	return logging.NewStandardLogger("error", "test")
}

func newTestSensor(t *testing.T, name string) *Sensor {
	t.Helper()
	profile, ok := ProfileByName(ProfileDefault)
	require.True(t, ok)
	return NewSensor(name, profile, 0, testLogger(), nil)
}

func TestAddReadingClampsValues(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)

	sensor.AddReading(1.5, time.Time{}, "test")
	v, ok := sensor.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 1.0, v)

	sensor.AddReading(-0.3, time.Time{}, "test")
	v, ok = sensor.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 0.0, v)
}

func TestEMAUpdateRates(t *testing.T) {
	sensor := newTestSensor(t, SensorClarity)

	// Both EMAs start at 0.5; one reading of 1.0 moves the fast EMA much
	// further than the slow one.
	sensor.AddReading(1.0, time.Time{}, "test")

	status := sensor.Status()
	assert.InDelta(t, 0.65, status.EMAFast, 1e-9)
	assert.InDelta(t, 0.525, status.EMASlow, 1e-9)
	assert.Greater(t, status.EMAFast, status.EMASlow)
}

func TestEMAStaysWithinObservedRange(t *testing.T) {
	sensor := newTestSensor(t, SensorDrift)

	values := []float64{0.1, 0.9, 0.3, 0.7, 0.2, 0.8, 0.05, 0.95}
	for _, v := range values {
		sensor.AddReading(v, time.Time{}, "test")
	}

	status := sensor.Status()
	for _, ema := range []float64{status.EMAFast, status.EMASlow} {
		assert.GreaterOrEqual(t, ema, 0.0)
		assert.LessOrEqual(t, ema, 1.0)
	}
}

func TestBaselineWaitsForMinSamples(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)

	// Nine readings: below the minimum sample count the baseline must not move.
	for i := 0; i < 9; i++ {
		sensor.AddReading(0.9, time.Time{}, "test")
	}
	assert.InDelta(t, 0.5, sensor.Status().Baseline, 1e-9)

	// The tenth reading starts adaptation at the slow rate.
	sensor.AddReading(0.9, time.Time{}, "test")
	assert.InDelta(t, 0.02*0.9+0.98*0.5, sensor.Status().Baseline, 1e-9)
}

func TestBaselineMovesSlowerThanEMAs(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)

	for i := 0; i < 30; i++ {
		sensor.AddReading(0.9, time.Time{}, "test")
	}

	status := sensor.Status()
	assert.Greater(t, status.EMAFast, status.Baseline)
	assert.Greater(t, status.EMASlow, status.Baseline)
	// The baseline drifts toward the sustained level but never overshoots it.
	assert.Greater(t, status.Baseline, 0.5)
	assert.Less(t, status.Baseline, 0.9)
}

func TestSpikeSeverityTiers(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		severity models.SpikeSeverity
	}{
		{"no spike below minor", 0.6, ""},
		{"minor", 0.7, models.SeverityMinor},
		{"moderate", 0.78, models.SeverityModerate},
		{"severe", 0.95, models.SeveritySevere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Fresh sensor: baseline sits at 0.5, so deviation = value - 0.5.
			sensor := newTestSensor(t, SensorDrift)
			spike := sensor.AddReading(tt.value, time.Time{}, "test")
			if tt.severity == "" {
				assert.Nil(t, spike)
				return
			}
			require.NotNil(t, spike)
			assert.Equal(t, tt.severity, spike.Severity)
			assert.Equal(t, SensorDrift, spike.Sensor)
			assert.NotEmpty(t, spike.ID)
			assert.InDelta(t, tt.value-0.5, spike.Deviation, 1e-9)
		})
	}
}

func TestCriticalSpikeAgainstAdaptedBaseline(t *testing.T) {
	// A sensor that has lived at a low level for a long time; the persisted
	// state carries the adapted baseline.
	state := SensorState{
		Name:            SensorPain,
		ProfileName:     ProfileDefault,
		Baseline:        0.1,
		EMAFast:         0.1,
		EMASlow:         0.1,
		BaselineSamples: 50,
		TotalReadings:   50,
	}
	sensor := RestoreSensor(state, 0, testLogger(), nil)

	spike := sensor.AddReading(0.95, time.Time{}, "test")
	require.NotNil(t, spike)
	assert.Equal(t, models.SeverityCritical, spike.Severity)
	assert.Greater(t, spike.Deviation, 0.6)
}

func TestSensitivityScalesDeviation(t *testing.T) {
	profile, _ := ProfileByName(ProfileSensitive)

	// pain sensitivity 1.2: a 0.13 raw deviation becomes 0.156 adjusted,
	// crossing the sensitive minor tier at 0.10 either way, but staying below
	// moderate (0.20) only because of where the multiplier lands it.
	sensor := NewSensor(SensorPain, profile, 0, testLogger(), nil)
	spike := sensor.AddReading(0.63, time.Time{}, "test")
	require.NotNil(t, spike)
	assert.Equal(t, models.SeverityMinor, spike.Severity)

	// The same deviation on a sensor without a multiplier also lands minor.
	neutral := NewSensor(SensorDrift, profile, 0, testLogger(), nil)
	spike = neutral.AddReading(0.63, time.Time{}, "test")
	require.NotNil(t, spike)
	assert.Equal(t, models.SeverityMinor, spike.Severity)
}

func TestAnalyzeTrendDegenerate(t *testing.T) {
	sensor := newTestSensor(t, SensorClarity)

	sensor.AddReading(0.4, time.Time{}, "test")
	sensor.AddReading(0.6, time.Time{}, "test")

	trend := sensor.AnalyzeTrend(20)
	assert.Equal(t, models.TrendStable, trend.Direction)
	assert.Zero(t, trend.Slope)
	assert.Zero(t, trend.Confidence)
	assert.Equal(t, 2, trend.WindowSize)
}

func TestAnalyzeTrendRising(t *testing.T) {
	sensor := newTestSensor(t, SensorClarity)

	for i := 0; i < 10; i++ {
		sensor.AddReading(0.1+0.08*float64(i), time.Time{}, "test")
	}

	trend := sensor.AnalyzeTrend(20)
	assert.Equal(t, models.TrendRising, trend.Direction)
	assert.InDelta(t, 0.08, trend.Slope, 1e-9)
	assert.InDelta(t, 1.0, trend.RSquared, 1e-9)
	// Perfect fit over 10 of a 20-slot window: confidence = 10/20.
	assert.InDelta(t, 0.5, trend.Confidence, 1e-9)
}

func TestAnalyzeTrendFalling(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)

	for i := 0; i < 10; i++ {
		sensor.AddReading(0.9-0.05*float64(i), time.Time{}, "test")
	}

	trend := sensor.AnalyzeTrend(20)
	assert.Equal(t, models.TrendFalling, trend.Direction)
	assert.Less(t, trend.Slope, 0.0)
}

func TestAnalyzeTrendStableOnFlatSeries(t *testing.T) {
	sensor := newTestSensor(t, SensorDrift)

	for i := 0; i < 10; i++ {
		sensor.AddReading(0.5, time.Time{}, "test")
	}

	trend := sensor.AnalyzeTrend(20)
	assert.Equal(t, models.TrendStable, trend.Direction)
	assert.Zero(t, trend.Slope)
}

func TestAnalyzeTrendVolatile(t *testing.T) {
	sensor := newTestSensor(t, SensorDrift)

	// Alternating extremes with a slight upward drift: nonzero slope but a
	// fit too poor to trust.
	values := []float64{0.1, 0.9, 0.12, 0.88, 0.15, 0.9, 0.1, 0.95, 0.2, 0.9}
	for _, v := range values {
		sensor.AddReading(v, time.Time{}, "test")
	}

	trend := sensor.AnalyzeTrend(20)
	assert.Equal(t, models.TrendVolatile, trend.Direction)
	assert.Less(t, trend.RSquared, 0.3)
}

func TestTrendBetween(t *testing.T) {
	prev := models.TrendAnalysis{Slope: 0.02}
	curr := models.TrendAnalysis{Slope: 0.05}
	assert.InDelta(t, 0.03, TrendBetween(prev, curr), 1e-9)
	assert.InDelta(t, -0.03, TrendBetween(curr, prev), 1e-9)
}

func TestApplyDecayPullsBaselineTowardNeutral(t *testing.T) {
	state := SensorState{
		Name:        SensorPain,
		ProfileName: ProfileDefault,
		Baseline:    0.9,
		History: []ReadingState{
			{Timestamp: float64(time.Now().Add(-time.Hour).UnixNano()) / float64(time.Second), Value: 0.9, Source: "test"},
		},
		BaselineSamples: 20,
	}
	sensor := RestoreSensor(state, 0, testLogger(), nil)

	// Oldest reading is one half-life old: the baseline moves halfway to 0.5.
	sensor.ApplyDecay()
	assert.InDelta(t, 0.7, sensor.Status().Baseline, 0.005)
}

func TestApplyDecayNoHistoryIsNoop(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)
	sensor.ApplyDecay()
	assert.InDelta(t, 0.5, sensor.Status().Baseline, 1e-9)
}

func TestSetProfileUnknownIsIgnored(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)
	sensor.SetProfile("nonexistent")
	assert.Equal(t, ProfileDefault, sensor.Profile().Name)

	sensor.SetProfile(ProfileRelaxed)
	assert.Equal(t, ProfileRelaxed, sensor.Profile().Name)
}

func TestHistoryTrimmedToLimit(t *testing.T) {
	profile, _ := ProfileByName(ProfileDefault)
	sensor := NewSensor(SensorPain, profile, 10, testLogger(), nil)

	for i := 0; i < 25; i++ {
		sensor.AddReading(float64(i%10)/10, time.Time{}, "test")
	}

	assert.Len(t, sensor.RecentValues(0), 10)
	assert.Equal(t, int64(25), sensor.Status().TotalReadings)
}

func TestSensorStateRoundTrip(t *testing.T) {
	sensor := newTestSensor(t, SensorMirrorSync)
	for i := 0; i < 15; i++ {
		sensor.AddReading(0.3+0.02*float64(i), time.Time{}, "test")
	}

	state := sensor.State()
	restored := RestoreSensor(state, 0, testLogger(), nil)

	original := sensor.Status()
	got := restored.Status()
	assert.Equal(t, original.Sensor, got.Sensor)
	assert.Equal(t, original.ProfileName, got.ProfileName)
	assert.InDelta(t, original.EMAFast, got.EMAFast, 1e-9)
	assert.InDelta(t, original.EMASlow, got.EMASlow, 1e-9)
	assert.InDelta(t, original.Baseline, got.Baseline, 1e-9)
	assert.Equal(t, original.TotalReadings, got.TotalReadings)
	assert.Equal(t, sensor.RecentValues(0), restored.RecentValues(0))
}

func TestRestoreSensorSanitizesValues(t *testing.T) {
	state := SensorState{
		Name:        SensorPain,
		ProfileName: "bogus",
		Baseline:    3.5,
		EMAFast:     -1,
		EMASlow:     0.4,
		History: []ReadingState{
			{Timestamp: float64(time.Now().UnixNano()) / float64(time.Second), Value: 9.9, Source: "test"},
		},
	}
	sensor := RestoreSensor(state, 0, testLogger(), nil)

	status := sensor.Status()
	assert.Equal(t, ProfileDefault, status.ProfileName)
	assert.Equal(t, 1.0, status.Baseline)
	assert.Equal(t, 0.0, status.EMAFast)
	v, ok := sensor.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 1.0, v)
}

func TestStatusSpikeBreakdown(t *testing.T) {
	sensor := newTestSensor(t, SensorPain)

	sensor.AddReading(0.7, time.Time{}, "test")  // minor vs baseline 0.5
	sensor.AddReading(0.95, time.Time{}, "test") // severe

	status := sensor.Status()
	assert.Equal(t, 2, status.RecentSpikes)
	assert.Equal(t, 1, status.SpikeBreakdown[models.SeverityMinor])
	assert.Equal(t, 1, status.SpikeBreakdown[models.SeveritySevere])
	assert.Equal(t, 0, status.SpikeBreakdown[models.SeverityCritical])
	assert.Equal(t, int64(2), status.TotalSpikes)
}
