package engine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskralabs/calibra/internal/calibration"
	"github.com/iskralabs/calibra/internal/config"
	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/models"
	"github.com/iskralabs/calibra/internal/thresholds"
)

func testLogger() logging.Logger {
	return logging.NewStandardLogger("error", "test")
}

func testConfig() *config.Config {
	return &config.Config{
		Calibration: config.CalibrationConfig{
			DefaultProfile: calibration.ProfileDefault,
		},
	}
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(testConfig(), testLogger(), nil)
}

func TestProcessTurnCalm(t *testing.T) {
	eng := newTestEngine(t)

	result := eng.ProcessTurn(models.MetricSnapshot{
		Pain:       0.5,
		Drift:      0.5,
		Clarity:    0.5,
		Trust:      0.5,
		Chaos:      0.5,
		MirrorSync: 0.5,
	}, models.PhaseEcho)

	assert.Empty(t, result.Spikes)
	assert.False(t, result.CrisisMode)
	assert.Equal(t, thresholds.ContextNormal, result.Context)
}

func TestProcessTurnDetectsSpikesAndCrisis(t *testing.T) {
	eng := newTestEngine(t)

	result := eng.ProcessTurn(models.MetricSnapshot{
		Pain:       0.95,
		Drift:      0.95,
		Clarity:    0.5,
		Trust:      0.5,
		Chaos:      0.5,
		MirrorSync: 0.5,
	}, models.PhaseDarkness)

	require.Len(t, result.Spikes, 2)
	assert.True(t, result.CrisisMode)
	assert.Equal(t, thresholds.ContextCrisis, result.Context)
}

func TestProcessTurnReportsThresholdChanges(t *testing.T) {
	eng := newTestEngine(t)

	result := eng.ProcessTurn(models.MetricSnapshot{
		Pain:       0.3,
		Drift:      0.6,
		Clarity:    0.8,
		Trust:      0.6,
		Chaos:      0.4,
		MirrorSync: 0.5,
	}, models.PhaseEcho)

	// Sustained off-base metrics move at least one threshold on the first turn.
	assert.NotEmpty(t, result.ThresholdChanges)
	for name, delta := range result.ThresholdChanges {
		assert.NotZero(t, delta, "threshold %s", name)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	eng := newTestEngine(t)
	for i := 0; i < 15; i++ {
		eng.ProcessTurn(models.MetricSnapshot{
			Pain:       0.4,
			Drift:      0.3,
			Clarity:    0.7,
			Trust:      0.6,
			Chaos:      0.3,
			MirrorSync: 0.6,
		}, models.PhaseEcho)
	}

	snapshot := eng.Snapshot()
	assert.False(t, snapshot.SavedAt.IsZero())

	restored := newTestEngine(t)
	restored.Restore(snapshot, testLogger())

	pain, ok := restored.Manager().Sensor(calibration.SensorPain)
	require.True(t, ok)
	v, ok := pain.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 0.4, v)

	assert.InDelta(t, eng.Thresholds().Get("pain_high"), restored.Thresholds().Get("pain_high"), 1e-9)
	assert.Equal(t, eng.Thresholds().Context(), restored.Thresholds().Context())
}

func TestSnapshotSurvivesJSON(t *testing.T) {
	eng := newTestEngine(t)
	eng.ProcessTurn(models.MetricSnapshot{
		Pain: 0.4, Drift: 0.3, Clarity: 0.7, Trust: 0.6, Chaos: 0.3, MirrorSync: 0.6,
	}, models.PhaseEcho)

	raw, err := json.Marshal(eng.Snapshot())
	require.NoError(t, err)

	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := newTestEngine(t)
	restored.Restore(decoded, testLogger())

	pain, ok := restored.Manager().Sensor(calibration.SensorPain)
	require.True(t, ok)
	v, ok := pain.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 0.4, v)
}

func TestApplyDecayDoesNotPanicOnFreshEngine(t *testing.T) {
	eng := newTestEngine(t)
	eng.ApplyDecay()
}
