package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricSnapshotMirrorSyncDefault(t *testing.T) {
	var snapshot MetricSnapshot
	require.NoError(t, json.Unmarshal([]byte(`{"pain":0.4,"clarity":0.7}`), &snapshot))
	assert.Equal(t, 0.5, snapshot.MirrorSync)
	assert.Equal(t, 0.4, snapshot.Pain)
	// Fields other than mirror_sync keep the zero default.
	assert.Equal(t, 0.0, snapshot.Trust)

	require.NoError(t, json.Unmarshal([]byte(`{"mirror_sync":0.1}`), &snapshot))
	assert.Equal(t, 0.1, snapshot.MirrorSync)

	// An explicit zero is an observation, not an omission.
	require.NoError(t, json.Unmarshal([]byte(`{"mirror_sync":0}`), &snapshot))
	assert.Equal(t, 0.0, snapshot.MirrorSync)
}

func TestPhaseValid(t *testing.T) {
	for _, p := range []Phase{
		PhaseDarkness, PhaseEcho, PhaseTransition, PhaseDeepDive,
		PhaseSynthesis, PhaseExperiment, PhaseDissolution, PhaseRealization,
	} {
		assert.True(t, p.Valid(), "phase %s", p)
	}
	assert.False(t, Phase("ascension").Valid())
	assert.False(t, Phase("").Valid())
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityCritical.AtLeast(SeveritySevere))
	assert.True(t, SeveritySevere.AtLeast(SeveritySevere))
	assert.False(t, SeverityModerate.AtLeast(SeveritySevere))
	assert.Equal(t, 0, SpikeSeverity("bogus").Rank())

	severities := AllSeverities()
	for i := 1; i < len(severities); i++ {
		assert.Greater(t, severities[i].Rank(), severities[i-1].Rank())
	}
}

func TestSpikeMagnitude(t *testing.T) {
	assert.Equal(t, 0.3, SpikeEvent{Deviation: -0.3}.Magnitude())
	assert.Equal(t, 0.3, SpikeEvent{Deviation: 0.3}.Magnitude())
}
