package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iskralabs/calibra/internal/calibration"
	"github.com/iskralabs/calibra/internal/config"
	"github.com/iskralabs/calibra/internal/database"
	"github.com/iskralabs/calibra/internal/engine"
	"github.com/iskralabs/calibra/internal/logging"
)

func testLogger() logging.Logger {
	return logging.NewStandardLogger("error", "test")
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.New(&config.Config{
		Calibration: config.CalibrationConfig{DefaultProfile: calibration.ProfileDefault},
	}, testLogger(), nil)
}

func setupRouter(t *testing.T, eng *engine.Engine, store *database.SnapshotStore) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()

	h := NewCalibrationHandler(eng, store, testLogger())
	router.POST("/readings", h.SubmitReadings)
	router.POST("/readings/single", h.SubmitSingleReading)
	router.GET("/state", h.GetState)
	router.GET("/correlation", h.GetCorrelation)
	router.GET("/profiles", h.GetProfiles)
	router.POST("/profile", h.SetProfile)
	router.GET("/thresholds", h.GetThresholds)
	router.GET("/thresholds/changes", h.GetThresholdChanges)
	router.POST("/thresholds/reset", h.ResetThresholds)
	router.POST("/snapshot", h.SaveSnapshot)
	router.POST("/restore", h.RestoreSnapshot)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestSubmitReadings(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodPost, "/readings", gin.H{
		"metrics": gin.H{
			"pain":        0.95,
			"drift":       0.95,
			"clarity":     0.5,
			"trust":       0.5,
			"chaos":       0.5,
			"mirror_sync": 0.5,
		},
		"phase": "darkness",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Len(t, result.Spikes, 2)
	assert.True(t, result.CrisisMode)
}

func TestSubmitReadingsOmittedMirrorSync(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	// A payload without mirror_sync must read as the neutral 0.5, not as an
	// observed zero that would spike against the fresh baseline.
	w := doJSON(t, router, http.MethodPost, "/readings", gin.H{
		"metrics": gin.H{
			"pain":    0.5,
			"drift":   0.5,
			"clarity": 0.5,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	var result engine.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	for _, spike := range result.Spikes {
		assert.NotEqual(t, calibration.SensorMirrorSync, spike.Sensor)
	}
	assert.Empty(t, result.Spikes)
	assert.False(t, result.CrisisMode)
}

func TestSubmitReadingsRejectsUnknownPhase(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodPost, "/readings", gin.H{
		"metrics": gin.H{"pain": 0.5, "clarity": 0.5},
		"phase":   "ascension",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitReadingsRejectsMalformedBody(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/readings", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitSingleReading(t *testing.T) {
	eng := newTestEngine(t)
	router := setupRouter(t, eng, nil)

	w := doJSON(t, router, http.MethodPost, "/readings/single", gin.H{
		"sensor": "echo",
		"value":  0.8,
	})
	require.Equal(t, http.StatusOK, w.Code)

	echo, ok := eng.Manager().Sensor(calibration.SensorEcho)
	require.True(t, ok)
	v, ok := echo.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 0.8, v)
}

func TestSubmitSingleReadingUnknownSensor(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodPost, "/readings/single", gin.H{
		"sensor": "temperature",
		"value":  0.8,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetState(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodGet, "/state", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Calibration calibration.AggregateReport `json:"calibration"`
		Context     string                      `json:"context"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Calibration.Sensors, 5)
	assert.Equal(t, "normal", body.Context)
}

func TestGetCorrelation(t *testing.T) {
	eng := newTestEngine(t)
	router := setupRouter(t, eng, nil)

	w := doJSON(t, router, http.MethodGet, "/correlation?a=pain&b=drift&window=10", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Correlation float64 `json:"correlation"`
		Window      int     `json:"window"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 10, body.Window)
	assert.Equal(t, 0.0, body.Correlation)
}

func TestGetCorrelationValidation(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodGet, "/correlation?a=pain", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, router, http.MethodGet, "/correlation?a=pain&b=drift&window=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProfileLifecycle(t *testing.T) {
	eng := newTestEngine(t)
	router := setupRouter(t, eng, nil)

	w := doJSON(t, router, http.MethodGet, "/profiles", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var listing struct {
		Profiles       []string `json:"profiles"`
		CurrentProfile string   `json:"current_profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listing))
	assert.Contains(t, listing.Profiles, "sensitive")
	assert.Equal(t, "default", listing.CurrentProfile)

	w = doJSON(t, router, http.MethodPost, "/profile", gin.H{"name": "relaxed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "relaxed", eng.Manager().CurrentProfile())

	w = doJSON(t, router, http.MethodPost, "/profile", gin.H{"name": "bogus"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestThresholdEndpoints(t *testing.T) {
	eng := newTestEngine(t)
	router := setupRouter(t, eng, nil)

	// Move a few thresholds first.
	doJSON(t, router, http.MethodPost, "/readings", gin.H{
		"metrics": gin.H{"pain": 0.2, "drift": 0.6, "clarity": 0.8, "mirror_sync": 0.3},
	})

	w := doJSON(t, router, http.MethodGet, "/thresholds", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, "/thresholds/changes?limit=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var changes struct {
		Changes []struct {
			Threshold string `json:"threshold"`
		} `json:"changes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &changes))
	assert.NotEmpty(t, changes.Changes)

	w = doJSON(t, router, http.MethodPost, "/thresholds/reset", gin.H{"name": ""})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.7, eng.Thresholds().Get("pain_high"))
}

func TestSnapshotEndpointsWithoutStore(t *testing.T) {
	router := setupRouter(t, newTestEngine(t), nil)

	w := doJSON(t, router, http.MethodPost, "/snapshot", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, router, http.MethodPost, "/restore", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSnapshotAndRestoreViaRedis(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := database.NewSnapshotStore(
		nil,
		database.NewRedisClientFromExisting(client, testLogger()),
		config.SnapshotConfig{},
		testLogger(),
	)

	eng := newTestEngine(t)
	router := setupRouter(t, eng, store)

	// Restore before any save: nothing persisted yet.
	w := doJSON(t, router, http.MethodPost, "/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	doJSON(t, router, http.MethodPost, "/readings/single", gin.H{"sensor": "pain", "value": 0.85})

	w = doJSON(t, router, http.MethodPost, "/snapshot", nil)
	require.Equal(t, http.StatusOK, w.Code)

	// A fresh engine restored from the snapshot sees the reading.
	fresh := newTestEngine(t)
	router = setupRouter(t, fresh, store)
	w = doJSON(t, router, http.MethodPost, "/restore", nil)
	require.Equal(t, http.StatusOK, w.Code)

	pain, ok := fresh.Manager().Sensor(calibration.SensorPain)
	require.True(t, ok)
	v, ok := pain.LatestValue()
	require.True(t, ok)
	assert.Equal(t, 0.85, v)
}
