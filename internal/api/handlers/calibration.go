package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/iskralabs/calibra/internal/calibration"
	"github.com/iskralabs/calibra/internal/database"
	"github.com/iskralabs/calibra/internal/engine"
	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/models"
)

// CalibrationHandler serves the calibration engine over HTTP.
type CalibrationHandler struct {
	engine *engine.Engine
	store  *database.SnapshotStore
	logger logging.Logger
}

// NewCalibrationHandler creates a calibration handler.
//
// Parameters:
//
//	eng: The calibration engine.
//	store: Snapshot store, may be nil when persistence is disabled.
//	logger: Logger instance.
//
// Returns:
//
//	*CalibrationHandler: The initialized handler.
func NewCalibrationHandler(eng *engine.Engine, store *database.SnapshotStore, logger logging.Logger) *CalibrationHandler {
	return &CalibrationHandler{
		engine: eng,
		store:  store,
		logger: logger.WithComponent("calibration_handler"),
	}
}

// ReadingsRequest is the payload for submitting one turn of metrics.
type ReadingsRequest struct {
	// Metrics carries the wellbeing metric snapshot for the turn.
	Metrics models.MetricSnapshot `json:"metrics" binding:"required"`
	// Phase optionally names the current narrative phase.
	Phase models.Phase `json:"phase"`
}

// SingleReadingRequest is the payload for feeding one sensor directly.
type SingleReadingRequest struct {
	Sensor string  `json:"sensor" binding:"required"`
	Value  float64 `json:"value"`
	Source string  `json:"source"`
}

// ProfileRequest selects a calibration profile by name.
type ProfileRequest struct {
	Name string `json:"name" binding:"required"`
}

// ResetRequest names a threshold to reset; empty means all.
type ResetRequest struct {
	Name string `json:"name"`
}

// SubmitReadings ingests a metric snapshot and returns detected spikes and
// threshold movements.
func (h *CalibrationHandler) SubmitReadings(c *gin.Context) {
	var req ReadingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	if req.Phase != "" && !req.Phase.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown phase: " + string(req.Phase)})
		return
	}

	result := h.engine.ProcessTurn(req.Metrics, req.Phase)

	c.JSON(http.StatusOK, result)
}

// SubmitSingleReading feeds one observation into a named sensor. Unknown
// sensors are reported as 404 rather than silently dropped at the HTTP
// boundary.
func (h *CalibrationHandler) SubmitSingleReading(c *gin.Context) {
	var req SingleReadingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if _, ok := h.engine.Manager().Sensor(req.Sensor); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown sensor: " + req.Sensor})
		return
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	spike := h.engine.Manager().UpdateReading(req.Sensor, req.Value, time.Now(), source)

	c.JSON(http.StatusOK, gin.H{"spike": spike})
}

// GetState returns the aggregate calibration state plus threshold states.
func (h *CalibrationHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"calibration": h.engine.Manager().AggregateState(),
		"thresholds":  h.engine.Thresholds().AllStates(),
		"context":     h.engine.Thresholds().Context(),
	})
}

// GetCorrelation returns the Pearson correlation between two sensors.
func (h *CalibrationHandler) GetCorrelation(c *gin.Context) {
	sensorA := c.Query("a")
	sensorB := c.Query("b")
	if sensorA == "" || sensorB == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameters 'a' and 'b' are required"})
		return
	}

	window := 50
	if raw := c.Query("window"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window: " + raw})
			return
		}
		window = parsed
	}

	correlation := h.engine.Manager().Correlation(sensorA, sensorB, window)

	c.JSON(http.StatusOK, gin.H{
		"a":           sensorA,
		"b":           sensorB,
		"window":      window,
		"correlation": correlation,
	})
}

// GetProfiles lists the available calibration profiles and the active one.
func (h *CalibrationHandler) GetProfiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"profiles":        calibration.ProfileNames(),
		"current_profile": h.engine.Manager().CurrentProfile(),
		"crisis_mode":     h.engine.Manager().CrisisMode(),
	})
}

// SetProfile applies a calibration profile to all sensors. The manager
// defers the change while crisis mode is active.
func (h *CalibrationHandler) SetProfile(c *gin.Context) {
	var req ProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	if _, ok := calibration.ProfileByName(req.Name); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown profile: " + req.Name})
		return
	}

	h.engine.Manager().SetGlobalProfile(req.Name)

	c.JSON(http.StatusOK, gin.H{
		"current_profile": h.engine.Manager().CurrentProfile(),
		"crisis_mode":     h.engine.Manager().CrisisMode(),
	})
}

// GetThresholds returns every threshold state.
func (h *CalibrationHandler) GetThresholds(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"thresholds": h.engine.Thresholds().AllStates(),
		"context":    h.engine.Thresholds().Context(),
	})
}

// GetThresholdChanges returns recent threshold change records.
func (h *CalibrationHandler) GetThresholdChanges(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit: " + raw})
			return
		}
		limit = parsed
	}

	c.JSON(http.StatusOK, gin.H{"changes": h.engine.Thresholds().RecentChanges(limit)})
}

// ResetThresholds resets one or all thresholds back to base values.
func (h *CalibrationHandler) ResetThresholds(c *gin.Context) {
	var req ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	h.engine.Thresholds().ResetToBase(req.Name)

	c.JSON(http.StatusOK, gin.H{"thresholds": h.engine.Thresholds().AllStates()})
}

// SaveSnapshot persists the current engine state.
func (h *CalibrationHandler) SaveSnapshot(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot persistence is disabled"})
		return
	}

	snapshot := h.engine.Snapshot()
	if err := h.store.Save(c.Request.Context(), snapshot); err != nil {
		h.logger.WithError(err).Error("Failed to save snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save snapshot"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"saved_at": snapshot.SavedAt})
}

// RestoreSnapshot replaces the engine state with the latest persisted
// snapshot.
func (h *CalibrationHandler) RestoreSnapshot(c *gin.Context) {
	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "snapshot persistence is disabled"})
		return
	}

	snapshot, err := h.store.LoadLatest(c.Request.Context())
	if err != nil {
		if err == database.ErrNoSnapshot {
			c.JSON(http.StatusNotFound, gin.H{"error": "no snapshot available"})
			return
		}
		h.logger.WithError(err).Error("Failed to load snapshot")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load snapshot"})
		return
	}

	h.engine.Restore(*snapshot, h.logger)

	c.JSON(http.StatusOK, gin.H{"restored_from": snapshot.SavedAt})
}
