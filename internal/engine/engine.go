// Package engine composes the sensor calibration manager and the dynamic
// threshold adapter into the single adaptive calibration core consumed by
// the HTTP layer and the background loops.
package engine

import (
	"time"

	"github.com/iskralabs/calibra/internal/calibration"
	"github.com/iskralabs/calibra/internal/config"
	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
	"github.com/iskralabs/calibra/internal/models"
	"github.com/iskralabs/calibra/internal/thresholds"
)

// Engine owns the calibration manager and the threshold adapter. It is
// constructed once at startup and passed to its consumers explicitly; there
// are no package-level singletons.
type Engine struct {
	manager *calibration.Manager
	adapter *thresholds.Adapter

	logger logging.Logger
}

// TurnResult is the outcome of processing one metric snapshot.
type TurnResult struct {
	// Spikes are the deviations detected in this batch.
	Spikes []models.SpikeEvent `json:"spikes"`
	// ThresholdChanges maps moved thresholds to their signed deltas.
	ThresholdChanges map[string]float64 `json:"threshold_changes"`
	// CrisisMode reports whether crisis calibration is active after the turn.
	CrisisMode bool `json:"crisis_mode"`
	// Context is the threshold context detected for the turn.
	Context thresholds.Context `json:"context"`
}

// Snapshot is the full persistable state of the engine.
type Snapshot struct {
	Manager    calibration.ManagerState `json:"manager"`
	Thresholds thresholds.AdapterState  `json:"thresholds"`
	SavedAt    time.Time                `json:"saved_at"`
}

// New assembles the engine from configuration.
//
// Parameters:
//
//	cfg: Application configuration.
//	logger: Logger instance.
//	mset: Prometheus collectors, may be nil.
//
// Returns:
//
//	*Engine: The initialized engine.
func New(cfg *config.Config, logger logging.Logger, mset *metrics.Set) *Engine {
	return &Engine{
		manager: calibration.NewManager(
			cfg.Calibration.DefaultProfile,
			cfg.Calibration.HistoryLimit,
			logger,
			mset,
		),
		adapter: thresholds.NewAdapter(cfg.Thresholds.Base, logger, mset),
		logger:  logger.WithComponent("engine"),
	}
}

// ProcessTurn feeds one metric snapshot through both calibration paths:
// sensor ingestion with spike and crisis detection, then threshold
// adaptation.
func (e *Engine) ProcessTurn(snapshot models.MetricSnapshot, phase models.Phase) TurnResult {
	spikes := e.manager.UpdateFromMetrics(snapshot)
	changes := e.adapter.Update(snapshot, phase)

	return TurnResult{
		Spikes:           spikes,
		ThresholdChanges: changes,
		CrisisMode:       e.manager.CrisisMode(),
		Context:          e.adapter.Context(),
	}
}

// Manager exposes the sensor calibration manager.
func (e *Engine) Manager() *calibration.Manager {
	return e.manager
}

// Thresholds exposes the dynamic threshold adapter.
func (e *Engine) Thresholds() *thresholds.Adapter {
	return e.adapter
}

// ApplyDecay runs the periodic baseline decay maintenance pass.
func (e *Engine) ApplyDecay() {
	e.manager.ApplyDecay()
	e.logger.Debug("Applied baseline decay")
}

// Snapshot exports the full engine state for persistence.
func (e *Engine) Snapshot() Snapshot {
	return Snapshot{
		Manager:    e.manager.State(),
		Thresholds: e.adapter.State(),
		SavedAt:    time.Now(),
	}
}

// Restore replaces the engine's in-memory state with a persisted snapshot.
// Malformed entries inside the snapshot are skipped, not fatal.
func (e *Engine) Restore(snapshot Snapshot, logger logging.Logger) {
	e.manager.Restore(snapshot.Manager, logger)
	e.adapter.Restore(snapshot.Thresholds)
	e.logger.WithFields(map[string]interface{}{
		"saved_at": snapshot.SavedAt,
	}).Info("Engine state restored from snapshot")
}
