package thresholds

import (
	"sync"
	"time"

	"github.com/iskralabs/calibra/internal/logging"
	"github.com/iskralabs/calibra/internal/metrics"
	"github.com/iskralabs/calibra/internal/models"
)

const (
	// baseAdaptationRate is the fraction of the observed delta applied per
	// update before context modulation.
	baseAdaptationRate = 0.2
	// changeEpsilon is the smallest threshold movement worth reporting.
	changeEpsilon = 0.001
	// painEMAAlpha smooths the pain history for threshold targeting.
	painEMAAlpha = 0.1
	// historyLimit caps the per-metric observation history.
	historyLimit = 100
	// historyWindow is how many recent observations feed the trailing mean.
	historyWindow = 50
	// maxChangeHistory caps the retained threshold change records.
	maxChangeHistory = 1000
	// painMediumMargin keeps pain_medium strictly below pain_high.
	painMediumMargin = 0.1
)

// State is the mutable state of a single named threshold. CurrentValue
// always stays within [MinBound, MaxBound]; BaseValue never changes.
type State struct {
	Name         string    `json:"name"`
	BaseValue    float64   `json:"base_value"`
	CurrentValue float64   `json:"current_value"`
	MinBound     float64   `json:"min_bound"`
	MaxBound     float64   `json:"max_bound"`
	LastUpdated  time.Time `json:"last_updated"`
	UpdateCount  int       `json:"update_count"`
}

// DeviationFromBase reports how far the current value has drifted from base.
func (s State) DeviationFromBase() float64 {
	return s.CurrentValue - s.BaseValue
}

// NormalizedPosition reports the current value's position within its bounds
// (0.0 = min, 1.0 = max).
func (s State) NormalizedPosition() float64 {
	rangeSize := s.MaxBound - s.MinBound
	if rangeSize == 0 {
		return 0.5
	}
	return (s.CurrentValue - s.MinBound) / rangeSize
}

// Change records one applied threshold adjustment.
type Change struct {
	Timestamp time.Time `json:"timestamp"`
	Threshold string    `json:"threshold"`
	OldValue  float64   `json:"old_value"`
	NewValue  float64   `json:"new_value"`
	Reason    string    `json:"reason"`
	Context   Context   `json:"context"`
}

// AdapterState is the persisted form of the adapter.
type AdapterState struct {
	States    map[string]ThresholdValueState `json:"states"`
	Context   Context                        `json:"context"`
	Histories map[string][]float64           `json:"histories"`
}

// ThresholdValueState carries the mutable portion of a threshold for
// persistence; base values and bounds come from configuration.
type ThresholdValueState struct {
	CurrentValue float64 `json:"current_value"`
	UpdateCount  int     `json:"update_count"`
}

// defaultBases are the built-in base threshold values.
var defaultBases = map[string]float64{
	"pain_high":            0.7,
	"pain_medium":          0.5,
	"clarity_low":          0.7,
	"trust_low":            0.75,
	"drift_high":           0.3,
	"chaos_high":           0.6,
	"mirror_sync_low":      0.4,
	"mirror_sync_critical": 0.2,
}

// thresholdBounds pins each threshold inside a sane range regardless of how
// far adaptation pushes it.
var thresholdBounds = map[string][2]float64{
	"pain_high":            {0.4, 0.95},
	"pain_medium":          {0.2, 0.7},
	"drift_high":           {0.2, 0.8},
	"clarity_low":          {0.3, 0.9},
	"mirror_sync_low":      {0.3, 0.6},
	"mirror_sync_critical": {0.1, 0.4},
	"trust_low":            {0.3, 0.6},
	"chaos_high":           {0.5, 0.9},
}

var defaultBoundRange = [2]float64{0.1, 0.9}

// observedMetrics lists the metric histories the adapter maintains.
var observedMetrics = []string{"pain", "drift", "clarity", "mirror_sync", "trust", "chaos"}

// Adapter maintains the named, bounded threshold values. All methods are
// safe for concurrent use.
type Adapter struct {
	mu sync.Mutex

	states    map[string]*State
	histories map[string][]float64

	context           Context
	lastContextChange time.Time

	changes []Change

	logger  logging.Logger
	metrics *metrics.Set
}

// NewAdapter creates a threshold adapter.
//
// Parameters:
//
//	baseOverrides: Optional base value overrides by threshold name; unknown
//	names are added with default bounds, nil keeps the built-ins.
//	logger: Logger instance.
//	mset: Prometheus collectors, may be nil.
//
// Returns:
//
//	*Adapter: The initialized adapter.
func NewAdapter(baseOverrides map[string]float64, logger logging.Logger, mset *metrics.Set) *Adapter {
	bases := make(map[string]float64, len(defaultBases))
	for name, value := range defaultBases {
		bases[name] = value
	}
	for name, value := range baseOverrides {
		bases[name] = value
	}

	states := make(map[string]*State, len(bases))
	for name, base := range bases {
		bounds, ok := thresholdBounds[name]
		if !ok {
			bounds = defaultBoundRange
		}
		states[name] = &State{
			Name:         name,
			BaseValue:    base,
			CurrentValue: clamp(base, bounds[0], bounds[1]),
			MinBound:     bounds[0],
			MaxBound:     bounds[1],
			LastUpdated:  time.Now(),
		}
	}

	histories := make(map[string][]float64, len(observedMetrics))
	for _, name := range observedMetrics {
		histories[name] = nil
	}

	return &Adapter{
		states:            states,
		histories:         histories,
		context:           ContextNormal,
		lastContextChange: time.Now(),
		logger:            logger.WithComponent("threshold_adapter"),
		metrics:           mset,
	}
}

// Update nudges every adaptive threshold toward recent metric behavior,
// modulated by the detected context.
//
// Parameters:
//
//	snapshot: Current metric values.
//	phase: Current narrative phase; the empty value means unknown.
//
// Returns:
//
//	map[string]float64: Signed deltas for thresholds that moved by more
//	than the reporting epsilon. Unchanged thresholds are omitted.
func (a *Adapter) Update(snapshot models.MetricSnapshot, phase models.Phase) map[string]float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recordHistoriesLocked(snapshot)

	newContext := detectContext(a.context, snapshot, phase)
	if newContext != a.context {
		duration := time.Since(a.lastContextChange)
		a.logger.WithFields(map[string]interface{}{
			"from":     a.context,
			"to":       newContext,
			"after_ms": duration.Milliseconds(),
		}).Info("Context change")
		a.context = newContext
		a.lastContextChange = time.Now()
	}

	mult := contextTable[a.context]
	rate := baseAdaptationRate * mult.adaptationRate

	changes := make(map[string]float64)

	emaPain := emaOf(a.histories["pain"], painEMAAlpha)
	a.adaptLocked(changes, "pain_high", emaPain, rate, mult.painHigh, false, "", 0)
	a.adaptLocked(changes, "pain_medium", emaPain, rate, mult.painMedium, false, "pain_high", painMediumMargin)

	avgDrift := meanOf(a.histories["drift"], historyWindow)
	a.adaptLocked(changes, "drift_high", avgDrift, rate, mult.driftHigh, false, "", 0)

	// Clarity works the other way around: less clarity should pull its
	// trigger threshold down, not up.
	avgClarity := meanOf(a.histories["clarity"], historyWindow)
	a.adaptLocked(changes, "clarity_low", avgClarity, rate, mult.clarityLow, true, "", 0)

	avgMirror := meanOf(a.histories["mirror_sync"], historyWindow)
	a.adaptLocked(changes, "mirror_sync_low", avgMirror, rate, mult.mirrorSyncLow, false, "", 0)

	return changes
}

// recordHistoriesLocked appends the snapshot values to the bounded metric
// histories. Caller must hold a.mu.
func (a *Adapter) recordHistoriesLocked(snapshot models.MetricSnapshot) {
	values := map[string]float64{
		"pain":        snapshot.Pain,
		"drift":       snapshot.Drift,
		"clarity":     snapshot.Clarity,
		"mirror_sync": snapshot.MirrorSync,
		"trust":       snapshot.Trust,
		"chaos":       snapshot.Chaos,
	}
	for name, value := range values {
		history := append(a.histories[name], value)
		if len(history) > historyLimit {
			history = history[len(history)-historyLimit:]
		}
		a.histories[name] = history
	}
}

// adaptLocked moves one threshold toward the observed value and records the
// delta when it clears the reporting epsilon. Caller must hold a.mu.
func (a *Adapter) adaptLocked(
	changes map[string]float64,
	name string,
	observed float64,
	rate float64,
	contextMult float64,
	inverse bool,
	ceilingThreshold string,
	ceilingMargin float64,
) {
	state, ok := a.states[name]
	if !ok {
		return
	}

	base := state.BaseValue * contextMult

	delta := observed - base
	if inverse {
		delta = base - observed
	}

	newValue := base + rate*delta

	if ceilingThreshold != "" {
		if ceiling, ok := a.states[ceilingThreshold]; ok {
			maxAllowed := ceiling.CurrentValue - ceilingMargin
			if newValue > maxAllowed {
				newValue = maxAllowed
			}
		}
	}

	newValue = clamp(newValue, state.MinBound, state.MaxBound)

	diff := newValue - state.CurrentValue
	if diff > -changeEpsilon && diff < changeEpsilon {
		return
	}

	oldValue := state.CurrentValue
	state.CurrentValue = newValue
	state.LastUpdated = time.Now()
	state.UpdateCount++

	a.recordChangeLocked(name, oldValue, newValue, "adaptation")
	a.metrics.ObserveThresholdChange(name)

	changes[name] = newValue - oldValue
}

// recordChangeLocked appends to the bounded change history. Caller must
// hold a.mu.
func (a *Adapter) recordChangeLocked(name string, oldValue, newValue float64, reason string) {
	a.changes = append(a.changes, Change{
		Timestamp: time.Now(),
		Threshold: name,
		OldValue:  oldValue,
		NewValue:  newValue,
		Reason:    reason,
		Context:   a.context,
	})
	if len(a.changes) > maxChangeHistory {
		a.changes = a.changes[len(a.changes)-maxChangeHistory:]
	}
}

// Get returns the current value of a named threshold, or 0.5 for unknown
// names.
func (a *Adapter) Get(name string) float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if state, ok := a.states[name]; ok {
		return state.CurrentValue
	}
	return 0.5
}

// GetState returns a copy of the full state of a named threshold.
func (a *Adapter) GetState(name string) (State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	state, ok := a.states[name]
	if !ok {
		return State{}, false
	}
	return *state, true
}

// AllStates returns copies of every threshold state keyed by name.
func (a *Adapter) AllStates() map[string]State {
	a.mu.Lock()
	defer a.mu.Unlock()
	result := make(map[string]State, len(a.states))
	for name, state := range a.states {
		result[name] = *state
	}
	return result
}

// Context returns the currently detected context.
func (a *Adapter) Context() Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.context
}

// RecentChanges returns up to limit of the latest threshold changes,
// oldest first.
func (a *Adapter) RecentChanges(limit int) []Change {
	a.mu.Lock()
	defer a.mu.Unlock()

	if limit <= 0 || limit > len(a.changes) {
		limit = len(a.changes)
	}
	recent := a.changes[len(a.changes)-limit:]
	out := make([]Change, len(recent))
	copy(out, recent)
	return out
}

// ResetToBase resets one named threshold, or every threshold when name is
// empty, back to its base value.
func (a *Adapter) ResetToBase(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if name != "" {
		state, ok := a.states[name]
		if !ok {
			a.logger.Warn("Unknown threshold: %s", name)
			return
		}
		a.resetStateLocked(state, "reset")
		return
	}

	for _, state := range a.states {
		a.resetStateLocked(state, "reset_all")
	}
}

func (a *Adapter) resetStateLocked(state *State, reason string) {
	if state.CurrentValue == state.BaseValue {
		return
	}
	oldValue := state.CurrentValue
	state.CurrentValue = clamp(state.BaseValue, state.MinBound, state.MaxBound)
	state.LastUpdated = time.Now()
	a.recordChangeLocked(state.Name, oldValue, state.CurrentValue, reason)
}

// State exports the adapter for persistence. Histories are truncated to the
// trailing window.
func (a *Adapter) State() AdapterState {
	a.mu.Lock()
	defer a.mu.Unlock()

	states := make(map[string]ThresholdValueState, len(a.states))
	for name, state := range a.states {
		states[name] = ThresholdValueState{
			CurrentValue: state.CurrentValue,
			UpdateCount:  state.UpdateCount,
		}
	}

	histories := make(map[string][]float64, len(a.histories))
	for name, history := range a.histories {
		if len(history) > historyWindow {
			history = history[len(history)-historyWindow:]
		}
		copied := make([]float64, len(history))
		copy(copied, history)
		histories[name] = copied
	}

	return AdapterState{
		States:    states,
		Context:   a.context,
		Histories: histories,
	}
}

// Restore replaces the adapter's mutable state from a persisted snapshot.
// Unknown threshold or metric entries are skipped with a warning; restored
// values are clamped back into their bounds.
func (a *Adapter) Restore(state AdapterState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, value := range state.States {
		target, ok := a.states[name]
		if !ok {
			a.logger.Warn("Skipping unknown threshold %q in persisted state", name)
			continue
		}
		target.CurrentValue = clamp(value.CurrentValue, target.MinBound, target.MaxBound)
		target.UpdateCount = value.UpdateCount
	}

	if state.Context != "" {
		if state.Context.Valid() {
			a.context = state.Context
		} else {
			a.logger.Warn("Unknown context %q in persisted state, keeping %q", state.Context, a.context)
		}
	}

	for name, history := range state.Histories {
		if _, ok := a.histories[name]; !ok {
			a.logger.Warn("Skipping unknown metric history %q in persisted state", name)
			continue
		}
		copied := make([]float64, len(history))
		copy(copied, history)
		if len(copied) > historyLimit {
			copied = copied[len(copied)-historyLimit:]
		}
		a.histories[name] = copied
	}
}

// emaOf folds an exponential moving average over the whole history. An
// empty history yields the neutral value.
func emaOf(history []float64, alpha float64) float64 {
	if len(history) == 0 {
		return 0.5
	}
	ema := history[0]
	for _, v := range history[1:] {
		ema = alpha*v + (1-alpha)*ema
	}
	return ema
}

// meanOf averages the trailing window of a history. An empty history yields
// the neutral value.
func meanOf(history []float64, window int) float64 {
	if len(history) == 0 {
		return 0.5
	}
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	sum := 0.0
	for _, v := range history {
		sum += v
	}
	return sum / float64(len(history))
}

func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
