// Package thresholds implements the dynamic threshold adapter: named,
// bounded threshold values that drift toward recent metric behavior,
// modulated by a discrete conversational context.
package thresholds

import (
	"github.com/iskralabs/calibra/internal/models"
)

// Context classifies the conversational situation that modulates threshold
// adaptation.
type Context string

const (
	ContextNormal         Context = "normal"
	ContextCrisis         Context = "crisis"
	ContextRecovery       Context = "recovery"
	ContextExploration    Context = "exploration"
	ContextDeepReflection Context = "deep_reflection"
)

// Valid reports whether c is a known context.
func (c Context) Valid() bool {
	switch c {
	case ContextNormal, ContextCrisis, ContextRecovery, ContextExploration, ContextDeepReflection:
		return true
	}
	return false
}

// contextMultipliers scales threshold targets and the adaptation rate for
// one context.
type contextMultipliers struct {
	painHigh       float64
	painMedium     float64
	driftHigh      float64
	clarityLow     float64
	mirrorSyncLow  float64
	adaptationRate float64
}

// Lower multiplier = more sensitive threshold; higher = more tolerant.
var contextTable = map[Context]contextMultipliers{
	ContextNormal: {
		painHigh:       1.0,
		painMedium:     1.0,
		driftHigh:      1.0,
		clarityLow:     1.0,
		mirrorSyncLow:  1.0,
		adaptationRate: 1.0,
	},
	ContextCrisis: {
		painHigh:       0.8,
		painMedium:     0.8,
		driftHigh:      0.7,
		clarityLow:     1.2,
		mirrorSyncLow:  0.8,
		adaptationRate: 0.5,
	},
	ContextRecovery: {
		painHigh:       1.1,
		painMedium:     1.1,
		driftHigh:      1.2,
		clarityLow:     0.9,
		mirrorSyncLow:  1.1,
		adaptationRate: 1.5,
	},
	ContextExploration: {
		painHigh:       1.2,
		painMedium:     1.2,
		driftHigh:      1.3,
		clarityLow:     0.8,
		mirrorSyncLow:  1.0,
		adaptationRate: 1.2,
	},
	ContextDeepReflection: {
		painHigh:       0.9,
		painMedium:     0.9,
		driftHigh:      0.8,
		clarityLow:     1.1,
		mirrorSyncLow:  0.7,
		adaptationRate: 0.8,
	},
}

// detectContext classifies the current situation from metrics and phase.
// Checks run in fixed priority order; the first match wins.
func detectContext(current Context, snapshot models.MetricSnapshot, phase models.Phase) Context {
	// Crisis: high pain or very low clarity
	if snapshot.Pain > 0.8 || snapshot.Clarity < 0.3 {
		return ContextCrisis
	}

	// Recovery: coming down from crisis
	if current == ContextCrisis && snapshot.Pain < 0.5 && snapshot.Clarity > 0.5 {
		return ContextRecovery
	}

	// Deep reflection: introspective phases
	if phase == models.PhaseDeepDive || phase == models.PhaseSynthesis {
		return ContextDeepReflection
	}

	// Exploration: the transition phase with good clarity
	if phase == models.PhaseTransition && snapshot.Clarity > 0.7 {
		return ContextExploration
	}

	return ContextNormal
}
