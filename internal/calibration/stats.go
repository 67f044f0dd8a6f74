package calibration

import (
	"math"
)

func calculateMean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// fitLine runs an ordinary least squares fit of values against their index
// position and returns the slope and R-squared of the fit.
func fitLine(values []float64) (slope float64, rSquared float64) {
	n := len(values)
	if n < 2 {
		return 0, 0
	}

	xMean := float64(n-1) / 2
	yMean := calculateMean(values)

	var numerator float64
	var denominator float64
	for i, y := range values {
		dx := float64(i) - xMean
		numerator += dx * (y - yMean)
		denominator += dx * dx
	}

	if denominator == 0 {
		return 0, 0
	}
	slope = numerator / denominator

	var ssRes float64
	var ssTot float64
	for i, y := range values {
		predicted := yMean + slope*(float64(i)-xMean)
		ssRes += (y - predicted) * (y - predicted)
		ssTot += (y - yMean) * (y - yMean)
	}
	if ssTot > 0 {
		rSquared = 1 - ssRes/ssTot
	}

	return slope, rSquared
}

// calculateCorrelation computes the Pearson correlation of two equally sized
// series, clamped to [-1, 1].
func calculateCorrelation(x []float64, y []float64) float64 {
	n := len(x)
	if n == 0 || len(y) != n {
		return 0
	}
	meanX := calculateMean(x)
	meanY := calculateMean(y)

	var numerator float64
	var denomX float64
	var denomY float64

	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		numerator += dx * dy
		denomX += dx * dx
		denomY += dy * dy
	}

	denom := math.Sqrt(denomX * denomY)
	if denom == 0 {
		return 0
	}

	corr := numerator / denom
	if corr > 1 {
		return 1
	}
	if corr < -1 {
		return -1
	}
	return corr
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
