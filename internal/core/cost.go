package core

import "math"

const (
	baseCost     = 0.01
	timeRate     = 0.05
	perImageRate = 0.02
)

// ComputeCost returns the billed amount for a request, rounded to 4 decimals.
// Callers guarantee non-negative inputs.
func ComputeCost(imageCount int, elapsedSeconds float64) float64 {
	cost := baseCost + elapsedSeconds*timeRate + float64(imageCount)*perImageRate
	return math.Round(cost*1e4) / 1e4
}
