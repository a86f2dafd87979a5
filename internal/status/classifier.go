// Package status classifies live occupancy into the GREEN/ORANGE/RED
// traffic-light states shown on dashboards and booking screens.
package status

import "math"

type Level string

const (
	Green  Level = "GREEN"
	Orange Level = "ORANGE"
	Red    Level = "RED"
)

// Classify maps an occupancy ratio to a traffic-light level. A capacity of
// zero or less defines the ratio as zero, so unconfigured temples read GREEN.
func Classify(current, capacity int64, warningPct, criticalPct int) Level {
	pct := Percentage(current, capacity)
	switch {
	case pct >= float64(criticalPct):
		return Red
	case pct >= float64(warningPct):
		return Orange
	default:
		return Green
	}
}

// Percentage returns the occupancy percentage rounded to one decimal,
// matching what dashboards display.
func Percentage(current, capacity int64) float64 {
	if capacity <= 0 {
		return 0
	}
	pct := float64(current) / float64(capacity) * 100
	return math.Round(pct*10) / 10
}
