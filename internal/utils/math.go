package utils

import "math"

// Round rounds a float64 value to 2 decimal places.
// Durations exported as metrics go through here so the textfile stays readable.
func Round(val float64) float64 {
	return math.Round(val*100) / 100
}
