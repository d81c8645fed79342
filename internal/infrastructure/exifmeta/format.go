package exifmeta

import (
	"fmt"
	"math"
)

// FormatShutter renders an exposure time as "1/250" below one second and "2.0s" otherwise.
func FormatShutter(seconds *float64) string {
	if seconds == nil || *seconds <= 0 {
		return "unknown"
	}
	if *seconds >= 1 {
		return fmt.Sprintf("%.1fs", *seconds)
	}
	return fmt.Sprintf("1/%d", int(math.Round(1 / *seconds)))
}

func FormatAperture(fNumber *float64) string {
	if fNumber == nil || *fNumber <= 0 {
		return "unknown"
	}
	return fmt.Sprintf("f/%.1f", *fNumber)
}
