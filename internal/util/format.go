package util

import (
	"fmt"
	"math"
	"time"
)

// ETA estimates the time remaining from a completion fraction and a start time.
// Returns "HH:MM:SS"; "00:00:00" until there is enough progress to extrapolate.
func ETA(fraction float32, start time.Time) string {
	if fraction <= 0 || fraction >= 1 {
		return Timeify(0)
	}
	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return Timeify(0)
	}
	remaining := elapsed/float64(fraction) - elapsed
	return Timeify(int(math.Floor(remaining)))
}

// Timeify converts seconds to "HH:MM:SS" format.
func Timeify(seconds int) string {
	hours := int(math.Floor(float64(seconds) / 3600))
	seconds %= 3600
	minutes := int(math.Floor(float64(seconds) / 60))
	seconds %= 60
	hours = int(math.Max(float64(hours), 0))
	minutes = int(math.Max(float64(minutes), 0))
	seconds = int(math.Max(float64(seconds), 0))
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// Sizeify converts bytes to a human-readable string (KiB, MiB, GiB, TiB).
func Sizeify(size int64) string {
	if size >= int64(TiB) {
		return fmt.Sprintf("%.2f TiB", float64(size)/float64(TiB))
	} else if size >= int64(GiB) {
		return fmt.Sprintf("%.2f GiB", float64(size)/float64(GiB))
	} else if size >= int64(MiB) {
		return fmt.Sprintf("%.2f MiB", float64(size)/float64(MiB))
	} else {
		return fmt.Sprintf("%.2f KiB", float64(size)/float64(KiB))
	}
}

// Pluralize returns "1 file" / "3 files" style counts.
func Pluralize(n int, singular string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", singular)
	}
	return fmt.Sprintf("%d %ss", n, singular)
}
