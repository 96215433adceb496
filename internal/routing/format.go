package routing

import (
	"fmt"
	"math"
)

// FormatDistance renders metres for display: "850 m", "4.2 km", "37 km".
func FormatDistance(meters float64) string {
	if meters < 1000 {
		return fmt.Sprintf("%d m", int(meters))
	}
	km := meters / 1000
	if km < 10 {
		return fmt.Sprintf("%.1f km", km)
	}
	return fmt.Sprintf("%d km", int(km))
}

// FormatDuration renders seconds for display: "45 sec", "12 min", "1h 5min", "2h".
func FormatDuration(seconds float64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d sec", int(seconds))
	case seconds < 3600:
		return fmt.Sprintf("%d min", int(seconds/60))
	}
	hours := int(seconds / 3600)
	minutes := int(math.Mod(seconds, 3600) / 60)
	if minutes > 0 {
		return fmt.Sprintf("%dh %dmin", hours, minutes)
	}
	return fmt.Sprintf("%dh", hours)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
