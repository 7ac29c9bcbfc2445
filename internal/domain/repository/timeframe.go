package repository

import "time"

// Interval is a bar aggregation interval.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
)

// IsValidInterval returns true if iv is a supported bar interval.
func IsValidInterval(iv Interval) bool {
	switch iv {
	case Interval1m, Interval5m, Interval15m, Interval1h:
		return true
	default:
		return false
	}
}

// DefaultInterval returns the default bar interval.
func DefaultInterval() Interval { return Interval5m }

// NormalizeInterval converts raw string to a valid interval (or default).
func NormalizeInterval(s string) Interval {
	if s == "" {
		return DefaultInterval()
	}
	iv := Interval(s)
	if IsValidInterval(iv) {
		return iv
	}
	return DefaultInterval()
}

// Duration returns the wall-clock length of one bar.
func (iv Interval) Duration() time.Duration {
	switch iv {
	case Interval1m:
		return time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval1h:
		return time.Hour
	default:
		return 5 * time.Minute
	}
}
