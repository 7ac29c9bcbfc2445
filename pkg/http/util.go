package http

import (
	"time"

	xutil "OptEdge/pkg/util"
)

// ParseIntDefault parses string to int or returns default if empty/invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }

// AlignRange truncates a time range to bar boundaries of the given step.
func AlignRange(from, to time.Time, step time.Duration) (time.Time, time.Time) {
	return xutil.AlignRange(from, to, step)
}
