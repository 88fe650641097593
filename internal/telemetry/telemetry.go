// Package telemetry provides no-op metrics recording. Nothing is
// collected or transmitted unless the user explicitly opts in; until a
// real backend is wired behind the opt-in, every function here does
// nothing.
package telemetry

import "time"

// IsEnabled reports whether telemetry collection is active.
// Always false: collection requires explicit opt-in.
func IsEnabled() bool {
	return false
}

// RecordCount records a counter increment (no-op).
func RecordCount(name string, delta int) {
}

// RecordTiming records a timing duration (no-op).
func RecordTiming(name string, duration time.Duration) {
}

// TrackError reports an error occurrence (no-op).
func TrackError(err error) {
}
