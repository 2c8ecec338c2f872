// Package booking is the appointment engine: conflict detection,
// transactional booking, the lifecycle state machine, and listing and
// statistics over committed appointments.
package booking

import "time"

// Overlaps reports whether the half-open intervals [s1, e1) and
// [s2, e2) intersect. Back-to-back intervals sharing an endpoint do
// not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}
