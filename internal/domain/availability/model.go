// Package availability manages the time windows a doctor accepts
// bookings in. Windows of the same doctor may overlap each other; the
// booking engine only asks whether a requested slot touches any window.
package availability

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityWindow is a contiguous stretch of bookable time.
type AvailabilityWindow struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Slot is one bookable window projected onto a single day listing.
type Slot struct {
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// DaySlots is the cached per-day listing.
type DaySlots struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Date     string    `json:"date"`
	Slots    []Slot    `json:"slots"`
}

// Summary aggregates a doctor's windows over a range.
type Summary struct {
	DoctorID   uuid.UUID      `json:"doctor_id"`
	TotalSlots int            `json:"total_slots"`
	TotalHours float64        `json:"total_hours"`
	ByDate     map[string]int `json:"by_date"`
}
