package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the appointment lifecycle state. Appointments are created
// scheduled and move to exactly one terminal state; rows are never
// deleted, history is retained via status.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
	StatusNoShow    Status = "no_show"
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusScheduled:
		return StatusScheduled, nil
	case StatusCancelled:
		return StatusCancelled, nil
	case StatusCompleted:
		return StatusCompleted, nil
	case StatusNoShow:
		return StatusNoShow, nil
	default:
		return "", fmt.Errorf("unknown appointment status: %s", s)
	}
}

// Terminal reports whether no further time or status mutation is
// permitted. Only scheduled appointments may change.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted || s == StatusNoShow
}

// Role is the closed set of actor roles the capability rule accepts.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// ParseRole normalizes and validates a role claim. Unknown roles are
// rejected at the boundary rather than treated as an implicit deny
// deeper in the core.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleAdmin:
		return RoleAdmin, nil
	case RoleDoctor:
		return RoleDoctor, nil
	case RolePatient:
		return RolePatient, nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// Appointment is owned exclusively by this package: created by Book,
// mutated only by the lifecycle operations.
type Appointment struct {
	ID        uuid.UUID `db:"id" json:"id"`
	DoctorID  uuid.UUID `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	StartTime time.Time `db:"start_time" json:"start_time"`
	EndTime   time.Time `db:"end_time" json:"end_time"`
	Status    Status    `db:"status" json:"status"`
	Notes     *string   `db:"notes" json:"notes,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CanModify is the capability rule for lifecycle operations: admins may
// modify any appointment, doctors their own, patients their own.
func CanModify(role Role, actorID uuid.UUID, appt *Appointment) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleDoctor:
		return actorID == appt.DoctorID
	case RolePatient:
		return actorID == appt.PatientID
	default:
		return false
	}
}

// UpdatePatch carries the fields an update may change. Nil fields are
// left untouched.
type UpdatePatch struct {
	StartTime *time.Time `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Status    *string    `json:"status"`
	Notes     *string    `json:"notes"`
}

// Statistics aggregates committed appointments. CompletionRate is
// completed/total*100; TotalCompletedHours sums end-start over
// completed appointments only.
type Statistics struct {
	TotalAppointments    int            `json:"total_appointments"`
	StatusBreakdown      map[Status]int `json:"status_breakdown"`
	TotalCompletedHours  float64        `json:"total_completed_hours"`
	CompletionRate       float64        `json:"completion_rate"`
	AverageDurationHours float64        `json:"average_appointment_duration_hours"`
}
