package booking

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// BookingTx is the explicit transactional handle booking and lifecycle
// operations run against. Implementations guarantee every method sees
// the same serializable snapshot and that row locks taken here are held
// until the transaction ends.
type BookingTx interface {
	// DoctorActive reports whether the doctor exists and is active.
	DoctorActive(ctx context.Context, doctorID uuid.UUID) (bool, error)
	// PatientActive reports whether the patient exists and is active.
	PatientActive(ctx context.Context, patientID uuid.UUID) (bool, error)
	// AnyAvailabilityOverlap reports whether any availability window of
	// the doctor overlaps [start, end). Intersection with some window is
	// enough; full coverage by one contiguous window is not required.
	AnyAvailabilityOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error)
	// LockScheduledOverlaps takes FOR UPDATE locks on the scheduled
	// appointments of the doctor overlapping [start, end), excluding
	// excludeID, and returns how many rows were locked.
	LockScheduledOverlaps(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error)
	// AnyScheduledOverlap re-tests the overlap predicate, to be called
	// after LockScheduledOverlaps so the answer holds under lock.
	AnyScheduledOverlap(ctx context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error)
	// GetForUpdate loads one appointment and locks its row.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Insert(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
}

// StatusAggregate is one row of the per-status rollup used to build
// Statistics.
type StatusAggregate struct {
	Status Status
	Count  int
	Hours  float64
}

type AppointmentRepository interface {
	// InTx runs fn inside a serializable transaction. A non-nil error or
	// a panic from fn rolls the transaction back; otherwise it commits.
	InTx(ctx context.Context, fn func(tx BookingTx) error) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Search filters by the keys doctor_id, patient_id, status, from, to
	// and returns one page ordered by start time descending plus the
	// total match count.
	Search(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error)
	// AggregateByStatus rolls up count and summed hours per status,
	// filtered by the keys doctor_id, from, to.
	AggregateByStatus(ctx context.Context, params map[string]string) ([]StatusAggregate, error)
}

// ReminderScheduler is the slice of the reminder engine the booking
// service calls after commit. Every call is best-effort: failures are
// logged by the caller and never affect the committed booking.
type ReminderScheduler interface {
	Schedule(ctx context.Context, appointmentID uuid.UUID, start time.Time) error
	Cancel(ctx context.Context, appointmentID uuid.UUID, reason string) error
	Reschedule(ctx context.Context, appointmentID uuid.UUID, oldStart, newStart time.Time) error
}
