package booking

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/pkg/apperr"
)

type Service struct {
	appointments AppointmentRepository
	reminders    ReminderScheduler
	logger       zerolog.Logger
}

func NewService(appointments AppointmentRepository, reminders ReminderScheduler, logger zerolog.Logger) *Service {
	return &Service{appointments: appointments, reminders: reminders, logger: logger}
}

// Book creates a scheduled appointment. Participants are resolved and
// both overlap checks run inside one serializable transaction; the
// doctor's overlapping scheduled rows are locked before the final
// overlap test so two concurrent bookings cannot both pass it.
// Reminder scheduling happens after commit and never fails the booking.
func (s *Service) Book(ctx context.Context, a *Appointment) error {
	if a.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if a.PatientID == uuid.Nil {
		return apperr.Validation("patient_id is required")
	}
	if a.StartTime.IsZero() || a.EndTime.IsZero() {
		return apperr.Validation("start_time and end_time are required")
	}
	if !a.StartTime.Before(a.EndTime) {
		return apperr.Validation("start_time must be before end_time")
	}
	if !a.StartTime.After(time.Now()) {
		return apperr.Validation("start_time must be in the future")
	}

	err := s.appointments.InTx(ctx, func(tx BookingTx) error {
		ok, err := tx.DoctorActive(ctx, a.DoctorID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("doctor %s not found or inactive", a.DoctorID)
		}
		ok, err = tx.PatientActive(ctx, a.PatientID)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("patient %s not found or inactive", a.PatientID)
		}

		ok, err = tx.AnyAvailabilityOverlap(ctx, a.DoctorID, a.StartTime, a.EndTime)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Conflict("requested time is outside the doctor's availability")
		}

		locked, err := tx.LockScheduledOverlaps(ctx, a.DoctorID, a.StartTime, a.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if locked > 0 {
			return apperr.Conflict("the doctor already has an appointment in this time range")
		}
		overlap, err := tx.AnyScheduledOverlap(ctx, a.DoctorID, a.StartTime, a.EndTime, uuid.Nil)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict("the doctor already has an appointment in this time range")
		}

		a.Status = StatusScheduled
		if err := tx.Insert(ctx, a); err != nil {
			if db.IsConflict(err) {
				return apperr.Conflict("the doctor already has an appointment in this time range")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return txErr(err)
	}

	if err := s.reminders.Schedule(ctx, a.ID, a.StartTime); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", a.ID.String()).
			Msg("failed to schedule reminders")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("appointment %s not found", id)
		}
		return nil, err
	}
	return a, nil
}

// Cancel moves a scheduled appointment to cancelled. The status check
// runs before the capability check: cancelling an already-terminal
// appointment is a validation error for every caller.
func (s *Service) Cancel(ctx context.Context, id, actorID uuid.UUID, role Role, reason string) (*Appointment, error) {
	reason = strings.TrimSpace(reason)

	var appt *Appointment
	err := s.appointments.InTx(ctx, func(tx BookingTx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("appointment %s not found", id)
			}
			return err
		}
		if appt.Status != StatusScheduled {
			return apperr.Validation("only scheduled appointments can be cancelled, current status is %s", appt.Status)
		}
		if !CanModify(role, actorID, appt) {
			return apperr.Authorization("you are not allowed to modify this appointment")
		}

		appt.Status = StatusCancelled
		if reason != "" {
			note := "Cancellation reason: " + reason
			if appt.Notes != nil && *appt.Notes != "" {
				note = *appt.Notes + "\n" + note
			}
			appt.Notes = &note
		}
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return nil, txErr(err)
	}

	if err := s.reminders.Cancel(ctx, appt.ID, reason); err != nil {
		s.logger.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to cancel reminders")
	}
	return appt, nil
}

// Update applies a partial patch to a scheduled appointment. Changing
// either endpoint re-runs the full availability and overlap validation
// against the new interval, ignoring the appointment's own row.
func (s *Service) Update(ctx context.Context, id, actorID uuid.UUID, role Role, patch UpdatePatch) (*Appointment, error) {
	var (
		appt         *Appointment
		oldStart     time.Time
		timesChanged bool
		cancelled    bool
	)
	err := s.appointments.InTx(ctx, func(tx BookingTx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("appointment %s not found", id)
			}
			return err
		}
		if !CanModify(role, actorID, appt) {
			return apperr.Authorization("you are not allowed to modify this appointment")
		}
		if appt.Status.Terminal() {
			return apperr.Validation("cannot modify a %s appointment", appt.Status)
		}
		oldStart = appt.StartTime

		newStart, newEnd := appt.StartTime, appt.EndTime
		if patch.StartTime != nil {
			newStart = *patch.StartTime
			timesChanged = true
		}
		if patch.EndTime != nil {
			newEnd = *patch.EndTime
			timesChanged = true
		}
		if timesChanged {
			if !newStart.Before(newEnd) {
				return apperr.Validation("start_time must be before end_time")
			}
			ok, err := tx.AnyAvailabilityOverlap(ctx, appt.DoctorID, newStart, newEnd)
			if err != nil {
				return err
			}
			if !ok {
				return apperr.Conflict("requested time is outside the doctor's availability")
			}
			locked, err := tx.LockScheduledOverlaps(ctx, appt.DoctorID, newStart, newEnd, appt.ID)
			if err != nil {
				return err
			}
			if locked > 0 {
				return apperr.Conflict("the doctor already has an appointment in this time range")
			}
			overlap, err := tx.AnyScheduledOverlap(ctx, appt.DoctorID, newStart, newEnd, appt.ID)
			if err != nil {
				return err
			}
			if overlap {
				return apperr.Conflict("the doctor already has an appointment in this time range")
			}
			appt.StartTime, appt.EndTime = newStart, newEnd
		}

		if patch.Status != nil {
			st, err := ParseStatus(*patch.Status)
			if err != nil {
				return apperr.Validation("invalid status %q", *patch.Status)
			}
			appt.Status = st
			cancelled = st == StatusCancelled
		}
		if patch.Notes != nil {
			appt.Notes = patch.Notes
		}

		if err := tx.Update(ctx, appt); err != nil {
			if db.IsConflict(err) {
				return apperr.Conflict("the doctor already has an appointment in this time range")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}

	switch {
	case cancelled:
		if err := s.reminders.Cancel(ctx, appt.ID, "appointment cancelled"); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to cancel reminders")
		}
	case timesChanged:
		if err := s.reminders.Reschedule(ctx, appt.ID, oldStart, appt.StartTime); err != nil {
			s.logger.Warn().Err(err).
				Str("appointment_id", appt.ID.String()).
				Msg("failed to reschedule reminders")
		}
	}
	return appt, nil
}

func (s *Service) Complete(ctx context.Context, id, actorID uuid.UUID, role Role) (*Appointment, error) {
	var appt *Appointment
	err := s.appointments.InTx(ctx, func(tx BookingTx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("appointment %s not found", id)
			}
			return err
		}
		if appt.Status != StatusScheduled {
			return apperr.Validation("only scheduled appointments can be completed, current status is %s", appt.Status)
		}
		if !CanModify(role, actorID, appt) {
			return apperr.Authorization("you are not allowed to modify this appointment")
		}
		appt.Status = StatusCompleted
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return nil, txErr(err)
	}
	return appt, nil
}

// MarkNoShow records that the patient did not attend. Unlike the other
// lifecycle transitions, patients cannot report their own no-show.
func (s *Service) MarkNoShow(ctx context.Context, id, actorID uuid.UUID, role Role) (*Appointment, error) {
	var appt *Appointment
	err := s.appointments.InTx(ctx, func(tx BookingTx) error {
		var err error
		appt, err = tx.GetForUpdate(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperr.NotFound("appointment %s not found", id)
			}
			return err
		}
		if appt.Status != StatusScheduled {
			return apperr.Validation("only scheduled appointments can be marked as a no-show, current status is %s", appt.Status)
		}
		if role != RoleAdmin && !(role == RoleDoctor && appt.DoctorID == actorID) {
			return apperr.Authorization("only the doctor or an administrator can record a no-show")
		}
		appt.Status = StatusNoShow
		return tx.Update(ctx, appt)
	})
	if err != nil {
		return nil, txErr(err)
	}
	return appt, nil
}

func (s *Service) List(ctx context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	if v, ok := params["status"]; ok && v != "" {
		st, err := ParseStatus(v)
		if err != nil {
			return nil, 0, apperr.Validation("invalid status %q", v)
		}
		params["status"] = string(st)
	}
	return s.appointments.Search(ctx, params, limit, offset)
}

// Statistics rolls up the appointments matching the doctor_id, from and
// to filters. Completion rate is the share of all matched appointments
// that completed; average duration covers completed appointments only.
func (s *Service) Statistics(ctx context.Context, params map[string]string) (*Statistics, error) {
	aggregates, err := s.appointments.AggregateByStatus(ctx, params)
	if err != nil {
		return nil, err
	}

	stats := &Statistics{StatusBreakdown: map[Status]int{}}
	var completedCount int
	var completedHours float64
	for _, agg := range aggregates {
		stats.TotalAppointments += agg.Count
		stats.StatusBreakdown[agg.Status] = agg.Count
		if agg.Status == StatusCompleted {
			completedCount = agg.Count
			completedHours = agg.Hours
		}
	}
	stats.TotalCompletedHours = round2(completedHours)
	if stats.TotalAppointments > 0 {
		stats.CompletionRate = round2(float64(completedCount) / float64(stats.TotalAppointments) * 100)
	}
	if completedCount > 0 {
		stats.AverageDurationHours = round2(completedHours / float64(completedCount))
	}
	return stats, nil
}

// txErr maps a serialization failure surfacing from commit to the same
// conflict callers see when the overlap checks fail outright.
func txErr(err error) error {
	if db.IsSerializationFailure(err) {
		return apperr.Conflict("the appointment could not be booked due to a concurrent change, please retry")
	}
	return err
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
