package booking

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/pkg/apperr"
)

// -- Mocks --

type mockWindow struct {
	doctorID uuid.UUID
	start    time.Time
	end      time.Time
}

// mockBookingRepo keeps the whole store in maps and gives InTx real
// rollback semantics: fn failures and injected commit errors restore
// the appointment state captured at transaction start.
type mockBookingRepo struct {
	doctors      map[uuid.UUID]bool
	patients     map[uuid.UUID]bool
	windows      []mockWindow
	appointments map[uuid.UUID]*Appointment

	insertErr error
	commitErr error
	lockCalls int
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{
		doctors:      make(map[uuid.UUID]bool),
		patients:     make(map[uuid.UUID]bool),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (m *mockBookingRepo) InTx(_ context.Context, fn func(tx BookingTx) error) error {
	backup := make(map[uuid.UUID]*Appointment, len(m.appointments))
	for id, a := range m.appointments {
		copied := *a
		backup[id] = &copied
	}
	if err := fn(&mockTx{repo: m}); err != nil {
		m.appointments = backup
		return err
	}
	if m.commitErr != nil {
		m.appointments = backup
		return m.commitErr
	}
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.appointments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (m *mockBookingRepo) Search(_ context.Context, params map[string]string, limit, offset int) ([]*Appointment, int, error) {
	matched := []*Appointment{}
	for _, a := range m.appointments {
		if !matchesFilters(a, params) {
			continue
		}
		copied := *a
		matched = append(matched, &copied)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})
	total := len(matched)
	if offset >= total {
		return []*Appointment{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *mockBookingRepo) AggregateByStatus(_ context.Context, params map[string]string) ([]StatusAggregate, error) {
	byStatus := map[Status]*StatusAggregate{}
	for _, a := range m.appointments {
		if !matchesFilters(a, params) {
			continue
		}
		agg, ok := byStatus[a.Status]
		if !ok {
			agg = &StatusAggregate{Status: a.Status}
			byStatus[a.Status] = agg
		}
		agg.Count++
		agg.Hours += a.EndTime.Sub(a.StartTime).Hours()
	}
	result := []StatusAggregate{}
	for _, agg := range byStatus {
		result = append(result, *agg)
	}
	return result, nil
}

func matchesFilters(a *Appointment, params map[string]string) bool {
	if v, ok := params["doctor_id"]; ok && v != "" && a.DoctorID.String() != v {
		return false
	}
	if v, ok := params["patient_id"]; ok && v != "" && a.PatientID.String() != v {
		return false
	}
	if v, ok := params["status"]; ok && v != "" && string(a.Status) != v {
		return false
	}
	if v, ok := params["from"]; ok && v != "" {
		from, _ := time.Parse(time.RFC3339, v)
		if a.StartTime.Before(from) {
			return false
		}
	}
	if v, ok := params["to"]; ok && v != "" {
		to, _ := time.Parse(time.RFC3339, v)
		if !a.StartTime.Before(to) {
			return false
		}
	}
	return true
}

type mockTx struct {
	repo *mockBookingRepo
}

func (t *mockTx) DoctorActive(_ context.Context, doctorID uuid.UUID) (bool, error) {
	return t.repo.doctors[doctorID], nil
}

func (t *mockTx) PatientActive(_ context.Context, patientID uuid.UUID) (bool, error) {
	return t.repo.patients[patientID], nil
}

func (t *mockTx) AnyAvailabilityOverlap(_ context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	for _, w := range t.repo.windows {
		if w.doctorID == doctorID && Overlaps(w.start, w.end, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) LockScheduledOverlaps(_ context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (int, error) {
	t.repo.lockCalls++
	locked := 0
	for _, a := range t.repo.appointments {
		if a.DoctorID == doctorID && a.Status == StatusScheduled && a.ID != excludeID &&
			Overlaps(a.StartTime, a.EndTime, start, end) {
			locked++
		}
	}
	return locked, nil
}

func (t *mockTx) AnyScheduledOverlap(_ context.Context, doctorID uuid.UUID, start, end time.Time, excludeID uuid.UUID) (bool, error) {
	for _, a := range t.repo.appointments {
		if a.DoctorID == doctorID && a.Status == StatusScheduled && a.ID != excludeID &&
			Overlaps(a.StartTime, a.EndTime, start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *mockTx) GetForUpdate(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.repo.appointments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	copied := *a
	return &copied, nil
}

func (t *mockTx) Insert(_ context.Context, a *Appointment) error {
	if t.repo.insertErr != nil {
		return t.repo.insertErr
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	copied := *a
	t.repo.appointments[a.ID] = &copied
	return nil
}

func (t *mockTx) Update(_ context.Context, a *Appointment) error {
	a.UpdatedAt = time.Now()
	copied := *a
	t.repo.appointments[a.ID] = &copied
	return nil
}

type mockReminders struct {
	scheduled   []uuid.UUID
	cancelled   []uuid.UUID
	rescheduled []uuid.UUID
	scheduleErr error
}

func (m *mockReminders) Schedule(_ context.Context, id uuid.UUID, _ time.Time) error {
	if m.scheduleErr != nil {
		return m.scheduleErr
	}
	m.scheduled = append(m.scheduled, id)
	return nil
}

func (m *mockReminders) Cancel(_ context.Context, id uuid.UUID, _ string) error {
	m.cancelled = append(m.cancelled, id)
	return nil
}

func (m *mockReminders) Reschedule(_ context.Context, id uuid.UUID, _, _ time.Time) error {
	m.rescheduled = append(m.rescheduled, id)
	return nil
}

// -- Helpers --

var testDay = time.Date(2030, 6, 2, 0, 0, 0, 0, time.UTC)

func at(hour, min int) time.Time {
	return testDay.Add(time.Duration(hour)*time.Hour + time.Duration(min)*time.Minute)
}

func newTestService() (*Service, *mockBookingRepo, *mockReminders) {
	repo := newMockBookingRepo()
	rem := &mockReminders{}
	return NewService(repo, rem, zerolog.Nop()), repo, rem
}

// seedParticipants registers an active doctor with a 09:00-17:00 window
// on testDay and an active patient.
func seedParticipants(repo *mockBookingRepo) (doctorID, patientID uuid.UUID) {
	doctorID, patientID = uuid.New(), uuid.New()
	repo.doctors[doctorID] = true
	repo.patients[patientID] = true
	repo.windows = append(repo.windows, mockWindow{doctorID: doctorID, start: at(9, 0), end: at(17, 0)})
	return doctorID, patientID
}

func seedAppointment(repo *mockBookingRepo, doctorID, patientID uuid.UUID, start, end time.Time, status Status) *Appointment {
	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		StartTime: start,
		EndTime:   end,
		Status:    status,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	repo.appointments[a.ID] = a
	return a
}

// -- Book --

func TestBookCreatesScheduledAppointment(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)

	a := &Appointment{DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30)}
	if err := svc.Book(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.ID == uuid.Nil {
		t.Fatal("expected id to be assigned")
	}
	if a.Status != StatusScheduled {
		t.Fatalf("expected status scheduled, got %s", a.Status)
	}
	if a.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
	if _, ok := repo.appointments[a.ID]; !ok {
		t.Fatal("expected appointment to be stored")
	}
	if repo.lockCalls != 1 {
		t.Fatalf("expected 1 lock call, got %d", repo.lockCalls)
	}
	if len(rem.scheduled) != 1 || rem.scheduled[0] != a.ID {
		t.Fatalf("expected reminders scheduled for %s, got %v", a.ID, rem.scheduled)
	}
}

func TestBookRequiresParticipants(t *testing.T) {
	svc, repo, _ := newTestService()
	_, patientID := seedParticipants(repo)

	err := svc.Book(context.Background(), &Appointment{PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30)})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing doctor, got %v", err)
	}

	doctorID, _ := seedParticipants(repo)
	err = svc.Book(context.Background(), &Appointment{DoctorID: doctorID, StartTime: at(10, 0), EndTime: at(10, 30)})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for missing patient, got %v", err)
	}
}

func TestBookRejectsInvertedTimes(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(11, 0), EndTime: at(10, 0),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	err = svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 0),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for zero-length interval, got %v", err)
	}
}

func TestBookRejectsPastStart(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	past := time.Now().Add(-time.Hour)
	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: past, EndTime: past.Add(30 * time.Minute),
	})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(repo.appointments) != 0 {
		t.Fatal("expected no appointment to be stored")
	}
}

func TestBookUnknownOrInactiveParticipants(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: uuid.New(), PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown doctor, got %v", err)
	}

	repo.doctors[doctorID] = false
	err = svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for inactive doctor, got %v", err)
	}
	repo.doctors[doctorID] = true

	err = svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: uuid.New(), StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for unknown patient, got %v", err)
	}

	repo.patients[patientID] = false
	err = svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found for inactive patient, got %v", err)
	}
}

func TestBookOutsideAvailability(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(18, 0), EndTime: at(18, 30),
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(repo.appointments) != 0 {
		t.Fatal("expected no appointment to be stored")
	}
}

// Touching any availability window is enough; the appointment does not
// need to be fully contained in one.
func TestBookPartialWindowOverlapSuffices(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := uuid.New(), uuid.New()
	repo.doctors[doctorID] = true
	repo.patients[patientID] = true
	repo.windows = append(repo.windows, mockWindow{doctorID: doctorID, start: at(9, 0), end: at(10, 0)})

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(9, 30), EndTime: at(10, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBookOverlapConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	first := &Appointment{DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30)}
	if err := svc.Book(context.Background(), first); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	overlapping := &Appointment{DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 15), EndTime: at(10, 45)}
	err := svc.Book(context.Background(), overlapping)
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	backToBack := &Appointment{DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 30), EndTime: at(11, 0)}
	if err := svc.Book(context.Background(), backToBack); err != nil {
		t.Fatalf("unexpected error for back-to-back booking: %v", err)
	}
	if len(repo.appointments) != 2 {
		t.Fatalf("expected 2 appointments, got %d", len(repo.appointments))
	}
}

func TestBookIgnoresCancelledOverlap(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusCancelled)

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBookDifferentDoctorsDoNotConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorA, patientID := seedParticipants(repo)
	doctorB, _ := seedParticipants(repo)

	if err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorA, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorB, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBookInsertConflictRollsBack(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	repo.insertErr = &pgconn.PgError{Code: "23P01"}

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(repo.appointments) != 0 {
		t.Fatal("expected rollback to leave no appointment")
	}
	if len(rem.scheduled) != 0 {
		t.Fatal("expected no reminders after failed booking")
	}
}

func TestBookSerializationFailureMapsToConflict(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	repo.commitErr = &pgconn.PgError{Code: "40001"}

	err := svc.Book(context.Background(), &Appointment{
		DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30),
	})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if len(repo.appointments) != 0 {
		t.Fatal("expected rollback to leave no appointment")
	}
	if len(rem.scheduled) != 0 {
		t.Fatal("expected no reminders after failed commit")
	}
}

func TestBookReminderFailureDoesNotFailBooking(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	rem.scheduleErr = context.DeadlineExceeded

	a := &Appointment{DoctorID: doctorID, PatientID: patientID, StartTime: at(10, 0), EndTime: at(10, 30)}
	if err := svc.Book(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := repo.appointments[a.ID]; !ok {
		t.Fatal("expected appointment to be stored despite reminder failure")
	}
}

// -- Cancel --

func TestCancelByPatient(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	got, err := svc.Cancel(context.Background(), a.ID, patientID, RolePatient, "feeling better")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected status cancelled, got %s", got.Status)
	}
	if got.Notes == nil || *got.Notes != "Cancellation reason: feeling better" {
		t.Fatalf("expected cancellation note, got %v", got.Notes)
	}
	if repo.appointments[a.ID].Status != StatusCancelled {
		t.Fatal("expected stored appointment to be cancelled")
	}
	if len(rem.cancelled) != 1 || rem.cancelled[0] != a.ID {
		t.Fatalf("expected reminder cancellation for %s, got %v", a.ID, rem.cancelled)
	}
}

func TestCancelAppendsReasonToNotes(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)
	notes := "bring prior records"
	a.Notes = &notes

	got, err := svc.Cancel(context.Background(), a.ID, patientID, RolePatient, "conflict at work")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "bring prior records\nCancellation reason: conflict at work"
	if got.Notes == nil || *got.Notes != want {
		t.Fatalf("expected %q, got %v", want, got.Notes)
	}
}

func TestCancelWithoutReasonLeavesNotes(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	got, err := svc.Cancel(context.Background(), a.ID, patientID, RolePatient, "  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Notes != nil {
		t.Fatalf("expected notes to stay empty, got %q", *got.Notes)
	}
}

func TestCancelAlreadyCancelled(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusCancelled)

	_, err := svc.Cancel(context.Background(), a.ID, patientID, RolePatient, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// The status check precedes the capability check, so a terminal
// appointment yields a validation error even for a caller with no
// rights over it.
func TestCancelStatusCheckedBeforeCapability(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusCompleted)

	_, err := svc.Cancel(context.Background(), a.ID, uuid.New(), RolePatient, "")
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelUnauthorized(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	_, err := svc.Cancel(context.Background(), a.ID, uuid.New(), RolePatient, "")
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
	if repo.appointments[a.ID].Status != StatusScheduled {
		t.Fatal("expected appointment to stay scheduled")
	}
	if len(rem.cancelled) != 0 {
		t.Fatal("expected no reminder cancellation")
	}
}

func TestCancelByDoctorAndAdmin(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)
	if _, err := svc.Cancel(context.Background(), a.ID, doctorID, RoleDoctor, ""); err != nil {
		t.Fatalf("unexpected error for owning doctor: %v", err)
	}

	b := seedAppointment(repo, doctorID, patientID, at(11, 0), at(11, 30), StatusScheduled)
	if _, err := svc.Cancel(context.Background(), b.ID, uuid.New(), RoleAdmin, ""); err != nil {
		t.Fatalf("unexpected error for admin: %v", err)
	}
}

func TestCancelNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Cancel(context.Background(), uuid.New(), uuid.New(), RoleAdmin, "")
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// -- Update --

func TestUpdateNotes(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	notes := "patient asked for an interpreter"
	got, err := svc.Update(context.Background(), a.ID, patientID, RolePatient, UpdatePatch{Notes: &notes})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Notes == nil || *got.Notes != notes {
		t.Fatalf("expected notes %q, got %v", notes, got.Notes)
	}
	if len(rem.rescheduled) != 0 || len(rem.cancelled) != 0 {
		t.Fatal("expected reminders untouched for a notes-only update")
	}
}

func TestUpdateTimesReschedulesReminders(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	newStart, newEnd := at(14, 0), at(14, 30)
	got, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{StartTime: &newStart, EndTime: &newEnd})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.StartTime.Equal(newStart) || !got.EndTime.Equal(newEnd) {
		t.Fatalf("expected %v-%v, got %v-%v", newStart, newEnd, got.StartTime, got.EndTime)
	}
	if !repo.appointments[a.ID].StartTime.Equal(newStart) {
		t.Fatal("expected stored appointment to move")
	}
	if len(rem.rescheduled) != 1 || rem.rescheduled[0] != a.ID {
		t.Fatalf("expected reminder reschedule for %s, got %v", a.ID, rem.rescheduled)
	}
}

// Shifting an appointment within its own slot must not conflict with
// the row being moved.
func TestUpdateTimesIgnoreOwnRow(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	newStart, newEnd := at(10, 15), at(10, 45)
	if _, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{StartTime: &newStart, EndTime: &newEnd}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUpdateTimesConflict(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)
	seedAppointment(repo, doctorID, patientID, at(11, 0), at(11, 30), StatusScheduled)

	newStart, newEnd := at(11, 15), at(11, 45)
	_, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{StartTime: &newStart, EndTime: &newEnd})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if !repo.appointments[a.ID].StartTime.Equal(at(10, 0)) {
		t.Fatal("expected appointment to stay at its original time")
	}
}

func TestUpdateTimesOutsideAvailability(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	newStart, newEnd := at(18, 0), at(18, 30)
	_, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{StartTime: &newStart, EndTime: &newEnd})
	if !apperr.IsKind(err, apperr.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestUpdateInvertedTimes(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	newStart := at(11, 0)
	newEnd := at(10, 0)
	_, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{StartTime: &newStart, EndTime: &newEnd})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// Moving only one endpoint still re-validates the resulting interval.
func TestUpdateSingleEndpoint(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	newEnd := at(9, 30)
	_, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{EndTime: &newEnd})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	newEnd = at(11, 0)
	got, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{EndTime: &newEnd})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.EndTime.Equal(newEnd) {
		t.Fatalf("expected end %v, got %v", newEnd, got.EndTime)
	}
}

func TestUpdateTerminalRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusCompleted)

	notes := "late paperwork"
	_, err := svc.Update(context.Background(), a.ID, doctorID, RoleDoctor, UpdatePatch{Notes: &notes})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

// Update checks the caller's rights before the status, so a foreign
// caller learns nothing about a terminal appointment's state.
func TestUpdateCapabilityCheckedFirst(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusCompleted)

	notes := "x"
	_, err := svc.Update(context.Background(), a.ID, uuid.New(), RolePatient, UpdatePatch{Notes: &notes})
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestUpdateStatusToCancelled(t *testing.T) {
	svc, repo, rem := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	status := "cancelled"
	got, err := svc.Update(context.Background(), a.ID, patientID, RolePatient, UpdatePatch{Status: &status})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
	if len(rem.cancelled) != 1 || rem.cancelled[0] != a.ID {
		t.Fatalf("expected reminder cancellation, got %v", rem.cancelled)
	}
}

func TestUpdateInvalidStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	status := "rescheduled"
	_, err := svc.Update(context.Background(), a.ID, patientID, RolePatient, UpdatePatch{Status: &status})
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	notes := "x"
	_, err := svc.Update(context.Background(), uuid.New(), uuid.New(), RoleAdmin, UpdatePatch{Notes: &notes})
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

// -- Complete and no-show --

func TestComplete(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	got, err := svc.Complete(context.Background(), a.ID, doctorID, RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
}

func TestCompleteNonScheduled(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusNoShow)

	_, err := svc.Complete(context.Background(), a.ID, doctorID, RoleDoctor)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestMarkNoShow(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)
	got, err := svc.MarkNoShow(context.Background(), a.ID, doctorID, RoleDoctor)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != StatusNoShow {
		t.Fatalf("expected no_show, got %s", got.Status)
	}

	b := seedAppointment(repo, doctorID, patientID, at(11, 0), at(11, 30), StatusScheduled)
	if _, err := svc.MarkNoShow(context.Background(), b.ID, uuid.New(), RoleAdmin); err != nil {
		t.Fatalf("unexpected error for admin: %v", err)
	}
}

func TestMarkNoShowPatientRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	_, err := svc.MarkNoShow(context.Background(), a.ID, patientID, RolePatient)
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

func TestMarkNoShowOtherDoctorRejected(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	a := seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	_, err := svc.MarkNoShow(context.Background(), a.ID, uuid.New(), RoleDoctor)
	if !apperr.IsKind(err, apperr.KindAuthorization) {
		t.Fatalf("expected authorization error, got %v", err)
	}
}

// -- Get, List, Statistics --

func TestGetNotFound(t *testing.T) {
	svc, _, _ := newTestService()
	_, err := svc.Get(context.Background(), uuid.New())
	if !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListFiltersAndOrders(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorA, patientID := seedParticipants(repo)
	doctorB, _ := seedParticipants(repo)

	seedAppointment(repo, doctorA, patientID, at(10, 0), at(10, 30), StatusScheduled)
	seedAppointment(repo, doctorA, patientID, at(14, 0), at(14, 30), StatusCancelled)
	seedAppointment(repo, doctorB, patientID, at(12, 0), at(12, 30), StatusScheduled)

	items, total, err := svc.List(context.Background(), map[string]string{"doctor_id": doctorA.String()}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Fatalf("expected 2 results, got total=%d len=%d", total, len(items))
	}
	if !items[0].StartTime.After(items[1].StartTime) {
		t.Fatal("expected descending start time order")
	}

	items, total, err = svc.List(context.Background(), map[string]string{"status": "scheduled"}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 scheduled, got %d", total)
	}
	for _, a := range items {
		if a.Status != StatusScheduled {
			t.Fatalf("unexpected status %s", a.Status)
		}
	}
}

func TestListNormalizesStatus(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)
	seedAppointment(repo, doctorID, patientID, at(10, 0), at(10, 30), StatusScheduled)

	_, total, err := svc.List(context.Background(), map[string]string{"status": "SCHEDULED"}, 50, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 {
		t.Fatalf("expected 1 result, got %d", total)
	}
}

func TestListInvalidStatus(t *testing.T) {
	svc, _, _ := newTestService()
	_, _, err := svc.List(context.Background(), map[string]string{"status": "waitlisted"}, 50, 0)
	if !apperr.IsKind(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestStatistics(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorID, patientID := seedParticipants(repo)

	seedAppointment(repo, doctorID, patientID, at(9, 0), at(10, 0), StatusCompleted)
	seedAppointment(repo, doctorID, patientID, at(11, 0), at(12, 0), StatusCompleted)
	seedAppointment(repo, doctorID, patientID, at(13, 0), at(13, 30), StatusCancelled)
	seedAppointment(repo, doctorID, patientID, at(14, 0), at(14, 30), StatusScheduled)

	stats, err := svc.Statistics(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalAppointments != 4 {
		t.Fatalf("expected 4 total, got %d", stats.TotalAppointments)
	}
	if stats.StatusBreakdown[StatusCompleted] != 2 ||
		stats.StatusBreakdown[StatusCancelled] != 1 ||
		stats.StatusBreakdown[StatusScheduled] != 1 {
		t.Fatalf("unexpected breakdown: %v", stats.StatusBreakdown)
	}
	if stats.TotalCompletedHours != 2.0 {
		t.Fatalf("expected 2.0 completed hours, got %v", stats.TotalCompletedHours)
	}
	if stats.CompletionRate != 50.0 {
		t.Fatalf("expected completion rate 50.0, got %v", stats.CompletionRate)
	}
	if stats.AverageDurationHours != 1.0 {
		t.Fatalf("expected average duration 1.0, got %v", stats.AverageDurationHours)
	}
}

func TestStatisticsEmpty(t *testing.T) {
	svc, _, _ := newTestService()
	stats, err := svc.Statistics(context.Background(), map[string]string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalAppointments != 0 || stats.CompletionRate != 0 ||
		stats.TotalCompletedHours != 0 || stats.AverageDurationHours != 0 {
		t.Fatalf("expected zeroed statistics, got %+v", stats)
	}
	if stats.StatusBreakdown == nil {
		t.Fatal("expected empty breakdown map, got nil")
	}
}

func TestStatisticsFiltersByDoctor(t *testing.T) {
	svc, repo, _ := newTestService()
	doctorA, patientID := seedParticipants(repo)
	doctorB, _ := seedParticipants(repo)

	seedAppointment(repo, doctorA, patientID, at(9, 0), at(10, 0), StatusCompleted)
	seedAppointment(repo, doctorB, patientID, at(9, 0), at(10, 0), StatusCompleted)

	stats, err := svc.Statistics(context.Background(), map[string]string{"doctor_id": doctorA.String()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stats.TotalAppointments != 1 {
		t.Fatalf("expected 1 appointment, got %d", stats.TotalAppointments)
	}
}
