package availability

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/pkg/apperr"
)

type Service struct {
	windows  WindowRepository
	cache    Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

func NewService(windows WindowRepository, cache Cache, cacheTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{windows: windows, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// canManage allows admins to touch any doctor's windows and doctors to
// touch their own. Everyone else is rejected.
func canManage(role string, actorID, doctorID uuid.UUID) error {
	switch role {
	case "admin":
		return nil
	case "doctor":
		if actorID == doctorID {
			return nil
		}
		return apperr.Authorization("doctors can only manage their own availability")
	default:
		return apperr.Authorization("role %s cannot manage availability", role)
	}
}

func validateTimes(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return apperr.Validation("start_time and end_time are required")
	}
	if !start.Before(end) {
		return apperr.Validation("start_time must be before end_time")
	}
	return nil
}

func (s *Service) CreateWindow(ctx context.Context, role string, actorID uuid.UUID, w *AvailabilityWindow) error {
	if w.DoctorID == uuid.Nil {
		return apperr.Validation("doctor_id is required")
	}
	if err := validateTimes(w.StartTime, w.EndTime); err != nil {
		return err
	}
	if err := canManage(role, actorID, w.DoctorID); err != nil {
		return err
	}
	if err := s.windows.Create(ctx, w); err != nil {
		if db.IsForeignKeyViolation(err) {
			return apperr.NotFound("doctor %s not found", w.DoctorID)
		}
		return err
	}
	s.invalidateRange(ctx, w.DoctorID, w.StartTime, w.EndTime)
	return nil
}

func (s *Service) GetWindow(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	w, err := s.windows.GetByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, apperr.NotFound("availability window %s not found", id)
		}
		return nil, err
	}
	return w, nil
}

func (s *Service) UpdateWindow(ctx context.Context, role string, actorID, id uuid.UUID, start, end time.Time) (*AvailabilityWindow, error) {
	w, err := s.GetWindow(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := canManage(role, actorID, w.DoctorID); err != nil {
		return nil, err
	}
	if err := validateTimes(start, end); err != nil {
		return nil, err
	}
	oldStart, oldEnd := w.StartTime, w.EndTime
	w.StartTime, w.EndTime = start, end
	if err := s.windows.Update(ctx, w); err != nil {
		return nil, err
	}
	s.invalidateRange(ctx, w.DoctorID, oldStart, oldEnd)
	s.invalidateRange(ctx, w.DoctorID, start, end)
	return w, nil
}

func (s *Service) DeleteWindow(ctx context.Context, role string, actorID, id uuid.UUID) error {
	w, err := s.GetWindow(ctx, id)
	if err != nil {
		return err
	}
	if err := canManage(role, actorID, w.DoctorID); err != nil {
		return err
	}
	if err := s.windows.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidateRange(ctx, w.DoctorID, w.StartTime, w.EndTime)
	return nil
}

func (s *Service) ListWindows(ctx context.Context, doctorID uuid.UUID, from, to time.Time, limit, offset int) ([]*AvailabilityWindow, int, error) {
	if !from.Before(to) {
		return nil, 0, apperr.Validation("from must be before to")
	}
	return s.windows.ListByDoctor(ctx, doctorID, from, to, limit, offset)
}

// DaySlots lists a doctor's windows touching one UTC day. Results are
// cached per day; a failing cache degrades to a repository read.
func (s *Service) DaySlots(ctx context.Context, doctorID uuid.UUID, date time.Time) (*DaySlots, error) {
	day := date.UTC().Truncate(24 * time.Hour)
	key := cacheKey(doctorID, day)

	var cached DaySlots
	hit, err := s.cache.Get(ctx, key, &cached)
	if err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache read failed")
	} else if hit {
		return &cached, nil
	}

	windows, err := s.windows.ListOverlapping(ctx, doctorID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	out := &DaySlots{
		DoctorID: doctorID,
		Date:     day.Format("2006-01-02"),
		Slots:    make([]Slot, 0, len(windows)),
	}
	for _, w := range windows {
		out.Slots = append(out.Slots, Slot{StartTime: w.StartTime, EndTime: w.EndTime})
	}

	if err := s.cache.Set(ctx, key, out, s.cacheTTL); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("availability cache write failed")
	}
	return out, nil
}

// Summarize aggregates a doctor's windows over [from, to). ByDate counts
// windows by their UTC start date.
func (s *Service) Summarize(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (*Summary, error) {
	if !from.Before(to) {
		return nil, apperr.Validation("from must be before to")
	}
	windows, err := s.windows.ListOverlapping(ctx, doctorID, from, to)
	if err != nil {
		return nil, err
	}
	sum := &Summary{
		DoctorID: doctorID,
		ByDate:   make(map[string]int),
	}
	var hours float64
	for _, w := range windows {
		sum.TotalSlots++
		hours += w.EndTime.Sub(w.StartTime).Hours()
		sum.ByDate[w.StartTime.UTC().Format("2006-01-02")]++
	}
	sum.TotalHours = round2(hours)
	return sum, nil
}

func (s *Service) invalidateRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) {
	var keys []string
	for _, day := range daysCovered(start, end) {
		keys = append(keys, cacheKey(doctorID, day))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn().Err(err).Str("doctor_id", doctorID.String()).Msg("availability cache invalidation failed")
	}
}

func cacheKey(doctorID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("availability:%s:%s", doctorID, day.Format("20060102"))
}

// daysCovered returns every UTC day a [start, end) range touches. An end
// falling exactly on midnight does not extend into the next day.
func daysCovered(start, end time.Time) []time.Time {
	day := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Add(-time.Nanosecond).Truncate(24 * time.Hour)
	var days []time.Time
	for !day.After(last) {
		days = append(days, day)
		day = day.AddDate(0, 0, 1)
	}
	return days
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
