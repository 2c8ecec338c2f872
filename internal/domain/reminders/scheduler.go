// Package reminders turns committed bookings into deferred notification
// deliveries. Scheduling enqueues one task per template and channel;
// the delivery worker re-reads the appointment when the task fires and
// drops anything that no longer applies. Enqueued tasks are never
// revoked, so every guarantee here is at-least-once.
package reminders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/internal/platform/jobs"
	"github.com/medsched/medsched/internal/platform/notification"
)

// TaskTypeDeliver is the queue task type for a single reminder delivery.
const TaskTypeDeliver = "reminder:deliver"

// DeliverPayload is the wire form of one delivery task. StartTime
// records the appointment start the task was scheduled against so the
// worker can drop reminders made stale by a reschedule.
type DeliverPayload struct {
	AppointmentID uuid.UUID            `json:"appointment_id"`
	Template      string               `json:"template"`
	Channel       notification.Channel `json:"channel"`
	StartTime     time.Time            `json:"start_time"`
}

// ReminderDescriptor describes one enqueued delivery.
type ReminderDescriptor struct {
	Handle    string               `json:"handle"`
	Template  string               `json:"template"`
	Channel   notification.Channel `json:"channel"`
	DeliverAt time.Time            `json:"deliver_at"`
}

// Config controls which reminders are scheduled. Offsets maps reminder
// templates to how long before the appointment start each is delivered.
type Config struct {
	Offsets  map[string]time.Duration
	Channels []notification.Channel
}

func DefaultConfig() Config {
	return Config{
		Offsets: map[string]time.Duration{
			TemplateReminder24h: 24 * time.Hour,
			TemplateReminder2h:  2 * time.Hour,
			TemplateReminder30m: 30 * time.Minute,
		},
		Channels: []notification.Channel{notification.ChannelEmail, notification.ChannelSMS},
	}
}

type Scheduler struct {
	dispatcher jobs.Dispatcher
	cfg        Config
	logger     zerolog.Logger
}

func NewScheduler(dispatcher jobs.Dispatcher, cfg Config, logger zerolog.Logger) *Scheduler {
	return &Scheduler{dispatcher: dispatcher, cfg: cfg, logger: logger}
}

// Schedule enqueues an immediate confirmation plus one reminder per
// configured offset that still lies in the future, each fanned out over
// the given channels (the configured defaults when none are given).
func (s *Scheduler) Schedule(ctx context.Context, appointmentID uuid.UUID, start time.Time, channels ...notification.Channel) ([]ReminderDescriptor, error) {
	if len(channels) == 0 {
		channels = s.cfg.Channels
	}

	descriptors, err := s.enqueue(ctx, appointmentID, TemplateConfirmation, start, time.Now(), channels)
	if err != nil {
		return descriptors, err
	}
	offsets, err := s.scheduleOffsets(ctx, appointmentID, start, channels)
	descriptors = append(descriptors, offsets...)
	if err != nil {
		return descriptors, err
	}

	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Time("start", start).
		Int("deliveries", len(descriptors)).
		Msg("reminders scheduled")
	return descriptors, nil
}

// Cancel notifies the patient that the appointment was cancelled.
// Already-enqueued reminder deliveries are not revoked; the worker
// skips them once the appointment is no longer scheduled.
func (s *Scheduler) Cancel(ctx context.Context, appointmentID uuid.UUID, reason string) error {
	_, err := s.enqueue(ctx, appointmentID, TemplateCancellation, time.Time{}, time.Now(), s.cfg.Channels)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Str("reason", reason).
		Msg("cancellation notice enqueued, pending reminders left to lapse")
	return nil
}

// Reschedule notifies the patient of the new time and schedules fresh
// reminders against it. Reminders targeting the old start stay in the
// queue; the worker drops them when the stored start no longer matches.
func (s *Scheduler) Reschedule(ctx context.Context, appointmentID uuid.UUID, oldStart, newStart time.Time) error {
	if _, err := s.enqueue(ctx, appointmentID, TemplateRescheduled, newStart, time.Now(), s.cfg.Channels); err != nil {
		return err
	}
	if _, err := s.scheduleOffsets(ctx, appointmentID, newStart, s.cfg.Channels); err != nil {
		return err
	}
	s.logger.Info().
		Str("appointment_id", appointmentID.String()).
		Time("old_start", oldStart).
		Time("new_start", newStart).
		Msg("reminders rescheduled")
	return nil
}

func (s *Scheduler) scheduleOffsets(ctx context.Context, appointmentID uuid.UUID, start time.Time, channels []notification.Channel) ([]ReminderDescriptor, error) {
	now := time.Now()
	descriptors := []ReminderDescriptor{}
	for template, offset := range s.cfg.Offsets {
		deliverAt := start.Add(-offset)
		if !deliverAt.After(now) {
			continue
		}
		batch, err := s.enqueue(ctx, appointmentID, template, start, deliverAt, channels)
		descriptors = append(descriptors, batch...)
		if err != nil {
			return descriptors, err
		}
	}
	return descriptors, nil
}

func (s *Scheduler) enqueue(ctx context.Context, appointmentID uuid.UUID, template string, start, deliverAt time.Time, channels []notification.Channel) ([]ReminderDescriptor, error) {
	descriptors := make([]ReminderDescriptor, 0, len(channels))
	for _, ch := range channels {
		payload := DeliverPayload{
			AppointmentID: appointmentID,
			Template:      template,
			Channel:       ch,
			StartTime:     start,
		}
		handle, err := s.dispatcher.Enqueue(ctx, TaskTypeDeliver, payload, deliverAt)
		if err != nil {
			return descriptors, err
		}
		descriptors = append(descriptors, ReminderDescriptor{
			Handle:    handle,
			Template:  template,
			Channel:   ch,
			DeliverAt: deliverAt,
		})
	}
	return descriptors, nil
}
