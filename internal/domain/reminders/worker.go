package reminders

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/medsched/medsched/internal/platform/db"
	"github.com/medsched/medsched/internal/platform/jobs"
	"github.com/medsched/medsched/internal/platform/notification"
)

// AppointmentInfo is the appointment state a delivery needs: current
// times and status plus the participant names and contact details the
// templates render.
type AppointmentInfo struct {
	ID           uuid.UUID
	StartTime    time.Time
	EndTime      time.Time
	Scheduled    bool
	DoctorName   string
	PatientName  string
	PatientEmail string
	PatientPhone string
}

// AppointmentSource loads appointment state at delivery time.
type AppointmentSource interface {
	Appointment(ctx context.Context, id uuid.UUID) (*AppointmentInfo, error)
}

// Worker consumes reminder delivery tasks. A nil return acknowledges
// the task; reminders that no longer apply are acknowledged without
// sending, while transient failures return an error so the queue
// retries them.
type Worker struct {
	source    AppointmentSource
	templates *notification.TemplateEngine
	notifier  *notification.Manager
	logger    zerolog.Logger
}

func NewWorker(source AppointmentSource, templates *notification.TemplateEngine, notifier *notification.Manager, logger zerolog.Logger) *Worker {
	return &Worker{source: source, templates: templates, notifier: notifier, logger: logger}
}

// Register attaches the worker's handlers to the queue server.
func (w *Worker) Register(srv *jobs.Server) {
	srv.HandleFunc(TaskTypeDeliver, w.HandleDeliver)
}

func (w *Worker) HandleDeliver(ctx context.Context, task *asynq.Task) error {
	var p DeliverPayload
	if err := json.Unmarshal(task.Payload(), &p); err != nil {
		return fmt.Errorf("decode %s payload: %w", TaskTypeDeliver, err)
	}

	info, err := w.source.Appointment(ctx, p.AppointmentID)
	if err != nil {
		if db.IsNotFound(err) {
			w.logger.Warn().
				Str("appointment_id", p.AppointmentID.String()).
				Str("template", p.Template).
				Msg("appointment not found, dropping reminder")
			return nil
		}
		return err
	}

	if reason := skipReason(p, info); reason != "" {
		w.logger.Info().
			Str("appointment_id", p.AppointmentID.String()).
			Str("template", p.Template).
			Str("reason", reason).
			Msg("reminder skipped")
		return nil
	}

	subject, body, err := w.templates.Render(p.Template, templateData(info))
	if err != nil {
		return err
	}

	recipient := info.PatientEmail
	if p.Channel == notification.ChannelSMS || p.Channel == notification.ChannelPhone {
		if info.PatientPhone == "" {
			w.logger.Info().
				Str("appointment_id", p.AppointmentID.String()).
				Str("channel", string(p.Channel)).
				Msg("patient has no phone on file, reminder skipped")
			return nil
		}
		recipient = info.PatientPhone
	}

	if err := w.notifier.Send(ctx, p.Channel, recipient, subject, body); err != nil {
		return err
	}
	w.logger.Info().
		Str("appointment_id", p.AppointmentID.String()).
		Str("template", p.Template).
		Str("channel", string(p.Channel)).
		Msg("reminder delivered")
	return nil
}

// skipReason decides whether a delivery still applies. Reminder
// templates require the appointment to be scheduled with the start time
// they were enqueued against; the cancellation notice always fires, and
// the reschedule notice fires while the appointment remains scheduled.
func skipReason(p DeliverPayload, info *AppointmentInfo) string {
	switch p.Template {
	case TemplateCancellation:
		return ""
	case TemplateRescheduled:
		if !info.Scheduled {
			return "appointment no longer scheduled"
		}
		return ""
	default:
		if !info.Scheduled {
			return "appointment no longer scheduled"
		}
		if !p.StartTime.IsZero() && !p.StartTime.Equal(info.StartTime) {
			return "appointment start changed since scheduling"
		}
		return ""
	}
}

func templateData(info *AppointmentInfo) map[string]string {
	return map[string]string{
		"patient_name": info.PatientName,
		"doctor_name":  info.DoctorName,
		"date":         info.StartTime.Format("Monday, January 2"),
		"start_time":   info.StartTime.Format("15:04"),
		"end_time":     info.EndTime.Format("15:04"),
	}
}
