package reminders

import "github.com/medsched/medsched/internal/platform/notification"

// Template ids for the reminder catalogue. The offset reminders carry
// the lead time in their name so delivery logs read unambiguously.
const (
	TemplateConfirmation = "appointment_confirmation"
	TemplateReminder24h  = "appointment_reminder_24h"
	TemplateReminder2h   = "appointment_reminder_2h"
	TemplateReminder30m  = "appointment_reminder_30m"
	TemplateCancellation = "appointment_cancellation"
	TemplateRescheduled  = "appointment_rescheduled"
)

// RegisterTemplates loads the reminder catalogue into the engine.
// Placeholders: patient_name, doctor_name, date, start_time, end_time.
func RegisterTemplates(engine *notification.TemplateEngine) {
	for _, t := range []notification.Template{
		{
			ID:      TemplateConfirmation,
			Subject: "Appointment confirmed for {{date}}",
			Body:    "Hi {{patient_name}}, your appointment with Dr. {{doctor_name}} is confirmed for {{date}}, {{start_time}} to {{end_time}}.",
		},
		{
			ID:      TemplateReminder24h,
			Subject: "Appointment tomorrow at {{start_time}}",
			Body:    "Hi {{patient_name}}, a reminder that you are seeing Dr. {{doctor_name}} tomorrow, {{date}}, at {{start_time}}.",
		},
		{
			ID:      TemplateReminder2h,
			Subject: "Appointment today at {{start_time}}",
			Body:    "Hi {{patient_name}}, your appointment with Dr. {{doctor_name}} is today at {{start_time}}.",
		},
		{
			ID:      TemplateReminder30m,
			Subject: "Appointment in 30 minutes",
			Body:    "Hi {{patient_name}}, your appointment with Dr. {{doctor_name}} starts at {{start_time}}. Please arrive a few minutes early.",
		},
		{
			ID:      TemplateCancellation,
			Subject: "Appointment on {{date}} cancelled",
			Body:    "Hi {{patient_name}}, your appointment with Dr. {{doctor_name}} on {{date}} at {{start_time}} has been cancelled.",
		},
		{
			ID:      TemplateRescheduled,
			Subject: "Appointment moved to {{date}}",
			Body:    "Hi {{patient_name}}, your appointment with Dr. {{doctor_name}} has been moved to {{date}}, {{start_time}} to {{end_time}}.",
		},
	} {
		engine.Register(t)
	}
}
