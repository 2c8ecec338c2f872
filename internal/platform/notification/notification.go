// Package notification provides the channel senders used for appointment
// reminders: template rendering plus uniform dispatch over email, SMS, push,
// phone and in-app channels. Send failures are reported to the caller but are
// never fatal to booking flows.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Channel identifies a delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelPush  Channel = "push"
	ChannelPhone Channel = "phone"
	ChannelInApp Channel = "in_app"
)

// Channels lists every supported channel.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelSMS, ChannelPush, ChannelPhone, ChannelInApp}
}

// ParseChannel validates a channel name.
func ParseChannel(s string) (Channel, error) {
	switch Channel(strings.ToLower(strings.TrimSpace(s))) {
	case ChannelEmail:
		return ChannelEmail, nil
	case ChannelSMS:
		return ChannelSMS, nil
	case ChannelPush:
		return ChannelPush, nil
	case ChannelPhone:
		return ChannelPhone, nil
	case ChannelInApp:
		return ChannelInApp, nil
	}
	return "", fmt.Errorf("unknown notification channel %q", s)
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// PushSender is the interface for sending push notifications.
type PushSender interface {
	SendPush(ctx context.Context, to, subject, body string) error
}

// PhoneSender is the interface for placing automated voice calls.
type PhoneSender interface {
	SendPhone(ctx context.Context, to, body string) error
}

// InAppSender is the interface for posting in-app messages.
type InAppSender interface {
	SendInApp(ctx context.Context, to, subject, body string) error
}

// Manager routes a message to the sender for the requested channel.
type Manager struct {
	email EmailSender
	sms   SMSSender
	push  PushSender
	phone PhoneSender
	inApp InAppSender
}

// NewManager constructs a Manager. Any nil sender leaves its channel
// unavailable; sending through it returns an error.
func NewManager(email EmailSender, sms SMSSender, push PushSender, phone PhoneSender, inApp InAppSender) *Manager {
	return &Manager{
		email: email,
		sms:   sms,
		push:  push,
		phone: phone,
		inApp: inApp,
	}
}

// Send dispatches a message through the given channel. The subject is used by
// channels that support one (email, push, in-app) and ignored otherwise.
func (m *Manager) Send(ctx context.Context, ch Channel, recipient, subject, body string) error {
	switch ch {
	case ChannelEmail:
		if m.email == nil {
			return fmt.Errorf("email sender not configured")
		}
		return m.email.SendEmail(ctx, recipient, subject, body)
	case ChannelSMS:
		if m.sms == nil {
			return fmt.Errorf("sms sender not configured")
		}
		return m.sms.SendSMS(ctx, recipient, body)
	case ChannelPush:
		if m.push == nil {
			return fmt.Errorf("push sender not configured")
		}
		return m.push.SendPush(ctx, recipient, subject, body)
	case ChannelPhone:
		if m.phone == nil {
			return fmt.Errorf("phone sender not configured")
		}
		return m.phone.SendPhone(ctx, recipient, body)
	case ChannelInApp:
		if m.inApp == nil {
			return fmt.Errorf("in-app sender not configured")
		}
		return m.inApp.SendInApp(ctx, recipient, subject, body)
	}
	return fmt.Errorf("unsupported notification channel: %s", ch)
}

// LogSender implements every channel by writing the message to the log.
// It stands in for real provider integrations.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) log(channel Channel, to, subject, body string) {
	s.logger.Info().
		Str("channel", string(channel)).
		Str("to", to).
		Str("subject", subject).
		Int("body_len", len(body)).
		Msg("notification sent")
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.log(ChannelEmail, to, subject, body)
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.log(ChannelSMS, to, "", body)
	return nil
}

func (s *LogSender) SendPush(_ context.Context, to, subject, body string) error {
	s.log(ChannelPush, to, subject, body)
	return nil
}

func (s *LogSender) SendPhone(_ context.Context, to, body string) error {
	s.log(ChannelPhone, to, "", body)
	return nil
}

func (s *LogSender) SendInApp(_ context.Context, to, subject, body string) error {
	s.log(ChannelInApp, to, subject, body)
	return nil
}

// NewLogManager wires a Manager with log-backed senders on every channel.
func NewLogManager(logger zerolog.Logger) *Manager {
	s := NewLogSender(logger)
	return NewManager(s, s, s, s, s)
}

// Template defines a reusable notification template. Placeholders use
// {{key}} syntax.
type Template struct {
	ID      string
	Subject string
	Body    string
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates an empty TemplateEngine; callers register their
// own catalogue.
func NewTemplateEngine() *TemplateEngine {
	return &TemplateEngine{
		templates: make(map[string]*Template),
	}
}

// Register adds or replaces a template in the engine.
func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are
// left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// Has reports whether a template with the given id is registered.
func (e *TemplateEngine) Has(templateID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.templates[templateID]
	return ok
}
