package notification

import (
	"context"
	"errors"
	"sync"
)

// SentMessage records a single call to a mock sender.
type SentMessage struct {
	Channel Channel
	To      string
	Subject string
	Body    string
}

// MockSender is a test double implementing every channel sender. It records
// calls and optionally fails.
type MockSender struct {
	mu         sync.Mutex
	calls      []SentMessage
	ShouldFail bool
	FailError  string
}

func (m *MockSender) record(ch Channel, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SentMessage{Channel: ch, To: to, Subject: subject, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

func (m *MockSender) SendEmail(_ context.Context, to, subject, body string) error {
	return m.record(ChannelEmail, to, subject, body)
}

func (m *MockSender) SendSMS(_ context.Context, to, body string) error {
	return m.record(ChannelSMS, to, "", body)
}

func (m *MockSender) SendPush(_ context.Context, to, subject, body string) error {
	return m.record(ChannelPush, to, subject, body)
}

func (m *MockSender) SendPhone(_ context.Context, to, body string) error {
	return m.record(ChannelPhone, to, "", body)
}

func (m *MockSender) SendInApp(_ context.Context, to, subject, body string) error {
	return m.record(ChannelInApp, to, subject, body)
}

// Calls returns a copy of recorded calls.
func (m *MockSender) Calls() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentMessage, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls.
func (m *MockSender) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// NewMockManager wires a Manager whose channels all share one MockSender.
func NewMockManager() (*Manager, *MockSender) {
	s := &MockSender{}
	return NewManager(s, s, s, s, s), s
}
