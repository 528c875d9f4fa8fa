package common

import "sync"

// EmailSender sends a single HTML email.
type EmailSender interface {
	Send(to, subject, html string) error
}

// Email is one captured message.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// InMemoryEmail records messages for assertions in tests. Safe for
// concurrent use.
type InMemoryEmail struct {
	mu     sync.Mutex
	Outbox []Email
}

func (m *InMemoryEmail) Send(to, subject, html string) error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Outbox = append(m.Outbox, Email{To: to, Subject: subject, HTML: html})
	return nil
}

// Sent returns a copy of the outbox.
func (m *InMemoryEmail) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.Outbox))
	copy(out, m.Outbox)
	return out
}

// NopEmailSender discards every message.
type NopEmailSender struct{}

func (NopEmailSender) Send(string, string, string) error { return nil }
