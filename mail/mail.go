// Package mail sends the one-time breach report email to newly provisioned
// subscribers.
package mail

import (
	"context"
	"sync"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers messages. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NopMailer discards all outbound email. Used when SMTP is not configured.
type NopMailer struct{}

// Send implements Mailer.
func (NopMailer) Send(ctx context.Context, msg Message) error {
	return nil
}

// Recorder captures sent messages for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message

	// Err, when set, is returned by every Send.
	Err error
}

// Send implements Mailer.
func (r *Recorder) Send(ctx context.Context, msg Message) error {
	if r.Err != nil {
		return r.Err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of all captured messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
