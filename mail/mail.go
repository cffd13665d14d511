// Package mail delivers the verification and password reset emails.
//
// A [Sender] performs one delivery attempt per call. Failures are returned to
// the caller and never retried here.
package mail

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// ErrInvalidMessage is returned for messages missing a recipient or subject.
var ErrInvalidMessage = errors.New("mail: invalid message")

// Message is one outbound HTML email.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

func (m Message) validate() error {
	if strings.TrimSpace(m.To) == "" || strings.TrimSpace(m.Subject) == "" {
		return ErrInvalidMessage
	}
	if strings.ContainsAny(m.To+m.From+m.Subject, "\r\n") {
		return ErrInvalidMessage
	}
	return nil
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to a logger instead of delivering them. It is the
// development default when no SMTP host is configured.
type LogSender struct {
	Logger zerolog.Logger
}

// Send logs msg at info level.
func (s LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.Logger.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Str("html", msg.HTML).
		Msg("mail not delivered: log sender")
	return nil
}

// MemorySender keeps sent messages in memory. Err, when set, is returned from
// every Send and nothing is recorded.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

// Send records msg.
func (s *MemorySender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.messages = append(s.messages, msg)
	return nil
}

// SetErr changes Err while other goroutines may be sending.
func (s *MemorySender) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Messages returns a copy of the recorded messages.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// Last returns the most recent message.
func (s *MemorySender) Last() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}
