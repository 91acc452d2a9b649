// Package notify sends transactional email to clients.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

var ErrNoRecipient = errors.New("message has no recipient")

// Message is a single email.
type Message struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender writes messages to the log instead of delivering them.
type LogSender struct{}

func (LogSender) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Int("text_bytes", len(msg.Text)).
		Msg("Email (not sent, log sender)")
	return nil
}
