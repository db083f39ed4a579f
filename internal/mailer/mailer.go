package mailer

import (
	"context"
	"log"
)

// Message is a plain-text notification mail.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers notification mail. Delivery is best-effort: callers log
// failures and continue, billing state never depends on a mail going out.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NoopMailer logs instead of sending. Used when SMTP is not configured.
type NoopMailer struct{}

func (NoopMailer) Send(_ context.Context, msg Message) error {
	log.Printf("[mailer] skipped (no SMTP configured): to=%s subject=%q", msg.To, msg.Subject)
	return nil
}
