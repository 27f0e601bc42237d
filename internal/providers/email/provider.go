package email

import (
	"context"
	"errors"
)

var ErrNotConfigured = errors.New("email_not_configured")

// Message is a single transactional email.
type Message struct {
	To      []string
	Subject string
	HTML    string
	Text    string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}
