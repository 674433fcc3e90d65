package mail

import "context"

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender is responsible for actually delivering an email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
