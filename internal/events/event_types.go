package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventPasswordResetRequested     EventType = "password_reset_requested"
	EventEmailVerificationRequested EventType = "email_verification_requested"
	EventPasswordChanged            EventType = "password_changed"
	EventEmailVerified              EventType = "email_verified"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// NewEvent stamps a new event with an id and time.
func NewEvent(eventType EventType, userID, email string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		UserID:    userID,
		Email:     email,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TokenIssuedPayload carries the link that embeds a freshly issued raw token.
// It must only reach the mail sender.
type TokenIssuedPayload struct {
	Name      string    `json:"-"`
	Link      string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// AccountPayload carries the display name for confirmation mails.
type AccountPayload struct {
	Name string `json:"name"`
}
