// Package audit keeps a local, append-only journal of what happened to the
// session: sign-ins, sign-outs, rejected credentials and refused actions.
// Each event is one JSON object per line.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names what happened.
type EventType string

const (
	// EventSessionRestored means a stored credential was accepted at startup.
	EventSessionRestored EventType = "session_restored"

	// EventCredentialRejected means the backend refused the stored credential
	// and the session was signed out.
	EventCredentialRejected EventType = "credential_rejected"

	EventLogin       EventType = "login"
	EventLoginFailed EventType = "login_failed"
	EventLogout      EventType = "logout"

	EventProfileUpdated  EventType = "profile_updated"
	EventPasswordChanged EventType = "password_changed"
	EventPasswordReset   EventType = "password_reset"

	// EventAccessDenied is recorded when a command is refused for a
	// missing permission.
	EventAccessDenied EventType = "access_denied"
)

// Event is one journal entry.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Invocation groups the events of one hradmin run.
	Invocation string `json:"invocation,omitempty"`
	Command    string `json:"command,omitempty"`

	User    string         `json:"user,omitempty"`
	Message string         `json:"message"`
	Level   string         `json:"level"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// NewEvent creates an event stamped with a fresh ID and the current time.
func NewEvent(eventType EventType, message string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Message:   message,
		Level:     inferLevel(eventType),
	}
}

// WithUser sets the username the event concerns.
func (e *Event) WithUser(username string) *Event {
	e.User = username
	return e
}

// WithData adds a data field.
func (e *Event) WithData(key string, value any) *Event {
	if e.Data == nil {
		e.Data = make(map[string]any)
	}
	e.Data[key] = value
	return e
}

// WithError records err and raises the level to warning.
func (e *Event) WithError(err error) *Event {
	if err != nil {
		e.Error = err.Error()
		e.Level = "warning"
	}
	return e
}

// MarshalLine encodes the event as a single JSON line without the newline.
func (e *Event) MarshalLine() ([]byte, error) {
	return json.Marshal(e)
}

// ParseLine decodes one journal line.
func ParseLine(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

func inferLevel(eventType EventType) string {
	switch eventType {
	case EventLoginFailed, EventCredentialRejected, EventAccessDenied:
		return "warning"
	default:
		return "info"
	}
}
