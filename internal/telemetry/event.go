// Package telemetry defines the auth event stream: events are emitted to
// Kafka and OTel Logs from the auth flows and relayed to Loki by the worker.
package telemetry

import (
	"encoding/json"
	"time"
)

// Event is a single auth telemetry event. UserID and SessionID are optional;
// failed logins may carry neither.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId,omitempty"`
	EventType string          `json:"eventType"`
	Source    string          `json:"source"`
	IP        string          `json:"ip,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent returns an Event stamped with the current time.
func NewEvent(eventType, source string) *Event {
	return &Event{
		EventType: eventType,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}
}
