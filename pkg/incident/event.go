package incident

import (
	"encoding/json"
	"fmt"
)

// EventType identifies a push-channel envelope.
type EventType string

const (
	EventConnectionEstablished EventType = "connection.established"
	EventIncidentCreated       EventType = "incident.created"
	EventIncidentUpdated       EventType = "incident.updated"
)

// Envelope is the wire frame exchanged on the push channel.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewIncidentEvent builds a created/updated envelope for an incident.
func NewIncidentEvent(kind EventType, inc Incident) (Envelope, error) {
	payload, err := json.Marshal(inc)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal incident payload: %w", err)
	}
	return Envelope{Type: kind, Payload: payload}, nil
}

// NewConnectionEstablished builds the greeting frame sent on accept.
func NewConnectionEstablished(message string) Envelope {
	payload, _ := json.Marshal(map[string]string{"message": message})
	return Envelope{Type: EventConnectionEstablished, Payload: payload}
}

// Incident decodes the payload of a created/updated envelope.
func (e Envelope) Incident() (Incident, error) {
	var inc Incident
	if e.Type != EventIncidentCreated && e.Type != EventIncidentUpdated {
		return inc, fmt.Errorf("envelope %q carries no incident payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, &inc); err != nil {
		return inc, fmt.Errorf("decode incident payload: %w", err)
	}
	return inc, nil
}
