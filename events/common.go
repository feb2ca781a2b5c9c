package events

import (
	"encoding/json"
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

type BaseEvent struct {
	EventID        string  `json:"event_id,omitempty"`
	Type           string  `json:"type"`
	PreviousItemID *string `json:"previous_item_id,omitempty"`
}

func NewBaseEvent(eventType string) BaseEvent {
	id, err := nanoid.New()
	if err != nil {
		panic(err)
	}
	return BaseEvent{
		EventID: id,
		Type:    eventType,
	}
}

func (e BaseEvent) EventType() string { return e.Type }

func Parse[T any](data []byte) (*T, error) {
	var x T
	if err := json.Unmarshal(data, &x); err != nil {
		return nil, err
	}
	return &x, nil
}

// Envelope is an inbound message whose type discriminator has been read but
// whose body is still raw.
type Envelope struct {
	Type    string
	EventID string
	Raw     json.RawMessage
}

// Decode reads the type discriminator of a structured message.
func Decode(data []byte) (Envelope, error) {
	var x struct {
		Type    string `json:"type"`
		EventID string `json:"event_id"`
	}
	if err := json.Unmarshal(data, &x); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if x.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}

	raw := make(json.RawMessage, len(data))
	copy(raw, data)

	return Envelope{Type: x.Type, EventID: x.EventID, Raw: raw}, nil
}

// Into parses the envelope body into a typed event.
func Into[T any](env Envelope) (*T, error) {
	evt, err := Parse[T](env.Raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", env.Type, err)
	}
	return evt, nil
}
