package event

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// Event is a decoded notification of a business-resource change. It is
// immutable once decoded; ID is the idempotency key across redeliveries.
type Event struct {
	ID          string            `json:"id"`
	TriggerType string            `json:"triggerType"`
	Resource    ResourceReference `json:"resource"`
	Payload     map[string]any    `json:"payload,omitempty"`
}

// ResourceReference points at the business resource the event is about.
type ResourceReference struct {
	TypeID string `json:"typeId"`
	ID     string `json:"id"`
}

var (
	ErrNotNotification = errors.New("payload is not a subscription notification")
	ErrMissingID       = errors.New("notification is missing an id")
	ErrMissingTrigger  = errors.New("notification is missing a trigger type")
	ErrMissingResource = errors.New("notification is missing a resource reference")
)

// DecodeEnvelope turns a raw subscription delivery into an Event. Field
// presence is probed with gjson before committing to a full unmarshal, so
// obviously foreign payloads are rejected cheaply.
func DecodeEnvelope(raw []byte) (Event, error) {
	if !gjson.ValidBytes(raw) {
		return Event{}, fmt.Errorf("%w: invalid json", ErrNotNotification)
	}
	if !gjson.GetBytes(raw, "notificationType").Exists() {
		return Event{}, ErrNotNotification
	}

	id := gjson.GetBytes(raw, "id").String()
	if id == "" {
		return Event{}, ErrMissingID
	}

	// Message notifications carry the trigger in "type"; change
	// notifications carry it in "notificationType" itself.
	trigger := gjson.GetBytes(raw, "type").String()
	if trigger == "" {
		trigger = gjson.GetBytes(raw, "notificationType").String()
	}
	if trigger == "" {
		return Event{}, ErrMissingTrigger
	}

	ref := gjson.GetBytes(raw, "resource")
	typeID := ref.Get("typeId").String()
	resID := ref.Get("id").String()
	if typeID == "" || resID == "" {
		return Event{}, ErrMissingResource
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Event{}, fmt.Errorf("decode notification payload: %w", err)
	}

	return Event{
		ID:          id,
		TriggerType: trigger,
		Resource:    ResourceReference{TypeID: typeID, ID: resID},
		Payload:     payload,
	}, nil
}
