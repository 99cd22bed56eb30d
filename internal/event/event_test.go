package event

import (
	"errors"
	"testing"
)

func TestDecodeEnvelope(t *testing.T) {
	raw := []byte(`{
		"notificationType": "Message",
		"id": "E1",
		"type": "OrderCreated",
		"resource": {"typeId": "order", "id": "O1"},
		"version": 4
	}`)

	ev, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.ID != "E1" || ev.TriggerType != "OrderCreated" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.Resource.TypeID != "order" || ev.Resource.ID != "O1" {
		t.Fatalf("unexpected resource %+v", ev.Resource)
	}
	if ev.Payload["version"] != float64(4) {
		t.Fatalf("expected raw payload retained, got %v", ev.Payload)
	}
}

func TestDecodeEnvelopeChangeNotification(t *testing.T) {
	raw := []byte(`{
		"notificationType": "ResourceCreated",
		"id": "E2",
		"resource": {"typeId": "customer", "id": "C1"}
	}`)

	ev, err := DecodeEnvelope(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev.TriggerType != "ResourceCreated" {
		t.Fatalf("expected notificationType as trigger fallback, got %q", ev.TriggerType)
	}
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{name: "not json", raw: `not json at all`, want: ErrNotNotification},
		{name: "foreign payload", raw: `{"hello":"world"}`, want: ErrNotNotification},
		{name: "missing id", raw: `{"notificationType":"Message","type":"X","resource":{"typeId":"order","id":"O1"}}`, want: ErrMissingID},
		{name: "missing resource", raw: `{"notificationType":"Message","id":"E1","type":"X"}`, want: ErrMissingResource},
		{name: "partial resource", raw: `{"notificationType":"Message","id":"E1","type":"X","resource":{"typeId":"order"}}`, want: ErrMissingResource},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeEnvelope([]byte(tc.raw)); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}
