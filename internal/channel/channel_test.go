package channel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

type fakeHandler struct {
	name  string
	calls int
}

func (f *fakeHandler) Name() string { return f.name }

func (f *fakeHandler) Send(context.Context, Message) (Receipt, error) {
	f.calls++
	return Receipt{ProviderID: "fake-1"}, nil
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&fakeHandler{name: "sms"})

	h, err := reg.Get("sms")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Name() != "sms" {
		t.Fatalf("unexpected handler %q", h.Name())
	}

	if _, err := reg.Get("carrier-pigeon"); !errors.Is(err, ErrUnknownChannel) {
		t.Fatalf("expected ErrUnknownChannel, got %v", err)
	}
}

func TestThrottlePassesThrough(t *testing.T) {
	inner := &fakeHandler{name: "sms"}
	h := Throttle(inner, 100)
	if _, err := h.Send(context.Background(), Message{Body: "x"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one inner call, got %d", inner.calls)
	}

	if got := Throttle(inner, 0); got != Handler(inner) {
		t.Fatal("zero rate should return the handler unwrapped")
	}
}

func TestGatewayProviderSend(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"msg-42"}`))
	}))
	defer srv.Close()

	p := &GatewayProvider{Channel: "whatsapp", Endpoint: srv.URL, Client: srv.Client()}
	receipt, err := p.Send(context.Background(), Message{
		Body:           "Hi Doe",
		SenderIdentity: "wa-sender-1",
		Recipient:      "+1234567890",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.ProviderID != "msg-42" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if gotAuth.Load() != "Bearer wa-sender-1" {
		t.Fatalf("unexpected auth header %v", gotAuth.Load())
	}
}

func TestGatewayProviderRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown recipient", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	p := &GatewayProvider{Channel: "sms", Endpoint: srv.URL, Client: srv.Client()}
	_, err := p.Send(context.Background(), Message{Body: "x", Recipient: "+1"})

	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
	if terr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("unexpected status code %d", terr.StatusCode)
	}
}

func TestGatewayProviderRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message_id":"msg-2"}`))
	}))
	defer srv.Close()

	p := &GatewayProvider{Channel: "sms", Endpoint: srv.URL, Client: srv.Client()}
	receipt, err := p.Send(context.Background(), Message{Body: "x", Recipient: "+1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if receipt.ProviderID != "msg-2" {
		t.Fatalf("unexpected receipt %+v", receipt)
	}
	if calls.Load() < 2 {
		t.Fatalf("expected a retried call, got %d", calls.Load())
	}
}
