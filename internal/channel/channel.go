// Package channel defines the uniform send capability behind every
// communication channel and the registry that resolves channel names to
// concrete handlers.
package channel

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// Message is the fully resolved content for one send attempt. Business
// validation (non-empty body, usable recipient) happens before a handler
// ever sees it.
type Message struct {
	Body           string
	SenderIdentity string
	Recipient      string
	Subject        string
}

// Receipt identifies an accepted send at the provider.
type Receipt struct {
	ProviderID string
}

// Handler is the single send capability a channel exposes.
type Handler interface {
	Name() string
	Send(ctx context.Context, msg Message) (Receipt, error)
}

// TransportError is a provider rejection. StatusCode carries the
// provider's own code so the delivery log can reproduce it.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider rejected send (%d): %s", e.StatusCode, e.Message)
}

// ErrUnknownChannel marks a configuration problem: an event was routed to
// a channel name no handler was registered for.
var ErrUnknownChannel = errors.New("unknown channel")

// Registry is a fixed name-to-handler mapping, populated once at startup.
type Registry struct {
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

func (r *Registry) Get(name string) (Handler, error) {
	h, ok := r.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return h, nil
}

// Throttle caps a handler's send rate. Providers enforce their own
// limits; waiting here is cheaper than burning a delivery attempt on a
// 429.
func Throttle(h Handler, perSecond float64) Handler {
	if perSecond <= 0 {
		return h
	}
	return &throttled{inner: h, limiter: rate.NewLimiter(rate.Limit(perSecond), 1)}
}

type throttled struct {
	inner   Handler
	limiter *rate.Limiter
}

func (t *throttled) Name() string { return t.inner.Name() }

func (t *throttled) Send(ctx context.Context, msg Message) (Receipt, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Receipt{}, err
	}
	return t.inner.Send(ctx, msg)
}
