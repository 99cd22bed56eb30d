// Package dispatch decides which channels still need an event, renders
// their messages, fans the sends out and persists the outcome under
// optimistic concurrency.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/audit"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/channel"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/common"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/event"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/resolver"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/resource"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/state"
)

var (
	passCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_passes_total",
		Help: "Dispatch passes by result",
	}, []string{"result"})
	attemptCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_channel_attempts_total",
		Help: "Per-channel send attempts by outcome",
	}, []string{"channel", "outcome"})
	passDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_pass_duration_seconds",
		Help:    "Wall time of one dispatch invocation",
		Buckets: prometheus.DefBuckets,
	})
)

// Completion is the engine's answer to the inbound boundary. AllDone true
// means every enabled, subscribed channel has been sent and the event
// needs no redelivery.
type Completion struct {
	AllDone bool
}

// Engine is the delivery dispatch core. One Dispatch call corresponds to
// one inbound delivery of one event; redelivery of incomplete events is
// the event source's job.
type Engine struct {
	Store    state.Store
	Recorder audit.Recorder
	Registry *channel.Registry
	Loader   resource.Loader
	Logger   zerolog.Logger

	// ConflictRetries bounds how often a pass is re-run after a stale
	// version write. Zero means the default of 5.
	ConflictRetries uint64
}

// Dispatch runs one decide-and-send pass for the event, re-running the
// whole pass when the state write loses a version race. Two concurrent
// passes for the same event id can otherwise both see a channel as
// eligible and the loser would overwrite the winner's sent status.
func (e *Engine) Dispatch(ctx context.Context, ev event.Event, snap *config.Snapshot) (Completion, error) {
	tracer := otel.Tracer("dispatch")
	ctx, span := tracer.Start(ctx, "dispatch")
	span.SetAttributes(
		attribute.String("event.id", ev.ID),
		attribute.String("event.trigger", ev.TriggerType),
		attribute.String("event.resource_type", ev.Resource.TypeID),
	)
	defer span.End()

	start := time.Now()
	defer func() { passDuration.Observe(time.Since(start).Seconds()) }()

	retries := e.ConflictRetries
	if retries == 0 {
		retries = 5
	}

	var completion Completion
	op := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), retries)
	err := backoff.Retry(func() error {
		c, err := e.pass(ctx, ev, snap)
		if err != nil {
			if errors.Is(err, state.ErrConflict) {
				passCounter.WithLabelValues("conflict").Inc()
				logger := common.WithContext(ctx, e.Logger)
				logger.Warn().Str("event_id", ev.ID).Msg("delivery state version conflict, re-running pass")
				return err
			}
			return backoff.Permanent(err)
		}
		completion = c
		return nil
	}, backoff.WithContext(op, ctx))
	if err != nil {
		span.RecordError(err)
		passCounter.WithLabelValues("error").Inc()
		return Completion{}, err
	}

	if completion.AllDone {
		passCounter.WithLabelValues("complete").Inc()
	} else {
		passCounter.WithLabelValues("incomplete").Inc()
	}
	return completion, nil
}

func (e *Engine) pass(ctx context.Context, ev event.Event, snap *config.Snapshot) (Completion, error) {
	st, found, err := e.Store.Get(ctx, ev.ID)
	if err != nil {
		return Completion{}, err
	}
	if !found {
		st = state.NewDeliveryState(ev, channelNames(snap))
		version, err := e.Store.Create(ctx, ev.ID, st)
		if err != nil {
			// a concurrent pass created the record first
			return Completion{}, err
		}
		st.Version = version
	}

	eligible := eligibleChannels(snap, ev, st)
	if len(eligible) == 0 {
		return Completion{AllDone: allDone(snap, ev, st)}, nil
	}

	res, err := e.Loader.Load(ctx, ev.Resource.TypeID, ev.Resource.ID)
	if err != nil {
		return Completion{}, fmt.Errorf("load referenced resource: %w", err)
	}

	// Work on a copy; the fetched record stays untouched in case the
	// write below loses the version race.
	next := st.Clone()
	outcomes := make([]outcome, len(eligible))
	var wg sync.WaitGroup
	for i, name := range eligible {
		next.BeginAttempt(name)
		wg.Add(1)
		go func(i int, name string) {
			defer wg.Done()
			outcomes[i] = e.attempt(ctx, ev, snap, name, res)
		}(i, name)
	}
	wg.Wait()

	for _, o := range outcomes {
		next.CompleteAttempt(o.channel, o.sent)
		e.record(ctx, o.entry)
		outcomeLabel := "failed"
		if o.sent {
			outcomeLabel = "sent"
		}
		attemptCounter.WithLabelValues(o.channel, outcomeLabel).Inc()
	}

	if _, err := e.Store.Update(ctx, ev.ID, st.Version, next); err != nil {
		return Completion{}, err
	}
	return Completion{AllDone: allDone(snap, ev, next)}, nil
}

type outcome struct {
	channel string
	sent    bool
	entry   audit.Entry
}

func (e *Engine) attempt(ctx context.Context, ev event.Event, snap *config.Snapshot, name string, res map[string]any) outcome {
	fail := func(code int, message string, recipient string) outcome {
		return outcome{channel: name, entry: audit.Entry{
			EventID:    ev.ID,
			Channel:    name,
			Recipient:  recipient,
			StatusCode: code,
			Message:    message,
			Timestamp:  time.Now().UTC(),
		}}
	}

	tmpl, ok := snap.Template(name, ev.TriggerType)
	if !ok {
		return fail(http.StatusUnprocessableEntity, fmt.Sprintf("no template configured for trigger %s", ev.TriggerType), "")
	}

	recipient, ok := usableRecipient(resolver.Resolve(tmpl.RecipientPath, res))
	if !ok {
		return fail(http.StatusUnprocessableEntity, fmt.Sprintf("recipient path %s did not resolve to a single value", tmpl.RecipientPath), "")
	}

	body := resolver.Substitute(tmpl.Body, res)
	if body == "" {
		return fail(http.StatusUnprocessableEntity, "message body rendered empty", recipient)
	}
	var subject string
	if tmpl.Subject != "" {
		subject = resolver.Substitute(tmpl.Subject, res)
	}

	handler, err := e.Registry.Get(name)
	if err != nil {
		return fail(http.StatusNotImplemented, err.Error(), recipient)
	}

	receipt, err := handler.Send(ctx, channel.Message{
		Body:           body,
		SenderIdentity: snap.Channels[name].SenderIdentity,
		Recipient:      recipient,
		Subject:        subject,
	})
	if err != nil {
		var terr *channel.TransportError
		if errors.As(err, &terr) {
			return fail(terr.StatusCode, terr.Message, recipient)
		}
		return fail(http.StatusBadGateway, err.Error(), recipient)
	}

	return outcome{channel: name, sent: true, entry: audit.Entry{
		EventID:    ev.ID,
		Channel:    name,
		Recipient:  recipient,
		StatusCode: http.StatusOK,
		Message:    "delivered via " + handler.Name() + " (" + receipt.ProviderID + ")",
		Timestamp:  time.Now().UTC(),
	}}
}

// record appends to the delivery log. Best effort: a recorder outage must
// not turn a delivered message into a redelivery.
func (e *Engine) record(ctx context.Context, entry audit.Entry) {
	if e.Recorder == nil {
		return
	}
	if err := e.Recorder.Append(ctx, entry); err != nil {
		logger := common.WithContext(ctx, e.Logger)
		logger.Error().Err(err).
			Str("event_id", entry.EventID).
			Str("channel", entry.Channel).
			Msg("delivery log append failed")
	}
}

// usableRecipient accepts exactly one non-empty resolved value.
func usableRecipient(values []any) (string, bool) {
	var usable []string
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			usable = append(usable, s)
		}
	}
	if len(usable) != 1 {
		return "", false
	}
	return usable[0], true
}

func channelNames(snap *config.Snapshot) []string {
	names := make([]string, 0, len(snap.Channels))
	for name := range snap.Channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// eligibleChannels picks the channels that still need an attempt: enabled,
// subscribed to this event's resource type and trigger, and not yet sent.
func eligibleChannels(snap *config.Snapshot, ev event.Event, st state.DeliveryState) []string {
	var eligible []string
	for name, cfg := range snap.Channels {
		if !cfg.Enabled {
			continue
		}
		if !snap.Subscribed(name, ev.Resource.TypeID, ev.TriggerType) {
			continue
		}
		if st.Channels[name].Status == state.StatusSent {
			continue
		}
		eligible = append(eligible, name)
	}
	sort.Strings(eligible)
	return eligible
}

// allDone restricts the completion check to channels that can actually be
// attempted for this event; a disabled or unsubscribed channel stays
// pending forever and must not hold up acknowledgement.
func allDone(snap *config.Snapshot, ev event.Event, st state.DeliveryState) bool {
	for name, cfg := range snap.Channels {
		if !cfg.Enabled || !snap.Subscribed(name, ev.Resource.TypeID, ev.TriggerType) {
			continue
		}
		if st.Channels[name].Status != state.StatusSent {
			return false
		}
	}
	return true
}
