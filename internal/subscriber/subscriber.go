// Package subscriber is the event-bus inbound boundary: it reads
// subscription deliveries from Kafka, hands each one to the dispatch
// engine and routes incomplete events back onto the redelivery topic.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/config"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/dispatch"
	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/event"
)

const redeliveryCountHeader = "x-redelivery-count"

type Dispatcher interface {
	Dispatch(ctx context.Context, ev event.Event, snap *config.Snapshot) (dispatch.Completion, error)
}

type SnapshotProvider interface {
	Snapshot() *config.Snapshot
}

type Subscriber struct {
	ReaderFactory    func() *kafka.Reader
	RedeliveryWriter *kafka.Writer
	DLQWriter        *kafka.Writer
	Dispatcher       Dispatcher
	Snapshots        SnapshotProvider
	MaxRedeliveries  int
	Logger           zerolog.Logger
}

func (s *Subscriber) Run(ctx context.Context) error {
	if s.ReaderFactory == nil || s.RedeliveryWriter == nil || s.DLQWriter == nil {
		return errors.New("subscriber requires a reader factory and redelivery/dlq writers")
	}
	reader := s.ReaderFactory()
	defer reader.Close()

	tracer := otel.Tracer("subscriber")

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			return fmt.Errorf("fetch message: %w", err)
		}

		ev, err := event.DecodeEnvelope(m.Value)
		if err != nil {
			// malformed or foreign payloads never heal on redelivery
			s.Logger.Warn().Err(err).Msg("dropping undecodable delivery")
			_ = reader.CommitMessages(ctx, m)
			continue
		}

		spanCtx, span := tracer.Start(ctx, "consume_event")
		span.SetAttributes(attribute.String("event.id", ev.ID))

		completion, err := s.Dispatcher.Dispatch(spanCtx, ev, s.Snapshots.Snapshot())
		if err != nil || !completion.AllDone {
			if err != nil {
				span.RecordError(err)
				s.Logger.Error().Err(err).Str("event_id", ev.ID).Msg("dispatch failed, requeueing")
			}
			if err := s.redeliver(spanCtx, m, ev); err != nil {
				span.End()
				return err
			}
		}

		span.End()
		if err := reader.CommitMessages(ctx, m); err != nil {
			return fmt.Errorf("commit message: %w", err)
		}
	}
}

// redeliver puts the event back on the redelivery topic with a bumped
// attempt header, or parks it on the DLQ once the budget is spent.
func (s *Subscriber) redeliver(ctx context.Context, m kafka.Message, ev event.Event) error {
	count := redeliveryCount(m.Headers) + 1
	writer := s.RedeliveryWriter
	if count > s.MaxRedeliveries {
		s.Logger.Error().Str("event_id", ev.ID).Int("redeliveries", count-1).Msg("redelivery budget exhausted, sending to DLQ")
		writer = s.DLQWriter
	}

	out := kafka.Message{
		Key:   []byte(ev.ID),
		Value: m.Value,
		Headers: []kafka.Header{
			{Key: redeliveryCountHeader, Value: []byte(strconv.Itoa(count))},
		},
	}
	if err := writer.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("requeue event %s: %w", ev.ID, err)
	}
	return nil
}

func redeliveryCount(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key != redeliveryCountHeader {
			continue
		}
		n, err := strconv.Atoi(string(h.Value))
		if err != nil {
			return 0
		}
		return n
	}
	return 0
}
