// Package state models the versioned per-event delivery record and the
// store contract it is persisted through.
package state

import (
	"context"
	"errors"

	"github.com/donbenny0/notify-commercetools-connector-sub000/internal/event"
)

// Status is the per-channel delivery status. Sent is terminal: no
// transition ever leaves it.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
)

// ChannelStatus tracks one channel's progress for one event.
type ChannelStatus struct {
	Status     Status `json:"status"`
	RetryCount int    `json:"retryCount"`
}

// DeliveryState is the record kept per event id. It is created lazily on
// first sighting of an event and never deleted; the record doubles as the
// delivery audit trail.
type DeliveryState struct {
	Version  int64                    `json:"-"`
	Channels map[string]ChannelStatus `json:"channels"`
	Event    event.Event              `json:"event"`
}

// NewDeliveryState initialises a record with every known channel pending.
func NewDeliveryState(ev event.Event, channels []string) DeliveryState {
	st := DeliveryState{
		Channels: make(map[string]ChannelStatus, len(channels)),
		Event:    ev,
	}
	for _, name := range channels {
		st.Channels[name] = ChannelStatus{Status: StatusPending}
	}
	return st
}

// Clone returns an independent copy. Stores hand out snapshots and take
// new values; callers never mutate a record another pass may be reading.
func (d DeliveryState) Clone() DeliveryState {
	channels := make(map[string]ChannelStatus, len(d.Channels))
	for name, cs := range d.Channels {
		channels[name] = cs
	}
	return DeliveryState{Version: d.Version, Channels: channels, Event: d.Event}
}

// BeginAttempt moves a channel to processing and counts the attempt.
// Returns false when the channel is already sent.
func (d *DeliveryState) BeginAttempt(channel string) bool {
	cs := d.Channels[channel]
	if cs.Status == StatusSent {
		return false
	}
	cs.Status = StatusProcessing
	cs.RetryCount++
	d.Channels[channel] = cs
	return true
}

// CompleteAttempt settles a processing channel as sent or failed.
func (d *DeliveryState) CompleteAttempt(channel string, sent bool) {
	cs := d.Channels[channel]
	if cs.Status != StatusProcessing {
		return
	}
	if sent {
		cs.Status = StatusSent
	} else {
		cs.Status = StatusFailed
	}
	d.Channels[channel] = cs
}

var (
	// ErrConflict signals a stale version on update, or an existing
	// record on create. The caller must re-read and re-decide.
	ErrConflict = errors.New("delivery state version conflict")
	ErrNotFound = errors.New("delivery state not found")
)

// Store is the versioned record store the dispatch engine persists
// through. Implementations must reject stale writes with ErrConflict.
type Store interface {
	Get(ctx context.Context, eventID string) (DeliveryState, bool, error)
	Create(ctx context.Context, eventID string, st DeliveryState) (int64, error)
	Update(ctx context.Context, eventID string, version int64, st DeliveryState) (int64, error)
}
