// Package audit records one append-only log entry per channel delivery
// attempt.
package audit

import (
	"context"
	"time"
)

// Entry is one delivery attempt, success or failure.
type Entry struct {
	EventID    string
	Channel    string
	Recipient  string
	StatusCode int
	Message    string
	Timestamp  time.Time
}

// Recorder appends attempt entries. Appending is best-effort from the
// dispatch engine's point of view: a recorder failure never fails the
// dispatch pass.
type Recorder interface {
	Append(ctx context.Context, entry Entry) error
}
