package repo

import (
	"context"
	"time"
)

// AlertRecord holds last-known state and the last time we sent a notification
// for an upstream. last_state is the last UP/DOWN we saw, last_sent_at is the
// last time we sent a notification (used for cooldown).
type AlertRecord struct {
	UpstreamID string
	LastState  bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, upstreamID string) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	SetAlert(ctx context.Context, upstreamID string, lastState bool, sentAt time.Time) error
}
