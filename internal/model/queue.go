package model

import (
	"time"

	"github.com/google/uuid"
)

// QueueItem is one unit of delivery work: one notification, one
// recipient, an ordered list of channels to attempt.
type QueueItem struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID uuid.UUID  `json:"notification_id"`
	RecipientID    uuid.UUID  `json:"recipient_id"`
	Channels       []string   `json:"channels"`
	Priority       Priority   `json:"priority"`
	Attempts       int        `json:"attempts"`
	EnqueuedAt     time.Time  `json:"enqueued_at"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	// Deferred marks email-digest work scheduled for the user's digest
	// time instead of immediate dispatch.
	Deferred bool `json:"deferred,omitempty"`
}

// QueueDepths is the per-tier depth snapshot exposed on the stats surface.
type QueueDepths struct {
	Tiers    map[int]int64 `json:"tiers"`
	Delayed  int64         `json:"delayed"`
	InFlight int64         `json:"in_flight"`
}

// Total returns queued work across tiers, excluding delayed and in-flight.
func (d QueueDepths) Total() int64 {
	var n int64
	for _, c := range d.Tiers {
		n += c
	}
	return n
}
