package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error)
	// UpdateRecipientStatus stamps the outcome of one channel attempt on
	// one recipient. Only the worker holding the item's lease calls this.
	UpdateRecipientStatus(ctx context.Context, notificationID, recipientID uuid.UUID, channel string, record model.DeliveryRecord) error
}

type PreferenceRepository interface {
	Get(ctx context.Context, userID uuid.UUID) (*model.UserPreferences, error)
	Upsert(ctx context.Context, prefs *model.UserPreferences) error
}

// DeliveryQueue is the tiered, retryable work queue feeding delivery.
// Dequeued items are leased to the caller until Ack or Nack; Ack and
// Nack on an unknown or already-acked item are no-ops.
type DeliveryQueue interface {
	Enqueue(ctx context.Context, item *model.QueueItem) error
	// EnqueueAt parks the item until readyAt before it becomes eligible,
	// used for scheduled notifications and digest deferral.
	EnqueueAt(ctx context.Context, item *model.QueueItem, readyAt time.Time) error
	// DequeueBatch returns up to n items, draining higher priority tiers
	// strictly before lower ones, FIFO within a tier. Each returned item
	// has its attempt count already incremented.
	DequeueBatch(ctx context.Context, n int) ([]*model.QueueItem, error)
	Ack(ctx context.Context, itemID uuid.UUID) error
	Nack(ctx context.Context, itemID uuid.UUID, retryAfter time.Duration) error
	Depths(ctx context.Context) (model.QueueDepths, error)
}
