package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery channels
const (
	ChannelWebsocket = "websocket"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
)

// AllChannels lists every supported delivery channel.
var AllChannels = []string{ChannelWebsocket, ChannelEmail, ChannelSMS}

type Priority string

const (
	PriorityLow       Priority = "low"
	PriorityMedium    Priority = "medium"
	PriorityHigh      Priority = "high"
	PriorityCritical  Priority = "critical"
	PriorityEmergency Priority = "emergency"
)

var priorityLevels = map[Priority]int{
	PriorityLow:       1,
	PriorityMedium:    2,
	PriorityHigh:      3,
	PriorityCritical:  4,
	PriorityEmergency: 5,
}

// Level returns the numeric rank of the priority. Unknown priorities
// rank as medium so malformed input never outranks real urgency.
func (p Priority) Level() int {
	if lvl, ok := priorityLevels[p]; ok {
		return lvl
	}
	return priorityLevels[PriorityMedium]
}

func (p Priority) Valid() bool {
	_, ok := priorityLevels[p]
	return ok
}

// QueueTier maps a priority onto one of the three queue tiers.
// Higher tiers drain first.
func (p Priority) QueueTier() int {
	switch {
	case p.Level() >= priorityLevels[PriorityCritical]:
		return 2
	case p.Level() == priorityLevels[PriorityHigh]:
		return 1
	default:
		return 0
	}
}

type Category string

const (
	CategoryMedical        Category = "medical"
	CategoryAdministrative Category = "administrative"
	CategorySystem         Category = "system"
	CategoryMarketing      Category = "marketing"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMedical, CategoryAdministrative, CategorySystem, CategoryMarketing:
		return true
	}
	return false
}

type ChannelStatus string

const (
	ChannelStatusPending   ChannelStatus = "pending"
	ChannelStatusSent      ChannelStatus = "sent"
	ChannelStatusDelivered ChannelStatus = "delivered"
	ChannelStatusFailed    ChannelStatus = "failed"
	ChannelStatusExpired   ChannelStatus = "expired"
)

// NotificationContent is immutable after creation.
type NotificationContent struct {
	Title       string `json:"title" db:"title"`
	Body        string `json:"body" db:"body"`
	ActionURL   string `json:"action_url,omitempty" db:"action_url"`
	ActionLabel string `json:"action_label,omitempty" db:"action_label"`
}

// DeliveryRecord tracks the outcome of one channel attempt for one recipient.
type DeliveryRecord struct {
	Status    ChannelStatus `json:"status"`
	Error     string        `json:"error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// RecipientEntry is the per-recipient delivery record, owned by its
// parent Notification. ApprovedChannels is the ordered attempt list
// chosen by evaluation; DeliveryStatus only ever contains channels
// that were actually attempted.
type RecipientEntry struct {
	UserID           uuid.UUID                 `json:"user_id"`
	UserRole         string                    `json:"user_role"`
	ApprovedChannels []string                  `json:"approved_channels"`
	Reason           string                    `json:"reason,omitempty"`
	DeliveryStatus   map[string]DeliveryRecord `json:"delivery_status"`
}

// RecordAttempt stamps the outcome of a channel attempt.
func (r *RecipientEntry) RecordAttempt(channel string, status ChannelStatus, errMsg string) {
	if r.DeliveryStatus == nil {
		r.DeliveryStatus = make(map[string]DeliveryRecord)
	}
	r.DeliveryStatus[channel] = DeliveryRecord{
		Status:    status,
		Error:     errMsg,
		UpdatedAt: time.Now(),
	}
}

// Delivered reports whether at least one channel reached the recipient.
func (r *RecipientEntry) Delivered() bool {
	for _, rec := range r.DeliveryStatus {
		if rec.Status == ChannelStatusDelivered || rec.Status == ChannelStatusSent {
			return true
		}
	}
	return false
}

type Notification struct {
	ID           uuid.UUID           `json:"id"`
	Type         string              `json:"type"`
	Category     Category            `json:"category"`
	Priority     Priority            `json:"priority"`
	Content      NotificationContent `json:"content"`
	Recipients   []*RecipientEntry   `json:"recipients"`
	CreatedAt    time.Time           `json:"created_at"`
	ScheduledFor *time.Time          `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}

// Expired reports whether the notification's delivery window has passed.
func (n *Notification) Expired(now time.Time) bool {
	return n.ExpiresAt != nil && now.After(*n.ExpiresAt)
}

// Recipient returns the entry for the given user, or nil.
func (n *Notification) Recipient(userID uuid.UUID) *RecipientEntry {
	for _, r := range n.Recipients {
		if r.UserID == userID {
			return r
		}
	}
	return nil
}

// RecipientInput identifies one intended recipient on create.
type RecipientInput struct {
	UserID   uuid.UUID `json:"user_id" binding:"required"`
	UserRole string    `json:"user_role"`
}

// NotificationInput is the create-notification request body; server-assigned
// fields (id, created_at, per-recipient status) are absent.
type NotificationInput struct {
	Type         string              `json:"type" binding:"required"`
	Category     Category            `json:"category"`
	Priority     Priority            `json:"priority"`
	Content      NotificationContent `json:"content"`
	Recipients   []RecipientInput    `json:"recipients" binding:"required,min=1,dive"`
	ScheduledFor *time.Time          `json:"scheduled_for,omitempty"`
	ExpiresAt    *time.Time          `json:"expires_at,omitempty"`
}
