package notification

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
	"github.com/jwalitptl/notification-engine/pkg/logger"
	"github.com/jwalitptl/notification-engine/pkg/metrics"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
	"github.com/jwalitptl/notification-engine/internal/service/evaluation"
	"github.com/jwalitptl/notification-engine/internal/service/preference"
)

type Service interface {
	Create(ctx context.Context, input *model.NotificationInput) (*model.Notification, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Notification, error)
	ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error)
}

type service struct {
	repo    repository.NotificationRepository
	queue   repository.DeliveryQueue
	prefs   preference.Service
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewService(
	repo repository.NotificationRepository,
	queue repository.DeliveryQueue,
	prefs preference.Service,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) Service {
	return &service{
		repo:    repo,
		queue:   queue,
		prefs:   prefs,
		logger:  logger,
		metrics: metrics,
	}
}

// Create validates the input, evaluates every recipient independently
// and enqueues one delivery item per deliverable recipient. A failure
// for one recipient never affects the others.
func (s *service) Create(ctx context.Context, input *model.NotificationInput) (*model.Notification, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	n := &model.Notification{
		ID:           uuid.New(),
		Type:         input.Type,
		Category:     input.Category,
		Priority:     input.Priority,
		Content:      input.Content,
		CreatedAt:    now,
		ScheduledFor: input.ScheduledFor,
		ExpiresAt:    input.ExpiresAt,
	}
	if n.Priority == "" {
		n.Priority = model.PriorityMedium
	}

	type pending struct {
		entry    *model.RecipientEntry
		decision evaluation.Decision
		prefs    *model.UserPreferences
	}
	var deliverable []pending

	for _, rec := range input.Recipients {
		prefs := s.prefs.Get(ctx, rec.UserID)
		decision := evaluation.Evaluate(prefs, n, now)
		s.metrics.Evaluations.WithLabelValues(decision.Reason, strconv.FormatBool(decision.ShouldDeliver)).Inc()

		entry := &model.RecipientEntry{
			UserID:           rec.UserID,
			UserRole:         rec.UserRole,
			ApprovedChannels: decision.Channels,
			Reason:           decision.Reason,
			DeliveryStatus:   make(map[string]model.DeliveryRecord),
		}
		n.Recipients = append(n.Recipients, entry)

		if decision.ShouldDeliver {
			deliverable = append(deliverable, pending{entry: entry, decision: decision, prefs: prefs})
		}
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to store notification: %w", err)
	}

	if len(deliverable) == 0 {
		// Logged no-op, never an error for the producer.
		s.logger.Info("no eligible recipients",
			"notification_id", n.ID.String(),
			"type", n.Type)
		return n, nil
	}

	for _, p := range deliverable {
		if err := s.enqueue(ctx, n, p.entry, p.decision, p.prefs, now); err != nil {
			s.logger.Error(err, "failed to enqueue delivery",
				"notification_id", n.ID.String(),
				"recipient_id", p.entry.UserID.String())
			continue
		}
	}

	return n, nil
}

// enqueue fans one recipient out into queue items. Email in digest
// mode is split off and parked until the user's digest time; everything
// else dispatches at the notification's scheduled time or immediately.
func (s *service) enqueue(ctx context.Context, n *model.Notification, entry *model.RecipientEntry, decision evaluation.Decision, prefs *model.UserPreferences, now time.Time) error {
	var immediate, digest []string
	for _, ch := range decision.Channels {
		if ch == model.ChannelEmail && decision.Deferred[ch] {
			digest = append(digest, ch)
			continue
		}
		immediate = append(immediate, ch)
	}

	if len(immediate) > 0 {
		item := &model.QueueItem{
			ID:             uuid.New(),
			NotificationID: n.ID,
			RecipientID:    entry.UserID,
			Channels:       immediate,
			Priority:       n.Priority,
			EnqueuedAt:     now,
		}
		var err error
		if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
			err = s.queue.EnqueueAt(ctx, item, *n.ScheduledFor)
		} else {
			err = s.queue.Enqueue(ctx, item)
		}
		if err != nil {
			return fmt.Errorf("failed to enqueue: %w", err)
		}
		s.metrics.ItemsEnqueued.Inc()
	}

	if len(digest) > 0 {
		item := &model.QueueItem{
			ID:             uuid.New(),
			NotificationID: n.ID,
			RecipientID:    entry.UserID,
			Channels:       digest,
			Priority:       n.Priority,
			EnqueuedAt:     now,
			Deferred:       true,
		}
		if err := s.queue.EnqueueAt(ctx, item, nextDigestTime(prefs, now)); err != nil {
			return fmt.Errorf("failed to enqueue digest item: %w", err)
		}
		s.metrics.ItemsEnqueued.Inc()
	}

	return nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*model.Notification, error) {
	return s.repo.Get(ctx, id)
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*model.Notification, error) {
	return s.repo.ListForUser(ctx, userID, limit)
}

func validateInput(input *model.NotificationInput) error {
	if input == nil {
		return apperrors.NewValidation("body", "must not be empty")
	}
	if input.Type == "" {
		return apperrors.NewValidation("type", "is required")
	}
	if input.Category != "" && !input.Category.Valid() {
		return apperrors.NewValidation("category", fmt.Sprintf("unknown category %q", input.Category))
	}
	if input.Priority != "" && !input.Priority.Valid() {
		return apperrors.NewValidation("priority", fmt.Sprintf("unknown priority %q", input.Priority))
	}
	if input.Content.Title == "" {
		return apperrors.NewValidation("content.title", "is required")
	}
	if input.Content.Body == "" {
		return apperrors.NewValidation("content.body", "is required")
	}
	if len(input.Recipients) == 0 {
		return apperrors.NewValidation("recipients", "at least one recipient is required")
	}
	for i, rec := range input.Recipients {
		if rec.UserID == uuid.Nil {
			return apperrors.NewValidation(fmt.Sprintf("recipients[%d].user_id", i), "is required")
		}
	}
	if input.ExpiresAt != nil && input.ScheduledFor != nil && input.ExpiresAt.Before(*input.ScheduledFor) {
		return apperrors.NewValidation("expires_at", "must be after scheduled_for")
	}
	return nil
}

// nextDigestTime finds the next occurrence of the user's digest time in
// their timezone, defaulting to 08:00 UTC.
func nextDigestTime(prefs *model.UserPreferences, now time.Time) time.Time {
	digestAt := "08:00"
	if setting, ok := prefs.ChannelSetting(model.ChannelEmail); ok && setting.DigestTime != "" {
		digestAt = setting.DigestTime
	}

	loc := time.UTC
	if tz := prefs.GlobalSettings.QuietHours.Timezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	parsed, err := time.Parse("15:04", digestAt)
	if err != nil {
		parsed, _ = time.Parse("15:04", "08:00")
	}

	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), parsed.Hour(), parsed.Minute(), 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
