package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

type notificationRow struct {
	ID           uuid.UUID       `db:"id"`
	Type         string          `db:"type"`
	Category     string          `db:"category"`
	Priority     string          `db:"priority"`
	Title        string          `db:"title"`
	Body         string          `db:"body"`
	ActionURL    string          `db:"action_url"`
	ActionLabel  string          `db:"action_label"`
	Recipients   json.RawMessage `db:"recipients"`
	CreatedAt    time.Time       `db:"created_at"`
	ScheduledFor *time.Time      `db:"scheduled_for"`
	ExpiresAt    *time.Time      `db:"expires_at"`
}

type notificationRepository struct {
	*BaseRepository
}

func NewNotificationRepository(base *BaseRepository) repository.NotificationRepository {
	return &notificationRepository{BaseRepository: base}
}

func (r *notificationRepository) Create(ctx context.Context, n *model.Notification) (err error) {
	defer func(start time.Time) { r.observe("notification_create", start, err) }(time.Now())

	recipients, err := json.Marshal(n.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}

	query := `
		INSERT INTO notifications (
			id, type, category, priority, title, body, action_url, action_label,
			recipients, created_at, scheduled_for, expires_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
	`
	_, err = r.db.ExecContext(ctx, query,
		n.ID,
		n.Type,
		string(n.Category),
		string(n.Priority),
		n.Content.Title,
		n.Content.Body,
		n.Content.ActionURL,
		n.Content.ActionLabel,
		recipients,
		n.CreatedAt,
		n.ScheduledFor,
		n.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) Get(ctx context.Context, id uuid.UUID) (n *model.Notification, err error) {
	defer func(start time.Time) { r.observe("notification_get", start, err) }(time.Now())

	query := `
		SELECT id, type, category, priority, title, body, action_url, action_label,
			recipients, created_at, scheduled_for, expires_at
		FROM notifications
		WHERE id = $1
	`
	var row notificationRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}
	return row.toModel()
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID uuid.UUID, limit int) (out []*model.Notification, err error) {
	defer func(start time.Time) { r.observe("notification_list", start, err) }(time.Now())

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, type, category, priority, title, body, action_url, action_label,
			recipients, created_at, scheduled_for, expires_at
		FROM notifications
		WHERE recipients @> $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	match, err := json.Marshal([]map[string]interface{}{{"user_id": userID.String()}})
	if err != nil {
		return nil, fmt.Errorf("failed to build recipient filter: %w", err)
	}

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, query, match, limit); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}

	out = make([]*model.Notification, 0, len(rows))
	for i := range rows {
		n, err := rows[i].toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

// UpdateRecipientStatus rewrites one recipient's channel record under a
// row lock. The worker holding the queue item's lease is the only
// writer for a given recipient, the lock guards against concurrent
// recipients of the same notification.
func (r *notificationRepository) UpdateRecipientStatus(ctx context.Context, notificationID, recipientID uuid.UUID, channel string, record model.DeliveryRecord) (err error) {
	defer func(start time.Time) { r.observe("notification_update_status", start, err) }(time.Now())

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var raw json.RawMessage
		if err := tx.GetContext(ctx, &raw,
			`SELECT recipients FROM notifications WHERE id = $1 FOR UPDATE`, notificationID); err != nil {
			if err == sql.ErrNoRows {
				return repository.ErrNotFound
			}
			return fmt.Errorf("failed to lock notification: %w", err)
		}

		var recipients []*model.RecipientEntry
		if err := json.Unmarshal(raw, &recipients); err != nil {
			return fmt.Errorf("failed to unmarshal recipients: %w", err)
		}

		found := false
		for _, rec := range recipients {
			if rec.UserID == recipientID {
				if rec.DeliveryStatus == nil {
					rec.DeliveryStatus = make(map[string]model.DeliveryRecord)
				}
				rec.DeliveryStatus[channel] = record
				found = true
				break
			}
		}
		if !found {
			return repository.ErrNotFound
		}

		updated, err := json.Marshal(recipients)
		if err != nil {
			return fmt.Errorf("failed to marshal recipients: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE notifications SET recipients = $1 WHERE id = $2`, updated, notificationID); err != nil {
			return fmt.Errorf("failed to update recipient status: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO delivery_attempts (notification_id, recipient_id, channel, status, error, attempted_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			notificationID, recipientID, channel, string(record.Status), record.Error, record.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to record delivery attempt: %w", err)
		}
		return nil
	})
}

func (row *notificationRow) toModel() (*model.Notification, error) {
	var recipients []*model.RecipientEntry
	if len(row.Recipients) > 0 {
		if err := json.Unmarshal(row.Recipients, &recipients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal recipients: %w", err)
		}
	}
	return &model.Notification{
		ID:       row.ID,
		Type:     row.Type,
		Category: model.Category(row.Category),
		Priority: model.Priority(row.Priority),
		Content: model.NotificationContent{
			Title:       row.Title,
			Body:        row.Body,
			ActionURL:   row.ActionURL,
			ActionLabel: row.ActionLabel,
		},
		Recipients:   recipients,
		CreatedAt:    row.CreatedAt,
		ScheduledFor: row.ScheduledFor,
		ExpiresAt:    row.ExpiresAt,
	}, nil
}
