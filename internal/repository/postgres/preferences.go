package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

type preferenceRepository struct {
	*BaseRepository
}

func NewPreferenceRepository(base *BaseRepository) repository.PreferenceRepository {
	return &preferenceRepository{BaseRepository: base}
}

func (r *preferenceRepository) Get(ctx context.Context, userID uuid.UUID) (p *model.UserPreferences, err error) {
	defer func(start time.Time) { r.observe("preferences_get", start, err) }(time.Now())

	query := `
		SELECT prefs, updated_at
		FROM user_preferences
		WHERE user_id = $1
	`
	var row struct {
		Prefs     json.RawMessage `db:"prefs"`
		UpdatedAt time.Time       `db:"updated_at"`
	}
	if err := r.db.GetContext(ctx, &row, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get preferences: %w", err)
	}

	var prefs model.UserPreferences
	if err := json.Unmarshal(row.Prefs, &prefs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal preferences: %w", err)
	}
	prefs.UserID = userID
	prefs.UpdatedAt = row.UpdatedAt
	return &prefs, nil
}

func (r *preferenceRepository) Upsert(ctx context.Context, prefs *model.UserPreferences) (err error) {
	defer func(start time.Time) { r.observe("preferences_upsert", start, err) }(time.Now())

	prefs.UpdatedAt = time.Now()
	payload, err := json.Marshal(prefs)
	if err != nil {
		return fmt.Errorf("failed to marshal preferences: %w", err)
	}

	query := `
		INSERT INTO user_preferences (user_id, prefs, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET prefs = EXCLUDED.prefs, updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query, prefs.UserID, payload, prefs.UpdatedAt); err != nil {
		return fmt.Errorf("failed to upsert preferences: %w", err)
	}
	return nil
}
