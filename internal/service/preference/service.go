package preference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
	"github.com/jwalitptl/notification-engine/pkg/logger"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

const (
	cacheTTL      = 5 * time.Minute
	cacheCleanup  = 10 * time.Minute
	validTimeSpec = "15:04"
)

type Service interface {
	// Get never fails: a missing record or an unreachable store yields
	// the documented defaults so evaluation always has input.
	Get(ctx context.Context, userID uuid.UUID) *model.UserPreferences
	Set(ctx context.Context, userID uuid.UUID, prefs *model.UserPreferences) error
	// Reset soft-resets to defaults; the record is never deleted.
	Reset(ctx context.Context, userID uuid.UUID) (*model.UserPreferences, error)
}

type service struct {
	repo   repository.PreferenceRepository
	cache  *gocache.Cache
	logger *logger.Logger
}

func NewService(repo repository.PreferenceRepository, logger *logger.Logger) Service {
	return &service{
		repo:   repo,
		cache:  gocache.New(cacheTTL, cacheCleanup),
		logger: logger,
	}
}

func (s *service) Get(ctx context.Context, userID uuid.UUID) *model.UserPreferences {
	if cached, ok := s.cache.Get(userID.String()); ok {
		return cached.(*model.UserPreferences)
	}

	prefs, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error(err, "failed to fetch preferences, substituting defaults",
				"user_id", userID.String())
		}
		return model.DefaultPreferences(userID)
	}

	s.cache.Set(userID.String(), prefs, cacheTTL)
	return prefs
}

func (s *service) Set(ctx context.Context, userID uuid.UUID, prefs *model.UserPreferences) error {
	if err := validate(prefs); err != nil {
		return err
	}
	prefs.UserID = userID

	if err := s.repo.Upsert(ctx, prefs); err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}

	s.cache.Delete(userID.String())
	return nil
}

func (s *service) Reset(ctx context.Context, userID uuid.UUID) (*model.UserPreferences, error) {
	defaults := model.DefaultPreferences(userID)
	if err := s.repo.Upsert(ctx, defaults); err != nil {
		return nil, fmt.Errorf("failed to reset preferences: %w", err)
	}
	s.cache.Delete(userID.String())
	return defaults, nil
}

func validate(prefs *model.UserPreferences) error {
	if prefs == nil {
		return apperrors.NewValidation("preferences", "must not be empty")
	}

	switch prefs.GlobalSettings.Frequency {
	case "", model.FrequencyImmediate, model.FrequencyHourly, model.FrequencyDaily, model.FrequencyWeekly:
	default:
		return apperrors.NewValidation("global_settings.frequency",
			fmt.Sprintf("unknown frequency %q", prefs.GlobalSettings.Frequency))
	}

	qh := prefs.GlobalSettings.QuietHours
	if qh.Enabled {
		if _, err := time.Parse(validTimeSpec, qh.StartTime); err != nil {
			return apperrors.NewValidation("global_settings.quiet_hours.start_time",
				"must be HH:MM")
		}
		if _, err := time.Parse(validTimeSpec, qh.EndTime); err != nil {
			return apperrors.NewValidation("global_settings.quiet_hours.end_time",
				"must be HH:MM")
		}
		if qh.Timezone != "" {
			if _, err := time.LoadLocation(qh.Timezone); err != nil {
				return apperrors.NewValidation("global_settings.quiet_hours.timezone",
					fmt.Sprintf("unknown timezone %q", qh.Timezone))
			}
		}
	}

	for name, setting := range prefs.Channels {
		if !contains(model.AllChannels, name) {
			return apperrors.NewValidation("channels", fmt.Sprintf("unknown channel %q", name))
		}
		if name == model.ChannelEmail {
			switch setting.Frequency {
			case "", model.FrequencyImmediate, model.FrequencyDigest:
			default:
				return apperrors.NewValidation("channels.email.frequency",
					fmt.Sprintf("unknown frequency %q", setting.Frequency))
			}
		}
	}

	for category, setting := range prefs.Categories {
		if !category.Valid() {
			return apperrors.NewValidation("categories", fmt.Sprintf("unknown category %q", category))
		}
		switch setting.PriorityThreshold {
		case "", model.ThresholdAll, model.ThresholdHigh, model.ThresholdCritical:
		default:
			return apperrors.NewValidation(
				fmt.Sprintf("categories.%s.priority_threshold", category),
				fmt.Sprintf("unknown threshold %q", setting.PriorityThreshold))
		}
		for _, ch := range setting.AllowedChannels {
			if !contains(model.AllChannels, ch) {
				return apperrors.NewValidation(
					fmt.Sprintf("categories.%s.allowed_channels", category),
					fmt.Sprintf("unknown channel %q", ch))
			}
		}
	}

	for typ, setting := range prefs.NotificationTypes {
		for _, ch := range setting.AllowedChannels {
			if !contains(model.AllChannels, ch) {
				return apperrors.NewValidation(
					fmt.Sprintf("notification_types.%s.allowed_channels", typ),
					fmt.Sprintf("unknown channel %q", ch))
			}
		}
	}

	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
