package preference

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
	"github.com/jwalitptl/notification-engine/pkg/logger"
)

type fakePreferenceRepo struct {
	records  map[uuid.UUID]*model.UserPreferences
	getErr   error
	upserts  int
	getCalls int
}

func newFakePreferenceRepo() *fakePreferenceRepo {
	return &fakePreferenceRepo{records: make(map[uuid.UUID]*model.UserPreferences)}
}

func (f *fakePreferenceRepo) Get(_ context.Context, userID uuid.UUID) (*model.UserPreferences, error) {
	f.getCalls++
	if f.getErr != nil {
		return nil, f.getErr
	}
	prefs, ok := f.records[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return prefs, nil
}

func (f *fakePreferenceRepo) Upsert(_ context.Context, prefs *model.UserPreferences) error {
	f.upserts++
	f.records[prefs.UserID] = prefs
	return nil
}

func TestService_GetSubstitutesDefaultsWhenMissing(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))

	userID := uuid.New()
	prefs := svc.Get(context.Background(), userID)

	require.NotNil(t, prefs)
	assert.Equal(t, userID, prefs.UserID)
	assert.True(t, prefs.GlobalSettings.Enabled)
	assert.True(t, prefs.Channels[model.ChannelWebsocket].Enabled)
}

func TestService_GetSubstitutesDefaultsOnStoreError(t *testing.T) {
	repo := newFakePreferenceRepo()
	repo.getErr = errors.New("connection refused")
	svc := NewService(repo, logger.NewLogger(nil))

	prefs := svc.Get(context.Background(), uuid.New())
	require.NotNil(t, prefs)
	assert.True(t, prefs.GlobalSettings.Enabled)
}

func TestService_GetCachesStoredRecord(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))

	userID := uuid.New()
	stored := model.DefaultPreferences(userID)
	stored.ContactInfo.Email = "cached@example.com"
	repo.records[userID] = stored

	first := svc.Get(context.Background(), userID)
	second := svc.Get(context.Background(), userID)

	assert.Equal(t, "cached@example.com", first.ContactInfo.Email)
	assert.Equal(t, "cached@example.com", second.ContactInfo.Email)
	assert.Equal(t, 1, repo.getCalls)
}

func TestService_SetInvalidatesCache(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))

	userID := uuid.New()
	repo.records[userID] = model.DefaultPreferences(userID)
	svc.Get(context.Background(), userID)

	updated := model.DefaultPreferences(userID)
	updated.ContactInfo.Email = "new@example.com"
	require.NoError(t, svc.Set(context.Background(), userID, updated))

	got := svc.Get(context.Background(), userID)
	assert.Equal(t, "new@example.com", got.ContactInfo.Email)
	assert.Equal(t, 2, repo.getCalls)
}

func TestService_SetStampsUserID(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))

	userID := uuid.New()
	prefs := model.DefaultPreferences(uuid.New())
	require.NoError(t, svc.Set(context.Background(), userID, prefs))
	assert.Equal(t, userID, prefs.UserID)
	assert.Contains(t, repo.records, userID)
}

func TestService_SetValidation(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))
	userID := uuid.New()

	tests := []struct {
		name   string
		mutate func(*model.UserPreferences)
		field  string
	}{
		{
			name:   "bad global frequency",
			mutate: func(p *model.UserPreferences) { p.GlobalSettings.Frequency = "fortnightly" },
			field:  "global_settings.frequency",
		},
		{
			name: "bad quiet hours start",
			mutate: func(p *model.UserPreferences) {
				p.GlobalSettings.QuietHours = model.QuietHours{Enabled: true, StartTime: "25:00", EndTime: "08:00"}
			},
			field: "global_settings.quiet_hours.start_time",
		},
		{
			name: "bad timezone",
			mutate: func(p *model.UserPreferences) {
				p.GlobalSettings.QuietHours = model.QuietHours{
					Enabled: true, StartTime: "22:00", EndTime: "08:00", Timezone: "Mars/Olympus",
				}
			},
			field: "global_settings.quiet_hours.timezone",
		},
		{
			name:   "unknown channel",
			mutate: func(p *model.UserPreferences) { p.Channels["pager"] = model.ChannelSetting{Enabled: true} },
			field:  "channels",
		},
		{
			name: "bad email frequency",
			mutate: func(p *model.UserPreferences) {
				p.Channels[model.ChannelEmail] = model.ChannelSetting{Enabled: true, Frequency: "hourly"}
			},
			field: "channels.email.frequency",
		},
		{
			name: "bad category threshold",
			mutate: func(p *model.UserPreferences) {
				p.Categories[model.CategoryMedical] = model.CategorySetting{Enabled: true, PriorityThreshold: "urgent"}
			},
			field: "categories.medical.priority_threshold",
		},
		{
			name: "bad type channel",
			mutate: func(p *model.UserPreferences) {
				p.NotificationTypes["lab_results"] = model.TypeSetting{Enabled: true, AllowedChannels: []string{"fax"}}
			},
			field: "notification_types.lab_results.allowed_channels",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefs := model.DefaultPreferences(userID)
			tt.mutate(prefs)

			err := svc.Set(context.Background(), userID, prefs)
			require.Error(t, err)
			ve, ok := apperrors.IsValidation(err)
			require.True(t, ok)
			assert.Equal(t, tt.field, ve.Field)
			assert.Zero(t, repo.upserts)
		})
	}
}

func TestService_ResetWritesDefaultsInPlace(t *testing.T) {
	repo := newFakePreferenceRepo()
	svc := NewService(repo, logger.NewLogger(nil))

	userID := uuid.New()
	custom := model.DefaultPreferences(userID)
	custom.GlobalSettings.Enabled = false
	require.NoError(t, svc.Set(context.Background(), userID, custom))

	defaults, err := svc.Reset(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, defaults.GlobalSettings.Enabled)

	// The record still exists and reads back as defaults.
	got := svc.Get(context.Background(), userID)
	assert.True(t, got.GlobalSettings.Enabled)
}
