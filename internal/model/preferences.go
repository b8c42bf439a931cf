package model

import (
	"time"

	"github.com/google/uuid"
)

// Delivery frequencies
const (
	FrequencyImmediate = "immediate"
	FrequencyHourly    = "hourly"
	FrequencyDaily     = "daily"
	FrequencyWeekly    = "weekly"
	FrequencyDigest    = "digest"
)

// Category priority thresholds
const (
	ThresholdAll      = "all"
	ThresholdHigh     = "high"
	ThresholdCritical = "critical"
)

type QuietHours struct {
	Enabled   bool   `json:"enabled"`
	StartTime string `json:"start_time" binding:"omitempty,hhmm"`
	EndTime   string `json:"end_time" binding:"omitempty,hhmm"`
	Timezone  string `json:"timezone"`
}

type GlobalSettings struct {
	Enabled    bool       `json:"enabled"`
	QuietHours QuietHours `json:"quiet_hours"`
	Frequency  string     `json:"frequency"`
}

type ChannelSetting struct {
	Enabled bool `json:"enabled"`
	// Email only: immediate or digest, with the local time digests go out.
	Frequency  string `json:"frequency,omitempty"`
	DigestTime string `json:"digest_time,omitempty"`
	// SMS only.
	EmergencyOnly bool `json:"emergency_only,omitempty"`
}

type CategorySetting struct {
	Enabled           bool     `json:"enabled"`
	AllowedChannels   []string `json:"allowed_channels,omitempty"`
	PriorityThreshold string   `json:"priority_threshold,omitempty"`
}

// TypeSetting is a per-notification-type override. When present it
// narrows the category rules further; absence means inherit.
type TypeSetting struct {
	Enabled         bool     `json:"enabled"`
	AllowedChannels []string `json:"allowed_channels,omitempty"`
}

type ContactInfo struct {
	Email    string `json:"email,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Language string `json:"language,omitempty"`
}

// UserPreferences is one record per user. Records are never deleted
// while the user exists; Reset writes defaults in place.
type UserPreferences struct {
	UserID            uuid.UUID                    `json:"user_id"`
	GlobalSettings    GlobalSettings               `json:"global_settings"`
	Channels          map[string]ChannelSetting    `json:"channels"`
	Categories        map[Category]CategorySetting `json:"categories"`
	NotificationTypes map[string]TypeSetting       `json:"notification_types"`
	ContactInfo       ContactInfo                  `json:"contact_info"`
	UpdatedAt         time.Time                    `json:"updated_at"`
}

// ChannelSetting returns the setting for a channel; unknown channels
// report disabled.
func (p *UserPreferences) ChannelSetting(channel string) (ChannelSetting, bool) {
	s, ok := p.Channels[channel]
	return s, ok
}

// DefaultPreferences is the documented fallback used whenever a user has
// no stored record or the store is unreachable: everything enabled,
// quiet hours off, immediate frequency.
func DefaultPreferences(userID uuid.UUID) *UserPreferences {
	return &UserPreferences{
		UserID: userID,
		GlobalSettings: GlobalSettings{
			Enabled:   true,
			Frequency: FrequencyImmediate,
			QuietHours: QuietHours{
				Enabled:  false,
				Timezone: "UTC",
			},
		},
		Channels: map[string]ChannelSetting{
			ChannelWebsocket: {Enabled: true},
			ChannelEmail:     {Enabled: true, Frequency: FrequencyImmediate},
			ChannelSMS:       {Enabled: true},
		},
		Categories:        map[Category]CategorySetting{},
		NotificationTypes: map[string]TypeSetting{},
		ContactInfo:       ContactInfo{Language: "en"},
		UpdatedAt:         time.Now(),
	}
}
