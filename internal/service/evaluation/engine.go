package evaluation

import (
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/notification-engine/internal/model"
)

// Evaluate decides whether and how a notification reaches one
// recipient. Pure and deterministic: all inputs are passed in, no I/O.
// The caller is responsible for substituting default preferences when
// the store cannot be read.
func Evaluate(prefs *model.UserPreferences, n *model.Notification, now time.Time) Decision {
	critical := IsCritical(n)

	if !prefs.GlobalSettings.Enabled {
		if critical {
			return Decision{
				ShouldDeliver: true,
				Channels:      channelOrder(n),
				Reason:        ReasonCriticalOverride,
			}
		}
		return Decision{ShouldDeliver: false, Reason: ReasonGloballyDisabled}
	}

	if prefs.GlobalSettings.QuietHours.Enabled && !critical &&
		inQuietHours(prefs.GlobalSettings.QuietHours, now) {
		return Decision{ShouldDeliver: false, Reason: ReasonQuietHours}
	}

	var channels []string
	var deferred map[string]bool
	for _, channel := range channelOrder(n) {
		res := evaluateChannel(prefs, n, channel)
		if !res.eligible {
			continue
		}
		channels = append(channels, channel)
		if res.deferred {
			if deferred == nil {
				deferred = make(map[string]bool)
			}
			deferred[channel] = true
		}
	}

	if len(channels) == 0 {
		if critical {
			return Decision{
				ShouldDeliver: true,
				Channels:      []string{model.ChannelWebsocket},
				Reason:        ReasonCriticalMinimumDelivery,
			}
		}
		return Decision{ShouldDeliver: false, Reason: ReasonNoChannelsEnabled}
	}

	return Decision{
		ShouldDeliver: true,
		Channels:      channels,
		Reason:        ReasonAllChecksPassed,
		Deferred:      deferred,
	}
}

type channelResult struct {
	eligible bool
	reason   string
	deferred bool
}

// evaluateChannel applies the per-channel checks in order. A failed
// check disqualifies this channel only, never the whole notification.
// Type-level and category-level restrictions both apply: the type
// entry narrows the category entry, neither overrides the other.
func evaluateChannel(prefs *model.UserPreferences, n *model.Notification, channel string) channelResult {
	setting, ok := prefs.ChannelSetting(channel)
	if !ok || !setting.Enabled {
		return channelResult{reason: ReasonChannelDisabled}
	}

	if typeSetting, ok := prefs.NotificationTypes[n.Type]; ok {
		if !typeSetting.Enabled {
			return channelResult{reason: ReasonTypeDisabled}
		}
		if len(typeSetting.AllowedChannels) > 0 && !contains(typeSetting.AllowedChannels, channel) {
			return channelResult{reason: ReasonTypeChannelNotAllowed}
		}
	}

	category := ResolveCategory(n)
	if catSetting, ok := prefs.Categories[category]; ok {
		if !catSetting.Enabled {
			return channelResult{reason: ReasonCategoryDisabled}
		}
		if min, ok := thresholdLevels[catSetting.PriorityThreshold]; ok && n.Priority.Level() < min {
			return channelResult{reason: ReasonPriorityBelowThreshold}
		}
		if len(catSetting.AllowedChannels) > 0 && !contains(catSetting.AllowedChannels, channel) {
			return channelResult{reason: ReasonCategoryChannelNotAllowed}
		}
	}

	deferred := false
	switch channel {
	case model.ChannelSMS:
		if setting.EmergencyOnly && !IsEmergencyLevel(n) {
			return channelResult{reason: ReasonEmergencyOnly}
		}
	case model.ChannelEmail:
		// Digest mode defers dispatch, it never disqualifies.
		deferred = setting.Frequency == model.FrequencyDigest
	}

	switch channel {
	case model.ChannelEmail:
		if prefs.ContactInfo.Email == "" {
			return channelResult{reason: ReasonNoEmailAddress}
		}
	case model.ChannelSMS:
		if prefs.ContactInfo.Phone == "" {
			return channelResult{reason: ReasonNoPhoneNumber}
		}
	}

	return channelResult{eligible: true, reason: reasonEligible, deferred: deferred}
}

// inQuietHours tests whether now falls inside the configured window in
// the user's timezone. Windows that cross midnight wrap: start > end
// means "from start until end the next morning".
func inQuietHours(qh model.QuietHours, now time.Time) bool {
	start, okStart := parseMinutes(qh.StartTime)
	end, okEnd := parseMinutes(qh.EndTime)
	if !okStart || !okEnd {
		return false
	}

	loc, err := time.LoadLocation(qh.Timezone)
	if err != nil || qh.Timezone == "" {
		loc = time.UTC
	}
	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	if start > end {
		return minutes >= start || minutes <= end
	}
	return minutes >= start && minutes <= end
}

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, false
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
