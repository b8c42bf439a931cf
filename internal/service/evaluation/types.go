package evaluation

import (
	"github.com/jwalitptl/notification-engine/internal/model"
)

// Decision reasons
const (
	ReasonCriticalOverride        = "critical_override"
	ReasonGloballyDisabled        = "globally_disabled"
	ReasonQuietHours              = "quiet_hours"
	ReasonNoChannelsEnabled       = "no_channels_enabled"
	ReasonCriticalMinimumDelivery = "critical_minimum_delivery"
	ReasonAllChecksPassed         = "all_checks_passed"
)

// Per-channel disqualification reasons
const (
	ReasonChannelDisabled           = "channel_disabled"
	ReasonTypeDisabled              = "type_disabled"
	ReasonTypeChannelNotAllowed     = "type_channel_not_allowed"
	ReasonCategoryDisabled          = "category_disabled"
	ReasonPriorityBelowThreshold    = "priority_below_threshold"
	ReasonCategoryChannelNotAllowed = "category_channel_not_allowed"
	ReasonEmergencyOnly             = "emergency_only"
	ReasonNoEmailAddress            = "no_email_address"
	ReasonNoPhoneNumber             = "no_phone_number"
	reasonEligible                  = "eligible"
)

// Decision is the outcome of evaluating one recipient's preferences
// against one notification. Channels is the ordered attempt list.
type Decision struct {
	ShouldDeliver bool            `json:"should_deliver"`
	Channels      []string        `json:"channels"`
	Reason        string          `json:"reason"`
	Deferred      map[string]bool `json:"deferred,omitempty"`
}

// criticalTypes always force delivery regardless of preferences.
var criticalTypes = map[string]bool{
	"security_alert":      true,
	"data_breach":         true,
	"prescription_recall": true,
	"emergency_alert":     true,
}

// securityAlertTypes count as emergency-level for SMS emergency-only mode.
var securityAlertTypes = map[string]bool{
	"security_alert": true,
	"data_breach":    true,
}

// typeCategories derives a category when the notification carries none.
var typeCategories = map[string]model.Category{
	"appointment_reminder":  model.CategoryMedical,
	"appointment_cancelled": model.CategoryMedical,
	"prescription_ready":    model.CategoryMedical,
	"prescription_recall":   model.CategoryMedical,
	"lab_results":           model.CategoryMedical,
	"payment_failed":        model.CategoryAdministrative,
	"invoice_due":           model.CategoryAdministrative,
	"order_shipped":         model.CategoryAdministrative,
	"security_alert":        model.CategorySystem,
	"data_breach":           model.CategorySystem,
	"system_maintenance":    model.CategorySystem,
	"emergency_alert":       model.CategorySystem,
	"password_changed":      model.CategorySystem,
	"marketing_promo":       model.CategoryMarketing,
	"newsletter":            model.CategoryMarketing,
}

// thresholdLevels maps a category priority threshold to the minimum
// notification priority level it admits.
var thresholdLevels = map[string]int{
	model.ThresholdAll:      model.PriorityLow.Level(),
	model.ThresholdHigh:     model.PriorityHigh.Level(),
	model.ThresholdCritical: model.PriorityCritical.Level(),
}

// ResolveCategory returns the notification's category, deriving it
// from the type table when unset. Unknown types land in system so a
// misconfigured producer is never silently downgraded to marketing.
func ResolveCategory(n *model.Notification) model.Category {
	if n.Category != "" {
		return n.Category
	}
	if c, ok := typeCategories[n.Type]; ok {
		return c
	}
	return model.CategorySystem
}

// IsCritical reports whether the notification must be delivered
// regardless of preferences. Any one of the three signals suffices:
// priority at critical or above, a hardwired critical type, or the
// system category.
func IsCritical(n *model.Notification) bool {
	if n.Priority.Level() >= model.PriorityCritical.Level() {
		return true
	}
	if criticalTypes[n.Type] {
		return true
	}
	return ResolveCategory(n) == model.CategorySystem
}

// IsEmergencyLevel reports whether the notification clears SMS
// emergency-only mode: emergency priority, a security-alert type, or
// critical-priority medical.
func IsEmergencyLevel(n *model.Notification) bool {
	if n.Priority == model.PriorityEmergency {
		return true
	}
	if securityAlertTypes[n.Type] {
		return true
	}
	return ResolveCategory(n) == model.CategoryMedical && n.Priority == model.PriorityCritical
}

// channelOrder returns the attempt order for the given notification:
// urgent traffic tries the fast channels first, routine traffic saves
// SMS for last.
func channelOrder(n *model.Notification) []string {
	if IsCritical(n) {
		return []string{model.ChannelWebsocket, model.ChannelSMS, model.ChannelEmail}
	}
	return []string{model.ChannelWebsocket, model.ChannelEmail, model.ChannelSMS}
}
