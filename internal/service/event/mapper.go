package event

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
)

// Kind is a compile-time-checked event kind. The registry below
// replaces the string-keyed closure table the channels grew up with:
// unknown kinds fail at Map time, handlers are plain functions.
type Kind string

const (
	KindAppointmentReminder Kind = "appointment_reminder"
	KindPrescriptionReady   Kind = "prescription_ready"
	KindPrescriptionRecall  Kind = "prescription_recall"
	KindLabResults          Kind = "lab_results"
	KindPaymentFailed       Kind = "payment_failed"
	KindOrderShipped        Kind = "order_shipped"
	KindSecurityAlert       Kind = "security_alert"
	KindSystemMaintenance   Kind = "system_maintenance"
	KindMarketingPromo      Kind = "marketing_promo"
)

// Payload carries the domain event data handed to a mapper.
type Payload struct {
	Recipients []model.RecipientInput `json:"recipients"`
	Subject    string                 `json:"subject"`
	Detail     string                 `json:"detail"`
	ActionURL  string                 `json:"action_url,omitempty"`
	Fields     map[string]string      `json:"fields,omitempty"`
}

// MapperFunc translates one event kind into a notification input.
type MapperFunc func(p Payload) (*model.NotificationInput, error)

// Registry holds the kind→mapper table.
type Registry struct {
	mappers map[Kind]MapperFunc
}

func NewRegistry() *Registry {
	r := &Registry{mappers: make(map[Kind]MapperFunc)}
	r.registerBuiltins()
	return r
}

// Register adds or replaces the mapper for a kind.
func (r *Registry) Register(kind Kind, fn MapperFunc) {
	r.mappers[kind] = fn
}

// Map translates an event into a notification input, or fails for
// unknown kinds.
func (r *Registry) Map(kind Kind, p Payload) (*model.NotificationInput, error) {
	fn, ok := r.mappers[kind]
	if !ok {
		return nil, fmt.Errorf("unknown event kind: %s", kind)
	}
	if len(p.Recipients) == 0 {
		return nil, fmt.Errorf("event %s has no recipients", kind)
	}
	for _, rec := range p.Recipients {
		if rec.UserID == uuid.Nil {
			return nil, fmt.Errorf("event %s has a recipient without a user id", kind)
		}
	}
	return fn(p)
}

func (r *Registry) registerBuiltins() {
	r.Register(KindAppointmentReminder, simple("appointment_reminder", model.CategoryMedical, model.PriorityMedium, "Appointment reminder"))
	r.Register(KindPrescriptionReady, simple("prescription_ready", model.CategoryMedical, model.PriorityHigh, "Your prescription is ready"))
	r.Register(KindPrescriptionRecall, simple("prescription_recall", model.CategoryMedical, model.PriorityCritical, "Prescription recall notice"))
	r.Register(KindLabResults, simple("lab_results", model.CategoryMedical, model.PriorityHigh, "Lab results available"))
	r.Register(KindPaymentFailed, simple("payment_failed", model.CategoryAdministrative, model.PriorityHigh, "Payment failed"))
	r.Register(KindOrderShipped, simple("order_shipped", model.CategoryAdministrative, model.PriorityLow, "Your order has shipped"))
	r.Register(KindSecurityAlert, simple("security_alert", model.CategorySystem, model.PriorityCritical, "Security alert"))
	r.Register(KindSystemMaintenance, simple("system_maintenance", model.CategorySystem, model.PriorityMedium, "Scheduled maintenance"))
	r.Register(KindMarketingPromo, simple("marketing_promo", model.CategoryMarketing, model.PriorityLow, "New offers for you"))
}

// simple builds a mapper with a fixed type/category/priority; the
// payload supplies the body and recipients.
func simple(notifType string, category model.Category, priority model.Priority, defaultTitle string) MapperFunc {
	return func(p Payload) (*model.NotificationInput, error) {
		title := p.Subject
		if title == "" {
			title = defaultTitle
		}
		return &model.NotificationInput{
			Type:     notifType,
			Category: category,
			Priority: priority,
			Content: model.NotificationContent{
				Title:     title,
				Body:      p.Detail,
				ActionURL: p.ActionURL,
			},
			Recipients: p.Recipients,
		}, nil
	}
}
