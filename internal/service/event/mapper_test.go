package event

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-engine/internal/model"
)

func payloadFixture() Payload {
	return Payload{
		Recipients: []model.RecipientInput{{UserID: uuid.New(), UserRole: "patient"}},
		Subject:    "Pick up at the pharmacy",
		Detail:     "Your prescription #42 is ready.",
		ActionURL:  "https://portal.example.com/rx/42",
	}
}

func TestRegistry_MapBuiltinKind(t *testing.T) {
	r := NewRegistry()
	p := payloadFixture()

	input, err := r.Map(KindPrescriptionReady, p)
	require.NoError(t, err)

	assert.Equal(t, "prescription_ready", input.Type)
	assert.Equal(t, model.CategoryMedical, input.Category)
	assert.Equal(t, model.PriorityHigh, input.Priority)
	assert.Equal(t, p.Subject, input.Content.Title)
	assert.Equal(t, p.Detail, input.Content.Body)
	assert.Equal(t, p.ActionURL, input.Content.ActionURL)
	assert.Equal(t, p.Recipients, input.Recipients)
}

func TestRegistry_DefaultTitleWhenSubjectEmpty(t *testing.T) {
	r := NewRegistry()
	p := payloadFixture()
	p.Subject = ""

	input, err := r.Map(KindSecurityAlert, p)
	require.NoError(t, err)
	assert.Equal(t, "Security alert", input.Content.Title)
	assert.Equal(t, model.PriorityCritical, input.Priority)
}

func TestRegistry_UnknownKind(t *testing.T) {
	r := NewRegistry()

	_, err := r.Map(Kind("made_up"), payloadFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event kind")
}

func TestRegistry_RejectsBadRecipients(t *testing.T) {
	r := NewRegistry()

	p := payloadFixture()
	p.Recipients = nil
	_, err := r.Map(KindLabResults, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no recipients")

	p = payloadFixture()
	p.Recipients = append(p.Recipients, model.RecipientInput{})
	_, err = r.Map(KindLabResults, p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "without a user id")
}

func TestRegistry_RegisterOverridesBuiltin(t *testing.T) {
	r := NewRegistry()
	r.Register(KindOrderShipped, func(p Payload) (*model.NotificationInput, error) {
		return &model.NotificationInput{
			Type:       "order_shipped",
			Category:   model.CategoryAdministrative,
			Priority:   model.PriorityMedium,
			Content:    model.NotificationContent{Title: "custom"},
			Recipients: p.Recipients,
		}, nil
	})

	input, err := r.Map(KindOrderShipped, payloadFixture())
	require.NoError(t, err)
	assert.Equal(t, "custom", input.Content.Title)
	assert.Equal(t, model.PriorityMedium, input.Priority)
}
