package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/pkg/logger"
	"github.com/jwalitptl/notification-engine/pkg/metrics"
)

type fakeSender struct {
	channel string
	err     error
	block   bool
	calls   int
}

func (f *fakeSender) Channel() string { return f.channel }

func (f *fakeSender) Send(ctx context.Context, _ uuid.UUID, _ model.ContactInfo, _ *model.Notification) error {
	f.calls++
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

type statusUpdate struct {
	notificationID uuid.UUID
	recipientID    uuid.UUID
	channel        string
	record         model.DeliveryRecord
}

type fakeNotificationRepo struct {
	updates   []statusUpdate
	updateErr error
}

func (f *fakeNotificationRepo) Create(context.Context, *model.Notification) error { return nil }

func (f *fakeNotificationRepo) Get(context.Context, uuid.UUID) (*model.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationRepo) ListForUser(context.Context, uuid.UUID, int) ([]*model.Notification, error) {
	return nil, nil
}

func (f *fakeNotificationRepo) UpdateRecipientStatus(_ context.Context, notificationID, recipientID uuid.UUID, channel string, record model.DeliveryRecord) error {
	f.updates = append(f.updates, statusUpdate{notificationID, recipientID, channel, record})
	return f.updateErr
}

func newTestManager(repo *fakeNotificationRepo, timeout time.Duration, senders ...Sender) *Manager {
	return NewManager(senders, repo, timeout, logger.NewLogger(nil), metrics.NewForTest())
}

func deliveryFixture() (*model.Notification, *model.RecipientEntry, model.ContactInfo) {
	rec := &model.RecipientEntry{
		UserID:           uuid.New(),
		ApprovedChannels: []string{model.ChannelWebsocket, model.ChannelEmail, model.ChannelSMS},
	}
	n := &model.Notification{
		ID:         uuid.New(),
		Type:       "lab_results",
		Category:   model.CategoryMedical,
		Priority:   model.PriorityHigh,
		Content:    model.NotificationContent{Title: "Results ready", Body: "..."},
		Recipients: []*model.RecipientEntry{rec},
		CreatedAt:  time.Now(),
	}
	contact := model.ContactInfo{Email: "user@example.com", Phone: "+15550100"}
	return n, rec, contact
}

func TestManager_FirstSuccessStopsTheWalk(t *testing.T) {
	ws := &fakeSender{channel: model.ChannelWebsocket}
	email := &fakeSender{channel: model.ChannelEmail}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, time.Second, ws, email)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelWebsocket, model.ChannelEmail})

	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, model.ChannelWebsocket, outcome.Channel)
	assert.Equal(t, 1, ws.calls)
	assert.Zero(t, email.calls)

	require.Len(t, repo.updates, 1)
	assert.Equal(t, model.ChannelStatusDelivered, repo.updates[0].record.Status)
	assert.Equal(t, model.ChannelStatusDelivered, rec.DeliveryStatus[model.ChannelWebsocket].Status)
}

func TestManager_FallsBackOnFailure(t *testing.T) {
	email := &fakeSender{channel: model.ChannelEmail, err: errors.New("smtp refused")}
	sms := &fakeSender{channel: model.ChannelSMS}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, time.Second, email, sms)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelEmail, model.ChannelSMS})

	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, model.ChannelSMS, outcome.Channel)
	assert.Equal(t, 1, email.calls)
	assert.Equal(t, 1, sms.calls)

	// Both attempts are stamped, failure included.
	assert.Equal(t, model.ChannelStatusFailed, rec.DeliveryStatus[model.ChannelEmail].Status)
	assert.Contains(t, rec.DeliveryStatus[model.ChannelEmail].Error, "smtp refused")
	assert.Equal(t, model.ChannelStatusDelivered, rec.DeliveryStatus[model.ChannelSMS].Status)
	assert.Len(t, repo.updates, 2)
}

func TestManager_AllChannelsFailed(t *testing.T) {
	ws := &fakeSender{channel: model.ChannelWebsocket, err: errors.New("no session")}
	email := &fakeSender{channel: model.ChannelEmail, err: errors.New("smtp down")}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, time.Second, ws, email)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelWebsocket, model.ChannelEmail})

	require.ErrorIs(t, err, ErrAllChannelsFailed)
	assert.False(t, outcome.Delivered)
	assert.Len(t, outcome.Attempts, 2)
	for _, record := range outcome.Attempts {
		assert.Equal(t, model.ChannelStatusFailed, record.Status)
	}
	assert.False(t, rec.Delivered())
}

func TestManager_TimeoutCountsAsFailure(t *testing.T) {
	slow := &fakeSender{channel: model.ChannelEmail, block: true}
	sms := &fakeSender{channel: model.ChannelSMS}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, 20*time.Millisecond, slow, sms)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelEmail, model.ChannelSMS})

	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, model.ChannelSMS, outcome.Channel)
	assert.Equal(t, model.ChannelStatusFailed, rec.DeliveryStatus[model.ChannelEmail].Status)
	assert.Contains(t, rec.DeliveryStatus[model.ChannelEmail].Error, "timed out")
}

func TestManager_UnregisteredChannelFailsOver(t *testing.T) {
	ws := &fakeSender{channel: model.ChannelWebsocket}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, time.Second, ws)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelSMS, model.ChannelWebsocket})

	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
	assert.Equal(t, model.ChannelWebsocket, outcome.Channel)
	assert.Equal(t, model.ChannelStatusFailed, rec.DeliveryStatus[model.ChannelSMS].Status)
}

func TestManager_PersistFailureDoesNotAbortDelivery(t *testing.T) {
	ws := &fakeSender{channel: model.ChannelWebsocket}
	repo := &fakeNotificationRepo{updateErr: errors.New("db down")}
	m := newTestManager(repo, time.Second, ws)

	n, rec, contact := deliveryFixture()
	outcome, err := m.Deliver(context.Background(), n, rec, contact, []string{model.ChannelWebsocket})

	require.NoError(t, err)
	assert.True(t, outcome.Delivered)
}

// Two recipients of the same notification are delivered independently:
// one falls back from email to SMS, the other goes straight out over
// websocket.
func TestManager_IndependentRecipients(t *testing.T) {
	email := &fakeSender{channel: model.ChannelEmail, err: errors.New("bounced")}
	sms := &fakeSender{channel: model.ChannelSMS}
	ws := &fakeSender{channel: model.ChannelWebsocket}
	repo := &fakeNotificationRepo{}
	m := newTestManager(repo, time.Second, email, sms, ws)

	recA := &model.RecipientEntry{UserID: uuid.New(), ApprovedChannels: []string{model.ChannelEmail, model.ChannelSMS}}
	recB := &model.RecipientEntry{UserID: uuid.New(), ApprovedChannels: []string{model.ChannelWebsocket}}
	n := &model.Notification{
		ID:         uuid.New(),
		Type:       "appointment_reminder",
		Category:   model.CategoryMedical,
		Priority:   model.PriorityMedium,
		Recipients: []*model.RecipientEntry{recA, recB},
		CreatedAt:  time.Now(),
	}
	contact := model.ContactInfo{Email: "a@example.com", Phone: "+15550101"}

	outcomeA, err := m.Deliver(context.Background(), n, recA, contact, recA.ApprovedChannels)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelSMS, outcomeA.Channel)

	outcomeB, err := m.Deliver(context.Background(), n, recB, contact, recB.ApprovedChannels)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelWebsocket, outcomeB.Channel)

	assert.Equal(t, model.ChannelStatusFailed, recA.DeliveryStatus[model.ChannelEmail].Status)
	assert.Equal(t, model.ChannelStatusDelivered, recA.DeliveryStatus[model.ChannelSMS].Status)
	assert.Equal(t, model.ChannelStatusDelivered, recB.DeliveryStatus[model.ChannelWebsocket].Status)
	assert.Empty(t, recB.DeliveryStatus[model.ChannelEmail].Status)
}
