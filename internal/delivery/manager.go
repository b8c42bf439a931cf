package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/notification-engine/pkg/circuitbreaker"
	apperrors "github.com/jwalitptl/notification-engine/pkg/errors"
	"github.com/jwalitptl/notification-engine/pkg/logger"
	"github.com/jwalitptl/notification-engine/pkg/metrics"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/internal/repository"
)

// ErrAllChannelsFailed means every channel in the attempt list failed;
// the queue decides whether to retry or fail the item terminally.
var ErrAllChannelsFailed = errors.New("all channels failed")

// Outcome is the per-channel result of one delivery pass.
type Outcome struct {
	Delivered bool
	Channel   string
	Attempts  map[string]model.DeliveryRecord
}

// Manager walks the ordered channel list for one recipient. The first
// successful channel satisfies the delivery; every attempt, success or
// failure, is stamped onto the recipient's status map and persisted.
// Failing over to the next channel is distinct from a queue retry: the
// former changes channel immediately, the latter repeats the whole
// item after backoff.
type Manager struct {
	senders  map[string]Sender
	breakers map[string]*circuitbreaker.CircuitBreaker
	repo     repository.NotificationRepository
	timeout  time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewManager(
	senders []Sender,
	repo repository.NotificationRepository,
	timeout time.Duration,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	byChannel := make(map[string]Sender, len(senders))
	breakers := make(map[string]*circuitbreaker.CircuitBreaker, len(senders))
	for _, s := range senders {
		byChannel[s.Channel()] = s
		breakers[s.Channel()] = circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
			Name:        "sender-" + s.Channel(),
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		})
	}
	return &Manager{
		senders:  byChannel,
		breakers: breakers,
		repo:     repo,
		timeout:  timeout,
		logger:   logger,
		metrics:  metrics,
	}
}

func (m *Manager) Deliver(ctx context.Context, n *model.Notification, rec *model.RecipientEntry, contact model.ContactInfo, channels []string) (Outcome, error) {
	outcome := Outcome{Attempts: make(map[string]model.DeliveryRecord, len(channels))}

	for i, channel := range channels {
		if i > 0 {
			m.metrics.FallbackTotal.WithLabelValues(channels[i-1], channel).Inc()
		}

		err := m.attempt(ctx, n, rec, contact, channel)
		record := model.DeliveryRecord{Status: model.ChannelStatusDelivered, UpdatedAt: time.Now()}
		if err != nil {
			record.Status = model.ChannelStatusFailed
			record.Error = err.Error()
		}
		outcome.Attempts[channel] = record
		rec.RecordAttempt(channel, record.Status, record.Error)

		if persistErr := m.repo.UpdateRecipientStatus(ctx, n.ID, rec.UserID, channel, record); persistErr != nil {
			m.logger.Error(persistErr, "failed to persist delivery status",
				"notification_id", n.ID.String(),
				"recipient_id", rec.UserID.String(),
				"channel", channel)
		}

		if err == nil {
			m.metrics.DeliveryAttempts.WithLabelValues(channel, "success").Inc()
			outcome.Delivered = true
			outcome.Channel = channel
			return outcome, nil
		}

		m.metrics.DeliveryAttempts.WithLabelValues(channel, "failure").Inc()
		m.logger.Warn("channel send failed, falling back",
			"notification_id", n.ID.String(),
			"recipient_id", rec.UserID.String(),
			"channel", channel,
			"error", err.Error())
	}

	return outcome, ErrAllChannelsFailed
}

// attempt runs one bounded channel send. A deadline hit is the same
// failure as an explicit provider error.
func (m *Manager) attempt(ctx context.Context, n *model.Notification, rec *model.RecipientEntry, contact model.ContactInfo, channel string) error {
	sender, ok := m.senders[channel]
	if !ok {
		return fmt.Errorf("no sender registered for channel %s", channel)
	}

	timer := prometheus.NewTimer(m.metrics.DeliveryLatency.WithLabelValues(channel))
	defer timer.ObserveDuration()

	sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	err := m.breakers[channel].Execute(func() error {
		return sender.Send(sendCtx, rec.UserID, contact, n)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return apperrors.NewChannelTimeout(channel, err)
		}
		return apperrors.NewChannelSend(channel, err)
	}
	return nil
}
