package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
	"github.com/jwalitptl/notification-engine/pkg/messaging"
)

// websocketSender publishes to the user's channel on the message
// broker; the socket gateway subscribed there pushes to the client.
type websocketSender struct {
	broker messaging.Broker
}

func NewWebsocketSender(broker messaging.Broker) Sender {
	return &websocketSender{broker: broker}
}

func (s *websocketSender) Channel() string { return model.ChannelWebsocket }

func (s *websocketSender) Send(ctx context.Context, userID uuid.UUID, _ model.ContactInfo, n *model.Notification) error {
	payload := map[string]interface{}{
		"id":       n.ID,
		"type":     n.Type,
		"category": n.Category,
		"priority": n.Priority,
		"content":  n.Content,
	}
	topic := fmt.Sprintf("notifications:user:%s", userID)
	if err := s.broker.Publish(ctx, topic, payload); err != nil {
		return fmt.Errorf("failed to publish websocket notification: %w", err)
	}
	return nil
}
