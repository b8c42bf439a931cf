package delivery

import (
	"context"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/model"
)

// Sender is one opaque delivery transport. Rendering the notification
// content into the channel's payload is the sender's concern; the
// manager only hands it the content and the recipient's contact info.
type Sender interface {
	Channel() string
	Send(ctx context.Context, userID uuid.UUID, contact model.ContactInfo, n *model.Notification) error
}
