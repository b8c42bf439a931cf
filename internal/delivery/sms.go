package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/notification-engine/internal/config"
	"github.com/jwalitptl/notification-engine/internal/model"
)

// smsSender posts to an HTTP SMS gateway. The provider is opaque: any
// non-2xx response is a send failure.
type smsSender struct {
	cfg    config.SMSConfig
	client *http.Client
}

func NewSMSSender(cfg config.SMSConfig) Sender {
	return &smsSender{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (s *smsSender) Channel() string { return model.ChannelSMS }

func (s *smsSender) Send(ctx context.Context, _ uuid.UUID, contact model.ContactInfo, n *model.Notification) error {
	if contact.Phone == "" {
		return fmt.Errorf("recipient has no phone number")
	}

	payload, err := json.Marshal(map[string]string{
		"from": s.cfg.From,
		"to":   contact.Phone,
		"body": fmt.Sprintf("%s: %s", n.Content.Title, n.Content.Body),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal sms payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.ProviderURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms provider unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sms provider returned status %d", resp.StatusCode)
	}
	return nil
}
