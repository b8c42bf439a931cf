package delivery

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/jwalitptl/notification-engine/internal/config"
	"github.com/jwalitptl/notification-engine/internal/model"
)

type emailSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailSender(cfg config.SMTPConfig) Sender {
	return &emailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *emailSender) Channel() string { return model.ChannelEmail }

func (s *emailSender) Send(ctx context.Context, _ uuid.UUID, contact model.ContactInfo, n *model.Notification) error {
	if contact.Email == "" {
		return fmt.Errorf("recipient has no email address")
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", contact.Email)
	m.SetHeader("Subject", n.Content.Title)
	body := n.Content.Body
	if n.Content.ActionURL != "" {
		label := n.Content.ActionLabel
		if label == "" {
			label = n.Content.ActionURL
		}
		body = fmt.Sprintf("%s\n\n%s: %s", body, label, n.Content.ActionURL)
	}
	m.SetBody("text/plain", body)

	// gomail has no context support; run the dial in a goroutine so the
	// manager's deadline still bounds the attempt.
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send email: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
