package delivery

import (
	"context"
	"fmt"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/sirupsen/logrus"

	"github.com/soulbot/soulbot/backend/internal/service/export"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *sgmail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig carries the credentials and sender identity.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// SendGrid delivers documents through the SendGrid v3 mail API.
type SendGrid struct {
	client mailClient
	from   *sgmail.Email
	logger logrus.FieldLogger
}

// NewSendGrid validates cfg and builds a client.
func NewSendGrid(cfg SendGridConfig, logger logrus.FieldLogger) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNotConfigured
	}
	if !ValidAddress(cfg.FromEmail) {
		return nil, fmt.Errorf("%w: sender address %q", ErrDelivery, cfg.FromEmail)
	}
	return newSendGrid(sendgrid.NewSendClient(cfg.APIKey), cfg, logger), nil
}

func newSendGrid(client mailClient, cfg SendGridConfig, logger logrus.FieldLogger) *SendGrid {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SendGrid{
		client: client,
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger.WithField("component", "sendgrid"),
	}
}

// Send implements Sender.
func (s *SendGrid) Send(ctx context.Context, to string, doc export.Document, subject string) error {
	if !ValidAddress(to) {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, to)
	}

	message := sgmail.NewSingleEmail(s.from, subject, sgmail.NewEmail("", to), doc.Text, doc.HTML)
	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(resp.Body))
	}

	s.logger.WithFields(logrus.Fields{"to": to, "status": resp.StatusCode}).Info("email sent")
	return nil
}
