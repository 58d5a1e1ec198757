package delivery

import (
	"context"
	"errors"
	"fmt"
	"net/mail"

	"github.com/soulbot/soulbot/backend/internal/service/export"
)

var (
	ErrDelivery      = errors.New("delivery failed")
	ErrNotConfigured = fmt.Errorf("%w: SENDGRID_API_KEY is not set", ErrDelivery)
	ErrInvalidTarget = fmt.Errorf("%w: invalid recipient address", ErrDelivery)
)

// Sender delivers a rendered document to one address.
type Sender interface {
	Send(ctx context.Context, to string, doc export.Document, subject string) error
}

// Disabled rejects every send; it stands in when no API key is configured.
type Disabled struct{}

func (Disabled) Send(context.Context, string, export.Document, string) error {
	return ErrNotConfigured
}

// ValidAddress reports whether to parses as a single bare address.
func ValidAddress(to string) bool {
	addr, err := mail.ParseAddress(to)
	return err == nil && addr.Address == to
}
