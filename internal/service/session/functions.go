package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/soulbot/soulbot/backend/internal/service/export"
)

// describeImage re-enters the text path with the model's restatement of the request
// and the latest frame attached.
func describeImage(_ context.Context, c *Coordinator, args map[string]string) ([]Event, error) {
	msg := strings.TrimSpace(args["user_msg"])
	if msg == "" {
		c.logger.Warn("describe-image called without user_msg")
		return nil, nil
	}
	return []Event{TextEvent{Text: msg, WithImage: true}}, nil
}

// sendEmail delivers a model-composed message to the participant's own contact address
// and reports the outcome back to the model. Any other recipient is refused.
func sendEmail(ctx context.Context, c *Coordinator, args map[string]string) ([]Event, error) {
	contact := c.contactAddress()
	to := strings.TrimSpace(args["to_email"])
	if to == "" {
		to = contact
	}
	subject := strings.TrimSpace(args["subject"])
	if subject == "" {
		subject = c.opts.Subject
	}

	status, message := "success", fmt.Sprintf("Email sent to %s.", to)
	switch {
	case contact == "":
		status, message = "error", "no contact address is on file for this user."
	case !strings.EqualFold(to, contact):
		c.logger.WithField("to", to).Warn("send-email refused, recipient is not the user's contact")
		status, message = "error", "email can only be sent to the user's own address."
	default:
		if err := c.delivery.Send(ctx, contact, export.Wrap(args["body_content"]), subject); err != nil {
			c.logger.WithError(err).WithField("to", contact).Warn("send-email failed")
			status, message = "error", err.Error()
		}
	}
	return []Event{TextEvent{Text: fmt.Sprintf("Email status: %s. %s", status, message)}}, nil
}
