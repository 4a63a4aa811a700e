package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// WebhookDispatcher POSTs each digest as JSON to a fixed URL.
type WebhookDispatcher struct {
	url            string
	timeout        time.Duration
	adminRecipient string
	now            func() time.Time
}

// NewWebhookDispatcher builds a dispatcher. Each request is bounded by timeout.
func NewWebhookDispatcher(url string, timeout time.Duration, adminRecipient string) *WebhookDispatcher {
	return &WebhookDispatcher{url: url, timeout: timeout, adminRecipient: adminRecipient, now: time.Now}
}

func (d *WebhookDispatcher) Send(ctx context.Context, recipient string, digest []domain.TicketSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(d.url)
	agent.Timeout(d.timeout)
	agent.JSON(NewDigest(recipient, d.adminRecipient, digest, d.now()))

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook %s: %w", recipient, errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook %s: unexpected status %d: %s", recipient, code, truncate(body, 200))
	}
	return nil
}

func truncate(body []byte, max int) string {
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
