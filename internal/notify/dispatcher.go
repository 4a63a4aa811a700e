// Package notify delivers expiration digests to recipients.
package notify

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// Dispatcher delivers one digest to one recipient.
type Dispatcher interface {
	Send(ctx context.Context, recipient string, digest []domain.TicketSummary) error
}

// Digest is the wire form of a delivered digest.
type Digest struct {
	Recipient     string         `json:"recipient"`
	RecipientName string         `json:"recipient_name"`
	Tickets       []DigestTicket `json:"tickets"`
	SentAt        time.Time      `json:"sent_at"`
}

// DigestTicket is one ticket line with a display-formatted date.
type DigestTicket struct {
	domain.TicketSummary
	ExpirationDisplay string `json:"expiration_display"`
}

// NewDigest builds the payload for recipient.
func NewDigest(recipient, adminRecipient string, tickets []domain.TicketSummary, sentAt time.Time) Digest {
	lines := make([]DigestTicket, len(tickets))
	for i, t := range tickets {
		lines[i] = DigestTicket{TicketSummary: t, ExpirationDisplay: t.ExpirationDate.Format("January 02, 2006")}
	}
	return Digest{
		Recipient:     recipient,
		RecipientName: DisplayName(recipient, adminRecipient),
		Tickets:       lines,
		SentAt:        sentAt,
	}
}

// DisplayName derives a greeting name from an address: "jane.doe@x.com"
// becomes "Jane Doe". The administrative recipient is always "Admin".
func DisplayName(recipient, adminRecipient string) string {
	if recipient == adminRecipient {
		return "Admin"
	}
	local, _, _ := strings.Cut(recipient, "@")
	words := strings.Fields(strings.NewReplacer(".", " ", "_", " ", "-", " ").Replace(local))
	for i, w := range words {
		first, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(first)) + strings.ToLower(w[size:])
	}
	if len(words) == 0 {
		return recipient
	}
	return strings.Join(words, " ")
}

// LogDispatcher writes digests to the log instead of delivering them.
type LogDispatcher struct {
	logger         *zap.Logger
	adminRecipient string
}

// NewLogDispatcher builds a LogDispatcher.
func NewLogDispatcher(logger *zap.Logger, adminRecipient string) *LogDispatcher {
	return &LogDispatcher{logger: logger, adminRecipient: adminRecipient}
}

func (d *LogDispatcher) Send(ctx context.Context, recipient string, digest []domain.TicketSummary) error {
	numbers := make([]string, len(digest))
	for i, t := range digest {
		numbers[i] = t.TicketNumber
	}
	d.logger.Info("expiration digest",
		zap.String("recipient", recipient),
		zap.String("recipient_name", DisplayName(recipient, d.adminRecipient)),
		zap.Int("tickets", len(digest)),
		zap.Strings("ticket_numbers", numbers))
	return nil
}
