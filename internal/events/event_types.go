package events

import (
	"time"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated      EventType = "ticket_created"
	EventTicketUpdated      EventType = "ticket_updated"
	EventTicketRenewed      EventType = "ticket_renewed"
	EventTicketDeleted      EventType = "ticket_deleted"
	EventStatusesReconciled EventType = "statuses_reconciled"
	EventDigestsDispatched  EventType = "digests_dispatched"
)

// Actor identifies who triggered an event. An empty SubjectID means the system.
type Actor struct {
	SubjectID string      `json:"subject_id,omitempty"`
	Role      domain.Role `json:"role,omitempty"`
}

// SystemActor is used by scheduled jobs.
var SystemActor = Actor{}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	TicketNumber   string              `json:"ticket_number"`
	Jurisdiction   string              `json:"jurisdiction"`
	ExpirationDate time.Time           `json:"expiration_date"`
	Status         domain.TicketStatus `json:"status"`
	Overridden     bool                `json:"expiration_overridden"`
}

// TicketUpdatedPayload payload.
type TicketUpdatedPayload struct {
	Fields    []string       `json:"fields"`
	OldValues map[string]any `json:"old_values"`
	NewValues map[string]any `json:"new_values"`
}

// TicketRenewedPayload payload.
type TicketRenewedPayload struct {
	OldExpirationDate time.Time           `json:"old_expiration_date"`
	NewExpirationDate time.Time           `json:"new_expiration_date"`
	OldStatus         domain.TicketStatus `json:"old_status"`
	Notes             *string             `json:"notes,omitempty"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	TicketNumber string              `json:"ticket_number"`
	Status       domain.TicketStatus `json:"status"`
}

// StatusesReconciledPayload payload.
type StatusesReconciledPayload struct {
	Today  time.Time           `json:"today"`
	Counts domain.StatusCounts `json:"counts"`
}

// DigestsDispatchedPayload payload.
type DigestsDispatchedPayload struct {
	TicketsConsidered  int `json:"tickets_considered"`
	RecipientsNotified int `json:"recipients_notified"`
	RecipientsFailed   int `json:"recipients_failed"`
}
