package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

// HistoryRecorder writes an audit entry for every ticket mutation event.
type HistoryRecorder struct {
	history    repository.TicketHistoryRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// NewHistoryRecorder creates the recorder.
func NewHistoryRecorder(history repository.TicketHistoryRepository, dispatcher events.Dispatcher, logger *zap.Logger) *HistoryRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HistoryRecorder{history: history, dispatcher: dispatcher, logger: logger}
}

// RegisterHandlers subscribes to events.
func (r *HistoryRecorder) RegisterHandlers() {
	if r.dispatcher == nil || r.history == nil {
		return
	}
	r.dispatcher.Subscribe(events.EventTicketCreated, r.record)
	r.dispatcher.Subscribe(events.EventTicketUpdated, r.record)
	r.dispatcher.Subscribe(events.EventTicketRenewed, r.record)
	r.dispatcher.Subscribe(events.EventTicketDeleted, r.record)
	r.dispatcher.Subscribe(events.EventStatusesReconciled, r.logJob)
	r.dispatcher.Subscribe(events.EventDigestsDispatched, r.logJob)
}

func (r *HistoryRecorder) record(ctx context.Context, event events.Event) error {
	entry, err := historyEntry(event)
	if err != nil {
		return err
	}
	if err := r.history.Create(ctx, entry); err != nil {
		return fmt.Errorf("record %s for ticket %s: %w", event.Type, event.TicketID, err)
	}
	return nil
}

func (r *HistoryRecorder) logJob(ctx context.Context, event events.Event) error {
	r.logger.Debug(string(event.Type), zap.String("event_id", event.ID), zap.Any("payload", event.Payload))
	return nil
}

func historyEntry(event events.Event) (*domain.TicketHistory, error) {
	entry := &domain.TicketHistory{TicketID: event.TicketID}
	if event.Actor.SubjectID != "" {
		id := event.Actor.SubjectID
		entry.ChangedBy = &id
	}
	switch p := event.Payload.(type) {
	case events.TicketCreatedPayload:
		entry.ChangeType = domain.ChangeTypeCreated
		entry.NewValue = map[string]any{
			"ticket_number":         p.TicketNumber,
			"jurisdiction":          p.Jurisdiction,
			"expiration_date":       dateString(p.ExpirationDate),
			"status":                string(p.Status),
			"expiration_overridden": p.Overridden,
		}
	case events.TicketUpdatedPayload:
		entry.ChangeType = domain.ChangeTypeUpdated
		entry.OldValue = p.OldValues
		entry.NewValue = p.NewValues
	case events.TicketRenewedPayload:
		entry.ChangeType = domain.ChangeTypeRenewed
		entry.OldValue = map[string]any{
			"expiration_date": dateString(p.OldExpirationDate),
			"status":          string(p.OldStatus),
		}
		entry.NewValue = map[string]any{
			"expiration_date": dateString(p.NewExpirationDate),
			"status":          string(domain.TicketStatusRenewed),
		}
		if p.Notes != nil {
			entry.NewValue["notes"] = *p.Notes
		}
	case events.TicketDeletedPayload:
		entry.ChangeType = domain.ChangeTypeDeleted
		entry.OldValue = map[string]any{
			"ticket_number": p.TicketNumber,
			"status":        string(p.Status),
		}
	default:
		return nil, fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	return entry, nil
}
