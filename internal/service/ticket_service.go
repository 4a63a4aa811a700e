package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/locate-tracker/internal/clock"
	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/expiration"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

// StatsHorizonDays is how far ahead Stats counts upcoming expirations.
const StatsHorizonDays = 7

// TicketService coordinates ticket workflows.
type TicketService struct {
	tickets     repository.TicketRepository
	history     repository.TicketHistoryRepository
	calculator  *expiration.Calculator
	clock       clock.Clock
	location    *time.Location
	warningDays int
	dispatcher  events.Dispatcher
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	HistoryRepo repository.TicketHistoryRepository
	Calculator  *expiration.Calculator
	Clock       clock.Clock
	Location    *time.Location
	WarningDays int
	Dispatcher  events.Dispatcher
}

// TicketCreateInput describes ticket creation payload.
type TicketCreateInput struct {
	TicketNumber       string
	JobName            string
	Address            string
	Jurisdiction       string
	SubmitDate         time.Time
	ExpirationOverride *time.Time
	UtilityResponses   *string
	Owner              *string
	Notes              *string
}

// TicketUpdateInput is a partial update; nil fields are left alone. An empty
// Owner clears the assignment.
type TicketUpdateInput struct {
	JobName          *string
	Address          *string
	ExpirationDate   *time.Time
	UtilityResponses *string
	Owner            *string
	Notes            *string
}

// TicketListFilter describes listing filters.
type TicketListFilter struct {
	Statuses     []domain.TicketStatus
	Jurisdiction *string
	Owner        *string
	SearchTerm   *string
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	if deps.Calculator == nil {
		deps.Calculator = expiration.NewCalculator(expiration.DefaultRules())
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &TicketService{
		tickets:     deps.TicketRepo,
		history:     deps.HistoryRepo,
		calculator:  deps.Calculator,
		clock:       deps.Clock,
		location:    deps.Location,
		warningDays: deps.WarningDays,
		dispatcher:  deps.Dispatcher,
	}
}

// Today returns the current calendar day in the business time zone.
func (s *TicketService) Today() time.Time {
	return clock.Today(s.clock, s.location)
}

// WarningDays is the width of the expiring-soon window.
func (s *TicketService) WarningDays() int {
	return s.warningDays
}

// Rules exposes the jurisdiction table the service computes with.
func (s *TicketService) Rules() expiration.Rules {
	return s.calculator.Rules()
}

// CreateTicket stores a new ticket. The expiration date comes from the
// jurisdiction rule unless an override is given, and the status is
// classified against today.
func (s *TicketService) CreateTicket(ctx context.Context, actor events.Actor, input TicketCreateInput) (*domain.Ticket, error) {
	number := strings.TrimSpace(input.TicketNumber)
	jurisdiction := strings.ToUpper(strings.TrimSpace(input.Jurisdiction))
	switch {
	case number == "":
		return nil, invalid("ticket number is required")
	case strings.TrimSpace(input.JobName) == "":
		return nil, invalid("job name is required")
	case strings.TrimSpace(input.Address) == "":
		return nil, invalid("address is required")
	case len(jurisdiction) > 2:
		return nil, invalid("jurisdiction must be a two-letter code")
	case input.SubmitDate.IsZero():
		return nil, invalid("submit date is required")
	}

	submit := expiration.Date(input.SubmitDate)
	var override *time.Time
	if input.ExpirationOverride != nil {
		d := expiration.Date(*input.ExpirationOverride)
		override = &d
	}
	exp := s.calculator.ExpirationFor(submit, jurisdiction, override)

	ticket := &domain.Ticket{
		TicketNumber:     number,
		JobName:          strings.TrimSpace(input.JobName),
		Address:          strings.TrimSpace(input.Address),
		Jurisdiction:     jurisdiction,
		SubmitDate:       submit,
		ExpirationDate:   exp,
		Status:           expiration.Classify(exp, s.Today(), s.warningDays),
		UtilityResponses: input.UtilityResponses,
		Owner:            normalizeOwner(input.Owner),
		Notes:            input.Notes,
		CreatedBy:        actorID(actor),
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketCreated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketCreatedPayload{
			TicketNumber:   ticket.TicketNumber,
			Jurisdiction:   ticket.Jurisdiction,
			ExpirationDate: ticket.ExpirationDate,
			Status:         ticket.Status,
			Overridden:     override != nil,
		},
	})
	return ticket, nil
}

// GetTicket fetches one ticket.
func (s *TicketService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	return s.tickets.GetByID(ctx, id)
}

// ListTickets returns one page of tickets and the total number of matches.
func (s *TicketService) ListTickets(ctx context.Context, filter TicketListFilter) ([]domain.Ticket, int, error) {
	for _, status := range filter.Statuses {
		if !status.Valid() {
			return nil, 0, invalid("unknown status %q", status)
		}
	}
	return s.tickets.List(ctx, repository.TicketFilter{
		Statuses:     filter.Statuses,
		Jurisdiction: filter.Jurisdiction,
		Owner:        filter.Owner,
		SearchTerm:   filter.SearchTerm,
		SortBy:       filter.SortBy,
		SortDesc:     filter.SortDesc,
		Limit:        filter.Limit,
		Offset:       filter.Offset,
	})
}

// UpdateTicket applies a partial update. Changing the expiration date
// re-derives the status from the classifier.
func (s *TicketService) UpdateTicket(ctx context.Context, actor events.Actor, id string, input TicketUpdateInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	oldValues := map[string]any{}
	newValues := map[string]any{}
	var fields []string
	track := func(field string, oldValue, newValue any) {
		fields = append(fields, field)
		oldValues[field] = oldValue
		newValues[field] = newValue
	}

	if input.JobName != nil {
		name := strings.TrimSpace(*input.JobName)
		if name == "" {
			return nil, invalid("job name must not be empty")
		}
		if name != ticket.JobName {
			track("job_name", ticket.JobName, name)
			ticket.JobName = name
		}
	}
	if input.Address != nil {
		address := strings.TrimSpace(*input.Address)
		if address == "" {
			return nil, invalid("address must not be empty")
		}
		if address != ticket.Address {
			track("address", ticket.Address, address)
			ticket.Address = address
		}
	}
	if input.UtilityResponses != nil && !equalString(ticket.UtilityResponses, input.UtilityResponses) {
		track("utility_responses", derefString(ticket.UtilityResponses), *input.UtilityResponses)
		ticket.UtilityResponses = input.UtilityResponses
	}
	if input.Notes != nil && !equalString(ticket.Notes, input.Notes) {
		track("notes", derefString(ticket.Notes), *input.Notes)
		ticket.Notes = input.Notes
	}
	if input.Owner != nil {
		owner := normalizeOwner(input.Owner)
		if !equalString(ticket.Owner, owner) {
			track("owner", ticket.OwnerOrEmpty(), derefString(owner))
			ticket.Owner = owner
		}
	}
	if input.ExpirationDate != nil {
		exp := expiration.Date(*input.ExpirationDate)
		if !exp.Equal(ticket.ExpirationDate) {
			track("expiration_date", dateString(ticket.ExpirationDate), dateString(exp))
			ticket.ExpirationDate = exp
			status := expiration.Classify(exp, s.Today(), s.warningDays)
			if status != ticket.Status {
				track("status", string(ticket.Status), string(status))
				ticket.Status = status
			}
		}
	}

	if len(fields) == 0 {
		return ticket, nil
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketUpdated,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketUpdatedPayload{
			Fields:    fields,
			OldValues: oldValues,
			NewValues: newValues,
		},
	})
	return ticket, nil
}

// RenewTicket replaces the expiration date and marks the ticket renewed.
// The new date is not checked against today; the next reconciliation pass
// settles the status.
func (s *TicketService) RenewTicket(ctx context.Context, actor events.Actor, id string, newExpiration time.Time, notes *string) (*domain.Ticket, error) {
	if newExpiration.IsZero() {
		return nil, invalid("new expiration date is required")
	}
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	oldExpiration := ticket.ExpirationDate
	oldStatus := ticket.Status
	now := s.clock.Now()

	ticket.ExpirationDate = expiration.Date(newExpiration)
	ticket.Status = domain.TicketStatusRenewed
	ticket.LastRenewedAt = &now
	if notes != nil {
		ticket.Notes = notes
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketRenewed,
		TicketID: ticket.ID,
		Actor:    actor,
		Payload: events.TicketRenewedPayload{
			OldExpirationDate: oldExpiration,
			NewExpirationDate: ticket.ExpirationDate,
			OldStatus:         oldStatus,
			Notes:             notes,
		},
	})
	return ticket, nil
}

// DeleteTicket removes a ticket. Its history is kept.
func (s *TicketService) DeleteTicket(ctx context.Context, actor events.Actor, id string) error {
	ticket, err := s.tickets.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tickets.Delete(ctx, id); err != nil {
		return err
	}
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: id,
		Actor:    actor,
		Payload: events.TicketDeletedPayload{
			TicketNumber: ticket.TicketNumber,
			Status:       ticket.Status,
		},
	})
	return nil
}

// Stats returns dashboard counters as of today.
func (s *TicketService) Stats(ctx context.Context) (domain.TicketStats, error) {
	return s.tickets.Stats(ctx, s.Today(), StatsHorizonDays)
}

// ListHistory returns the audit trail of a ticket, oldest first.
func (s *TicketService) ListHistory(ctx context.Context, id string, limit, offset int) ([]domain.TicketHistory, error) {
	if s.history == nil {
		return []domain.TicketHistory{}, nil
	}
	entries, err := s.history.ListByTicket(ctx, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		if _, err := s.tickets.GetByID(ctx, id); errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}
	return entries, nil
}

func (s *TicketService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func actorID(actor events.Actor) *string {
	if actor.SubjectID == "" {
		return nil
	}
	id := actor.SubjectID
	return &id
}

func normalizeOwner(owner *string) *string {
	if owner == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*owner)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateString(t time.Time) string {
	return t.Format(domain.DateLayout)
}
