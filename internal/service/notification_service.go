package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/locate-tracker/internal/clock"
	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/expiration"
	"github.com/spec-kit/locate-tracker/internal/notify"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

// DefaultDispatchConcurrency bounds in-flight digest sends.
const DefaultDispatchConcurrency = 4

var notifiableStatuses = []domain.TicketStatus{
	domain.TicketStatusActive,
	domain.TicketStatusExpiringSoon,
}

// NotifyResult summarizes one fan-out run.
type NotifyResult struct {
	TicketsConsidered  int `json:"tickets_considered"`
	RecipientsNotified int `json:"recipients_notified"`
	RecipientsFailed   int `json:"recipients_failed"`
}

// Digest is the set of tickets sent in one dispatch. Unassigned digests
// carry the tickets without an owner and go to the administrative recipient.
type Digest struct {
	Recipient  string
	Unassigned bool
	Tickets    []domain.TicketSummary
}

// NotificationService sends the daily expiring-soon digests.
type NotificationService struct {
	store          repository.Store
	sender         notify.Dispatcher
	clock          clock.Clock
	location       *time.Location
	warningDays    int
	adminRecipient string
	concurrency    int
	dispatcher     events.Dispatcher
	logger         *zap.Logger
}

// NotificationDependencies bundles dependencies for the fan-out job.
type NotificationDependencies struct {
	JobDependencies
	Sender         notify.Dispatcher
	AdminRecipient string
	Concurrency    int
}

// NewNotificationService creates the service.
func NewNotificationService(deps NotificationDependencies) *NotificationService {
	jobs := deps.JobDependencies.withDefaults()
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultDispatchConcurrency
	}
	return &NotificationService{
		store:          jobs.Store,
		sender:         deps.Sender,
		clock:          jobs.Clock,
		location:       jobs.Location,
		warningDays:    jobs.WarningDays,
		adminRecipient: deps.AdminRecipient,
		concurrency:    deps.Concurrency,
		dispatcher:     jobs.Events,
		logger:         jobs.Logger.Named("notify"),
	}
}

// BuildDigests groups expiring tickets by owner. Tickets without an owner
// form a separate unassigned group routed to adminRecipient, even when some
// owner is adminRecipient itself. Digests come back ordered by recipient,
// owned before unassigned, and each is sorted by days remaining, then id.
func BuildDigests(tickets []domain.Ticket, today time.Time, adminRecipient string) []Digest {
	type groupKey struct {
		recipient  string
		unassigned bool
	}
	groups := make(map[groupKey][]domain.TicketSummary)
	for i := range tickets {
		t := &tickets[i]
		key := groupKey{recipient: strings.TrimSpace(t.OwnerOrEmpty())}
		if key.recipient == "" {
			key = groupKey{recipient: adminRecipient, unassigned: true}
		}
		groups[key] = append(groups[key], domain.TicketSummary{
			ID:             t.ID,
			TicketNumber:   t.TicketNumber,
			JobName:        t.JobName,
			Address:        t.Address,
			ExpirationDate: t.ExpirationDate,
			DaysRemaining:  expiration.DaysRemaining(t.ExpirationDate, today),
		})
	}

	digests := make([]Digest, 0, len(groups))
	for key, summaries := range groups {
		sort.Slice(summaries, func(i, j int) bool {
			if summaries[i].DaysRemaining != summaries[j].DaysRemaining {
				return summaries[i].DaysRemaining < summaries[j].DaysRemaining
			}
			return summaries[i].ID < summaries[j].ID
		})
		digests = append(digests, Digest{Recipient: key.recipient, Unassigned: key.unassigned, Tickets: summaries})
	}
	sort.Slice(digests, func(i, j int) bool {
		if digests[i].Recipient != digests[j].Recipient {
			return digests[i].Recipient < digests[j].Recipient
		}
		return !digests[i].Unassigned && digests[j].Unassigned
	})
	return digests
}

// NotifyExpiringSoon sends one digest per owner group covering every active or
// expiring-soon ticket that expires between today and today+warningDays.
// Every digest is attempted; failures are returned together as
// *DispatchErrors alongside the partial result. Ticket state is not touched.
func (s *NotificationService) NotifyExpiringSoon(ctx context.Context, today time.Time, warningDays int, repo repository.TicketRepository, sender notify.Dispatcher) (NotifyResult, error) {
	today = expiration.Date(today)
	tickets, err := repo.ListExpiring(ctx, notifiableStatuses, today, expiration.WarningThreshold(today, warningDays))
	if err != nil {
		return NotifyResult{}, fmt.Errorf("list expiring tickets: %w", err)
	}

	result := NotifyResult{TicketsConsidered: len(tickets)}
	digests := BuildDigests(tickets, today, s.adminRecipient)
	if len(digests) == 0 {
		return result, nil
	}

	errs := make([]error, len(digests))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, digest := range digests {
		g.Go(func() error {
			errs[i] = send(ctx, sender, digest)
			return nil
		})
	}
	_ = g.Wait()

	failed := &DispatchErrors{Attempted: len(digests)}
	for i, digest := range digests {
		if errs[i] == nil {
			result.RecipientsNotified++
			continue
		}
		s.logger.Warn("digest dispatch failed",
			zap.String("recipient", digest.Recipient),
			zap.Bool("unassigned", digest.Unassigned),
			zap.Int("tickets", len(digest.Tickets)),
			zap.Error(errs[i]))
		failed.Failures = append(failed.Failures, DispatchFailure{
			Recipient: digest.Recipient,
			Tickets:   len(digest.Tickets),
			Err:       errs[i],
		})
	}
	result.RecipientsFailed = len(failed.Failures)
	if result.RecipientsFailed > 0 {
		return result, failed
	}
	return result, nil
}

func send(ctx context.Context, sender notify.Dispatcher, digest Digest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispatcher panic: %v", r)
		}
	}()
	return sender.Send(ctx, digest.Recipient, digest.Tickets)
}

// Run sends today's digests through the configured dispatcher.
func (s *NotificationService) Run(ctx context.Context) (NotifyResult, error) {
	today := clock.Today(s.clock, s.location)
	started := time.Now()

	repo, release, err := s.store.Session(ctx)
	if err != nil {
		s.logger.Error("open store session", zap.Error(err))
		return NotifyResult{}, fmt.Errorf("open store session: %w", err)
	}
	defer release()

	result, err := s.NotifyExpiringSoon(ctx, today, s.warningDays, repo, s.sender)
	fields := []zap.Field{
		zap.Time("today", today),
		zap.Int("tickets_considered", result.TicketsConsidered),
		zap.Int("recipients_notified", result.RecipientsNotified),
		zap.Int("recipients_failed", result.RecipientsFailed),
		zap.Duration("duration", time.Since(started)),
	}
	switch {
	case err == nil:
		s.logger.Info("expiring-soon digests sent", fields...)
	case result.RecipientsFailed > 0:
		s.logger.Warn("expiring-soon digests partially sent", append(fields, zap.Error(err))...)
	default:
		s.logger.Error("expiring-soon notification failed", append(fields, zap.Error(err))...)
		return result, err
	}

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventDigestsDispatched,
			Actor:     events.SystemActor,
			Timestamp: s.clock.Now(),
			Payload: events.DigestsDispatchedPayload{
				TicketsConsidered:  result.TicketsConsidered,
				RecipientsNotified: result.RecipientsNotified,
				RecipientsFailed:   result.RecipientsFailed,
			},
		})
	}
	return result, err
}
