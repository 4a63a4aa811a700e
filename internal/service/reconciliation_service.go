package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-tracker/internal/clock"
	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/expiration"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

// Reconcile moves every ticket whose stored status disagrees with its
// expiration date into the status the calendar implies. The three passes
// share one transaction: either all of them commit or none does.
//
// Tickets in renewed are only picked up once they fall into the warning
// window or past their expiration date.
func Reconcile(ctx context.Context, today time.Time, warningDays int, repo repository.TicketRepository) (domain.StatusCounts, error) {
	today = expiration.Date(today)
	threshold := expiration.WarningThreshold(today, warningDays)

	var counts domain.StatusCounts
	err := repo.UpdateStatuses(ctx, func(w repository.StatusWriter) error {
		var err error
		if counts.Expired, err = w.MarkExpired(ctx, today); err != nil {
			return fmt.Errorf("mark expired: %w", err)
		}
		if counts.ExpiringSoon, err = w.MarkExpiringSoon(ctx, today, threshold); err != nil {
			return fmt.Errorf("mark expiring soon: %w", err)
		}
		if counts.Active, err = w.MarkActive(ctx, threshold); err != nil {
			return fmt.Errorf("mark active: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.StatusCounts{}, fmt.Errorf("reconcile statuses: %w", err)
	}
	return counts, nil
}

// ReconciliationService runs Reconcile against a freshly scoped store.
type ReconciliationService struct {
	store       repository.Store
	clock       clock.Clock
	location    *time.Location
	warningDays int
	dispatcher  events.Dispatcher
	logger      *zap.Logger
}

// JobDependencies bundles what the background jobs share.
type JobDependencies struct {
	Store       repository.Store
	Clock       clock.Clock
	Location    *time.Location
	WarningDays int
	Events      events.Dispatcher
	Logger      *zap.Logger
}

func (d JobDependencies) withDefaults() JobDependencies {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	return d
}

// NewReconciliationService constructs the service.
func NewReconciliationService(deps JobDependencies) *ReconciliationService {
	deps = deps.withDefaults()
	return &ReconciliationService{
		store:       deps.Store,
		clock:       deps.Clock,
		location:    deps.Location,
		warningDays: deps.WarningDays,
		dispatcher:  deps.Events,
		logger:      deps.Logger.Named("reconcile"),
	}
}

// Run reconciles statuses as of today in the configured time zone.
func (s *ReconciliationService) Run(ctx context.Context) (domain.StatusCounts, error) {
	today := clock.Today(s.clock, s.location)
	started := time.Now()

	repo, release, err := s.store.Session(ctx)
	if err != nil {
		s.logger.Error("open store session", zap.Error(err))
		return domain.StatusCounts{}, fmt.Errorf("open store session: %w", err)
	}
	defer release()

	counts, err := Reconcile(ctx, today, s.warningDays, repo)
	if err != nil {
		s.logger.Error("reconciliation failed",
			zap.Time("today", today),
			zap.Duration("duration", time.Since(started)),
			zap.Error(err))
		return domain.StatusCounts{}, err
	}

	s.logger.Info("statuses reconciled",
		zap.Time("today", today),
		zap.Int64("expired", counts.Expired),
		zap.Int64("expiring_soon", counts.ExpiringSoon),
		zap.Int64("active", counts.Active),
		zap.Duration("duration", time.Since(started)))

	if s.dispatcher != nil {
		_ = s.dispatcher.Publish(ctx, events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventStatusesReconciled,
			Actor:     events.SystemActor,
			Timestamp: s.clock.Now(),
			Payload:   events.StatusesReconciledPayload{Today: today, Counts: counts},
		})
	}
	return counts, nil
}
