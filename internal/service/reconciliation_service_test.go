package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spec-kit/locate-tracker/internal/clock"
	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

func TestReconcileMovesEveryMisclassifiedTicket(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	today := day(2024, 1, 16)

	past := seedTicket(t, repo, "past", day(2024, 1, 15), domain.TicketStatusActive, nil)
	dueToday := seedTicket(t, repo, "today", today, domain.TicketStatusActive, nil)
	edge := seedTicket(t, repo, "edge", day(2024, 1, 21), domain.TicketStatusRenewed, nil)
	beyond := seedTicket(t, repo, "beyond", day(2024, 1, 22), domain.TicketStatusExpiringSoon, nil)
	settled := seedTicket(t, repo, "settled", day(2024, 3, 1), domain.TicketStatusActive, nil)

	counts, err := Reconcile(ctx, today, 5, repo)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := domain.StatusCounts{Expired: 1, ExpiringSoon: 2, Active: 1}
	if counts != want {
		t.Fatalf("counts = %+v, want %+v", counts, want)
	}

	expect := map[string]domain.TicketStatus{
		past.ID:     domain.TicketStatusExpired,
		dueToday.ID: domain.TicketStatusExpiringSoon,
		edge.ID:     domain.TicketStatusExpiringSoon,
		beyond.ID:   domain.TicketStatusActive,
		settled.ID:  domain.TicketStatusActive,
	}
	for id, status := range expect {
		if got := statusOf(t, repo, id); got != status {
			t.Errorf("ticket %s: status %s, want %s", id, got, status)
		}
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	today := day(2024, 1, 16)
	seedTicket(t, repo, "a", day(2024, 1, 10), domain.TicketStatusActive, nil)
	seedTicket(t, repo, "b", day(2024, 1, 18), domain.TicketStatusActive, nil)
	seedTicket(t, repo, "c", day(2024, 2, 18), domain.TicketStatusExpired, nil)

	if _, err := Reconcile(ctx, today, 5, repo); err != nil {
		t.Fatalf("first pass: %v", err)
	}
	counts, err := Reconcile(ctx, today, 5, repo)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if counts.Total() != 0 {
		t.Fatalf("second pass wrote %+v", counts)
	}
}

func TestReconcileMarylandScenario(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	svc := NewTicketService(TicketDependencies{
		TicketRepo:  repo,
		Clock:       clock.Fixed(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)),
		WarningDays: 5,
	})
	ticket, err := svc.CreateTicket(ctx, events.SystemActor, TicketCreateInput{
		TicketNumber: "MD-1",
		JobName:      "Fiber run",
		Address:      "1 Bay Rd",
		Jurisdiction: "md",
		SubmitDate:   day(2024, 1, 1),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !ticket.ExpirationDate.Equal(day(2024, 1, 16)) {
		t.Fatalf("expiration = %v, want 2024-01-16", ticket.ExpirationDate)
	}
	if ticket.Status != domain.TicketStatusActive {
		t.Fatalf("initial status = %s", ticket.Status)
	}

	if _, err := Reconcile(ctx, day(2024, 1, 16), 5, repo); err != nil {
		t.Fatal(err)
	}
	if got := statusOf(t, repo, ticket.ID); got != domain.TicketStatusExpiringSoon {
		t.Fatalf("on 01-16 status = %s", got)
	}
	if _, err := Reconcile(ctx, day(2024, 1, 17), 5, repo); err != nil {
		t.Fatal(err)
	}
	if got := statusOf(t, repo, ticket.ID); got != domain.TicketStatusExpired {
		t.Fatalf("on 01-17 status = %s", got)
	}
}

func TestRenewThenReconcile(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryTicketRepository()
	fixed := clock.Fixed(time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC))
	svc := NewTicketService(TicketDependencies{TicketRepo: repo, Clock: fixed, WarningDays: 5})

	far := seedTicket(t, repo, "far", day(2024, 1, 10), domain.TicketStatusExpired, nil)
	near := seedTicket(t, repo, "near", day(2024, 1, 10), domain.TicketStatusExpired, nil)

	renewed, err := svc.RenewTicket(ctx, events.SystemActor, far.ID, day(2024, 2, 15), nil)
	if err != nil {
		t.Fatalf("renew: %v", err)
	}
	if renewed.Status != domain.TicketStatusRenewed || renewed.LastRenewedAt == nil {
		t.Fatalf("renewal did not mark ticket renewed: %+v", renewed)
	}
	if _, err := svc.RenewTicket(ctx, events.SystemActor, near.ID, day(2024, 1, 18), nil); err != nil {
		t.Fatalf("renew: %v", err)
	}

	counts, err := Reconcile(ctx, day(2024, 1, 16), 5, repo)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Active != 1 || counts.ExpiringSoon != 1 || counts.Expired != 0 {
		t.Fatalf("counts = %+v", counts)
	}
	if got := statusOf(t, repo, far.ID); got != domain.TicketStatusActive {
		t.Errorf("far renewal status = %s, want active", got)
	}
	if got := statusOf(t, repo, near.ID); got != domain.TicketStatusExpiringSoon {
		t.Errorf("near renewal status = %s, want expiring_soon", got)
	}
}

func TestReconcileRollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	mem := repository.NewMemoryTicketRepository()
	past := seedTicket(t, mem, "past", day(2024, 1, 1), domain.TicketStatusActive, nil)

	counts, err := Reconcile(ctx, day(2024, 1, 16), 5, failingActiveRepo{mem})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if counts.Total() != 0 {
		t.Fatalf("counts returned on failure: %+v", counts)
	}
	if got := statusOf(t, mem, past.ID); got != domain.TicketStatusActive {
		t.Fatalf("expired pass was committed: %s", got)
	}
}

func TestReconciliationServiceRunReleasesSession(t *testing.T) {
	mem := repository.NewMemoryTicketRepository()
	seedTicket(t, mem, "past", day(2024, 1, 1), domain.TicketStatusActive, nil)

	var published []events.Event
	dispatcher := events.NewInMemoryDispatcher(nil)
	dispatcher.Subscribe(events.EventStatusesReconciled, func(ctx context.Context, e events.Event) error {
		published = append(published, e)
		return nil
	})

	okStore := &countingStore{repo: mem}
	svc := NewReconciliationService(JobDependencies{
		Store:       okStore,
		Clock:       clock.Fixed(time.Date(2024, 1, 16, 14, 0, 0, 0, time.UTC)),
		WarningDays: 5,
		Events:      dispatcher,
	})
	counts, err := svc.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if counts.Expired != 1 {
		t.Fatalf("counts = %+v", counts)
	}
	if okStore.opened != 1 || okStore.released != 1 {
		t.Fatalf("session opened=%d released=%d", okStore.opened, okStore.released)
	}
	if len(published) != 1 {
		t.Fatalf("expected one reconciled event, got %d", len(published))
	}

	failStore := &countingStore{repo: failingActiveRepo{repository.NewMemoryTicketRepository()}}
	svc = NewReconciliationService(JobDependencies{Store: failStore, WarningDays: 5})
	if _, err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected failure")
	}
	if failStore.released != 1 {
		t.Fatalf("session not released after failure")
	}
}

func TestReconciliationServiceUsesBusinessTimeZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	mem := repository.NewMemoryTicketRepository()
	ticket := seedTicket(t, mem, "due", day(2024, 1, 15), domain.TicketStatusExpiringSoon, nil)

	// 02:00 UTC on the 16th is still the 15th in New York.
	svc := NewReconciliationService(JobDependencies{
		Store:       &countingStore{repo: mem},
		Clock:       clock.Fixed(time.Date(2024, 1, 16, 2, 0, 0, 0, time.UTC)),
		Location:    ny,
		WarningDays: 5,
	})
	if _, err := svc.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := statusOf(t, mem, ticket.ID); got != domain.TicketStatusExpiringSoon {
		t.Fatalf("status = %s, want expiring_soon", got)
	}
}
