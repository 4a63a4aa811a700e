package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"

	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/persistence"
)

// openTestPool connects to DATABASE_URL, or starts a Postgres 16 container
// when TEST_POSTGRES_CONTAINER=1. Otherwise the test is skipped.
func openTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		if os.Getenv("TEST_POSTGRES_CONTAINER") != "1" {
			t.Skip("DATABASE_URL is empty and TEST_POSTGRES_CONTAINER!=1; skipping postgres integration test")
		}
		container, err := postgres.Run(ctx,
			"postgres:16",
			postgres.WithDatabase("tickets"),
			postgres.WithUsername("tickets"),
			postgres.WithPassword("tickets"),
			postgres.BasicWaitStrategies(),
		)
		if err != nil {
			t.Fatalf("start postgres container: %v", err)
		}
		t.Cleanup(func() {
			_ = container.Terminate(context.Background())
		})
		dsn, err = container.ConnectionString(ctx, "sslmode=disable")
		if err != nil {
			t.Fatalf("container dsn: %v", err)
		}
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := persistence.RunMigrations(ctx, pool, zap.NewNop()); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	return pool
}

func TestPostgresTicketRepository_Integration(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	store := NewPostgresStore(pool)

	repo, release, err := store.Session(ctx)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	defer release()

	prefix := fmt.Sprintf("IT-%d-", time.Now().UnixNano())
	today := date(2024, 1, 16)
	tickets := []domain.Ticket{
		{TicketNumber: prefix + "past", ExpirationDate: date(2024, 1, 15), Status: domain.TicketStatusActive},
		{TicketNumber: prefix + "today", ExpirationDate: today, Status: domain.TicketStatusActive},
		{TicketNumber: prefix + "renewed", ExpirationDate: date(2024, 1, 18), Status: domain.TicketStatusRenewed},
		{TicketNumber: prefix + "far", ExpirationDate: date(2024, 3, 1), Status: domain.TicketStatusExpiringSoon},
	}
	for i := range tickets {
		tickets[i].JobName = "job"
		tickets[i].Address = "1 Main St"
		tickets[i].Jurisdiction = "MD"
		tickets[i].SubmitDate = date(2024, 1, 1)
		if err := repo.Create(ctx, &tickets[i]); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	t.Cleanup(func() {
		for _, ticket := range tickets {
			_ = NewTicketRepository(pool).Delete(context.Background(), ticket.ID)
		}
	})

	if _, err := repo.GetByID(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetByID with malformed id: %v", err)
	}
	if err := repo.Delete(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete with malformed id: %v", err)
	}
	if entries, err := NewTicketHistoryRepository(pool).ListByTicket(ctx, "abc", 10, 0); err != nil || len(entries) != 0 {
		t.Fatalf("ListByTicket with malformed id: %v %v", entries, err)
	}

	dup := tickets[0]
	if err := repo.Create(ctx, &dup); !errors.Is(err, ErrDuplicateTicketNumber) {
		t.Fatalf("expected duplicate error, got %v", err)
	}

	threshold := today.AddDate(0, 0, 5)
	run := func() domain.StatusCounts {
		var counts domain.StatusCounts
		err := repo.UpdateStatuses(ctx, func(w StatusWriter) error {
			var err error
			if counts.Expired, err = w.MarkExpired(ctx, today); err != nil {
				return err
			}
			if counts.ExpiringSoon, err = w.MarkExpiringSoon(ctx, today, threshold); err != nil {
				return err
			}
			counts.Active, err = w.MarkActive(ctx, threshold)
			return err
		})
		if err != nil {
			t.Fatalf("UpdateStatuses: %v", err)
		}
		return counts
	}

	first := run()
	if first.Expired < 1 || first.ExpiringSoon < 2 || first.Active < 1 {
		t.Fatalf("unexpected first pass counts %+v", first)
	}
	second := run()
	if second.Total() != 0 {
		t.Fatalf("second pass wrote rows: %+v", second)
	}

	want := map[string]domain.TicketStatus{
		"past":    domain.TicketStatusExpired,
		"today":   domain.TicketStatusExpiringSoon,
		"renewed": domain.TicketStatusExpiringSoon,
		"far":     domain.TicketStatusActive,
	}
	for suffix, status := range want {
		got, err := repo.GetByTicketNumber(ctx, prefix+suffix)
		if err != nil {
			t.Fatalf("get %s: %v", suffix, err)
		}
		if got.Status != status {
			t.Errorf("%s: status %s, want %s", suffix, got.Status, status)
		}
		if !got.ExpirationDate.Equal(expirationFor(tickets, prefix+suffix)) {
			t.Errorf("%s: expiration round-trip mismatch %v", suffix, got.ExpirationDate)
		}
	}

	expiring, err := repo.ListExpiring(ctx,
		[]domain.TicketStatus{domain.TicketStatusActive, domain.TicketStatusExpiringSoon}, today, threshold)
	if err != nil {
		t.Fatalf("ListExpiring: %v", err)
	}
	found := 0
	for _, ticket := range expiring {
		if ticket.TicketNumber == prefix+"today" || ticket.TicketNumber == prefix+"renewed" {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("ListExpiring found %d of 2 seeded tickets", found)
	}
}

func TestPostgresUpdateStatusesRollsBack_Integration(t *testing.T) {
	pool := openTestPool(t)
	ctx := context.Background()
	repo := NewTicketRepository(pool)

	ticket := domain.Ticket{
		TicketNumber:   fmt.Sprintf("IT-rb-%d", time.Now().UnixNano()),
		JobName:        "job",
		Address:        "addr",
		Jurisdiction:   "VA",
		SubmitDate:     date(2020, 1, 1),
		ExpirationDate: date(2020, 1, 31),
		Status:         domain.TicketStatusActive,
	}
	if err := repo.Create(ctx, &ticket); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = repo.Delete(context.Background(), ticket.ID) })

	boom := errors.New("boom")
	err := repo.UpdateStatuses(ctx, func(w StatusWriter) error {
		if _, err := w.MarkExpired(ctx, date(2024, 1, 1)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, err := repo.GetByID(ctx, ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != domain.TicketStatusActive {
		t.Fatalf("expected rollback to keep active, got %s", got.Status)
	}
}

func expirationFor(tickets []domain.Ticket, number string) time.Time {
	for _, ticket := range tickets {
		if ticket.TicketNumber == number {
			return ticket.ExpirationDate
		}
	}
	return time.Time{}
}
