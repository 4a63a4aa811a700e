package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/repository"
)

var errBoom = errors.New("boom")

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func strPtr(s string) *string { return &s }

func seedTicket(t *testing.T, repo repository.TicketRepository, number string, exp time.Time, status domain.TicketStatus, owner *string) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		TicketNumber:   number,
		JobName:        "job " + number,
		Address:        number + " Main St",
		Jurisdiction:   "VA",
		SubmitDate:     exp.AddDate(0, 0, -30),
		ExpirationDate: exp,
		Status:         status,
		Owner:          owner,
	}
	if err := repo.Create(context.Background(), ticket); err != nil {
		t.Fatalf("seed %s: %v", number, err)
	}
	return ticket
}

func statusOf(t *testing.T, repo repository.TicketRepository, id string) domain.TicketStatus {
	t.Helper()
	ticket, err := repo.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return ticket.Status
}

// countingStore hands out the same repository and counts releases.
type countingStore struct {
	repo       repository.TicketRepository
	sessionErr error

	mu       sync.Mutex
	opened   int
	released int
}

func (s *countingStore) Session(ctx context.Context) (repository.TicketRepository, func(), error) {
	if s.sessionErr != nil {
		return nil, nil, s.sessionErr
	}
	s.mu.Lock()
	s.opened++
	s.mu.Unlock()
	return s.repo, func() {
		s.mu.Lock()
		s.released++
		s.mu.Unlock()
	}, nil
}

// failingActiveRepo fails the last reconciliation pass after the others ran.
type failingActiveRepo struct {
	*repository.MemoryTicketRepository
}

func (r failingActiveRepo) UpdateStatuses(ctx context.Context, fn func(repository.StatusWriter) error) error {
	return r.MemoryTicketRepository.UpdateStatuses(ctx, func(w repository.StatusWriter) error {
		return fn(failOnActive{w})
	})
}

type failOnActive struct {
	repository.StatusWriter
}

func (failOnActive) MarkActive(ctx context.Context, threshold time.Time) (int64, error) {
	return 0, errBoom
}

// recordingSender captures digests and fails for selected recipients.
type recordingSender struct {
	mu    sync.Mutex
	sent  map[string][][]domain.TicketSummary
	fail  map[string]error
	panic map[string]bool
}

func newRecordingSender() *recordingSender {
	return &recordingSender{
		sent:  map[string][][]domain.TicketSummary{},
		fail:  map[string]error{},
		panic: map[string]bool{},
	}
}

func (s *recordingSender) Send(ctx context.Context, recipient string, digest []domain.TicketSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[recipient] = append(s.sent[recipient], append([]domain.TicketSummary(nil), digest...))
	if s.panic[recipient] {
		panic("sender exploded")
	}
	return s.fail[recipient]
}

func (s *recordingSender) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, digests := range s.sent {
		n += len(digests)
	}
	return n
}

func ids(summaries []domain.TicketSummary) []string {
	out := make([]string, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, s.TicketNumber)
	}
	return out
}
