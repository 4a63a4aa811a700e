package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// MemoryTicketRepository keeps tickets in process memory. It backs local
// development without PostgreSQL and the service tests.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	tickets map[string]domain.Ticket
	now     func() time.Time
}

// NewMemoryTicketRepository returns an empty repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		tickets: make(map[string]domain.Ticket),
		now:     time.Now,
	}
}

// Session implements Store; the in-memory repository needs no scoping.
func (r *MemoryTicketRepository) Session(ctx context.Context) (TicketRepository, func(), error) {
	return r, func() {}, nil
}

func (r *MemoryTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tickets {
		if existing.TicketNumber == ticket.TicketNumber {
			return ErrDuplicateTicketNumber
		}
	}
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.CreatedAt = r.now()
	r.tickets[ticket.ID] = cloneTicket(*ticket)
	return nil
}

func (r *MemoryTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.tickets[ticket.ID]
	if !ok {
		return ErrNotFound
	}
	now := r.now()
	updated := cloneTicket(*ticket)
	updated.TicketNumber = existing.TicketNumber
	updated.CreatedAt = existing.CreatedAt
	updated.CreatedBy = existing.CreatedBy
	updated.UpdatedAt = &now
	r.tickets[ticket.ID] = updated
	ticket.UpdatedAt = &now
	return nil
}

func (r *MemoryTicketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ticket, ok := r.tickets[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTicket(ticket)
	return &out, nil
}

func (r *MemoryTicketRepository) GetByTicketNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ticket := range r.tickets {
		if ticket.TicketNumber == number {
			out := cloneTicket(ticket)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryTicketRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tickets[id]; !ok {
		return ErrNotFound
	}
	delete(r.tickets, id)
	return nil
}

func (r *MemoryTicketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	r.mu.RLock()
	matched := make([]domain.Ticket, 0, len(r.tickets))
	for _, ticket := range r.tickets {
		if matchesFilter(ticket, filter) {
			matched = append(matched, cloneTicket(ticket))
		}
	}
	r.mu.RUnlock()

	sortTickets(matched, filter.SortBy, filter.SortDesc)

	total := len(matched)
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.Ticket{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (r *MemoryTicketRepository) ListExpiring(ctx context.Context, statuses []domain.TicketStatus, from, to time.Time) ([]domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var result []domain.Ticket
	for _, ticket := range r.tickets {
		if !containsStatus(statuses, ticket.Status) {
			continue
		}
		if ticket.ExpirationDate.Before(from) || ticket.ExpirationDate.After(to) {
			continue
		}
		result = append(result, cloneTicket(ticket))
	}
	sortTickets(result, SortByExpirationDate, false)
	return result, nil
}

func (r *MemoryTicketRepository) Stats(ctx context.Context, today time.Time, horizonDays int) (domain.TicketStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stats := domain.TicketStats{ByJurisdiction: map[string]int{}}
	horizon := today.AddDate(0, 0, horizonDays)
	for _, ticket := range r.tickets {
		addStatusCount(&stats, ticket.Status, 1)
		stats.ByJurisdiction[ticket.Jurisdiction]++
		if !ticket.ExpirationDate.Before(today) && !ticket.ExpirationDate.After(horizon) {
			stats.ExpiringNextSevenDays++
		}
	}
	return stats, nil
}

// UpdateStatuses applies fn to a copy of the data set and swaps it in only
// when fn succeeds.
func (r *MemoryTicketRepository) UpdateStatuses(ctx context.Context, fn func(StatusWriter) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	staged := make(map[string]domain.Ticket, len(r.tickets))
	for id, ticket := range r.tickets {
		staged[id] = ticket
	}
	writer := &memoryStatusWriter{tickets: staged, now: r.now()}
	if err := fn(writer); err != nil {
		return err
	}
	r.tickets = staged
	return nil
}

type memoryStatusWriter struct {
	tickets map[string]domain.Ticket
	now     time.Time
}

func (w *memoryStatusWriter) MarkExpired(ctx context.Context, today time.Time) (int64, error) {
	return w.apply(domain.TicketStatusExpired, func(t domain.Ticket) bool {
		return t.ExpirationDate.Before(today) && t.Status != domain.TicketStatusExpired
	}), nil
}

func (w *memoryStatusWriter) MarkExpiringSoon(ctx context.Context, today, threshold time.Time) (int64, error) {
	return w.apply(domain.TicketStatusExpiringSoon, func(t domain.Ticket) bool {
		inWindow := !t.ExpirationDate.Before(today) && !t.ExpirationDate.After(threshold)
		return inWindow && (t.Status == domain.TicketStatusActive || t.Status == domain.TicketStatusRenewed)
	}), nil
}

func (w *memoryStatusWriter) MarkActive(ctx context.Context, threshold time.Time) (int64, error) {
	return w.apply(domain.TicketStatusActive, func(t domain.Ticket) bool {
		return t.ExpirationDate.After(threshold) && t.Status != domain.TicketStatusActive
	}), nil
}

func (w *memoryStatusWriter) apply(status domain.TicketStatus, match func(domain.Ticket) bool) int64 {
	var n int64
	for id, ticket := range w.tickets {
		if !match(ticket) {
			continue
		}
		now := w.now
		ticket.Status = status
		ticket.UpdatedAt = &now
		w.tickets[id] = ticket
		n++
	}
	return n
}

func matchesFilter(ticket domain.Ticket, filter TicketFilter) bool {
	if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, ticket.Status) {
		return false
	}
	if filter.Jurisdiction != nil && strings.TrimSpace(*filter.Jurisdiction) != "" &&
		!strings.EqualFold(ticket.Jurisdiction, strings.TrimSpace(*filter.Jurisdiction)) {
		return false
	}
	if filter.Owner != nil && ticket.OwnerOrEmpty() != *filter.Owner {
		return false
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		term := strings.ToLower(strings.TrimSpace(*filter.SearchTerm))
		if !strings.Contains(strings.ToLower(ticket.TicketNumber), term) &&
			!strings.Contains(strings.ToLower(ticket.JobName), term) &&
			!strings.Contains(strings.ToLower(ticket.Address), term) {
			return false
		}
	}
	return true
}

func sortTickets(tickets []domain.Ticket, sortBy string, desc bool) {
	less := func(a, b domain.Ticket) int {
		switch sortBy {
		case SortBySubmitDate:
			return a.SubmitDate.Compare(b.SubmitDate)
		case SortByCreatedAt:
			return a.CreatedAt.Compare(b.CreatedAt)
		case SortByTicketNumber:
			return strings.Compare(a.TicketNumber, b.TicketNumber)
		case SortByJurisdiction:
			return strings.Compare(a.Jurisdiction, b.Jurisdiction)
		case SortByStatus:
			return strings.Compare(string(a.Status), string(b.Status))
		default:
			return a.ExpirationDate.Compare(b.ExpirationDate)
		}
	}
	sort.SliceStable(tickets, func(i, j int) bool {
		c := less(tickets[i], tickets[j])
		if c == 0 {
			return tickets[i].ID < tickets[j].ID
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

func cloneTicket(t domain.Ticket) domain.Ticket {
	t.UtilityResponses = cloneString(t.UtilityResponses)
	t.Owner = cloneString(t.Owner)
	t.Notes = cloneString(t.Notes)
	t.CreatedBy = cloneString(t.CreatedBy)
	if t.LastRenewedAt != nil {
		v := *t.LastRenewedAt
		t.LastRenewedAt = &v
	}
	if t.UpdatedAt != nil {
		v := *t.UpdatedAt
		t.UpdatedAt = &v
	}
	return t
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
