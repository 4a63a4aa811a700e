package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

var (
	// ErrNotFound is returned when no ticket matches the lookup.
	ErrNotFound = errors.New("ticket not found")
	// ErrDuplicateTicketNumber is returned when a ticket number is already taken.
	ErrDuplicateTicketNumber = errors.New("ticket number already exists")
)

// DBTX is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Sort columns accepted by List.
const (
	SortByExpirationDate = "expiration_date"
	SortBySubmitDate     = "submit_date"
	SortByCreatedAt      = "created_at"
	SortByTicketNumber   = "ticket_number"
	SortByJurisdiction   = "jurisdiction"
	SortByStatus         = "status"
)

var sortColumns = map[string]string{
	SortByExpirationDate: "expiration_date",
	SortBySubmitDate:     "submit_date",
	SortByCreatedAt:      "created_at",
	SortByTicketNumber:   "ticket_number",
	SortByJurisdiction:   "jurisdiction",
	SortByStatus:         "status",
}

// ValidSortField reports whether field can be used as TicketFilter.SortBy.
func ValidSortField(field string) bool {
	_, ok := sortColumns[field]
	return ok
}

// DefaultListLimit applies when TicketFilter.Limit is not positive.
const DefaultListLimit = 100

// TicketFilter captures list parameters.
type TicketFilter struct {
	Statuses     []domain.TicketStatus
	Jurisdiction *string
	Owner        *string
	SearchTerm   *string
	SortBy       string
	SortDesc     bool
	Limit        int
	Offset       int
}

// StatusWriter performs the set-based status passes of a reconciliation run.
// Every method only touches rows whose status actually changes.
type StatusWriter interface {
	// MarkExpired moves tickets with expiration_date < today to expired.
	MarkExpired(ctx context.Context, today time.Time) (int64, error)
	// MarkExpiringSoon moves active or renewed tickets expiring within
	// [today, threshold] to expiring_soon.
	MarkExpiringSoon(ctx context.Context, today, threshold time.Time) (int64, error)
	// MarkActive moves tickets with expiration_date > threshold to active.
	MarkActive(ctx context.Context, threshold time.Time) (int64, error)
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetByTicketNumber(ctx context.Context, number string) (*domain.Ticket, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error)
	// ListExpiring returns tickets in statuses whose expiration date falls
	// within [from, to], without pagination.
	ListExpiring(ctx context.Context, statuses []domain.TicketStatus, from, to time.Time) ([]domain.Ticket, error)
	Stats(ctx context.Context, today time.Time, horizonDays int) (domain.TicketStats, error)
	// UpdateStatuses runs fn inside a single transaction. If fn returns an
	// error none of its writes are kept.
	UpdateStatuses(ctx context.Context, fn func(StatusWriter) error) error
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates a PostgreSQL-backed repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, ticket_number, job_name, address, jurisdiction, submit_date, expiration_date,
               status, utility_responses, owner, notes, created_by, last_renewed_at, created_at, updated_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_number, job_name, address, jurisdiction, submit_date, expiration_date,
            status, utility_responses, owner, notes, created_by)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id, created_at`
	err := r.db.QueryRow(ctx, query,
		ticket.TicketNumber,
		ticket.JobName,
		ticket.Address,
		ticket.Jurisdiction,
		ticket.SubmitDate,
		ticket.ExpirationDate,
		string(ticket.Status),
		ticket.UtilityResponses,
		ticket.Owner,
		ticket.Notes,
		ticket.CreatedBy,
	).Scan(&ticket.ID, &ticket.CreatedAt)
	return mapWriteError(err)
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	if !validID(ticket.ID) {
		return ErrNotFound
	}
	const query = `
        UPDATE tickets SET job_name=$1, address=$2, jurisdiction=$3, submit_date=$4, expiration_date=$5,
            status=$6, utility_responses=$7, owner=$8, notes=$9, last_renewed_at=$10, updated_at=NOW()
        WHERE id=$11
        RETURNING updated_at`
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, query,
		ticket.JobName,
		ticket.Address,
		ticket.Jurisdiction,
		ticket.SubmitDate,
		ticket.ExpirationDate,
		string(ticket.Status),
		ticket.UtilityResponses,
		ticket.Owner,
		ticket.Notes,
		ticket.LastRenewedAt,
		ticket.ID,
	).Scan(&updatedAt)
	if err != nil {
		return mapWriteError(err)
	}
	ticket.UpdatedAt = &updatedAt
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE id=$1`
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetByTicketNumber(ctx context.Context, number string) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_number=$1`
	return r.fetchSingle(ctx, query, number)
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return ErrNotFound
	}
	cmd, err := r.db.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// validID reports whether id can match the UUID primary key.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) List(ctx context.Context, filter TicketFilter) ([]domain.Ticket, int, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.Jurisdiction != nil && strings.TrimSpace(*filter.Jurisdiction) != "" {
		args = append(args, strings.ToUpper(strings.TrimSpace(*filter.Jurisdiction)))
		clauses = append(clauses, fmt.Sprintf("jurisdiction=$%d", len(args)))
	}
	if filter.Owner != nil {
		args = append(args, *filter.Owner)
		clauses = append(clauses, fmt.Sprintf("owner=$%d", len(args)))
	}
	if filter.SearchTerm != nil && strings.TrimSpace(*filter.SearchTerm) != "" {
		search := "%" + strings.ToLower(strings.TrimSpace(*filter.SearchTerm)) + "%"
		args = append(args, search)
		placeholder := fmt.Sprintf("$%d", len(args))
		clauses = append(clauses, fmt.Sprintf("(LOWER(ticket_number) LIKE %s OR LOWER(job_name) LIKE %s OR LOWER(address) LIKE %s)",
			placeholder, placeholder, placeholder))
	}
	where := strings.Join(clauses, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := sortColumns[filter.SortBy]
	if !ok {
		column = sortColumns[SortByExpirationDate]
	}
	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE %s ORDER BY %s %s, id ASC LIMIT %d OFFSET %d`,
		ticketColumns, where, column, direction, limit, offset)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	tickets, err := scanTickets(rows)
	if err != nil {
		return nil, 0, err
	}
	return tickets, total, nil
}

func (r *ticketRepository) ListExpiring(ctx context.Context, statuses []domain.TicketStatus, from, to time.Time) ([]domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + `
        FROM tickets
        WHERE expiration_date >= $1 AND expiration_date <= $2 AND status = ANY($3)
        ORDER BY expiration_date ASC, id ASC`
	rows, err := r.db.Query(ctx, query, from, to, statusStrings(statuses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Stats(ctx context.Context, today time.Time, horizonDays int) (domain.TicketStats, error) {
	stats := domain.TicketStats{ByJurisdiction: map[string]int{}}

	rows, err := r.db.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return stats, err
		}
		addStatusCount(&stats, domain.TicketStatus(status), count)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	rows, err = r.db.Query(ctx, `SELECT jurisdiction, COUNT(*) FROM tickets GROUP BY jurisdiction`)
	if err != nil {
		return stats, err
	}
	for rows.Next() {
		var code string
		var count int
		if err := rows.Scan(&code, &count); err != nil {
			rows.Close()
			return stats, err
		}
		stats.ByJurisdiction[code] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return stats, err
	}

	const horizonQuery = `SELECT COUNT(*) FROM tickets WHERE expiration_date >= $1 AND expiration_date <= $2`
	horizon := today.AddDate(0, 0, horizonDays)
	if err := r.db.QueryRow(ctx, horizonQuery, today, horizon).Scan(&stats.ExpiringNextSevenDays); err != nil {
		return stats, err
	}
	return stats, nil
}

func (r *ticketRepository) UpdateStatuses(ctx context.Context, fn func(StatusWriter) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(&statusWriter{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status transaction: %w", err)
	}
	return nil
}

type statusWriter struct {
	tx pgx.Tx
}

func (w *statusWriter) MarkExpired(ctx context.Context, today time.Time) (int64, error) {
	const query = `
        UPDATE tickets SET status='expired', updated_at=NOW()
        WHERE expiration_date < $1 AND status <> 'expired'`
	return w.exec(ctx, query, today)
}

func (w *statusWriter) MarkExpiringSoon(ctx context.Context, today, threshold time.Time) (int64, error) {
	const query = `
        UPDATE tickets SET status='expiring_soon', updated_at=NOW()
        WHERE expiration_date >= $1 AND expiration_date <= $2 AND status IN ('active', 'renewed')`
	return w.exec(ctx, query, today, threshold)
}

func (w *statusWriter) MarkActive(ctx context.Context, threshold time.Time) (int64, error) {
	const query = `
        UPDATE tickets SET status='active', updated_at=NOW()
        WHERE expiration_date > $1 AND status <> 'active'`
	return w.exec(ctx, query, threshold)
}

func (w *statusWriter) exec(ctx context.Context, query string, args ...any) (int64, error) {
	cmd, err := w.tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	var status string
	if err := row.Scan(
		&ticket.ID,
		&ticket.TicketNumber,
		&ticket.JobName,
		&ticket.Address,
		&ticket.Jurisdiction,
		&ticket.SubmitDate,
		&ticket.ExpirationDate,
		&status,
		&ticket.UtilityResponses,
		&ticket.Owner,
		&ticket.Notes,
		&ticket.CreatedBy,
		&ticket.LastRenewedAt,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
	); err != nil {
		return nil, err
	}
	ticket.Status = domain.TicketStatus(status)
	return &ticket, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func statusStrings(statuses []domain.TicketStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func addStatusCount(stats *domain.TicketStats, status domain.TicketStatus, count int) {
	stats.Total += count
	switch status {
	case domain.TicketStatusActive:
		stats.Active += count
	case domain.TicketStatusExpiringSoon:
		stats.ExpiringSoon += count
	case domain.TicketStatusExpired:
		stats.Expired += count
	case domain.TicketStatusRenewed:
		stats.Renewed += count
	}
}

func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateTicketNumber
	}
	return err
}
