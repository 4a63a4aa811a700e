package domain

import "time"

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// TicketStatus enumerates lifecycle states for locate tickets.
type TicketStatus string

const (
	TicketStatusActive       TicketStatus = "active"
	TicketStatusExpiringSoon TicketStatus = "expiring_soon"
	TicketStatusExpired      TicketStatus = "expired"
	TicketStatusRenewed      TicketStatus = "renewed"
)

// Valid reports whether s is one of the known statuses.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusActive, TicketStatusExpiringSoon, TicketStatusExpired, TicketStatusRenewed:
		return true
	}
	return false
}

// Ticket is a time-bounded utility-location permit.
//
// SubmitDate and ExpirationDate are calendar dates held as UTC midnight.
type Ticket struct {
	ID               string
	TicketNumber     string
	JobName          string
	Address          string
	Jurisdiction     string
	SubmitDate       time.Time
	ExpirationDate   time.Time
	Status           TicketStatus
	UtilityResponses *string
	Owner            *string
	Notes            *string
	CreatedBy        *string
	LastRenewedAt    *time.Time
	CreatedAt        time.Time
	UpdatedAt        *time.Time
}

// OwnerOrEmpty returns the owner, or "" when unassigned.
func (t *Ticket) OwnerOrEmpty() string {
	if t.Owner == nil {
		return ""
	}
	return *t.Owner
}

// TicketSummary is one line of a notification digest.
type TicketSummary struct {
	ID             string    `json:"id"`
	TicketNumber   string    `json:"ticket_number"`
	JobName        string    `json:"job_name"`
	Address        string    `json:"address"`
	ExpirationDate time.Time `json:"expiration_date"`
	DaysRemaining  int       `json:"days_remaining"`
}

// StatusCounts reports rows moved into each status by a reconciliation pass.
type StatusCounts struct {
	Expired      int64 `json:"expired"`
	ExpiringSoon int64 `json:"expiring_soon"`
	Active       int64 `json:"active"`
}

// Total returns the number of rows written.
func (c StatusCounts) Total() int64 {
	return c.Expired + c.ExpiringSoon + c.Active
}

// TicketStats aggregates dashboard counters.
type TicketStats struct {
	Total                 int            `json:"total_tickets"`
	Active                int            `json:"active_tickets"`
	ExpiringSoon          int            `json:"expiring_soon_tickets"`
	Expired               int            `json:"expired_tickets"`
	Renewed               int            `json:"renewed_tickets"`
	ByJurisdiction        map[string]int `json:"tickets_by_state"`
	ExpiringNextSevenDays int            `json:"expiring_in_next_7_days"`
}
