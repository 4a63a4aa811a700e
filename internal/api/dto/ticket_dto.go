package dto

import (
	"time"

	"github.com/spec-kit/locate-tracker/internal/domain"
)

// CreateTicketRequest payload.
type CreateTicketRequest struct {
	TicketNumber       string  `json:"ticket_number" validate:"required,max=50"`
	JobName            string  `json:"job_name" validate:"required,max=200"`
	Address            string  `json:"address" validate:"required,max=500"`
	Jurisdiction       string  `json:"state" validate:"required,len=2,alpha"`
	SubmitDate         string  `json:"submit_date" validate:"required,datetime=2006-01-02"`
	ExpirationOverride *string `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
	UtilityResponses   *string `json:"utility_responses"`
	Owner              *string `json:"owner" validate:"omitempty,max=255"`
	Notes              *string `json:"notes"`
}

// UpdateTicketRequest payload. Absent fields are left unchanged.
type UpdateTicketRequest struct {
	JobName          *string `json:"job_name" validate:"omitempty,max=200"`
	Address          *string `json:"address" validate:"omitempty,max=500"`
	ExpirationDate   *string `json:"expiration_date" validate:"omitempty,datetime=2006-01-02"`
	UtilityResponses *string `json:"utility_responses"`
	Owner            *string `json:"owner" validate:"omitempty,max=255"`
	Notes            *string `json:"notes"`
}

// RenewTicketRequest payload.
type RenewTicketRequest struct {
	NewExpirationDate string  `json:"new_expiration_date" validate:"required,datetime=2006-01-02"`
	Notes             *string `json:"notes"`
}

// TicketResponse represents one ticket.
type TicketResponse struct {
	ID               string              `json:"id"`
	TicketNumber     string              `json:"ticket_number"`
	JobName          string              `json:"job_name"`
	Address          string              `json:"address"`
	Jurisdiction     string              `json:"state"`
	SubmitDate       string              `json:"submit_date"`
	ExpirationDate   string              `json:"expiration_date"`
	Status           domain.TicketStatus `json:"status"`
	DaysRemaining    int                 `json:"days_remaining"`
	UtilityResponses *string             `json:"utility_responses"`
	Owner            *string             `json:"owner"`
	Notes            *string             `json:"notes"`
	CreatedBy        *string             `json:"created_by"`
	LastRenewedAt    *time.Time          `json:"last_renewed_at"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        *time.Time          `json:"updated_at"`
}

// TicketListResponse is one page of tickets.
type TicketListResponse struct {
	Tickets []TicketResponse `json:"tickets"`
	Total   int              `json:"total"`
	Skip    int              `json:"skip"`
	Limit   int              `json:"limit"`
}

// TicketHistoryResponse is one audit entry.
type TicketHistoryResponse struct {
	ID         string                  `json:"id"`
	ChangeType domain.TicketChangeType `json:"change_type"`
	ChangedBy  *string                 `json:"changed_by"`
	OldValue   map[string]any          `json:"old_value,omitempty"`
	NewValue   map[string]any          `json:"new_value,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
}

// JurisdictionResponse lists validity periods.
type JurisdictionResponse struct {
	Rules       map[string]int `json:"rules"`
	DefaultDays int            `json:"default_days"`
	WarningDays int            `json:"warning_days"`
}
