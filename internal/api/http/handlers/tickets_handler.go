package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/locate-tracker/internal/api/dto"
	"github.com/spec-kit/locate-tracker/internal/auth"
	"github.com/spec-kit/locate-tracker/internal/domain"
	"github.com/spec-kit/locate-tracker/internal/events"
	"github.com/spec-kit/locate-tracker/internal/expiration"
	"github.com/spec-kit/locate-tracker/internal/repository"
	"github.com/spec-kit/locate-tracker/internal/service"
	apperrors "github.com/spec-kit/locate-tracker/pkg/util/errorutil"
)

const maxListLimit = 1000

// TicketsHandler manages ticket endpoints.
type TicketsHandler struct {
	service  *service.TicketService
	validate *validator.Validate
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(ticketService *service.TicketService, validate *validator.Validate) *TicketsHandler {
	if validate == nil {
		validate = NewValidator()
	}
	return &TicketsHandler{service: ticketService, validate: validate}
}

// CreateTicket POST /tickets.
func (h *TicketsHandler) CreateTicket(c *fiber.Ctx) error {
	var req dto.CreateTicketRequest
	if err := bindAndValidate(c, h.validate, &req); err != nil {
		return err
	}
	submit, err := parseDate("submit_date", req.SubmitDate)
	if err != nil {
		return err
	}
	override, err := parseOptionalDate("expiration_date", req.ExpirationOverride)
	if err != nil {
		return err
	}

	ticket, err := h.service.CreateTicket(c.UserContext(), actorFrom(c), service.TicketCreateInput{
		TicketNumber:       req.TicketNumber,
		JobName:            req.JobName,
		Address:            req.Address,
		Jurisdiction:       req.Jurisdiction,
		SubmitDate:         submit,
		ExpirationOverride: override,
		UtilityResponses:   req.UtilityResponses,
		Owner:              req.Owner,
		Notes:              req.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// ListTickets GET /tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	filter, err := parseTicketQuery(c)
	if err != nil {
		return err
	}
	tickets, total, err := h.service.ListTickets(c.UserContext(), filter)
	if err != nil {
		return err
	}
	items := make([]dto.TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, h.ticketResponse(&tickets[i]))
	}
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Tickets: items,
		Total:   total,
		Skip:    filter.Offset,
		Limit:   filter.Limit,
	}})
}

// GetTicket GET /tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// UpdateTicket PUT /tickets/:id.
func (h *TicketsHandler) UpdateTicket(c *fiber.Ctx) error {
	var req dto.UpdateTicketRequest
	if err := bindAndValidate(c, h.validate, &req); err != nil {
		return err
	}
	exp, err := parseOptionalDate("expiration_date", req.ExpirationDate)
	if err != nil {
		return err
	}
	ticket, err := h.service.UpdateTicket(c.UserContext(), actorFrom(c), c.Params("id"), service.TicketUpdateInput{
		JobName:          req.JobName,
		Address:          req.Address,
		ExpirationDate:   exp,
		UtilityResponses: req.UtilityResponses,
		Owner:            req.Owner,
		Notes:            req.Notes,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// RenewTicket POST /tickets/:id/renew.
func (h *TicketsHandler) RenewTicket(c *fiber.Ctx) error {
	var req dto.RenewTicketRequest
	if err := bindAndValidate(c, h.validate, &req); err != nil {
		return err
	}
	newExp, err := parseDate("new_expiration_date", req.NewExpirationDate)
	if err != nil {
		return err
	}
	ticket, err := h.service.RenewTicket(c.UserContext(), actorFrom(c), c.Params("id"), newExp, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": h.ticketResponse(ticket)})
}

// DeleteTicket DELETE /tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	if err := h.service.DeleteTicket(c.UserContext(), actorFrom(c), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Stats GET /tickets/stats.
func (h *TicketsHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.service.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// History GET /tickets/:id/history.
func (h *TicketsHandler) History(c *fiber.Ctx) error {
	limit, offset, err := parsePaging(c)
	if err != nil {
		return err
	}
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"), limit, offset)
	if err != nil {
		return err
	}
	items := make([]dto.TicketHistoryResponse, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.TicketHistoryResponse{
			ID:         entry.ID,
			ChangeType: entry.ChangeType,
			ChangedBy:  entry.ChangedBy,
			OldValue:   entry.OldValue,
			NewValue:   entry.NewValue,
			CreatedAt:  entry.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Jurisdictions GET /jurisdictions.
func (h *TicketsHandler) Jurisdictions(c *fiber.Ctx) error {
	rules := h.service.Rules()
	return c.JSON(fiber.Map{"data": dto.JurisdictionResponse{
		Rules:       rules.Table(),
		DefaultDays: rules.DefaultDays(),
		WarningDays: h.service.WarningDays(),
	}})
}

func (h *TicketsHandler) ticketResponse(ticket *domain.Ticket) dto.TicketResponse {
	return dto.TicketResponse{
		ID:               ticket.ID,
		TicketNumber:     ticket.TicketNumber,
		JobName:          ticket.JobName,
		Address:          ticket.Address,
		Jurisdiction:     ticket.Jurisdiction,
		SubmitDate:       ticket.SubmitDate.Format(domain.DateLayout),
		ExpirationDate:   ticket.ExpirationDate.Format(domain.DateLayout),
		Status:           ticket.Status,
		DaysRemaining:    expiration.DaysRemaining(ticket.ExpirationDate, h.service.Today()),
		UtilityResponses: ticket.UtilityResponses,
		Owner:            ticket.Owner,
		Notes:            ticket.Notes,
		CreatedBy:        ticket.CreatedBy,
		LastRenewedAt:    ticket.LastRenewedAt,
		CreatedAt:        ticket.CreatedAt,
		UpdatedAt:        ticket.UpdatedAt,
	}
}

func actorFrom(c *fiber.Ctx) events.Actor {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return events.SystemActor
	}
	return principal.Actor()
}

func parseTicketQuery(c *fiber.Ctx) (service.TicketListFilter, error) {
	filter := service.TicketListFilter{}
	if statusStr := c.Query("status"); statusStr != "" {
		for _, part := range strings.Split(statusStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				filter.Statuses = append(filter.Statuses, domain.TicketStatus(part))
			}
		}
	}
	if state := strings.TrimSpace(c.Query("state")); state != "" {
		filter.Jurisdiction = &state
	}
	if owner := strings.TrimSpace(c.Query("owner")); owner != "" {
		filter.Owner = &owner
	}
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		filter.SearchTerm = &search
	}

	filter.SortBy = c.Query("sort_by", repository.SortByExpirationDate)
	if !repository.ValidSortField(filter.SortBy) {
		return filter, apperrors.NewValidationError("invalid sort_by", map[string]any{"sort_by": filter.SortBy})
	}
	switch strings.ToLower(c.Query("sort_order", "asc")) {
	case "asc":
	case "desc":
		filter.SortDesc = true
	default:
		return filter, apperrors.NewValidationError("sort_order must be asc or desc", nil)
	}

	limit, offset, err := parsePaging(c)
	if err != nil {
		return filter, err
	}
	filter.Limit = limit
	filter.Offset = offset
	return filter, nil
}

func parsePaging(c *fiber.Ctx) (int, int, error) {
	limit := repository.DefaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxListLimit {
			return 0, 0, apperrors.NewValidationError("limit must be between 1 and 1000", nil)
		}
		limit = n
	}
	offset := 0
	if v := c.Query("skip"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return 0, 0, apperrors.NewValidationError("skip must not be negative", nil)
		}
		offset = n
	}
	return limit, offset, nil
}
