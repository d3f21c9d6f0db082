package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	mw "github.com/lorrc/turnos-queue/internal/adapters/primary/http/middleware"
	"github.com/lorrc/turnos-queue/internal/adapters/primary/validation"
	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// TicketHandler handles HTTP requests for queue tickets.
type TicketHandler struct {
	queueService ports.QueueService
	errorHandler *ErrorHandler
	logger       *slog.Logger
}

// NewTicketHandler creates a new ticket handler
func NewTicketHandler(
	queueService ports.QueueService,
	errorHandler *ErrorHandler,
	logger *slog.Logger,
) *TicketHandler {
	return &TicketHandler{
		queueService: queueService,
		errorHandler: errorHandler,
		logger:       logger.With("handler", "ticket"),
	}
}

// Router sets up a new chi Router for all ticket-related routes.
func (h *TicketHandler) Router() http.Handler {
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes sets up the routing for all ticket endpoints. Reads are open
// to any authenticated subject, including displays. Mutations require an
// operator session.
func (h *TicketHandler) RegisterRoutes(r chi.Router) {
	r.Get("/pending/{tenantID}", h.HandleListPending)
	r.Get("/next/{tenantID}", h.HandleNextPending)
	r.Get("/current/{tenantID}", h.HandleCurrent)
	r.Get("/called/{tenantID}", h.HandleLastCalled)

	r.Group(func(r chi.Router) {
		r.Use(mw.RequireUser)

		r.Post("/", h.HandleCreateTicket)
		r.Post("/next/{tenantID}", h.HandleCallNext)
		r.Post("/{ticketID}/start", h.HandleStart)
		r.Post("/{ticketID}/complete", h.HandleComplete)
		r.Post("/{ticketID}/abandon", h.HandleAbandon)
		r.Post("/{ticketID}/recall", h.HandleRecall)
	})
}

// --- Request DTOs ---

// CreateTicketRequest defines the expected JSON body for registering a ticket
type CreateTicketRequest struct {
	CustomerName     string `json:"customerName"`
	CustomerDocument string `json:"customerDocument"`
	CustomerPhone    string `json:"customerPhone"`
	TenantID         string `json:"tenantId"`
	ModuleID         string `json:"moduleId"`
}

// Validate validates the create ticket request
func (r *CreateTicketRequest) Validate() error {
	v := validation.NewValidator()

	v.Required("customerName", r.CustomerName)
	v.Required("tenantId", r.TenantID).
		UUID("tenantId", r.TenantID)
	v.UUID("moduleId", r.ModuleID)

	if v.HasErrors() {
		return v.Errors()
	}
	return nil
}

// CallNextRequest defines the optional JSON body for calling the next ticket
type CallNextRequest struct {
	ModuleID string `json:"moduleId"`
}

// StartTicketRequest defines the optional JSON body for starting a ticket
type StartTicketRequest struct {
	ModuleID string `json:"moduleId"`
}

// CompleteTicketRequest defines the JSON body for completing a ticket
type CompleteTicketRequest struct {
	Notes string `json:"notes"`
}

// --- Handlers ---

// HandleCreateTicket handles POST /tickets
func (h *TicketHandler) HandleCreateTicket(w http.ResponseWriter, r *http.Request) {
	req, err := validation.DecodeAndValidate[CreateTicketRequest](r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid tenant ID"))
		return
	}

	params := ports.CreateTicketParams{
		TenantID: tenantID,
		Customer: newCustomerSnapshot(req),
	}
	if moduleID, ok := parseOptionalUUID(req.ModuleID); ok {
		params.ModuleID = moduleID
	}

	ticket, err := h.queueService.CreateTicket(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteCreated(w, ticket)
}

// HandleListPending handles GET /tickets/pending/{tenantID}
func (h *TicketHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	tickets, err := h.queueService.ListPending(r.Context(), tenantID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, tickets)
}

// HandleNextPending handles GET /tickets/next/{tenantID}. Returns the oldest
// pending ticket without claiming it.
func (h *TicketHandler) HandleNextPending(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	var moduleID *uuid.UUID
	if raw := validation.ParseStringQueryParam(r, "moduleId"); raw != nil {
		parsed, err := uuid.Parse(*raw)
		if err != nil {
			h.errorHandler.Handle(w, r, apperrors.NewBadRequestError(err, "Invalid module ID"))
			return
		}
		moduleID = &parsed
	}

	ticket, err := h.queueService.NextPending(r.Context(), tenantID, moduleID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleCurrent handles GET /tickets/current/{tenantID}?attendantId=...
// A null data field means the attendant has no ticket in progress.
func (h *TicketHandler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	attendantID, err := h.resolveAttendantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.queueService.Current(r.Context(), tenantID, attendantID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleLastCalled handles GET /tickets/called/{tenantID}. Returns the most
// recently called tickets for display boards.
func (h *TicketHandler) HandleLastCalled(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	tickets, err := h.queueService.LastCalled(r.Context(), tenantID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteList(w, tickets)
}

// HandleCallNext handles POST /tickets/next/{tenantID}. Atomically claims the
// oldest pending ticket for the calling attendant.
func (h *TicketHandler) HandleCallNext(w http.ResponseWriter, r *http.Request) {
	tenantID, err := parseTenantID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	params := ports.CallNextParams{
		TenantID:    tenantID,
		AttendantID: claims.SubjectID,
	}

	// The body is optional: an attendant bound to a module sends it along.
	if r.ContentLength > 0 {
		req, err := validation.DecodeAndValidate[CallNextRequest](r)
		if err != nil {
			h.errorHandler.Handle(w, r, err)
			return
		}
		if moduleID, ok := parseOptionalUUID(req.ModuleID); ok {
			params.ModuleID = moduleID
		}
	}

	ticket, err := h.queueService.CallNext(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleStart handles POST /tickets/{ticketID}/start. Starts a specific
// pending ticket rather than the head of the queue.
func (h *TicketHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseTicketID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		h.errorHandler.Handle(w, r, apperrors.ErrUnauthorized)
		return
	}

	params := ports.StartTicketParams{
		TicketID:    ticketID,
		AttendantID: claims.SubjectID,
	}

	if r.ContentLength > 0 {
		req, err := validation.DecodeAndValidate[StartTicketRequest](r)
		if err != nil {
			h.errorHandler.Handle(w, r, err)
			return
		}
		if moduleID, ok := parseOptionalUUID(req.ModuleID); ok {
			params.ModuleID = moduleID
		}
	}

	ticket, err := h.queueService.Start(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleComplete handles POST /tickets/{ticketID}/complete
func (h *TicketHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseTicketID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	params := ports.CompleteTicketParams{TicketID: ticketID}
	if r.ContentLength > 0 {
		req, err := validation.DecodeAndValidate[CompleteTicketRequest](r)
		if err != nil {
			h.errorHandler.Handle(w, r, err)
			return
		}
		params.Notes = req.Notes
	}

	ticket, err := h.queueService.Complete(r.Context(), params)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleAbandon handles POST /tickets/{ticketID}/abandon
func (h *TicketHandler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseTicketID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.queueService.Abandon(r.Context(), ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// HandleRecall handles POST /tickets/{ticketID}/recall
func (h *TicketHandler) HandleRecall(w http.ResponseWriter, r *http.Request) {
	ticketID, err := parseTicketID(r)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	ticket, err := h.queueService.Recall(r.Context(), ticketID)
	if err != nil {
		h.errorHandler.Handle(w, r, err)
		return
	}

	WriteSuccess(w, ticket)
}

// --- Helpers ---

// resolveAttendantID reads the attendantId query parameter, falling back to
// the authenticated subject. Displays may ask about any attendant; users
// usually ask about themselves.
func (h *TicketHandler) resolveAttendantID(r *http.Request) (uuid.UUID, error) {
	if raw := validation.ParseStringQueryParam(r, "attendantId"); raw != nil {
		attendantID, err := uuid.Parse(*raw)
		if err != nil {
			return uuid.Nil, apperrors.NewBadRequestError(err, "Invalid attendant ID")
		}
		return attendantID, nil
	}

	claims, ok := mw.ClaimsFromContext(r.Context())
	if !ok {
		return uuid.Nil, apperrors.ErrUnauthorized
	}
	return claims.SubjectID, nil
}

func parseTenantID(r *http.Request) (uuid.UUID, error) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequestError(err, "Invalid tenant ID")
	}
	return tenantID, nil
}

func parseTicketID(r *http.Request) (uuid.UUID, error) {
	ticketID, err := uuid.Parse(chi.URLParam(r, "ticketID"))
	if err != nil {
		return uuid.Nil, apperrors.NewBadRequestError(err, "Invalid ticket ID")
	}
	return ticketID, nil
}

func parseOptionalUUID(raw string) (*uuid.UUID, bool) {
	if raw == "" {
		return nil, false
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, false
	}
	return &parsed, true
}

func newCustomerSnapshot(req *CreateTicketRequest) domain.CustomerSnapshot {
	return domain.CustomerSnapshot{
		Name:     req.CustomerName,
		Document: req.CustomerDocument,
		Phone:    req.CustomerPhone,
	}
}
