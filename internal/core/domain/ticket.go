package domain

import (
	"time"

	"github.com/google/uuid"

	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
)

// TicketStatus represents the possible states of a queue ticket.
type TicketStatus string

const (
	StatusPending    TicketStatus = "PENDING"
	StatusInProgress TicketStatus = "IN_PROGRESS"
	StatusCompleted  TicketStatus = "COMPLETED"
	StatusAbandoned  TicketStatus = "ABANDONED"
)

// MaxCallCount is the maximum number of times a ticket may be called.
// Once reached, further recalls are rejected.
const MaxCallCount = 3

// Ticket is the core domain entity: one citizen's position in a service queue.
type Ticket struct {
	ID           uuid.UUID        `json:"id"`
	TicketNumber string           `json:"ticketNumber"`
	Status       TicketStatus     `json:"status"`
	Customer     CustomerSnapshot `json:"customer"`
	TenantID     uuid.UUID        `json:"tenantId"`
	ModuleID     *uuid.UUID       `json:"moduleId,omitempty"`
	ModuleName   string           `json:"moduleName,omitempty"`
	AttendantID  *uuid.UUID       `json:"attendantId,omitempty"`
	CallCount    int              `json:"callCount"`
	Notes        string           `json:"notes,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	LastCalledAt *time.Time       `json:"lastCalledAt,omitempty"`
	FinishedAt   *time.Time       `json:"finishedAt,omitempty"`
}

// TicketParams holds the input for creating a new ticket.
type TicketParams struct {
	TenantID uuid.UUID
	ModuleID *uuid.UUID
	Customer CustomerSnapshot
}

// NewTicket is a factory function to create a valid new ticket.
// The ticket number is assigned at persistence time.
func NewTicket(params TicketParams) (*Ticket, error) {
	if params.TenantID == uuid.Nil {
		return nil, apperrors.ErrTenantRequired
	}
	if params.Customer.Name == "" {
		return nil, apperrors.ErrCustomerNameRequired
	}

	return &Ticket{
		ID:        uuid.New(),
		Status:    StatusPending,
		Customer:  params.Customer,
		TenantID:  params.TenantID,
		ModuleID:  params.ModuleID,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// validTransitions defines which statuses a ticket may move to.
// There is no way out of a terminal status.
var validTransitions = map[TicketStatus][]TicketStatus{
	StatusPending:    {StatusInProgress, StatusAbandoned},
	StatusInProgress: {StatusCompleted, StatusAbandoned},
	StatusCompleted:  {},
	StatusAbandoned:  {},
}

func (t *Ticket) canTransition(to TicketStatus) bool {
	for _, s := range validTransitions[t.Status] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the ticket has reached a final status.
func (t *Ticket) IsTerminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusAbandoned
}

// Call transitions a pending ticket into service at the given module,
// served by the given attendant. Sets StartedAt and the first call.
func (t *Ticket) Call(moduleID *uuid.UUID, moduleName string, attendantID uuid.UUID) error {
	if attendantID == uuid.Nil {
		return apperrors.ErrAttendantRequired
	}
	if !t.canTransition(StatusInProgress) {
		return apperrors.ErrInvalidStatusTransition
	}

	now := time.Now().UTC()
	t.Status = StatusInProgress
	t.ModuleID = moduleID
	t.ModuleName = moduleName
	t.AttendantID = &attendantID
	t.CallCount = 1
	t.StartedAt = &now
	t.LastCalledAt = &now
	return nil
}

// Recall re-announces a ticket already in service. StartedAt is unchanged,
// but LastCalledAt moves forward so the ticket returns to the head of the
// called board. Rejected once the ticket has been called MaxCallCount times.
func (t *Ticket) Recall() error {
	if t.Status != StatusInProgress {
		return apperrors.ErrInvalidStatusTransition
	}
	if t.CallCount >= MaxCallCount {
		return apperrors.ErrRecallLimit
	}
	now := time.Now().UTC()
	t.CallCount++
	t.LastCalledAt = &now
	return nil
}

// Complete finishes service for a ticket.
func (t *Ticket) Complete(notes string) error {
	if !t.canTransition(StatusCompleted) {
		return apperrors.ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	t.Status = StatusCompleted
	t.Notes = notes
	t.FinishedAt = &now
	return nil
}

// Abandon marks a ticket as abandoned. Allowed from pending (the citizen
// never showed) as well as from in-progress.
func (t *Ticket) Abandon() error {
	if !t.canTransition(StatusAbandoned) {
		return apperrors.ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	t.Status = StatusAbandoned
	t.FinishedAt = &now
	return nil
}

// IsServedBy reports whether the ticket is assigned to the given attendant.
func (t *Ticket) IsServedBy(attendantID uuid.UUID) bool {
	return t.AttendantID != nil && *t.AttendantID == attendantID
}
