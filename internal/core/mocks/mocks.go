package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// MockTicketRepository is a mock implementation of ports.TicketRepository
type MockTicketRepository struct {
	mock.Mock
}

func NewMockTicketRepository() *MockTicketRepository {
	return &MockTicketRepository{}
}

func (m *MockTicketRepository) Create(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) Update(ctx context.Context, ticket *domain.Ticket) (*domain.Ticket, error) {
	args := m.Called(ctx, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID, limit int32) ([]*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, moduleID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, moduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) CurrentForAttendant(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, attendantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ListCalled(ctx context.Context, tenantID uuid.UUID, limit int32) ([]*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockTicketRepository) ClaimNextPending(ctx context.Context, params ports.ClaimNextParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

// MockUserRepository is a mock implementation of ports.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func NewMockUserRepository() *MockUserRepository {
	return &MockUserRepository{}
}

func (m *MockUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	args := m.Called(ctx, user)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

// MockDisplayRepository is a mock implementation of ports.DisplayRepository
type MockDisplayRepository struct {
	mock.Mock
}

func NewMockDisplayRepository() *MockDisplayRepository {
	return &MockDisplayRepository{}
}

func (m *MockDisplayRepository) CreatePairingCode(ctx context.Context, code *domain.PairingCode) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockDisplayRepository) GetPairingCode(ctx context.Context, code string) (*domain.PairingCode, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PairingCode), args.Error(1)
}

func (m *MockDisplayRepository) MarkPairingCodeUsed(ctx context.Context, code string) error {
	args := m.Called(ctx, code)
	return args.Error(0)
}

func (m *MockDisplayRepository) CreateDisplay(ctx context.Context, display *domain.Display) (*domain.Display, error) {
	args := m.Called(ctx, display)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Display), args.Error(1)
}

func (m *MockDisplayRepository) GetDisplay(ctx context.Context, id uuid.UUID) (*domain.Display, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Display), args.Error(1)
}

// MockQueueService is a mock implementation of ports.QueueService
type MockQueueService struct {
	mock.Mock
}

func NewMockQueueService() *MockQueueService {
	return &MockQueueService{}
}

func (m *MockQueueService) CreateTicket(ctx context.Context, params ports.CreateTicketParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) ListPending(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) NextPending(ctx context.Context, tenantID uuid.UUID, moduleID *uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, moduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) Current(ctx context.Context, tenantID, attendantID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, tenantID, attendantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) LastCalled(ctx context.Context, tenantID uuid.UUID) ([]*domain.Ticket, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) CallNext(ctx context.Context, params ports.CallNextParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) Start(ctx context.Context, params ports.StartTicketParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) Complete(ctx context.Context, params ports.CompleteTicketParams) (*domain.Ticket, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) Abandon(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

func (m *MockQueueService) Recall(ctx context.Context, ticketID uuid.UUID) (*domain.Ticket, error) {
	args := m.Called(ctx, ticketID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Ticket), args.Error(1)
}

// MockEventBroadcaster is a mock implementation of ports.EventBroadcaster
type MockEventBroadcaster struct {
	mock.Mock
}

func NewMockEventBroadcaster() *MockEventBroadcaster {
	return &MockEventBroadcaster{}
}

func (m *MockEventBroadcaster) Broadcast(event domain.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// MockDisplayTokenIssuer is a mock implementation of ports.DisplayTokenIssuer
type MockDisplayTokenIssuer struct {
	mock.Mock
}

func NewMockDisplayTokenIssuer() *MockDisplayTokenIssuer {
	return &MockDisplayTokenIssuer{}
}

func (m *MockDisplayTokenIssuer) IssueDisplayToken(displayID, tenantID uuid.UUID) (string, error) {
	args := m.Called(displayID, tenantID)
	return args.String(0), args.Error(1)
}
