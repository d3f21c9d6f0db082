package domain_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
)

func pendingTicket(t *testing.T) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(domain.TicketParams{
		TenantID: uuid.New(),
		Customer: domain.CustomerSnapshot{Name: "Ana Gomez", Document: "12345678"},
	})
	require.NoError(t, err)
	return ticket
}

func TestNewTicket(t *testing.T) {
	t.Run("valid ticket starts pending", func(t *testing.T) {
		ticket := pendingTicket(t)
		assert.Equal(t, domain.StatusPending, ticket.Status)
		assert.Equal(t, 0, ticket.CallCount)
		assert.NotEqual(t, uuid.Nil, ticket.ID)
		assert.Nil(t, ticket.StartedAt)
	})

	t.Run("tenant is required", func(t *testing.T) {
		_, err := domain.NewTicket(domain.TicketParams{
			Customer: domain.CustomerSnapshot{Name: "Ana"},
		})
		assert.ErrorIs(t, err, apperrors.ErrTenantRequired)
	})

	t.Run("customer name is required", func(t *testing.T) {
		_, err := domain.NewTicket(domain.TicketParams{TenantID: uuid.New()})
		assert.ErrorIs(t, err, apperrors.ErrCustomerNameRequired)
	})
}

func TestTicket_Call(t *testing.T) {
	attendantID := uuid.New()
	moduleID := uuid.New()

	t.Run("pending to in progress", func(t *testing.T) {
		ticket := pendingTicket(t)

		err := ticket.Call(&moduleID, "Module 1", attendantID)

		require.NoError(t, err)
		assert.Equal(t, domain.StatusInProgress, ticket.Status)
		assert.Equal(t, 1, ticket.CallCount)
		assert.Equal(t, "Module 1", ticket.ModuleName)
		assert.True(t, ticket.IsServedBy(attendantID))
		assert.NotNil(t, ticket.StartedAt)
		require.NotNil(t, ticket.LastCalledAt)
		assert.Equal(t, *ticket.StartedAt, *ticket.LastCalledAt)
	})

	t.Run("attendant required", func(t *testing.T) {
		ticket := pendingTicket(t)
		err := ticket.Call(&moduleID, "Module 1", uuid.Nil)
		assert.ErrorIs(t, err, apperrors.ErrAttendantRequired)
	})

	t.Run("cannot call a ticket twice", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(&moduleID, "Module 1", attendantID))

		err := ticket.Call(&moduleID, "Module 1", attendantID)
		assert.ErrorIs(t, err, apperrors.ErrInvalidStatusTransition)
	})
}

func TestTicket_Recall(t *testing.T) {
	attendantID := uuid.New()

	t.Run("recall increments call count", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(nil, "", attendantID))
		startedAt := *ticket.StartedAt

		require.NoError(t, ticket.Recall())
		require.NoError(t, ticket.Recall())

		assert.Equal(t, 3, ticket.CallCount)
		assert.Equal(t, domain.StatusInProgress, ticket.Status)
		assert.Equal(t, startedAt, *ticket.StartedAt)

		// The last call time advances even though service never restarted.
		require.NotNil(t, ticket.LastCalledAt)
		assert.False(t, ticket.LastCalledAt.Before(startedAt))
	})

	t.Run("rejected at the cap", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(nil, "", attendantID))
		require.NoError(t, ticket.Recall())
		require.NoError(t, ticket.Recall())

		err := ticket.Recall()

		assert.ErrorIs(t, err, apperrors.ErrRecallLimit)
		assert.Equal(t, domain.MaxCallCount, ticket.CallCount)
	})

	t.Run("cannot recall a pending ticket", func(t *testing.T) {
		ticket := pendingTicket(t)
		assert.ErrorIs(t, ticket.Recall(), apperrors.ErrInvalidStatusTransition)
	})
}

func TestTicket_Terminal(t *testing.T) {
	attendantID := uuid.New()

	t.Run("complete from in progress", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(nil, "", attendantID))

		require.NoError(t, ticket.Complete("served"))

		assert.Equal(t, domain.StatusCompleted, ticket.Status)
		assert.Equal(t, "served", ticket.Notes)
		assert.NotNil(t, ticket.FinishedAt)
		assert.True(t, ticket.IsTerminal())
	})

	t.Run("complete requires in progress", func(t *testing.T) {
		ticket := pendingTicket(t)
		assert.ErrorIs(t, ticket.Complete(""), apperrors.ErrInvalidStatusTransition)
	})

	t.Run("abandon from pending", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Abandon())
		assert.Equal(t, domain.StatusAbandoned, ticket.Status)
	})

	t.Run("abandon from in progress", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(nil, "", attendantID))
		require.NoError(t, ticket.Abandon())
		assert.Equal(t, domain.StatusAbandoned, ticket.Status)
	})

	t.Run("no exit from terminal states", func(t *testing.T) {
		ticket := pendingTicket(t)
		require.NoError(t, ticket.Call(nil, "", attendantID))
		require.NoError(t, ticket.Complete(""))

		assert.ErrorIs(t, ticket.Abandon(), apperrors.ErrInvalidStatusTransition)
		assert.ErrorIs(t, ticket.Recall(), apperrors.ErrInvalidStatusTransition)
		assert.ErrorIs(t, ticket.Call(nil, "", attendantID), apperrors.ErrInvalidStatusTransition)

		abandoned := pendingTicket(t)
		require.NoError(t, abandoned.Abandon())
		assert.ErrorIs(t, abandoned.Complete(""), apperrors.ErrInvalidStatusTransition)
		assert.ErrorIs(t, abandoned.Call(nil, "", attendantID), apperrors.ErrInvalidStatusTransition)
	})
}
