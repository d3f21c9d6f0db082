package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

func newPendingTicket(t *testing.T, tenantID uuid.UUID, customerName string) *domain.Ticket {
	t.Helper()
	ticket, err := domain.NewTicket(domain.TicketParams{
		TenantID: tenantID,
		Customer: domain.CustomerSnapshot{Name: customerName},
	})
	require.NoError(t, err)
	return ticket
}

func TestTicketRepository_CreateAssignsSequentialNumbers(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "B")

	first, err := repo.Create(ctx, newPendingTicket(t, tenantID, "Ana Gomez"))
	require.NoError(t, err)
	second, err := repo.Create(ctx, newPendingTicket(t, tenantID, "Carlos Ruiz"))
	require.NoError(t, err)

	assert.Equal(t, "B-001", first.TicketNumber)
	assert.Equal(t, "B-002", second.TicketNumber)
	assert.Equal(t, domain.StatusPending, first.Status)
}

func TestTicketRepository_GetByID_NotFound(t *testing.T) {
	repo := NewTicketRepository(testPool)

	_, err := repo.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, apperrors.ErrTicketNotFound)
}

func TestTicketRepository_ListPendingIsFIFO(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "C")

	for _, name := range []string{"first", "second", "third"} {
		_, err := repo.Create(ctx, newPendingTicket(t, tenantID, name))
		require.NoError(t, err)
	}

	tickets, err := repo.ListPending(ctx, tenantID, nil, 20)
	require.NoError(t, err)
	require.Len(t, tickets, 3)

	assert.Equal(t, "first", tickets[0].Customer.Name)
	assert.Equal(t, "third", tickets[2].Customer.Name)
}

func TestTicketRepository_ClaimNextPending(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "D")
	moduleID := createTestModule(t, tenantID, "Module 3")
	attendantID := createTestAttendant(t, tenantID, "claim@example.com")

	created, err := repo.Create(ctx, newPendingTicket(t, tenantID, "Ana Gomez"))
	require.NoError(t, err)

	claimed, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantID,
		ModuleID:    &moduleID,
	})
	require.NoError(t, err)

	assert.Equal(t, created.ID, claimed.ID)
	assert.Equal(t, domain.StatusInProgress, claimed.Status)
	assert.Equal(t, "Module 3", claimed.ModuleName)
	assert.Equal(t, 1, claimed.CallCount)
	require.NotNil(t, claimed.AttendantID)
	assert.Equal(t, attendantID, *claimed.AttendantID)

	// The queue is now empty for this tenant.
	_, err = repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantID,
	})
	assert.ErrorIs(t, err, apperrors.ErrQueueEmpty)
}

func TestTicketRepository_ClaimNextPending_ConcurrentAttendants(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "E")

	const tickets = 4
	for i := 0; i < tickets; i++ {
		_, err := repo.Create(ctx, newPendingTicket(t, tenantID, "customer"))
		require.NoError(t, err)
	}

	attendants := []uuid.UUID{
		createTestAttendant(t, tenantID, "one@example.com"),
		createTestAttendant(t, tenantID, "two@example.com"),
		createTestAttendant(t, tenantID, "three@example.com"),
		createTestAttendant(t, tenantID, "four@example.com"),
	}

	var wg sync.WaitGroup
	claimed := make([]uuid.UUID, len(attendants))
	for i, attendantID := range attendants {
		wg.Add(1)
		go func(i int, attendantID uuid.UUID) {
			defer wg.Done()
			ticket, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
				TenantID:    tenantID,
				AttendantID: attendantID,
			})
			if err == nil {
				claimed[i] = ticket.ID
			}
		}(i, attendantID)
	}
	wg.Wait()

	// Every attendant got a distinct ticket.
	seen := make(map[uuid.UUID]bool)
	for _, id := range claimed {
		require.NotEqual(t, uuid.Nil, id)
		assert.False(t, seen[id], "ticket %s claimed twice", id)
		seen[id] = true
	}
}

func TestTicketRepository_ClaimNextPending_SameAttendantClaimsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "H")
	attendantID := createTestAttendant(t, tenantID, "busy@example.com")

	// Two pending tickets, so SKIP LOCKED alone would hand out both.
	for _, name := range []string{"first", "second"} {
		_, err := repo.Create(ctx, newPendingTicket(t, tenantID, name))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = repo.ClaimNextPending(ctx, ports.ClaimNextParams{
				TenantID:    tenantID,
				AttendantID: attendantID,
			})
		}(i)
	}
	wg.Wait()

	// Exactly one claim wins; the loser hits the unique index.
	var won, busy int
	for _, err := range results {
		switch {
		case err == nil:
			won++
		case errors.Is(err, apperrors.ErrAttendantBusy):
			busy++
		default:
			t.Fatalf("unexpected claim error: %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, busy)

	current, err := repo.CurrentForAttendant(ctx, tenantID, attendantID)
	require.NoError(t, err)
	require.NotNil(t, current)

	// The losing ticket is still pending for the next attendant.
	remaining, err := repo.ListPending(ctx, tenantID, nil, 20)
	require.NoError(t, err)
	assert.Len(t, remaining, 1)
}

func TestTicketRepository_UpdateRejectsSecondInProgressForAttendant(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "I")
	attendantID := createTestAttendant(t, tenantID, "double@example.com")

	_, err := repo.Create(ctx, newPendingTicket(t, tenantID, "first"))
	require.NoError(t, err)
	_, err = repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantID,
	})
	require.NoError(t, err)

	// Starting another ticket for the same attendant must fail.
	second, err := repo.Create(ctx, newPendingTicket(t, tenantID, "second"))
	require.NoError(t, err)
	require.NoError(t, second.Call(nil, "", attendantID))
	_, err = repo.Update(ctx, second)
	assert.ErrorIs(t, err, apperrors.ErrAttendantBusy)
}

func TestTicketRepository_CurrentForAttendant(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "F")
	attendantID := createTestAttendant(t, tenantID, "current@example.com")

	// No ticket in progress yet.
	current, err := repo.CurrentForAttendant(ctx, tenantID, attendantID)
	require.NoError(t, err)
	assert.Nil(t, current)

	_, err = repo.Create(ctx, newPendingTicket(t, tenantID, "Ana Gomez"))
	require.NoError(t, err)
	claimed, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantID,
	})
	require.NoError(t, err)

	current, err = repo.CurrentForAttendant(ctx, tenantID, attendantID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, claimed.ID, current.ID)

	// Completing frees the attendant again.
	require.NoError(t, current.Complete("done"))
	_, err = repo.Update(ctx, current)
	require.NoError(t, err)

	current, err = repo.CurrentForAttendant(ctx, tenantID, attendantID)
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestTicketRepository_ListCalled(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "G")
	attendantID := createTestAttendant(t, tenantID, "called@example.com")

	// One called and completed, one pending and never called.
	_, err := repo.Create(ctx, newPendingTicket(t, tenantID, "called customer"))
	require.NoError(t, err)
	claimed, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantID,
	})
	require.NoError(t, err)
	require.NoError(t, claimed.Complete(""))
	_, err = repo.Update(ctx, claimed)
	require.NoError(t, err)

	_, err = repo.Create(ctx, newPendingTicket(t, tenantID, "waiting customer"))
	require.NoError(t, err)

	called, err := repo.ListCalled(ctx, tenantID, 3)
	require.NoError(t, err)
	require.Len(t, called, 1)
	assert.Equal(t, claimed.ID, called[0].ID)
}

func TestTicketRepository_ListCalled_RecallMovesTicketToHead(t *testing.T) {
	ctx := context.Background()
	repo := NewTicketRepository(testPool)
	tenantID := createTestTenant(t, "J")
	attendantOne := createTestAttendant(t, tenantID, "recall-one@example.com")
	attendantTwo := createTestAttendant(t, tenantID, "recall-two@example.com")

	_, err := repo.Create(ctx, newPendingTicket(t, tenantID, "first"))
	require.NoError(t, err)
	first, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantOne,
	})
	require.NoError(t, err)

	_, err = repo.Create(ctx, newPendingTicket(t, tenantID, "second"))
	require.NoError(t, err)
	second, err := repo.ClaimNextPending(ctx, ports.ClaimNextParams{
		TenantID:    tenantID,
		AttendantID: attendantTwo,
	})
	require.NoError(t, err)

	called, err := repo.ListCalled(ctx, tenantID, 3)
	require.NoError(t, err)
	require.Len(t, called, 2)
	assert.Equal(t, second.ID, called[0].ID)

	// Recalling the older ticket moves it back to the head of the board.
	require.NoError(t, first.Recall())
	_, err = repo.Update(ctx, first)
	require.NoError(t, err)

	called, err = repo.ListCalled(ctx, tenantID, 3)
	require.NoError(t, err)
	require.Len(t, called, 2)
	assert.Equal(t, first.ID, called[0].ID)
	assert.Equal(t, second.ID, called[1].ID)
}
