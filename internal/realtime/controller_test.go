package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	apperrors "github.com/lorrc/turnos-queue/internal/core/errors"
	"github.com/lorrc/turnos-queue/internal/core/mocks"
)

type controllerFixture struct {
	scope       domain.ScopeKey
	tenantID    uuid.UUID
	attendantID uuid.UUID
	gateway     *mocks.MockQueueService
	cache       *Cache
	controller  *Controller
}

func newControllerFixture(t *testing.T) *controllerFixture {
	t.Helper()

	tenantID := uuid.New()
	attendantID := uuid.New()
	scope := domain.ScopeForAttendant(tenantID, attendantID)

	gateway := mocks.NewMockQueueService()
	cache := NewCache(nil)
	return &controllerFixture{
		scope:       scope,
		tenantID:    tenantID,
		attendantID: attendantID,
		gateway:     gateway,
		cache:       cache,
		controller:  NewController(scope, gateway, cache, nil),
	}
}

// calledVersion returns the ticket as the backend would after a claim.
func (f *controllerFixture) calledVersion(ticket *domain.Ticket) *domain.Ticket {
	called := *ticket
	called.Status = domain.StatusInProgress
	called.AttendantID = &f.attendantID
	called.CallCount = 1
	return &called
}

func TestController_CallNextHappyPath(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	first := pendingTicket("A-001")
	second := pendingTicket("A-002")
	f.cache.Replace(f.scope, EntryUpdate{SetPending: true, Pending: []*domain.Ticket{first, second}})

	called := f.calledVersion(first)
	f.gateway.On("CallNext", mock.Anything, mock.Anything).Return(called, nil)

	require.True(t, f.controller.CanCallNext())

	got, err := f.controller.CallNext(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)
	assert.Equal(t, 1, got.CallCount)

	entry := f.cache.Get(f.scope)
	require.NotNil(t, entry.Current)
	assert.Equal(t, first.ID, entry.Current.ID)
	require.Len(t, entry.Pending, 1)
	assert.Equal(t, second.ID, entry.Pending[0].ID)
	require.Len(t, entry.LastCalled, 1)
	assert.Equal(t, first.ID, entry.LastCalled[0].ID)

	// Completing frees the attendant again.
	completed := *called
	completed.Status = domain.StatusCompleted
	f.gateway.On("Complete", mock.Anything, mock.Anything).Return(&completed, nil)

	_, err = f.controller.Complete(ctx, called.ID, "attended")
	require.NoError(t, err)

	assert.Nil(t, f.cache.Get(f.scope).Current)
	assert.True(t, f.controller.CanCallNext())
}

func TestController_SingleActionInFlight(t *testing.T) {
	f := newControllerFixture(t)

	release := make(chan struct{})
	called := f.calledVersion(pendingTicket("A-001"))
	f.gateway.On("CallNext", mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { <-release }).
		Return(called, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := f.controller.CallNext(context.Background(), nil)
		assert.NoError(t, err)
	}()

	// Wait until the first action holds the in-flight slot.
	require.Eventually(t, func() bool {
		return !f.controller.CanCallNext()
	}, 2*time.Second, 5*time.Millisecond)

	// The second action fails fast without reaching the network.
	_, err := f.controller.CallNext(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrActionInFlight)

	close(release)
	wg.Wait()

	f.gateway.AssertNumberOfCalls(t, "CallNext", 1)
}

func TestController_CallNextRejectedWhileServing(t *testing.T) {
	f := newControllerFixture(t)

	f.cache.PatchCurrent(f.scope, f.calledVersion(pendingTicket("A-001")))

	assert.False(t, f.controller.CanCallNext())

	_, err := f.controller.CallNext(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrAttendantBusy)
	f.gateway.AssertNumberOfCalls(t, "CallNext", 0)
}

func TestController_RecallLimitFailsFast(t *testing.T) {
	f := newControllerFixture(t)

	current := f.calledVersion(pendingTicket("A-001"))
	current.CallCount = domain.MaxCallCount
	f.cache.PatchCurrent(f.scope, current)

	_, err := f.controller.Recall(context.Background(), current.ID)
	assert.ErrorIs(t, err, apperrors.ErrRecallLimit)
	f.gateway.AssertNumberOfCalls(t, "Recall", 0)
}

func TestController_RecallUpdatesCallCount(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	current := f.calledVersion(pendingTicket("A-001"))
	f.cache.PatchCurrent(f.scope, current)

	recalled := *current
	recalled.CallCount = 2
	f.gateway.On("Recall", mock.Anything, current.ID).Return(&recalled, nil)

	got, err := f.controller.Recall(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.CallCount)

	cached := f.cache.Get(f.scope).Current
	require.NotNil(t, cached)
	assert.Equal(t, 2, cached.CallCount)
}

func TestController_AbandonPendingTicketLeavesCurrentAlone(t *testing.T) {
	f := newControllerFixture(t)
	ctx := context.Background()

	current := f.calledVersion(pendingTicket("A-001"))
	waiting := pendingTicket("A-002")
	f.cache.PatchCurrent(f.scope, current)
	f.cache.Replace(f.scope, EntryUpdate{SetPending: true, Pending: []*domain.Ticket{waiting}})

	abandoned := *waiting
	abandoned.Status = domain.StatusAbandoned
	f.gateway.On("Abandon", mock.Anything, waiting.ID).Return(&abandoned, nil)

	_, err := f.controller.Abandon(ctx, waiting.ID)
	require.NoError(t, err)

	entry := f.cache.Get(f.scope)
	require.NotNil(t, entry.Current)
	assert.Equal(t, current.ID, entry.Current.ID)
	assert.Empty(t, entry.Pending)
}

func TestController_GatewayErrorLeavesCacheUntouched(t *testing.T) {
	f := newControllerFixture(t)

	f.gateway.On("CallNext", mock.Anything, mock.Anything).Return(nil, apperrors.ErrQueueEmpty)

	_, err := f.controller.CallNext(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrQueueEmpty)

	entry := f.cache.Get(f.scope)
	assert.Nil(t, entry.Current)
	assert.Empty(t, entry.LastCalled)

	// The in-flight slot is released on failure.
	assert.True(t, f.controller.CanCallNext())
}
