package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	"github.com/lorrc/turnos-queue/internal/core/mocks"
)

// fakeEventSource dispatches events synchronously, without a websocket.
type fakeEventSource struct {
	mu       sync.Mutex
	nextID   int
	handlers map[domain.EventType]map[int]func(domain.Event)
}

func newFakeEventSource() *fakeEventSource {
	return &fakeEventSource{handlers: make(map[domain.EventType]map[int]func(domain.Event))}
}

func (f *fakeEventSource) On(eventType domain.EventType, handler func(domain.Event)) *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	if f.handlers[eventType] == nil {
		f.handlers[eventType] = make(map[int]func(domain.Event))
	}
	f.handlers[eventType][f.nextID] = handler
	return &Subscription{eventType: eventType, id: f.nextID}
}

func (f *fakeEventSource) Off(sub *Subscription) {
	if sub == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.handlers[sub.eventType], sub.id)
}

func (f *fakeEventSource) emit(event domain.Event) {
	f.mu.Lock()
	handlers := make([]func(domain.Event), 0, len(f.handlers[event.Type]))
	for _, h := range f.handlers[event.Type] {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// recordingAnnouncer captures announcements for assertions.
type recordingAnnouncer struct {
	mu    sync.Mutex
	calls [][2]string
}

func (a *recordingAnnouncer) Announce(ticketNumber, moduleName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, [2]string{ticketNumber, moduleName})
}

func (a *recordingAnnouncer) snapshot() [][2]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][2]string(nil), a.calls...)
}

type reconcilerFixture struct {
	scope     domain.ScopeKey
	events    *fakeEventSource
	gateway   *mocks.MockQueueService
	cache     *Cache
	announcer *recordingAnnouncer
	rec       *Reconciler
}

func newReconcilerFixture(t *testing.T, scope domain.ScopeKey) *reconcilerFixture {
	t.Helper()

	f := &reconcilerFixture{
		scope:     scope,
		events:    newFakeEventSource(),
		gateway:   mocks.NewMockQueueService(),
		cache:     NewCache(nil),
		announcer: &recordingAnnouncer{},
	}
	f.rec = NewReconciler(ReconcilerConfig{
		Scope:     scope,
		Events:    f.events,
		Gateway:   f.gateway,
		Cache:     f.cache,
		Announcer: f.announcer,
		Debounce:  20 * time.Millisecond,
	})
	f.rec.Start()
	t.Cleanup(f.rec.Stop)
	return f
}

func inProgressTicket(tenantID uuid.UUID, attendantID *uuid.UUID, number, moduleName string) *domain.Ticket {
	return &domain.Ticket{
		ID:           uuid.New(),
		TicketNumber: number,
		Status:       domain.StatusInProgress,
		TenantID:     tenantID,
		AttendantID:  attendantID,
		ModuleName:   moduleName,
		CallCount:    1,
		Customer:     domain.CustomerSnapshot{Name: "customer"},
	}
}

func TestReconciler_CreatedEventHealsStalePending(t *testing.T) {
	tenantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForTenant(tenantID))

	// The cache holds a view that drifted from the backend.
	stale := pendingTicket("A-001")
	stale.TenantID = tenantID
	f.cache.Replace(f.scope, EntryUpdate{SetPending: true, Pending: []*domain.Ticket{stale}})

	fresh := []*domain.Ticket{pendingTicket("A-002"), pendingTicket("A-003")}
	f.gateway.On("ListPending", mock.Anything, tenantID).Return(fresh, nil)

	created := pendingTicket("A-003")
	created.TenantID = tenantID
	f.events.emit(domain.Event{
		Type:     domain.EventTicketCreated,
		TenantID: tenantID,
		Ticket:   created,
	})

	// The event is applied optimistically, then the debounced pull
	// replaces the whole slice with the backend's truth.
	require.Eventually(t, func() bool {
		pending := f.cache.Get(f.scope).Pending
		return len(pending) == 2 && pending[0].ID == fresh[0].ID && pending[1].ID == fresh[1].ID
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconciler_DebounceCoalescesEventBursts(t *testing.T) {
	tenantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForTenant(tenantID))

	f.gateway.On("ListPending", mock.Anything, tenantID).Return([]*domain.Ticket{}, nil)

	for i := 0; i < 5; i++ {
		f.events.emit(domain.Event{Type: domain.EventTicketCreated, TenantID: tenantID})
	}

	// One pull for the whole burst, fired after the quiet period.
	time.Sleep(150 * time.Millisecond)
	f.gateway.AssertNumberOfCalls(t, "ListPending", 1)
}

func TestReconciler_CalledEventAnnouncesRealTicketDetails(t *testing.T) {
	tenantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForTenant(tenantID))

	f.gateway.On("ListPending", mock.Anything, tenantID).Return([]*domain.Ticket{}, nil).Maybe()

	called := inProgressTicket(tenantID, nil, "A-042", "Module 3")
	f.events.emit(domain.Event{
		Type:     domain.EventTicketCalled,
		TenantID: tenantID,
		Ticket:   called,
	})

	calls := f.announcer.snapshot()
	require.Len(t, calls, 1)
	assert.Equal(t, "A-042", calls[0][0])
	assert.Equal(t, "Module 3", calls[0][1])

	strip := f.cache.Get(f.scope).LastCalled
	require.Len(t, strip, 1)
	assert.Equal(t, called.ID, strip[0].ID)
}

func TestReconciler_CompletedClearsCurrentAndRefreshes(t *testing.T) {
	tenantID := uuid.New()
	attendantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForAttendant(tenantID, attendantID))

	current := inProgressTicket(tenantID, &attendantID, "A-010", "Module 1")
	f.cache.PatchCurrent(f.scope, current)

	f.gateway.On("ListPending", mock.Anything, tenantID).Return([]*domain.Ticket{}, nil)
	refreshed := []*domain.Ticket{inProgressTicket(tenantID, &attendantID, "A-010", "Module 1")}
	f.gateway.On("LastCalled", mock.Anything, tenantID).Return(refreshed, nil)
	f.gateway.On("Current", mock.Anything, tenantID, attendantID).Return(nil, nil).Maybe()

	completed := *current
	completed.Status = domain.StatusCompleted
	f.events.emit(domain.Event{
		Type:     domain.EventTicketCompleted,
		TenantID: tenantID,
		Ticket:   &completed,
	})

	assert.Nil(t, f.cache.Get(f.scope).Current)

	require.Eventually(t, func() bool {
		strip := f.cache.Get(f.scope).LastCalled
		return len(strip) == 1 && strip[0].ID == refreshed[0].ID
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconciler_StartedPatchesCurrentOnlyForServingAttendant(t *testing.T) {
	tenantID := uuid.New()
	attendantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForAttendant(tenantID, attendantID))

	f.gateway.On("ListPending", mock.Anything, tenantID).Return([]*domain.Ticket{}, nil).Maybe()

	otherAttendant := uuid.New()
	foreign := inProgressTicket(tenantID, &otherAttendant, "A-001", "Module 2")
	f.events.emit(domain.Event{Type: domain.EventTicketStarted, TenantID: tenantID, Ticket: foreign})

	assert.Nil(t, f.cache.Get(f.scope).Current)

	mine := inProgressTicket(tenantID, &attendantID, "A-002", "Module 1")
	f.events.emit(domain.Event{Type: domain.EventTicketStarted, TenantID: tenantID, Ticket: mine})

	current := f.cache.Get(f.scope).Current
	require.NotNil(t, current)
	assert.Equal(t, mine.ID, current.ID)
}

func TestReconciler_IgnoresForeignTenantEvents(t *testing.T) {
	tenantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForTenant(tenantID))

	foreignTenant := uuid.New()
	f.events.emit(domain.Event{
		Type:     domain.EventTicketCalled,
		TenantID: foreignTenant,
		Ticket:   inProgressTicket(foreignTenant, nil, "Z-001", "Module 9"),
	})

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, f.announcer.snapshot())
	f.gateway.AssertNumberOfCalls(t, "ListPending", 0)
}

func TestReconciler_StopCancelsHandlersAndTimers(t *testing.T) {
	tenantID := uuid.New()
	f := newReconcilerFixture(t, domain.ScopeForTenant(tenantID))

	f.events.emit(domain.Event{Type: domain.EventTicketCreated, TenantID: tenantID})
	f.rec.Stop()

	// The pending debounce timer was cancelled with the handlers.
	time.Sleep(100 * time.Millisecond)
	f.gateway.AssertNumberOfCalls(t, "ListPending", 0)

	f.events.emit(domain.Event{Type: domain.EventTicketCreated, TenantID: tenantID})
	time.Sleep(100 * time.Millisecond)
	f.gateway.AssertNumberOfCalls(t, "ListPending", 0)
}
