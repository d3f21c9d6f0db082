package realtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
	"github.com/lorrc/turnos-queue/internal/core/ports"
)

// EventSource is the part of the push channel the reconciler consumes.
// *Channel implements it.
type EventSource interface {
	On(eventType domain.EventType, handler func(domain.Event)) *Subscription
	Off(sub *Subscription)
}

// Announcer is notified when a ticket is called or recalled, typically to
// drive a voice announcement or a display highlight.
type Announcer interface {
	Announce(ticketNumber, moduleName string)
}

// refreshKind names one refreshable slice of the cached view.
type refreshKind int

const (
	refreshPending refreshKind = iota
	refreshLastCalled
	refreshCurrent
)

const (
	defaultDebounce = 250 * time.Millisecond
	refreshTimeout  = 5 * time.Second
)

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	// Scope is the view this reconciler keeps fresh. TenantID is required;
	// a zero AttendantID means the view is not attendant-filtered (display
	// boards).
	Scope domain.ScopeKey

	Events  EventSource
	Gateway ports.QueueService
	Cache   *Cache

	// Announcer is optional.
	Announcer Announcer

	// Debounce is the quiet period of the trailing-edge refresh scheduler.
	// A burst of events produces a single pull per slice once the burst
	// ends.
	Debounce time.Duration

	Logger *slog.Logger
}

// Reconciler subscribes to push events and folds them into the cache.
// Events are hints, not truth: cheap patches are applied immediately and a
// debounced re-pull through the gateway reconciles the affected slices, so
// a missed or reordered event heals on the next refresh.
type Reconciler struct {
	scope     domain.ScopeKey
	events    EventSource
	gateway   ports.QueueService
	cache     *Cache
	announcer Announcer
	debounce  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[refreshKind]*time.Timer
	subs   []*Subscription
}

// NewReconciler creates a stopped reconciler. Call Start to begin.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		scope:     cfg.Scope,
		events:    cfg.Events,
		gateway:   cfg.Gateway,
		cache:     cfg.Cache,
		announcer: cfg.Announcer,
		debounce:  debounce,
		logger:    logger.With("component", "reconciler", "tenant_id", cfg.Scope.TenantID),
		timers:    make(map[refreshKind]*time.Timer),
	}
}

// Start registers the event handlers. Calling Start on a running reconciler
// is a no-op.
func (r *Reconciler) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subs) > 0 {
		return
	}

	r.subs = append(r.subs,
		r.events.On(domain.EventTicketCreated, r.onCreated),
		r.events.On(domain.EventTicketCalled, r.onCalled),
		r.events.On(domain.EventTicketStarted, r.onStarted),
		r.events.On(domain.EventTicketCompleted, r.onCompleted),
		r.events.On(domain.EventTicketAbandoned, r.onAbandoned),
		r.events.On(domain.EventTicketRecalled, r.onRecalled),
	)
}

// Stop removes the event handlers and cancels pending refreshes.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, sub := range r.subs {
		r.events.Off(sub)
	}
	r.subs = nil

	for kind, timer := range r.timers {
		timer.Stop()
		delete(r.timers, kind)
	}
}

// --- Event handlers ---

func (r *Reconciler) onCreated(event domain.Event) {
	if !r.matchesTenant(event) {
		return
	}
	if event.Ticket != nil && r.matchesModule(event.Ticket) {
		r.cache.PrependPending(r.scope, event.Ticket)
	}
	r.scheduleRefresh(refreshPending)
}

func (r *Reconciler) onCalled(event domain.Event) {
	if !r.matchesTenant(event) || event.Ticket == nil {
		return
	}
	r.announce(event.Ticket)
	r.cache.RemovePending(r.scope, event.Ticket.ID)
	r.cache.PushLastCalled(r.scope, event.Ticket)
	r.scheduleRefresh(refreshPending)
}

func (r *Reconciler) onStarted(event domain.Event) {
	if !r.matchesTenant(event) || event.Ticket == nil {
		return
	}
	if r.servesThisScope(event.Ticket) {
		r.cache.PatchCurrent(r.scope, event.Ticket)
	}
	r.cache.RemovePending(r.scope, event.Ticket.ID)
	r.scheduleRefresh(refreshPending)
}

func (r *Reconciler) onCompleted(event domain.Event) {
	if !r.matchesTenant(event) || event.Ticket == nil {
		return
	}
	r.clearCurrentIf(event.Ticket.ID)
	r.scheduleRefresh(refreshPending)
	r.scheduleRefresh(refreshLastCalled)
	if r.scope.AttendantID != uuid.Nil {
		r.scheduleRefresh(refreshCurrent)
	}
}

func (r *Reconciler) onAbandoned(event domain.Event) {
	if !r.matchesTenant(event) || event.Ticket == nil {
		return
	}
	r.clearCurrentIf(event.Ticket.ID)
	r.cache.RemovePending(r.scope, event.Ticket.ID)
	r.scheduleRefresh(refreshPending)
	if r.scope.AttendantID != uuid.Nil {
		r.scheduleRefresh(refreshCurrent)
	}
}

func (r *Reconciler) onRecalled(event domain.Event) {
	if !r.matchesTenant(event) || event.Ticket == nil {
		return
	}
	r.announce(event.Ticket)
	if r.servesThisScope(event.Ticket) {
		r.cache.PatchCurrent(r.scope, event.Ticket)
	}
	r.cache.PushLastCalled(r.scope, event.Ticket)
}

// --- Matching ---

func (r *Reconciler) matchesTenant(event domain.Event) bool {
	return event.TenantID == r.scope.TenantID
}

// matchesModule reports whether a pending ticket belongs in this scope's
// backlog. Unassigned tickets are visible to every module.
func (r *Reconciler) matchesModule(ticket *domain.Ticket) bool {
	if r.scope.ModuleID == uuid.Nil || ticket.ModuleID == nil {
		return true
	}
	return *ticket.ModuleID == r.scope.ModuleID
}

// servesThisScope reports whether the ticket's attendant is the one this
// view is filtered to. Unfiltered views track no current ticket.
func (r *Reconciler) servesThisScope(ticket *domain.Ticket) bool {
	if r.scope.AttendantID == uuid.Nil {
		return false
	}
	return ticket.IsServedBy(r.scope.AttendantID)
}

func (r *Reconciler) clearCurrentIf(ticketID uuid.UUID) {
	if current := r.cache.Get(r.scope).Current; current != nil && current.ID == ticketID {
		r.cache.PatchCurrent(r.scope, nil)
	}
}

func (r *Reconciler) announce(ticket *domain.Ticket) {
	if r.announcer == nil {
		return
	}
	r.announcer.Announce(ticket.TicketNumber, ticket.ModuleName)
}

// --- Refresh scheduling ---

// scheduleRefresh arms the trailing-edge debounce timer for one slice. More
// events within the quiet period push the pull further out, so an event
// burst costs one request per slice.
func (r *Reconciler) scheduleRefresh(kind refreshKind) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if timer, ok := r.timers[kind]; ok {
		timer.Reset(r.debounce)
		return
	}
	r.timers[kind] = time.AfterFunc(r.debounce, func() {
		r.mu.Lock()
		delete(r.timers, kind)
		r.mu.Unlock()

		r.refresh(kind)
	})
}

// refresh pulls one slice through the gateway and replaces it wholesale.
func (r *Reconciler) refresh(kind refreshKind) {
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()

	switch kind {
	case refreshPending:
		tickets, err := r.gateway.ListPending(ctx, r.scope.TenantID)
		if err != nil {
			r.logger.Warn("pending refresh failed", "error", err)
			return
		}
		r.cache.Replace(r.scope, EntryUpdate{SetPending: true, Pending: r.filterPending(tickets)})

	case refreshLastCalled:
		tickets, err := r.gateway.LastCalled(ctx, r.scope.TenantID)
		if err != nil {
			r.logger.Warn("last-called refresh failed", "error", err)
			return
		}
		r.cache.Replace(r.scope, EntryUpdate{SetLastCalled: true, LastCalled: tickets})

	case refreshCurrent:
		if r.scope.AttendantID == uuid.Nil {
			return
		}
		ticket, err := r.gateway.Current(ctx, r.scope.TenantID, r.scope.AttendantID)
		if err != nil {
			r.logger.Warn("current refresh failed", "error", err)
			return
		}
		r.cache.PatchCurrent(r.scope, ticket)
	}
}

func (r *Reconciler) filterPending(tickets []*domain.Ticket) []*domain.Ticket {
	if r.scope.ModuleID == uuid.Nil {
		return tickets
	}
	filtered := make([]*domain.Ticket, 0, len(tickets))
	for _, t := range tickets {
		if r.matchesModule(t) {
			filtered = append(filtered, t)
		}
	}
	return filtered
}
