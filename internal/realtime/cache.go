package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

const (
	// PendingLimit bounds how many pending tickets a cached view holds.
	PendingLimit = 20

	// LastCalledLimit bounds the recently-called strip of a cached view.
	LastCalledLimit = 3
)

// Entry is one cached view of the queue: the ticket in service, the pending
// backlog and the recently-called strip. All fields are snapshots; mutating
// a returned Entry does not touch the cache.
type Entry struct {
	Current    *domain.Ticket
	Pending    []*domain.Ticket
	LastCalled []*domain.Ticket
}

// EntryUpdate replaces selected fields of an entry wholesale. Writes are
// last-writer-wins: a later Replace overwrites an earlier one regardless of
// which server response was produced first. Refreshes re-pull the truth, so
// a stale write heals on the next reconcile.
type EntryUpdate struct {
	SetCurrent bool
	Current    *domain.Ticket

	SetPending bool
	Pending    []*domain.Ticket

	SetLastCalled bool
	LastCalled    []*domain.Ticket
}

type cacheEntry struct {
	state     Entry
	listeners map[int]func(Entry)
}

// Cache holds the queue views of all active scopes and notifies subscribers
// on every change. An entry lives exactly as long as it has subscribers; the
// last unsubscribe garbage-collects it.
type Cache struct {
	mu      sync.Mutex
	entries map[domain.ScopeKey]*cacheEntry
	nextID  int
	logger  *slog.Logger
}

// NewCache creates an empty cache.
func NewCache(logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[domain.ScopeKey]*cacheEntry),
		logger:  logger.With("component", "cache"),
	}
}

// Get returns a snapshot of the scope's entry. An unknown scope yields a
// zero entry.
func (c *Cache) Get(scope domain.ScopeKey) Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[scope]
	if !ok {
		return Entry{}
	}
	return snapshot(entry.state)
}

// Subscribe registers a listener for changes to the scope's entry and
// returns an unsubscribe function. Unsubscribing twice is a no-op. The
// listener is invoked synchronously with the current snapshot on every
// mutation of the scope.
func (c *Cache) Subscribe(scope domain.ScopeKey, listener func(Entry)) func() {
	c.mu.Lock()
	entry := c.entry(scope)
	c.nextID++
	id := c.nextID
	entry.listeners[id] = listener
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()

			entry, ok := c.entries[scope]
			if !ok {
				return
			}
			delete(entry.listeners, id)
			if len(entry.listeners) == 0 {
				delete(c.entries, scope)
				c.logger.Debug("scope released", "scope", scope.String())
			}
		})
	}
}

// Len reports how many scopes currently have a live entry.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Replace overwrites the selected fields of the scope's entry.
func (c *Cache) Replace(scope domain.ScopeKey, update EntryUpdate) {
	c.mutate(scope, func(e *Entry) {
		if update.SetCurrent {
			e.Current = update.Current
		}
		if update.SetPending {
			e.Pending = capSlice(update.Pending, PendingLimit)
		}
		if update.SetLastCalled {
			e.LastCalled = capSlice(update.LastCalled, LastCalledLimit)
		}
	})
}

// PatchCurrent sets or clears the ticket in service.
func (c *Cache) PatchCurrent(scope domain.ScopeKey, ticket *domain.Ticket) {
	c.Replace(scope, EntryUpdate{SetCurrent: true, Current: ticket})
}

// PrependPending pushes a freshly created ticket onto the front of the
// backlog. Already-known tickets are replaced in place instead.
func (c *Cache) PrependPending(scope domain.ScopeKey, ticket *domain.Ticket) {
	c.mutate(scope, func(e *Entry) {
		for i, existing := range e.Pending {
			if existing.ID == ticket.ID {
				e.Pending[i] = ticket
				return
			}
		}
		e.Pending = capSlice(append([]*domain.Ticket{ticket}, e.Pending...), PendingLimit)
	})
}

// RemovePending drops a ticket from the backlog, if present.
func (c *Cache) RemovePending(scope domain.ScopeKey, ticketID uuid.UUID) {
	c.mutate(scope, func(e *Entry) {
		for i, existing := range e.Pending {
			if existing.ID == ticketID {
				e.Pending = append(e.Pending[:i:i], e.Pending[i+1:]...)
				return
			}
		}
	})
}

// PushLastCalled prepends a ticket to the recently-called strip, dropping
// any earlier occurrence of the same ticket and truncating to the limit.
func (c *Cache) PushLastCalled(scope domain.ScopeKey, ticket *domain.Ticket) {
	c.mutate(scope, func(e *Entry) {
		strip := make([]*domain.Ticket, 0, len(e.LastCalled)+1)
		strip = append(strip, ticket)
		for _, existing := range e.LastCalled {
			if existing.ID != ticket.ID {
				strip = append(strip, existing)
			}
		}
		e.LastCalled = capSlice(strip, LastCalledLimit)
	})
}

// mutate applies fn to the scope's entry and notifies listeners with the
// resulting snapshot. Listeners run outside the lock.
func (c *Cache) mutate(scope domain.ScopeKey, fn func(*Entry)) {
	c.mu.Lock()
	entry := c.entry(scope)
	fn(&entry.state)

	snap := snapshot(entry.state)
	listeners := make([]func(Entry), 0, len(entry.listeners))
	for _, l := range entry.listeners {
		listeners = append(listeners, l)
	}
	c.mu.Unlock()

	for _, l := range listeners {
		l(snap)
	}
}

func (c *Cache) entry(scope domain.ScopeKey) *cacheEntry {
	entry, ok := c.entries[scope]
	if !ok {
		entry = &cacheEntry{listeners: make(map[int]func(Entry))}
		c.entries[scope] = entry
	}
	return entry
}

func snapshot(e Entry) Entry {
	return Entry{
		Current:    e.Current,
		Pending:    append([]*domain.Ticket(nil), e.Pending...),
		LastCalled: append([]*domain.Ticket(nil), e.LastCalled...),
	}
}

func capSlice(tickets []*domain.Ticket, limit int) []*domain.Ticket {
	if len(tickets) > limit {
		return tickets[:limit:limit]
	}
	return tickets
}
