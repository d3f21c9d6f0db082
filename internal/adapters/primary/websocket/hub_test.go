package websocket

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client without a live connection. The hub's
// register, room, and broadcast paths never touch the connection.
func newTestClient(hub *Hub, tenantID uuid.UUID) *Client {
	return NewClient(ClientParams{
		Hub:       hub,
		SubjectID: uuid.New(),
		TenantID:  tenantID,
		Kind:      domain.CredentialUser,
		Logger:    discardLogger(),
	})
}

func TestHub_RegisterAndRoomLifecycle(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()

	tenantID := uuid.New()
	client := newTestClient(hub, tenantID)

	hub.Register <- client
	require.Eventually(t, func() bool {
		return hub.IsSubjectConnected(client.SubjectID)
	}, 2*time.Second, 5*time.Millisecond)

	hub.joinTenantRoom(client, tenantID)
	assert.Equal(t, 1, hub.GetClientsInRoom(tenantID))
	assert.Equal(t, 1, hub.GetRoomCount())

	hub.leaveTenantRoom(client, tenantID)
	assert.Equal(t, 0, hub.GetClientsInRoom(tenantID))

	hub.Unregister <- client
	require.Eventually(t, func() bool {
		return !hub.IsSubjectConnected(client.SubjectID)
	}, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastDeliversOnlyToOwningTenantRoom(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()

	tenantA := uuid.New()
	tenantB := uuid.New()

	clientA := newTestClient(hub, tenantA)
	clientB := newTestClient(hub, tenantB)
	hub.Register <- clientA
	hub.Register <- clientB
	hub.joinTenantRoom(clientA, tenantA)
	hub.joinTenantRoom(clientB, tenantB)

	require.NoError(t, hub.Broadcast(domain.Event{
		Type:     domain.EventTicketCreated,
		TenantID: tenantA,
	}))

	select {
	case event := <-clientA.Send:
		assert.Equal(t, domain.EventTicketCreated, event.Type)
		assert.Equal(t, tenantA, event.TenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("tenant A client never received the event")
	}

	select {
	case event := <-clientB.Send:
		t.Fatalf("tenant B client received foreign event %s", event.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

// A client that stops draining its send buffer must be evicted without
// stalling the hub loop for everyone else.
func TestHub_StalledClientIsEvictedWithoutBlockingHub(t *testing.T) {
	hub := NewHub(discardLogger())
	go hub.Run()

	tenantID := uuid.New()
	stalled := newTestClient(hub, tenantID)
	hub.Register <- stalled
	hub.joinTenantRoom(stalled, tenantID)

	// Nobody reads stalled.Send, so fill it to capacity.
	for i := 0; i < cap(stalled.Send); i++ {
		stalled.Send <- domain.Event{Type: domain.EventTicketCreated, TenantID: tenantID}
	}

	require.NoError(t, hub.Broadcast(domain.Event{
		Type:     domain.EventTicketCalled,
		TenantID: tenantID,
	}))

	// The hub must keep serving registrations after evicting the client.
	next := newTestClient(hub, tenantID)
	select {
	case hub.Register <- next:
	case <-time.After(2 * time.Second):
		t.Fatal("hub stopped accepting registrations after broadcasting to a stalled client")
	}

	require.Eventually(t, func() bool {
		return hub.GetClientsInRoom(tenantID) == 0 && !hub.IsSubjectConnected(stalled.SubjectID)
	}, 2*time.Second, 5*time.Millisecond)
}
