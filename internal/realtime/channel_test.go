package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lorrc/turnos-queue/internal/core/domain"
)

// wsTestServer is a minimal push endpoint. It can be told to fail a number
// of upgrade attempts before accepting, which is how reconnect behavior is
// exercised.
type wsTestServer struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	// remainingFailures counts down; while positive, upgrades are refused.
	remainingFailures int32

	messages chan clientMessage
	conns    chan *websocket.Conn
}

func newWSTestServer(t *testing.T, failures int) *wsTestServer {
	t.Helper()

	ts := &wsTestServer{
		remainingFailures: int32(failures),
		messages:          make(chan clientMessage, 16),
		conns:             make(chan *websocket.Conn, 4),
	}

	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}
		if atomic.AddInt32(&ts.remainingFailures, -1) >= 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := ts.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ts.conns <- conn

		for {
			var msg clientMessage
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			ts.messages <- msg
		}
	}))

	t.Cleanup(ts.srv.Close)
	return ts
}

func (ts *wsTestServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http")
}

func (ts *wsTestServer) waitForMessage(t *testing.T, msgType string) clientMessage {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ts.messages:
			if msg.Type == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s message", msgType)
		}
	}
}

func newTestChannel(url string) *Channel {
	return NewChannel(ChannelConfig{
		URL:              url,
		ReconnectBackoff: 10 * time.Millisecond,
	})
}

func TestChannel_ConnectRecoversWithinAttemptBudget(t *testing.T) {
	// Three refused upgrades, then the endpoint comes back. Well inside
	// the default budget of five attempts.
	server := newWSTestServer(t, 3)
	tenantID := uuid.New()

	channel := newTestChannel(server.url())
	defer channel.Disconnect()

	// The room is remembered even before the channel is up.
	require.NoError(t, channel.JoinTenant(tenantID))
	require.NoError(t, channel.Connect(domain.UserCredential("session-token")))

	require.Eventually(t, func() bool {
		return channel.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// The remembered room subscription is replayed on the connection.
	msg := server.waitForMessage(t, msgJoinTenant)
	var payload roomPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	assert.Equal(t, tenantID, payload.TenantID)
}

func TestChannel_SuspendsWhenBudgetExhausted(t *testing.T) {
	server := newWSTestServer(t, 1000)

	channel := NewChannel(ChannelConfig{
		URL:                  server.url(),
		MaxReconnectAttempts: 2,
		ReconnectBackoff:     5 * time.Millisecond,
	})
	defer channel.Disconnect()

	require.NoError(t, channel.Connect(domain.UserCredential("session-token")))

	require.Eventually(t, func() bool {
		return channel.State() == StateSuspended
	}, 2*time.Second, 10*time.Millisecond)

	// A manual Connect leaves the suspended state with a fresh budget.
	atomic.StoreInt32(&server.remainingFailures, 0)
	require.NoError(t, channel.Connect(domain.UserCredential("session-token")))

	require.Eventually(t, func() bool {
		return channel.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)
}

func TestChannel_ConnectIsIdempotentForSameCredential(t *testing.T) {
	server := newWSTestServer(t, 0)

	channel := newTestChannel(server.url())
	defer channel.Disconnect()

	credential := domain.UserCredential("session-token")
	require.NoError(t, channel.Connect(credential))
	require.Eventually(t, func() bool {
		return channel.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	// Same credential: no-op, no second connection.
	require.NoError(t, channel.Connect(credential))

	// Different credential: rejected until an explicit disconnect.
	err := channel.Connect(domain.DisplayCredential("device-token"))
	require.Error(t, err)

	select {
	case <-server.conns:
	default:
		t.Fatal("expected exactly one connection")
	}
	select {
	case <-server.conns:
		t.Fatal("unexpected second connection")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_DispatchesEventsAndOffIsIdempotent(t *testing.T) {
	server := newWSTestServer(t, 0)
	tenantID := uuid.New()

	channel := newTestChannel(server.url())
	defer channel.Disconnect()

	received := make(chan domain.Event, 4)
	sub := channel.On(domain.EventTicketCreated, func(event domain.Event) {
		received <- event
	})

	require.NoError(t, channel.Connect(domain.UserCredential("session-token")))
	require.Eventually(t, func() bool {
		return channel.State() == StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	conn := <-server.conns
	require.NoError(t, conn.WriteJSON(domain.Event{
		Type:     domain.EventTicketCreated,
		TenantID: tenantID,
	}))

	select {
	case event := <-received:
		assert.Equal(t, tenantID, event.TenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("handler never received the event")
	}

	channel.Off(sub)
	channel.Off(sub) // second Off is a no-op
	channel.Off(nil)

	require.NoError(t, conn.WriteJSON(domain.Event{
		Type:     domain.EventTicketCreated,
		TenantID: tenantID,
	}))
	select {
	case <-received:
		t.Fatal("handler fired after Off")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestChannel_EmitBeforeConnectIsANoOp(t *testing.T) {
	channel := newTestChannel("ws://127.0.0.1:0/ws")

	assert.NoError(t, channel.Emit(msgPing, nil))
	assert.NoError(t, channel.JoinTenant(uuid.New()))
	assert.Equal(t, StateDisconnected, channel.State())
}

func TestChannel_ConnectRequiresCredential(t *testing.T) {
	channel := newTestChannel("ws://127.0.0.1:0/ws")

	err := channel.Connect(domain.Credential{})
	require.Error(t, err)
}
