package hub

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockConn struct {
	id       string
	userID   string
	received [][]byte
	closed   bool
	mu       sync.Mutex
	sendErr  error
}

func (m *mockConn) ID() string     { return m.id }
func (m *mockConn) UserID() string { return m.userID }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.received = append(m.received, data)
	return nil
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) getReceived() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.received
}

func TestHub_Broadcast(t *testing.T) {
	tests := []struct {
		name         string
		setup        func(*Hub) []*mockConn
		room         string
		wantReceived map[string]int
	}{
		{
			name: "delivers to every room member",
			setup: func(h *Hub) []*mockConn {
				a := &mockConn{id: "a"}
				b := &mockConn{id: "b"}
				h.Join(a, "conv-1")
				h.Join(b, "conv-1")
				return []*mockConn{a, b}
			},
			room:         "conv-1",
			wantReceived: map[string]int{"a": 1, "b": 1},
		},
		{
			name: "no cross-room delivery",
			setup: func(h *Hub) []*mockConn {
				a := &mockConn{id: "a"}
				b := &mockConn{id: "b"}
				h.Join(a, "conv-1")
				h.Join(b, "conv-2")
				return []*mockConn{a, b}
			},
			room:         "conv-1",
			wantReceived: map[string]int{"a": 1, "b": 0},
		},
		{
			name: "empty room is a silent no-op",
			setup: func(h *Hub) []*mockConn {
				a := &mockConn{id: "a"}
				h.Join(a, "conv-1")
				return []*mockConn{a}
			},
			room:         "conv-9",
			wantReceived: map[string]int{"a": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			conns := tt.setup(h)

			h.Broadcast(tt.room, []byte("payload"))

			for _, c := range conns {
				assert.Len(t, c.getReceived(), tt.wantReceived[c.ID()], "conn %s", c.ID())
			}
		})
	}
}

func TestHub_JoinIdempotent(t *testing.T) {
	h := New()
	conn := &mockConn{id: "a"}

	h.Join(conn, "conv-1")
	h.Join(conn, "conv-1")

	h.Broadcast("conv-1", []byte("once"))

	assert.Len(t, conn.getReceived(), 1, "duplicate join must not duplicate delivery")

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms)
	assert.Equal(t, 1, clients)
}

func TestHub_JoinReplacesPreviousRoom(t *testing.T) {
	h := New()
	conn := &mockConn{id: "a"}

	h.Join(conn, "conv-1")
	h.Join(conn, "conv-2")

	h.Broadcast("conv-1", []byte("old room"))
	h.Broadcast("conv-2", []byte("new room"))

	received := conn.getReceived()
	require.Len(t, received, 1)
	assert.Equal(t, []byte("new room"), received[0])

	rooms, clients := h.Stats()
	assert.Equal(t, 1, rooms, "the vacated room must be removed")
	assert.Equal(t, 1, clients)
}

func TestHub_JoinAcceptsAnyConversationID(t *testing.T) {
	// the registry treats the id as an opaque key; membership is enforced
	// only by the write path
	h := New()
	conn := &mockConn{id: "a", userID: "outsider"}

	h.Join(conn, "someone-elses-conversation")
	h.Broadcast("someone-elses-conversation", []byte("hello"))

	assert.Len(t, conn.getReceived(), 1)
}

func TestHub_LeaveUnjoinedIsNoop(t *testing.T) {
	h := New()
	conn := &mockConn{id: "a"}

	h.Leave(conn)

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_ConcurrentLeaveRemovesOnce(t *testing.T) {
	h := New()
	conn := &mockConn{id: "a"}
	h.Join(conn, "conv-1")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Leave(conn)
		}()
	}
	wg.Wait()

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_BroadcastSendFailureIsolated(t *testing.T) {
	h := New()
	broken := &mockConn{id: "broken", sendErr: assert.AnError}
	healthy := &mockConn{id: "healthy"}
	h.Join(broken, "conv-1")
	h.Join(healthy, "conv-1")

	h.Broadcast("conv-1", []byte("payload"))

	assert.Len(t, healthy.getReceived(), 1, "one failed send must not block the rest")
}

func TestHub_ConcurrentJoinLeaveBroadcast(t *testing.T) {
	h := New()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		conn := &mockConn{id: string(rune('a' + i))}
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.Join(conn, "conv-1")
			h.Broadcast("conv-1", []byte("x"))
			h.Join(conn, "conv-2")
			h.Leave(conn)
		}()
	}
	wg.Wait()

	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}

func TestHub_RoomCleanup(t *testing.T) {
	h := New()
	conn := &mockConn{id: "a"}

	h.Join(conn, "conv-1")
	rooms, _ := h.Stats()
	require.Equal(t, 1, rooms)

	h.Leave(conn)
	rooms, clients := h.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, clients)
}
