package liveness

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockSession struct {
	id      string
	mu      sync.Mutex
	alive   bool
	pings   int
	closed  bool
	pingErr error
}

func newMockSession(id string) *mockSession {
	return &mockSession{id: id, alive: true}
}

func (m *mockSession) ID() string             { return m.id }
func (m *mockSession) UserID() string         { return "" }
func (m *mockSession) Send(data []byte) error { return nil }

func (m *mockSession) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockSession) Alive() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alive
}

func (m *mockSession) ClearAlive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = false
}

func (m *mockSession) Ping() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pings++
	return m.pingErr
}

// pong simulates the client's probe response.
func (m *mockSession) pong() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alive = true
}

func (m *mockSession) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockSession) pingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pings
}

func TestMonitor_ResponsiveSessionSurvives(t *testing.T) {
	set := NewSet()
	monitor := NewMonitor(set, time.Second)
	sess := newMockSession("a")
	set.Add(sess)

	for i := 0; i < 5; i++ {
		monitor.Tick()
		require.False(t, sess.isClosed(), "responsive session terminated on cycle %d", i)
		sess.pong()
	}

	assert.Equal(t, 5, sess.pingCount())
	assert.Equal(t, 1, set.Len())
}

func TestMonitor_SilentSessionTerminatedOnSecondCycle(t *testing.T) {
	set := NewSet()
	monitor := NewMonitor(set, time.Second)
	sess := newMockSession("a")
	set.Add(sess)

	monitor.Tick()
	assert.False(t, sess.isClosed(), "a single missed probe must not terminate")
	assert.Equal(t, 1, sess.pingCount())

	monitor.Tick()
	assert.True(t, sess.isClosed())
	assert.Equal(t, 0, set.Len())
}

func TestMonitor_PingFailureTerminates(t *testing.T) {
	set := NewSet()
	monitor := NewMonitor(set, time.Second)
	sess := newMockSession("a")
	sess.pingErr = assert.AnError
	set.Add(sess)

	monitor.Tick()

	assert.True(t, sess.isClosed())
	assert.Equal(t, 0, set.Len())
}

func TestMonitor_MixedSessions(t *testing.T) {
	set := NewSet()
	monitor := NewMonitor(set, time.Second)
	healthy := newMockSession("healthy")
	silent := newMockSession("silent")
	set.Add(healthy)
	set.Add(silent)

	monitor.Tick()
	healthy.pong()
	monitor.Tick()

	assert.False(t, healthy.isClosed())
	assert.True(t, silent.isClosed())
	assert.Equal(t, 1, set.Len())
}

func TestMonitor_RunStopsOnCancel(t *testing.T) {
	set := NewSet()
	monitor := NewMonitor(set, 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		monitor.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop after cancellation")
	}
}

func TestSet_RemoveUnknownIsNoop(t *testing.T) {
	set := NewSet()
	set.Remove("missing")
	assert.Equal(t, 0, set.Len())
}
