package liveness

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"clipstream-chat-server/domain"
)

// DefaultInterval matches the 30s probe cycle of the reference server.
const DefaultInterval = 30 * time.Second

// Set tracks every open session the monitor should probe.
type Set struct {
	mu       sync.Mutex
	sessions map[string]domain.Session
}

func NewSet() *Set {
	return &Set{sessions: make(map[string]domain.Session)}
}

func (s *Set) Add(sess domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID()] = sess
}

func (s *Set) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Snapshot returns the current sessions; the monitor iterates the copy so
// probing never holds the set's lock across network writes.
func (s *Set) Snapshot() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out
}

// Monitor terminates sessions that stop answering probes. One ticker covers
// all sessions: each tick reaps sessions whose alive flag is still cleared
// from the previous cycle, then clears the flag and pings the rest. A pong
// sets the flag again before the next tick, so a silent session survives at
// most two intervals.
type Monitor struct {
	set      *Set
	interval time.Duration
}

func NewMonitor(set *Set, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{set: set, interval: interval}
}

// Run ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick executes one probe cycle. Exported so tests can drive cycles
// synchronously instead of waiting on the timer.
func (m *Monitor) Tick() {
	for _, sess := range m.set.Snapshot() {
		if !sess.Alive() {
			slog.Info("terminating unresponsive client", "clientId", sess.ID())
			sess.Close()
			m.set.Remove(sess.ID())
			continue
		}

		sess.ClearAlive()
		if err := sess.Ping(); err != nil {
			slog.Warn("ping failed", "clientId", sess.ID(), "error", err)
			sess.Close()
			m.set.Remove(sess.ID())
		}
	}
}
