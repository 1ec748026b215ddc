package hub

import (
	"log/slog"
	"sync"

	"clipstream-chat-server/domain"
)

// Hub maps conversation ids to the set of connections currently subscribed
// to them. A connection occupies at most one room at a time; joining a new
// room implicitly leaves the previous one.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[string]domain.Connection
	joined map[string]string // connection id -> room id
}

func New() *Hub {
	return &Hub{
		rooms:  make(map[string]map[string]domain.Connection),
		joined: make(map[string]string),
	}
}

// Join subscribes conn to the room for conversationID, creating the room if
// absent. Idempotent for the same room; a different room replaces the
// previous subscription. The id is used as an opaque key with no existence
// check against the directory.
func (h *Hub) Join(conn domain.Connection, conversationID string) {
	h.mu.Lock()
	current, ok := h.joined[conn.ID()]
	if ok && current == conversationID {
		h.mu.Unlock()
		return
	}
	if ok {
		h.removeLocked(conn.ID(), current)
	}

	r, exists := h.rooms[conversationID]
	if !exists {
		r = make(map[string]domain.Connection)
		h.rooms[conversationID] = r
	}
	r[conn.ID()] = conn
	h.joined[conn.ID()] = conversationID
	count := len(r)
	h.mu.Unlock()

	slog.Info("client joined room", "room", conversationID, "clientId", conn.ID(), "clients", count)
}

// Leave removes conn from whatever room it occupies. No-op when unjoined;
// always called on session teardown.
func (h *Hub) Leave(conn domain.Connection) {
	h.mu.Lock()
	roomID, ok := h.joined[conn.ID()]
	if !ok {
		h.mu.Unlock()
		return
	}
	h.removeLocked(conn.ID(), roomID)
	h.mu.Unlock()

	slog.Info("client left room", "room", roomID, "clientId", conn.ID())
}

func (h *Hub) removeLocked(connID, roomID string) {
	delete(h.joined, connID)
	r, exists := h.rooms[roomID]
	if !exists {
		return
	}
	delete(r, connID)
	if len(r) == 0 {
		delete(h.rooms, roomID)
		slog.Info("room removed", "room", roomID)
	}
}

// Broadcast sends data to every connection in the room, best-effort. A send
// failure terminates that connection but never blocks delivery to the rest.
// An unknown or empty room is a silent no-op.
func (h *Hub) Broadcast(conversationID string, data []byte) {
	h.mu.RLock()
	r, exists := h.rooms[conversationID]
	if !exists {
		h.mu.RUnlock()
		return
	}
	members := make([]domain.Connection, 0, len(r))
	for _, conn := range r {
		members = append(members, conn)
	}
	h.mu.RUnlock()

	for _, conn := range members {
		if err := conn.Send(data); err != nil {
			slog.Warn("send failed, dropping client", "room", conversationID, "clientId", conn.ID(), "error", err)
			go func(c domain.Connection) {
				c.Close()
			}(conn)
		}
	}
}

func (h *Hub) Stats() (rooms, clients int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.rooms), len(h.joined)
}
