package websocket

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"clipstream-chat-server/domain"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ErrSendBufferFull is returned when a session's outbound queue is full;
// the hub treats it like any other send failure and drops the session.
var ErrSendBufferFull = errors.New("send buffer full")

// State is the session lifecycle. A session is never reused after Closed.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticating
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// Conn adapts a gorilla connection to the domain Session. Frames are read
// in arrival order by a single read pump; outbound payloads go through a
// buffered channel drained by a single write pump.
type Conn struct {
	id       string
	userID   string
	ws       *websocket.Conn
	send     chan []byte
	registry domain.Broadcaster
	handler  domain.MessageHandler

	state     atomic.Int32
	alive     atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
	onClose   []func()
}

func NewConn(id string, ws *websocket.Conn, registry domain.Broadcaster, handler domain.MessageHandler) *Conn {
	c := &Conn{
		id:       id,
		ws:       ws,
		send:     make(chan []byte, sendBuffer),
		registry: registry,
		handler:  handler,
		done:     make(chan struct{}),
	}
	c.state.Store(int32(StateAuthenticating))
	c.alive.Store(true)
	return c
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }

func (c *Conn) State() State { return State(c.state.Load()) }

// OnClose registers fn to run once during teardown. Must be called before
// Open.
func (c *Conn) OnClose(fn func()) {
	c.onClose = append(c.onClose, fn)
}

// Reject terminates a session whose credential failed verification. No
// response frame is written.
func (c *Conn) Reject() {
	c.state.Store(int32(StateClosed))
	c.ws.Close()
}

// Open marks the session authenticated and starts the pumps. userID is set
// exactly once, here.
func (c *Conn) Open(userID string) {
	c.userID = userID
	c.state.Store(int32(StateOpen))

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetPongHandler(func(string) error {
		c.alive.Store(true)
		return nil
	})

	go c.writePump()
	go c.readPump()
}

// Send queues data for delivery. It never blocks: a full buffer means the
// client is not draining and the session is treated as dead.
func (c *Conn) Send(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close tears the session down exactly once: leave the room, close the
// transport, run the registered hooks. Safe to call concurrently from the
// read pump, the hub and the liveness monitor.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		close(c.done)
		c.registry.Leave(c)
		c.ws.Close()
		for _, fn := range c.onClose {
			fn()
		}
		c.state.Store(int32(StateClosed))
		slog.Info("client disconnected", "clientId", c.id, "userId", c.userID)
	})
	return nil
}

// Liveness hooks used by the monitor.

func (c *Conn) Alive() bool { return c.alive.Load() }

func (c *Conn) ClearAlive() { c.alive.Store(false) }

// Ping writes a probe directly; gorilla allows WriteControl concurrently
// with the write pump.
func (c *Conn) Ping() error {
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Conn) readPump() {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				slog.Error("read error", "clientId", c.id, "error", err)
			}
			return
		}

		c.handler.Handle(c, data)
	}
}

func (c *Conn) writePump() {
	defer c.ws.Close()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}
}
