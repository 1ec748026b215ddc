package protocol

import (
	"log/slog"

	"clipstream-chat-server/domain"
)

// Handler routes inbound control frames to the room registry. Malformed or
// unrecognized frames are dropped without closing the connection.
type Handler struct {
	registry domain.Broadcaster
}

func NewHandler(registry domain.Broadcaster) *Handler {
	return &Handler{registry: registry}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	ctl, ok := DecodeControl(data)
	if !ok {
		slog.Warn("dropping malformed frame", "clientId", conn.ID())
		return
	}

	switch ctl.Action {
	case "join":
		if ctl.ID == "" {
			return
		}
		h.registry.Join(conn, ctl.ID)
	default:
		// unrecognized actions are ignored, no error frame is sent
	}
}
