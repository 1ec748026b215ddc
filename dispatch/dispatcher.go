package dispatch

import (
	"log/slog"

	"clipstream-chat-server/domain"
	"clipstream-chat-server/protocol"
)

// Dispatcher bridges the write path to the relay: once a message is durably
// persisted, the serialized record is wrapped in the newMessage envelope
// and pushed to every session subscribed to the conversation. Delivery is
// best-effort and never affects the persisted write.
type Dispatcher struct {
	registry domain.Broadcaster
}

func New(registry domain.Broadcaster) *Dispatcher {
	return &Dispatcher{registry: registry}
}

func (d *Dispatcher) Dispatch(conversationID string, message []byte) {
	envelope := protocol.NewMessageEvent(message)
	if envelope == nil {
		slog.Error("dropping undeliverable message", "room", conversationID)
		return
	}
	d.registry.Broadcast(conversationID, envelope)
}
