package protocol

import (
	"bytes"
	"encoding/json"
)

// Control is an inbound client frame.
type Control struct {
	Action string
	ID     string
}

// Event is the outbound envelope pushed to subscribed connections. Message
// carries whatever the write path serialized, embedded verbatim.
type Event struct {
	Event   string          `json:"event"`
	Message json.RawMessage `json:"message"`
}

// DecodeControl parses a raw inbound frame into a Control. Some clients
// stringify the frame twice, so a payload that decodes to a JSON string is
// unwrapped one layer before the final decode. ok is false when the frame
// is not valid JSON at all; a missing action or a non-string id leaves the
// field empty rather than failing.
func DecodeControl(data []byte) (Control, bool) {
	payload := bytes.TrimSpace(data)

	var wrapped string
	if err := json.Unmarshal(payload, &wrapped); err == nil {
		payload = []byte(wrapped)
	}

	var frame struct {
		Action string          `json:"action"`
		ID     json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(payload, &frame); err != nil {
		return Control{}, false
	}

	ctl := Control{Action: frame.Action}
	if len(frame.ID) > 0 {
		// non-string ids are ignored, not an error
		_ = json.Unmarshal(frame.ID, &ctl.ID)
	}
	return ctl, true
}

// NewMessageEvent wraps an already-serialized message in the newMessage
// envelope.
func NewMessageEvent(message []byte) []byte {
	data, err := json.Marshal(Event{Event: "newMessage", Message: message})
	if err != nil {
		// message came from the write path's own marshal; re-wrapping it
		// as a raw value cannot fail unless it is not valid JSON
		return nil
	}
	return data
}
