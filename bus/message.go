// Package bus implements the cross-context message transport used by
// the bridge: page agents and panel surfaces exchange typed messages
// with the background hub over a persistent WebSocket channel, falling
// back to one-shot HTTP calls when the channel is down.
package bus

import (
	"encoding/json"
	"fmt"
)

// Message types form a closed enumeration shared by every context.
// Adding a type here is the only way to put a new message on the wire.
const (
	TypeRegister     = "REGISTER"
	TypePing         = "PING"
	TypeGetAuthState = "GET_AUTH_STATE"
	TypeAuthChanged  = "AUTH_CHANGED"
	TypeTranslate    = "TRANSLATE_WORD"
	TypeSaveNote     = "SAVE_NOTE"
	TypeNoteAdded    = "NOTE_ADDED"
	TypeAIQuery      = "AI_QUERY"
	TypeAgentStatus  = "AGENT_STATUS"
)

// Message is the unit of exchange between contexts. It is created and
// owned by the sender and must be treated as read-only once handed to
// a transport; everything that crosses a context boundary is a copy.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
	Success bool   `json:"success,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Envelope is a Message plus a correlation id. It only ever appears on
// the persistent channel; one-shot calls carry the bare Message.
type Envelope struct {
	Message
	MessageID string `json:"messageId,omitempty"`
}

// OK builds a successful reply carrying payload.
func OK(payload any) Message {
	return Message{Success: true, Payload: payload}
}

// Fail builds a failed reply with a formatted error string.
func Fail(format string, args ...any) Message {
	return Message{Error: fmt.Sprintf(format, args...)}
}

// DecodePayload re-marshals a payload that arrived as generic JSON
// into a typed struct. Handlers use it instead of poking at maps.
func DecodePayload(msg Message, v any) error {
	b, err := json.Marshal(msg.Payload)
	if err != nil {
		return fmt.Errorf("bus: encode payload: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("bus: decode payload: %w", err)
	}
	return nil
}

// RegisterInfo is the payload of the REGISTER handshake a client sends
// as its first frame on the persistent channel.
type RegisterInfo struct {
	ContextID   string `json:"context_id"`
	Kind        string `json:"kind"`
	CallbackURL string `json:"callback_url,omitempty"`
}
