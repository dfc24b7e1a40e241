// Package protocol defines the messages exchanged between modbot and the chat
// platform bridge. All messages are serialized as JSON and follow a consistent
// envelope format with a type discriminator. The same frames travel over NATS
// subjects and over the WebSocket gateway.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/whisper/modbot/internal/transport"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Bridge -> Bot message types.
const (
	TypeHello = "hello"
	TypeEvent = "event"
	TypeError = "error"
	TypePong  = "pong"
)

// Bot -> Bridge message types.
const (
	TypeSend  = "send"
	TypeReact = "react"
	TypePing  = "ping"
)

// ---------------------------------------------------------------------------
// Envelope is used for initial JSON parsing to extract the type discriminator.
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type" field
// so that the rest of the payload can be decoded later.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Bridge -> Bot message structs
// ---------------------------------------------------------------------------

// HelloMsg announces the bot identity and the guilds it can see. The bridge
// sends it once per connection before any event.
type HelloMsg struct {
	Type   string            `json:"type"`
	Self   transport.User    `json:"self"`
	Guilds []transport.Guild `json:"guilds"`
}

// Directory converts the hello payload.
func (m HelloMsg) Directory() *transport.Directory {
	return &transport.Directory{Self: m.Self, Guilds: m.Guilds}
}

// EventMsg carries one platform event.
type EventMsg struct {
	Type    string              `json:"type"`
	Kind    transport.EventKind `json:"kind"`
	Message transport.Message   `json:"message"`
}

// Event converts the payload.
func (m EventMsg) Event() transport.Event {
	return transport.Event{Kind: m.Kind, Message: m.Message}
}

// ErrorMsg reports that the bridge could not carry out a request.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg answers a ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Bot -> Bridge message structs
// ---------------------------------------------------------------------------

// SendMsg posts text to a channel (guild channel or DM channel).
type SendMsg struct {
	Type      string `json:"type"`
	ChannelID string `json:"channel_id"`
	Text      string `json:"text"`
}

// ReactMsg attaches a marker reaction to a message.
type ReactMsg struct {
	Type   string               `json:"type"`
	Ref    transport.MessageRef `json:"ref"`
	Marker transport.Marker     `json:"marker"`
}

// PingMsg is a bot-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// Parse decodes raw bytes into a typed message. It returns the message type
// string, the decoded struct, and any error encountered during parsing.
func Parse(data []byte) (string, interface{}, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg interface{}
		err error
	)

	switch env.Type {
	case TypeHello:
		var m HelloMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeEvent:
		var m EventMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePong:
		msg = PongMsg{Type: TypePong}
	case TypeSend:
		var m SendMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeReact:
		var m ReactMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePing:
		msg = PingMsg{Type: TypePing}
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewMessage creates a JSON-encoded byte slice for a message. The msgType is
// injected into the payload under the "type" key.
func NewMessage(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}

	m["type"] = msgType

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message: %w", err)
	}
	return out, nil
}
