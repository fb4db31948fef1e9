// Package hub carries control traffic between the main shell process and
// its child window processes over a localhost WebSocket.
//
// The main process runs the Server; each child window process dials in as
// a Client, authenticates with a per-run token, and announces its window
// role. Traffic is four message kinds sharing one envelope: hello (role
// announcement), call (request expecting a reply), reply, and event
// (fire-and-forget notification). Either side may originate calls and
// events: the main process drives windows (show, hide, navigate), children
// forward UI requests to the single broker and announce lifecycle changes.
package hub

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Envelope message kinds.
const (
	typeHello = "hello"
	typeCall  = "call"
	typeReply = "reply"
	typeEvent = "event"
)

// Environment variables handing the hub endpoint to child processes.
const (
	EnvURL   = "GEMDESK_HUB_URL"
	EnvToken = "GEMDESK_HUB_TOKEN"
)

// tokenHeader authenticates the WebSocket upgrade request. The token is
// generated fresh per run and travels only through the child's environment.
const tokenHeader = "X-Gemdesk-Hub-Token"

// maxRoleLength bounds the role string in a hello message.
const maxRoleLength = 64

// ErrNotConnected is returned by Call and Notify when the target role has
// no live connection.
var ErrNotConnected = errors.New("hub: role not connected")

// Envelope is the single wire shape for all hub traffic, JSON-encoded as
// one text frame per message. Which fields are meaningful depends on Type:
// hello carries Role; call carries ID, Op and Payload; reply carries ID,
// OK and Payload or Error; event carries Op and Payload.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role,omitempty"`
	Op      string          `json:"op,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	OK      bool            `json:"ok,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// CallHandler serves one inbound call. The payload is the caller's raw
// JSON; the returned value is marshalled into the reply payload. A nil
// return with nil error produces an empty reply payload.
type CallHandler func(role, op string, payload json.RawMessage) (any, error)

// EventHandler consumes one inbound fire-and-forget event.
type EventHandler func(role, op string, payload json.RawMessage)

func encodeEnvelope(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("hub: encode envelope: %w", err)
	}
	return data, nil
}

// marshalPayload converts a caller-provided value into a raw payload.
// nil stays nil so empty payloads do not serialize as "null".
func marshalPayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("hub: marshal payload: %w", err)
	}
	return data, nil
}

func validRole(role string) bool {
	return role != "" && len(role) <= maxRoleLength
}
