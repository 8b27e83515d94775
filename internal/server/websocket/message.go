// Package websocket provides the WebSocket hub and client management for
// streaming engine events to subscribers.
package websocket

import "encoding/json"

// WSMessage is the wire format exchanged with WebSocket clients.
type WSMessage struct {
	Type    string          `json:"type"`
	Session string          `json:"session,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Code    string          `json:"code,omitempty"`
	Message string          `json:"message,omitempty"`
	Path    string          `json:"path,omitempty"`
}

// BroadcastMessage wraps a payload with its target session. An empty
// session targets every client.
type BroadcastMessage struct {
	Session string
	Data    []byte
}

// Message types.
const (
	TypeSubscribe   = "subscribe"
	TypeUnsubscribe = "unsubscribe"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeEvent       = "event"
	TypeReload      = "reload"
	TypeError       = "error"
)
