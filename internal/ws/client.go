package ws

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"

	"nhooyr.io/websocket"
)

// Client represents one connected WebSocket session.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	sessionID string
	roomID    string
}

// Envelope is the JSON structure exchanged over the WebSocket, both
// directions: a message type plus a type-specific payload.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorPayload is sent to a client when its request was rejected.
type ErrorPayload struct {
	Message string `json:"message"`
}

func generateSessionID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}
