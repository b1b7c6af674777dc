package ws

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/syncrospace/office-server/internal/office"
	"github.com/syncrospace/office-server/internal/ratelimit"
	"nhooyr.io/websocket"
)

// joinTimeout is the max time a client gets to send its join envelope.
const joinTimeout = 10 * time.Second

// JoinPayload is the first envelope a client must send: the target room
// plus credential and the initial player attributes. All player fields
// are optional.
type JoinPayload struct {
	RoomID   string `json:"room_id"`
	Password string `json:"password"`
	office.JoinOptions
}

// Handler upgrades HTTP requests to WebSockets, gates the join and runs
// the per-client read loop.
type Handler struct {
	manager  *office.Manager
	registry *Registry
	limiter  *ratelimit.Limiter
}

// NewHandler creates a WebSocket Handler. limiter may be nil to disable
// upgrade rate limiting.
func NewHandler(manager *office.Manager, registry *Registry, limiter *ratelimit.Limiter) *Handler {
	return &Handler{manager: manager, registry: registry, limiter: limiter}
}

// ServeHTTP upgrades the connection, performs the join handshake and
// reads client messages until disconnect. Gate failures close the
// socket before any room state is created.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.limiter != nil {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !h.limiter.Allow(ip) {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true, // Allow all origins in dev; tighten in production.
	})
	if err != nil {
		log.Printf("ws: accept error: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	client := &Client{conn: conn, sessionID: generateSessionID()}
	room, opts, ok := h.handleJoin(r.Context(), client)
	if !ok {
		return
	}

	connCtx := h.registry.Add(client)
	select {
	case <-connCtx.Done():
		// Rejected at capacity or during shutdown.
		return
	default:
	}

	room.Join(client.sessionID, opts)
	defer func() {
		h.registry.Remove(client)
		room.Leave(client.sessionID)
	}()

	h.readLoop(r.Context(), connCtx, client, room)
}

// handleJoin reads the first envelope, which must be type "join", and
// runs the authentication and capacity gates.
func (h *Handler) handleJoin(ctx context.Context, client *Client) (*office.Room, office.JoinOptions, bool) {
	var none office.JoinOptions

	joinCtx, cancel := context.WithTimeout(ctx, joinTimeout)
	defer cancel()

	_, data, err := client.conn.Read(joinCtx)
	if err != nil {
		log.Printf("ws: read join error: %v", err)
		return nil, none, false
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		closeWithError(client.conn, "invalid JSON")
		return nil, none, false
	}
	if env.Type != "join" {
		closeWithError(client.conn, "first message must be type 'join'")
		return nil, none, false
	}

	var payload JoinPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil {
		closeWithError(client.conn, "invalid join payload")
		return nil, none, false
	}
	if payload.RoomID == "" {
		closeWithError(client.conn, "room_id is required")
		return nil, none, false
	}

	room := h.manager.Get(payload.RoomID)
	if room == nil {
		closeWithError(client.conn, "room not found")
		return nil, none, false
	}
	if err := room.Authenticate(payload.Password); err != nil {
		closeWithError(client.conn, "wrong password")
		return nil, none, false
	}
	if room.IsFull() {
		closeWithError(client.conn, "room is full")
		return nil, none, false
	}

	client.roomID = room.ID()
	return room, payload.JoinOptions, true
}

// readLoop forwards every envelope to the room until the connection
// closes or the registry cancels connCtx. Forwarding preserves arrival
// order, so the room sees one client's messages in sequence.
func (h *Handler) readLoop(ctx, connCtx context.Context, client *Client, room *office.Room) {
	for {
		select {
		case <-connCtx.Done():
			return
		default:
		}

		_, data, err := client.conn.Read(ctx)
		if err != nil {
			// Normal close or context cancelled.
			return
		}

		h.registry.TouchActivity(client)

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		room.Post(client.sessionID, env.Type, env.Payload)
	}
}

// closeWithError sends an error envelope so the client can surface the
// reason, then closes with a policy violation status.
func closeWithError(conn *websocket.Conn, reason string) {
	if frame, ok := marshalEvent("error", ErrorPayload{Message: reason}); ok {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		conn.Write(ctx, websocket.MessageText, frame)
		cancel()
	}
	conn.Close(websocket.StatusPolicyViolation, reason)
}
