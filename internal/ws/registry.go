package ws

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
)

const (
	// sendBufferSize is the number of events that can be queued per client.
	sendBufferSize = 16

	// writeTimeout is the max time to wait for a single write to complete.
	writeTimeout = 5 * time.Second

	// idleCheckInterval is how often the idle reaper runs.
	idleCheckInterval = 30 * time.Second
)

// connEntry holds per-connection metadata alongside the cancel function.
type connEntry struct {
	cancel      context.CancelFunc
	connectedAt time.Time
	lastActive  time.Time
}

// Stats holds point-in-time registry statistics.
type Stats struct {
	Active          int
	MaxConns        int
	Rejected        int64
	DroppedMessages int64
	IdleReaped      int64
}

// Registry is the connection registry: it maps session ids to client
// handles, grouped by room, and provides unicast and room broadcast
// with exclusion lists. Delivery is best-effort: a send to an unknown
// session is a no-op, a slow consumer drops. Each client gets a
// buffered send channel drained by one write pump, so delivery is FIFO
// per session and unordered across sessions.
type Registry struct {
	mu       sync.Mutex
	rooms    map[string]map[string]*Client
	entries  map[*Client]*connEntry
	closed   bool
	maxConns int
	idleTTL  time.Duration
	stopIdle context.CancelFunc

	rejected        atomic.Int64
	droppedMessages atomic.Int64
	idleReaped      atomic.Int64
}

// Option configures a Registry.
type Option func(*Registry)

// WithMaxConns limits concurrent connections across all rooms. New
// connections beyond the limit are rejected. 0 means unlimited.
func WithMaxConns(n int) Option {
	return func(r *Registry) { r.maxConns = n }
}

// WithIdleTimeout closes connections idle longer than d. 0 disables
// idle reaping.
func WithIdleTimeout(d time.Duration) Option {
	return func(r *Registry) { r.idleTTL = d }
}

// NewRegistry creates a connection registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:   make(map[string]map[string]*Client),
		entries: make(map[*Client]*connEntry),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.idleTTL > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		r.stopIdle = cancel
		go r.idleReapLoop(ctx)
	}
	return r
}

// RoomSender returns a view of the registry bound to one room. It
// satisfies the room's Sender dependency without the room knowing
// about WebSockets.
func (r *Registry) RoomSender(roomID string) RoomSender {
	return RoomSender{reg: r, roomID: roomID}
}

// RoomSender is a Registry scoped to a single room.
type RoomSender struct {
	reg    *Registry
	roomID string
}

func (s RoomSender) Send(sessionID, event string, payload any) {
	s.reg.Send(s.roomID, sessionID, event, payload)
}

func (s RoomSender) Broadcast(event string, payload any, except ...string) {
	s.reg.Broadcast(s.roomID, event, payload, except...)
}

func (s RoomSender) Shutdown() {
	s.reg.CloseRoom(s.roomID)
}

// Add registers a client in its room and starts its write pump. The
// returned context is cancelled when the client is removed or the
// registry shuts down; callers select on it in their read loop. A
// cancelled context is returned immediately if the registry is closed
// or at capacity.
func (r *Registry) Add(c *Client) context.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
		return cancelledContext()
	}
	if r.maxConns > 0 && len(r.entries) >= r.maxConns {
		r.rejected.Add(1)
		c.conn.Close(websocket.StatusTryAgainLater, "server at capacity")
		return cancelledContext()
	}

	now := time.Now()
	// send is never closed: the write pump exits on ctx cancellation, so
	// a frame queued while the client is being removed is dropped rather
	// than panicking a concurrent Broadcast.
	c.send = make(chan []byte, sendBufferSize)
	ctx, cancel := context.WithCancel(context.Background())
	r.entries[c] = &connEntry{cancel: cancel, connectedAt: now, lastActive: now}
	if r.rooms[c.roomID] == nil {
		r.rooms[c.roomID] = make(map[string]*Client)
	}
	r.rooms[c.roomID][c.sessionID] = c

	go r.writePump(ctx, c)
	return ctx
}

// Remove unregisters a client and stops its write pump.
func (r *Registry) Remove(c *Client) {
	r.mu.Lock()
	entry, ok := r.entries[c]
	if ok {
		delete(r.entries, c)
		r.unindex(c)
	}
	r.mu.Unlock()

	if ok {
		entry.cancel()
	}
}

// unindex drops the client from its room map. Must be called with mu held.
func (r *Registry) unindex(c *Client) {
	if clients, ok := r.rooms[c.roomID]; ok {
		if clients[c.sessionID] == c {
			delete(clients, c.sessionID)
		}
		if len(clients) == 0 {
			delete(r.rooms, c.roomID)
		}
	}
}

// Has reports whether the session is currently registered in the room.
func (r *Registry) Has(roomID, sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.rooms[roomID][sessionID]
	return ok
}

// Send delivers an event to one session. Unknown sessions are a silent
// no-op. The payload is marshaled before Send returns, so callers may
// mutate it afterwards.
func (r *Registry) Send(roomID, sessionID, event string, payload any) {
	data, ok := marshalEvent(event, payload)
	if !ok {
		return
	}

	r.mu.Lock()
	c := r.rooms[roomID][sessionID]
	r.mu.Unlock()
	if c == nil {
		return
	}
	r.queue(c, data)
}

// Broadcast delivers an event to every registered session of the room
// except the excluded ones.
func (r *Registry) Broadcast(roomID, event string, payload any, except ...string) {
	data, ok := marshalEvent(event, payload)
	if !ok {
		return
	}

	r.mu.Lock()
	clients := r.rooms[roomID]
	targets := make([]*Client, 0, len(clients))
	for sessionID, c := range clients {
		if contains(except, sessionID) {
			continue
		}
		targets = append(targets, c)
	}
	r.mu.Unlock()

	for _, c := range targets {
		r.queue(c, data)
	}
}

// queue hands the frame to the client's write pump. Returns false if
// the buffer is full or the client is gone.
func (r *Registry) queue(c *Client, data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		r.droppedMessages.Add(1)
		log.Printf("ws: send buffer full for session %s, dropping event", c.sessionID)
		return false
	}
}

// TouchActivity updates the last-active timestamp for a client. Called
// when a client sends a message so idle reaping spares active sessions.
func (r *Registry) TouchActivity(c *Client) {
	r.mu.Lock()
	if entry, ok := r.entries[c]; ok {
		entry.lastActive = time.Now()
	}
	r.mu.Unlock()
}

// Count returns the number of active connections across all rooms.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// RoomCount returns the number of active connections in one room.
func (r *Registry) RoomCount(roomID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms[roomID])
}

// Stats returns point-in-time registry statistics.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	active := len(r.entries)
	maxConns := r.maxConns
	r.mu.Unlock()
	return Stats{
		Active:          active,
		MaxConns:        maxConns,
		Rejected:        r.rejected.Load(),
		DroppedMessages: r.droppedMessages.Load(),
		IdleReaped:      r.idleReaped.Load(),
	}
}

// CloseRoom disconnects every session of one room. Used at room dispose.
func (r *Registry) CloseRoom(roomID string) {
	r.mu.Lock()
	clients := r.rooms[roomID]
	delete(r.rooms, roomID)
	entries := make(map[*Client]*connEntry, len(clients))
	for _, c := range clients {
		if entry, ok := r.entries[c]; ok {
			entries[c] = entry
			delete(r.entries, c)
		}
	}
	r.mu.Unlock()

	for c, entry := range entries {
		entry.cancel()
		c.conn.Close(websocket.StatusGoingAway, "room disposed")
	}
}

// Shutdown gracefully closes every connection in every room.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	r.closed = true
	entries := r.entries
	r.entries = make(map[*Client]*connEntry)
	r.rooms = make(map[string]map[string]*Client)
	r.mu.Unlock()

	if r.stopIdle != nil {
		r.stopIdle()
	}

	for c, entry := range entries {
		entry.cancel()
		c.conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

// idleReapLoop periodically checks for and closes idle connections.
func (r *Registry) idleReapLoop(ctx context.Context) {
	ticker := time.NewTicker(idleCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reapIdle()
		}
	}
}

// reapIdle closes connections that have been idle longer than idleTTL.
func (r *Registry) reapIdle() {
	r.mu.Lock()
	now := time.Now()
	stale := make(map[*Client]*connEntry)
	for c, entry := range r.entries {
		if now.Sub(entry.lastActive) > r.idleTTL {
			stale[c] = entry
			delete(r.entries, c)
			r.unindex(c)
		}
	}
	r.mu.Unlock()

	for c, entry := range stale {
		entry.cancel()
		c.conn.Close(websocket.StatusPolicyViolation, "idle timeout")
		r.idleReaped.Add(1)
		log.Printf("ws: reaped idle connection for session %s", c.sessionID)
	}
}

// writePump drains the client's send channel, writing each frame to
// the WebSocket. It exits when ctx is cancelled.
func (r *Registry) writePump(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			if err := c.conn.Write(writeCtx, websocket.MessageText, msg); err != nil {
				cancel()
				log.Printf("ws: write to session %s failed: %v", c.sessionID, err)
				return
			}
			cancel()
		}
	}
}

// marshalEvent builds the wire frame for an outbound event.
func marshalEvent(event string, payload any) ([]byte, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ws: failed to marshal %s payload: %v", event, err)
		return nil, false
	}
	frame, err := json.Marshal(Envelope{Type: event, Payload: data})
	if err != nil {
		log.Printf("ws: failed to marshal %s envelope: %v", event, err)
		return nil, false
	}
	return frame, true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func cancelledContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	return ctx
}
