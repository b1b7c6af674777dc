package office

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syncrospace/office-server/internal/chat"
)

// Defaults applied when room creation omits the matching setting.
const (
	DefaultRoomName   = "SyncroSpace Office"
	DefaultMaxPlayers = 50
)

// inboxSize is the number of queued inbound events per room.
const inboxSize = 64

// ErrWrongPassword is returned by Authenticate when the supplied
// credential does not match the room password.
var ErrWrongPassword = errors.New("office: wrong password")

// Sender delivers events to connected sessions of one room. Implemented
// by the WebSocket connection registry; sends are best-effort and a
// no-op for unknown sessions.
type Sender interface {
	Send(sessionID, event string, payload any)
	Broadcast(event string, payload any, except ...string)
	Shutdown()
}

// Settings configures a new room.
type Settings struct {
	Name       string `json:"name"`
	Password   string `json:"password"`
	MaxPlayers int    `json:"maxPlayers"`
}

// Metadata is the published summary of a room.
type Metadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	HasPassword bool      `json:"hasPassword"`
	PlayerCount int       `json:"playerCount"`
	MaxPlayers  int       `json:"maxPlayers"`
	CreatedAt   time.Time `json:"createdAt"`
}

// inbound is one queued room event: a client message, a join, a leave,
// or an internal call.
type inbound struct {
	kind    inboundKind
	session string
	msgType string
	payload json.RawMessage
	opts    JoinOptions
	fn      func()
}

type inboundKind int

const (
	kindMessage inboundKind = iota
	kindJoin
	kindLeave
	kindCall
)

type handlerFunc func(sessionID string, payload json.RawMessage)

// Room is one virtual office instance. All room state is owned by the
// run loop goroutine: inbound client messages and the proximity tick
// are consumed from a single select, so handlers run to completion
// before the next event and a tick never observes a half-applied
// mutation. Rooms are independent; nothing is shared between them.
type Room struct {
	id         string
	name       string
	password   string
	maxPlayers int
	createdAt  time.Time

	players  map[string]*Player
	zoneList []*Zone
	zones    map[string]*Zone
	chat     *chat.Log

	sender     Sender
	onMetadata func(Metadata)
	handlers   map[string]handlerFunc

	// playerCount mirrors len(players) for readers outside the loop.
	playerCount atomic.Int32

	inbox     chan inbound
	done      chan struct{}
	closeOnce sync.Once
}

// newRoom builds a room in its initial state. The caller starts the run
// loop with start.
func newRoom(id string, s Settings, sender Sender, store chat.Store, onMetadata func(Metadata)) *Room {
	if s.Name == "" {
		s.Name = DefaultRoomName
	}
	if s.MaxPlayers <= 0 {
		s.MaxPlayers = DefaultMaxPlayers
	}
	r := &Room{
		id:         id,
		name:       s.Name,
		password:   s.Password,
		maxPlayers: s.MaxPlayers,
		createdAt:  time.Now(),
		players:    make(map[string]*Player),
		chat:       chat.NewLog(id, store),
		sender:     sender,
		onMetadata: onMetadata,
		inbox:      make(chan inbound, inboxSize),
		done:       make(chan struct{}),
	}
	r.zoneList, r.zones = newZones()
	r.handlers = map[string]handlerFunc{
		MsgUpdatePlayer:                r.handleUpdatePlayer,
		MsgJoinOffice:                  r.handleJoinOffice,
		MsgLeaveOffice:                 r.handleLeaveOffice,
		MsgSendGlobalMessage:           r.handleGlobalMessage,
		MsgSendOfficeMessage:           r.handleOfficeMessage,
		MsgConnectToVideoCall:          r.handleConnectToVideoCall,
		MsgEndVideoCall:                r.handleEndVideoCall,
		MsgConnectToOfficeVideoCall:    r.handleOfficeVideoCall,
		MsgConnectToProximityVideoCall: r.handleProximityVideoCall,
		MsgStartScreenShare:            r.handleStartScreenShare,
		MsgStopScreenShare:             r.handleStopScreenShare,
	}
	return r
}

// start launches the run loop and publishes the initial metadata.
func (r *Room) start() {
	r.publishMetadata()
	go r.run()
}

// run is the single writer for all room state.
func (r *Room) run() {
	ticker := time.NewTicker(proximityInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.done:
			r.dispose()
			return
		case ev := <-r.inbox:
			r.dispatch(ev)
		case <-ticker.C:
			r.proximityTick()
		}
	}
}

func (r *Room) dispatch(ev inbound) {
	switch ev.kind {
	case kindJoin:
		r.join(ev.session, ev.opts)
	case kindLeave:
		r.leave(ev.session)
	case kindCall:
		ev.fn()
	case kindMessage:
		h, ok := r.handlers[ev.msgType]
		if !ok {
			log.Printf("office: room %s: unknown message type %q from %s", r.id, ev.msgType, ev.session)
			return
		}
		h(ev.session, ev.payload)
	}
}

// post queues an event for the run loop. Returns false once the room is
// disposed.
func (r *Room) post(ev inbound) bool {
	select {
	case r.inbox <- ev:
		return true
	case <-r.done:
		return false
	}
}

// ID returns the room id.
func (r *Room) ID() string { return r.id }

// Authenticate is the pre-join gate. A room without a password accepts
// any credential; otherwise the supplied password must match exactly.
func (r *Room) Authenticate(password string) error {
	if r.password == "" {
		return nil
	}
	if password != r.password {
		return ErrWrongPassword
	}
	return nil
}

// IsFull reports whether the room has reached its player limit.
func (r *Room) IsFull() bool {
	return int(r.playerCount.Load()) >= r.maxPlayers
}

// Metadata returns the room's published summary.
func (r *Room) Metadata() Metadata {
	return Metadata{
		ID:          r.id,
		Name:        r.name,
		HasPassword: r.password != "",
		PlayerCount: int(r.playerCount.Load()),
		MaxPlayers:  r.maxPlayers,
		CreatedAt:   r.createdAt,
	}
}

// Join adds a player for the session. The caller must have passed
// Authenticate first.
func (r *Room) Join(sessionID string, opts JoinOptions) {
	r.post(inbound{kind: kindJoin, session: sessionID, opts: opts})
}

// Leave removes the session's player, performing an implicit zone leave
// if needed. No-op if the player is already gone.
func (r *Room) Leave(sessionID string) {
	r.post(inbound{kind: kindLeave, session: sessionID})
}

// Post queues a client message for dispatch to its handler. Messages
// posted from one connection arrive in order; unknown types are logged
// and dropped.
func (r *Room) Post(sessionID, msgType string, payload json.RawMessage) {
	r.post(inbound{kind: kindMessage, session: sessionID, msgType: msgType, payload: payload})
}

// Close disposes the room: the run loop stops, every connection is shut
// down and the chat history is deleted. Idempotent.
func (r *Room) Close() {
	r.closeOnce.Do(func() { close(r.done) })
}

// call runs fn on the run loop and waits for it to complete. Returns
// false without running fn if the room is disposed.
func (r *Room) call(fn func()) bool {
	done := make(chan struct{})
	if !r.post(inbound{kind: kindCall, fn: func() {
		fn()
		close(done)
	}}) {
		return false
	}
	select {
	case <-done:
		return true
	case <-r.done:
		return false
	}
}

// PlayerSnapshot returns a copy of the session's player, if present.
func (r *Room) PlayerSnapshot(sessionID string) (Player, bool) {
	var p Player
	var ok bool
	r.call(func() {
		if pl, found := r.players[sessionID]; found {
			p = *pl
			ok = true
		}
	})
	return p, ok
}

// ZoneMembers returns a copy of a zone's membership, or nil for an
// unknown zone.
func (r *Room) ZoneMembers(zoneID string) map[string]string {
	var members map[string]string
	r.call(func() {
		z, ok := r.zones[zoneID]
		if !ok {
			return
		}
		members = make(map[string]string, len(z.members))
		for id, name := range z.members {
			members[id] = name
		}
	})
	return members
}

// GlobalChatLen returns the length of the global chat log.
func (r *Room) GlobalChatLen() int {
	return r.chat.Len(chat.ScopeGlobal)
}

// ZoneChatLen returns the length of a zone's chat log.
func (r *Room) ZoneChatLen(zoneID string) int {
	return r.chat.Len(zoneID)
}

// join creates the player, announces it and sends the joiner the global
// chat history plus the current presence snapshot.
func (r *Room) join(sessionID string, opts JoinOptions) {
	p := NewPlayer(sessionID, opts)
	r.players[sessionID] = p
	r.playerCount.Store(int32(len(r.players)))

	msg := r.chat.Append(chat.ScopeGlobal, sessionID, p.Username, p.Username+" joined the office", chat.TypePlayerJoined)
	r.sender.Broadcast(EvtNewGlobalMessage, msg, sessionID)
	r.sender.Broadcast(EvtPlayerJoined, p, sessionID)
	r.sender.Send(sessionID, EvtGetGlobalChat, r.chat.History(chat.ScopeGlobal))
	r.sender.Send(sessionID, EvtRoomState, RoomState{Players: r.players})
	r.publishMetadata()
}

// leave tears the player down. The implicit zone leave runs before the
// global leave message is appended and broadcast.
func (r *Room) leave(sessionID string) {
	p, ok := r.players[sessionID]
	if !ok {
		return
	}
	if z := r.zoneOf(sessionID); z != nil {
		r.leaveZone(sessionID, p.Username, z)
	}
	msg := r.chat.Append(chat.ScopeGlobal, sessionID, p.Username, p.Username+" left the office", chat.TypePlayerLeft)
	delete(r.players, sessionID)
	r.playerCount.Store(int32(len(r.players)))

	r.sender.Broadcast(EvtNewGlobalMessage, msg)
	r.sender.Broadcast(EvtPlayerLeft, PlayerRef{ID: sessionID})
	r.publishMetadata()
}

// zoneOf scans the catalog for the zone the session is a member of.
func (r *Room) zoneOf(sessionID string) *Zone {
	for _, z := range r.zoneList {
		if _, ok := z.members[sessionID]; ok {
			return z
		}
	}
	return nil
}

// proximityTick recomputes audibility for every player and unicasts
// each one its own neighbor list.
func (r *Room) proximityTick() {
	for id, near := range NearbyPlayers(r.players) {
		r.sender.Send(id, EvtProximityUpdate, ProximityUpdate{
			NearbyPlayers:      near,
			ProximityThreshold: ProximityThreshold,
		})
	}
}

func (r *Room) publishMetadata() {
	if r.onMetadata != nil {
		r.onMetadata(r.Metadata())
	}
}

// dispose releases room resources. Runs on the loop goroutine after
// Close; no handler fires afterwards.
func (r *Room) dispose() {
	r.sender.Shutdown()
	r.chat.Delete()
	r.players = make(map[string]*Player)
	r.playerCount.Store(0)
	log.Printf("office: room %s disposed", r.id)
}
