package chat

import (
	"fmt"
	"time"
)

// Type represents the kind of chat message.
type Type string

const (
	TypePlayerJoined Type = "PLAYER_JOINED"
	TypePlayerLeft   Type = "PLAYER_LEFT"
	TypeRegular      Type = "REGULAR_MESSAGE"
	TypeSystem       Type = "SYSTEM_MESSAGE"
)

// ScopeGlobal is the scope of the room-wide chat log. Every other scope
// is the id of an office zone.
const ScopeGlobal = "global"

// Message is a single chat entry. Messages are immutable once appended.
type Message struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Message   string `json:"message"`
	Type      Type   `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Office    string `json:"office,omitempty"`
}

// Log provides append and history access to the chat scopes of one room.
// The backing Store decides where messages actually live.
type Log struct {
	roomID string
	store  Store
}

// NewLog creates a chat log for the given room backed by store.
func NewLog(roomID string, store Store) *Log {
	return &Log{roomID: roomID, store: store}
}

// Append builds a message and appends it to the given scope. The message
// id is derived from the scope, the originating session and the append
// time in epoch millis; ids are not guaranteed unique across scopes.
func (l *Log) Append(scope, sessionID, username, text string, typ Type) *Message {
	now := time.Now().UnixMilli()
	m := &Message{
		ID:        fmt.Sprintf("%s-%s-%d", scope, sessionID, now),
		Username:  username,
		Message:   text,
		Type:      typ,
		Timestamp: now,
	}
	if scope != ScopeGlobal {
		m.Office = scope
	}
	l.store.Append(l.roomID, scope, m)
	return m
}

// History returns every message appended to the scope, oldest first.
// The result is never nil.
func (l *Log) History(scope string) []*Message {
	msgs := l.store.All(l.roomID, scope)
	if msgs == nil {
		msgs = []*Message{}
	}
	return msgs
}

// Len returns the number of messages in the scope.
func (l *Log) Len(scope string) int {
	return l.store.Count(l.roomID, scope)
}

// Delete drops every scope of the room's chat. Called at room dispose.
func (l *Log) Delete() {
	l.store.DeleteRoom(l.roomID)
}
