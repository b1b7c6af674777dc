package chat

import "sync"

// Store is the interface for chat history backends. Scopes group
// messages within a room: the global log and one log per office zone.
type Store interface {
	Append(roomID, scope string, msg *Message)
	All(roomID, scope string) []*Message
	Count(roomID, scope string) int
	DeleteRoom(roomID string)
}

// MemoryStore keeps chat history in process memory. History is
// unbounded and lives only as long as the room that owns it.
type MemoryStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string][]*Message
}

// NewMemoryStore creates an empty in-memory chat store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rooms: make(map[string]map[string][]*Message)}
}

// Append adds a message to the room's scope.
func (s *MemoryStore) Append(roomID, scope string, msg *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	scopes := s.rooms[roomID]
	if scopes == nil {
		scopes = make(map[string][]*Message)
		s.rooms[roomID] = scopes
	}
	scopes[scope] = append(scopes[scope], msg)
}

// All returns a copy of the scope's messages, oldest first.
func (s *MemoryStore) All(roomID, scope string) []*Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.rooms[roomID][scope]
	if len(msgs) == 0 {
		return nil
	}
	result := make([]*Message, len(msgs))
	copy(result, msgs)
	return result
}

// Count returns the number of messages in the scope.
func (s *MemoryStore) Count(roomID, scope string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomID][scope])
}

// DeleteRoom removes every scope of the room.
func (s *MemoryStore) DeleteRoom(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}
