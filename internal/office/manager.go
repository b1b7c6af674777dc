package office

import (
	"sync"

	"github.com/google/uuid"
	"github.com/syncrospace/office-server/internal/chat"
)

// Manager owns the set of live rooms and their published metadata.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	metas map[string]Metadata

	store     chat.Store
	newSender func(roomID string) Sender
}

// NewManager creates a Manager. newSender builds the per-room delivery
// fan-out for a given room id.
func NewManager(store chat.Store, newSender func(roomID string) Sender) *Manager {
	return &Manager{
		rooms:     make(map[string]*Room),
		metas:     make(map[string]Metadata),
		store:     store,
		newSender: newSender,
	}
}

// Create builds a room from the settings, starts its run loop and
// returns it.
func (m *Manager) Create(s Settings) *Room {
	id := uuid.NewString()
	r := newRoom(id, s, m.newSender(id), m.store, m.setMetadata)

	m.mu.Lock()
	m.rooms[id] = r
	m.metas[id] = r.Metadata()
	m.mu.Unlock()

	r.start()
	return r
}

// Get returns a room by id, or nil if not found.
func (m *Manager) Get(id string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rooms[id]
}

// List returns the metadata of every live room, busiest first.
func (m *Manager) List() []Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Metadata, 0, len(m.metas))
	for _, meta := range m.metas {
		result = append(result, meta)
	}
	for i := 0; i < len(result); i++ {
		for j := i + 1; j < len(result); j++ {
			if result[j].PlayerCount > result[i].PlayerCount {
				result[i], result[j] = result[j], result[i]
			}
		}
	}
	return result
}

// Delete disposes a room and drops it from the listing. No-op for an
// unknown id.
func (m *Manager) Delete(id string) {
	m.mu.Lock()
	r, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
		delete(m.metas, id)
	}
	m.mu.Unlock()

	if ok {
		r.Close()
	}
}

// Shutdown disposes every room.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.metas = make(map[string]Metadata)
	m.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
}

// setMetadata records a room's republished metadata. Updates for rooms
// already deleted are ignored.
func (m *Manager) setMetadata(meta Metadata) {
	m.mu.Lock()
	if _, ok := m.rooms[meta.ID]; ok {
		m.metas[meta.ID] = meta
	}
	m.mu.Unlock()
}
