// Package hub is the broadcast layer: one Hub per room fans prepared frames
// out to member connections. Delivery is at-least-once and FIFO per sender;
// no ordering is guaranteed across connections.
package hub

import (
	"sync"

	"vrmchat/internal/wire"
	"vrmchat/pkg/logger"
)

// Receiver queues one frame for a connection's write pump. It must not
// block; a false return marks the member as a slow consumer.
type Receiver interface {
	Queue(f wire.Frame) bool
}

type Hub struct {
	roomID  string
	mu      sync.RWMutex
	members map[string]Receiver
}

func newHub(roomID string) *Hub {
	return &Hub{
		roomID:  roomID,
		members: make(map[string]Receiver),
	}
}

func (h *Hub) RoomID() string {
	return h.roomID
}

// Join registers a connection under its connectionName.
func (h *Hub) Join(connectionName string, r Receiver) {
	h.mu.Lock()
	h.members[connectionName] = r
	h.mu.Unlock()
	logger.Info("connection %s joined room %s", connectionName, h.roomID)
}

// Leave removes a connection; it is a no-op for unknown names.
func (h *Hub) Leave(connectionName string) {
	h.mu.Lock()
	_, ok := h.members[connectionName]
	delete(h.members, connectionName)
	h.mu.Unlock()
	if ok {
		logger.Info("connection %s left room %s", connectionName, h.roomID)
	}
}

// Send delivers one frame to a single member. Unknown names are dropped.
func (h *Hub) Send(connectionName string, f wire.Frame) bool {
	h.mu.RLock()
	r, ok := h.members[connectionName]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	if !r.Queue(f) {
		h.dropSlow(connectionName)
		return false
	}
	return true
}

// GroupSend delivers one frame to every member.
func (h *Hub) GroupSend(f wire.Frame) {
	h.mu.RLock()
	type target struct {
		name string
		r    Receiver
	}
	targets := make([]target, 0, len(h.members))
	for name, r := range h.members {
		targets = append(targets, target{name, r})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		if !t.r.Queue(f) {
			h.dropSlow(t.name)
		}
	}
}

func (h *Hub) dropSlow(connectionName string) {
	h.mu.Lock()
	delete(h.members, connectionName)
	h.mu.Unlock()
	logger.Warn("dropped slow consumer %s from room %s", connectionName, h.roomID)
}

func (h *Hub) MemberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.members)
}

// Manager hands out one Hub per room and reaps empty ones. Membership
// changes go through the manager so a hub that still has members can never
// be reaped, and a join can never land on a hub already removed from the
// map.
type Manager struct {
	mu   sync.Mutex
	hubs map[string]*Hub
}

func NewManager() *Manager {
	return &Manager{hubs: make(map[string]*Hub)}
}

// Join registers the connection with the room's hub, creating the hub when
// needed, and returns the hub the member now belongs to.
func (m *Manager) Join(roomID, connectionName string, r Receiver) *Hub {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hubs[roomID]
	if !ok {
		h = newHub(roomID)
		m.hubs[roomID] = h
	}
	h.Join(connectionName, r)
	return h
}

// Leave removes the connection and reaps the hub once its last member is
// gone.
func (m *Manager) Leave(h *Hub, connectionName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h.Leave(connectionName)
	if h.MemberCount() == 0 {
		delete(m.hubs, h.roomID)
	}
}
