package ws

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"campus-chat/internal/logging"
	"campus-chat/internal/observability"
)

// Subscriber receives room broadcasts. Deliver must not block.
type Subscriber interface {
	ID() string
	Deliver(payload []byte) error
}

type room struct {
	mu      sync.RWMutex
	members map[string]Subscriber
	// dead is set once the room was emptied and is about to leave the registry.
	dead atomic.Bool
}

// Hub maintains the room channels. The registry lock only guards the room map; membership
// and delivery use the room's own lock, so rooms never contend with each other.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[int]*room
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{rooms: make(map[int]*room), logger: logging.OrNop(logger)}
}

// Join adds sub to roomID. Joining twice is a no-op.
func (h *Hub) Join(roomID int, sub Subscriber) {
	for {
		r := h.room(roomID)
		r.mu.Lock()
		if r.dead.Load() {
			r.mu.Unlock()
			continue
		}
		r.members[sub.ID()] = sub
		r.mu.Unlock()
		return
	}
}

// room returns the live room for roomID, creating it if needed.
func (h *Hub) room(roomID int) *room {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok && !r.dead.Load() {
		return r
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok = h.rooms[roomID]
	if !ok || r.dead.Load() {
		r = &room{members: make(map[string]Subscriber)}
		h.rooms[roomID] = r
		observability.SetActiveRooms(len(h.rooms))
	}
	return r
}

// Leave removes sub from roomID and evicts the room once empty. After Leave returns no
// broadcast delivers to sub any more.
func (h *Hub) Leave(roomID int, sub Subscriber) {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	r.mu.Lock()
	delete(r.members, sub.ID())
	empty := len(r.members) == 0
	if empty {
		r.dead.Store(true)
	}
	r.mu.Unlock()
	if !empty {
		return
	}

	h.mu.Lock()
	if h.rooms[roomID] == r {
		delete(h.rooms, roomID)
	}
	observability.SetActiveRooms(len(h.rooms))
	h.mu.Unlock()
}

// Broadcast marshals event once and hands it to every member of roomID. A failing member is
// logged and skipped.
func (h *Hub) Broadcast(roomID int, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("broadcast marshal failed", zap.Int("room_id", roomID), zap.Error(err))
		return
	}

	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	delivered, failed := 0, 0
	r.mu.RLock()
	for id, sub := range r.members {
		if err := sub.Deliver(payload); err != nil {
			failed++
			h.logger.Warn("broadcast delivery failed", zap.Int("room_id", roomID), zap.String("conn_id", id), zap.Error(err))
			continue
		}
		delivered++
	}
	r.mu.RUnlock()
	observability.AddBroadcastDeliveries(delivered, failed)
}

// Members returns the number of subscribers in roomID.
func (h *Hub) Members(roomID int) int {
	h.mu.RLock()
	r, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Rooms returns the number of live room channels.
func (h *Hub) Rooms() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}
