package websocket

import (
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/cory-johannsen/tictactoe/internal/gameserver"
	"github.com/cory-johannsen/tictactoe/internal/observability"
)

// Hub tracks live connections and room channels and delivers encoded events
// to them. It implements gameserver.Broadcaster.
type Hub struct {
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{} // room id → connection ids
}

var _ gameserver.Broadcaster = (*Hub)(nil)

// NewHub creates an empty Hub.
//
// Precondition: logger must be non-nil.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

// unregister forgets connID and drops it from every room channel.
func (h *Hub) unregister(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, connID)
	for roomID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Send implements gameserver.Broadcaster.
func (h *Hub) Send(connID string, evt gameserver.Event) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshaling event", zap.String("event", evt.Name), zap.Error(err))
		return
	}

	h.mu.RLock()
	c, ok := h.clients[connID]
	h.mu.RUnlock()
	if ok {
		h.push(c, evt.Name, frame)
	}
}

// Broadcast implements gameserver.Broadcaster.
func (h *Hub) Broadcast(roomID string, evt gameserver.Event, excludeConnID string) {
	frame, err := json.Marshal(evt)
	if err != nil {
		h.logger.Error("marshaling broadcast event",
			zap.String("event", evt.Name),
			observability.Room(roomID),
			zap.Error(err),
		)
		return
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if id == excludeConnID {
			continue
		}
		if c, ok := h.clients[id]; ok {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.push(c, evt.Name, frame)
	}
}

// push queues frame for c and drops c when it cannot keep up.
func (h *Hub) push(c *client, event string, frame []byte) {
	err := c.out.Push(frame)
	if err == nil {
		return
	}
	if errors.Is(err, ErrOutboxFull) {
		h.logger.Warn("slow consumer, closing connection",
			observability.Conn(c.id),
			zap.String("event", event),
		)
		c.close()
		return
	}
	h.logger.Debug("push to closed connection",
		observability.Conn(c.id),
		zap.String("event", event),
	)
}

// Subscribe implements gameserver.Broadcaster.
func (h *Hub) Subscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		h.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

// Unsubscribe implements gameserver.Broadcaster.
func (h *Hub) Unsubscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// CloseRoom implements gameserver.Broadcaster.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

// Count returns the number of live connections.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// closeAll closes every live connection.
func (h *Hub) closeAll() {
	h.mu.RLock()
	all := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		c.close()
	}
}
