package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

// Hub tracks live clients and the rooms they are in. It delivers game updates.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[string]*client
	rooms   map[string]map[string]struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger.With("component", "websocket-hub"),
		clients: make(map[string]*client),
		rooms:   make(map[string]map[string]struct{}),
	}
}

func (that *Hub) register(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.clients[c.id] = c
}

// unregister forgets the client and takes it out of every room.
func (that *Hub) unregister(c *client) {
	that.mu.Lock()
	defer that.mu.Unlock()

	delete(that.clients, c.id)
	for roomID, members := range that.rooms {
		delete(members, c.id)
		if len(members) == 0 {
			delete(that.rooms, roomID)
		}
	}
}

func (that *Hub) Send(connID string, response entity.Response) {
	frame, ok := that.encode(Envelope{Kind: KindUpdate, Response: response})
	if !ok {
		return
	}

	that.mu.RLock()
	c, found := that.clients[connID]
	that.mu.RUnlock()

	if found {
		c.enqueue(frame)
	}
}

func (that *Hub) reply(c *client, id int, response entity.Response) {
	frame, ok := that.encode(Envelope{Kind: KindResponse, ID: id, Response: response})
	if ok {
		c.enqueue(frame)
	}
}

func (that *Hub) Broadcast(roomID string, response entity.Response) {
	frame, ok := that.encode(Envelope{Kind: KindUpdate, Response: response})
	if !ok {
		return
	}

	that.mu.RLock()
	targets := make([]*client, 0, len(that.rooms[roomID]))
	for connID := range that.rooms[roomID] {
		if c, found := that.clients[connID]; found {
			targets = append(targets, c)
		}
	}
	that.mu.RUnlock()

	for _, c := range targets {
		c.enqueue(frame)
	}
}

func (that *Hub) Join(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	members, ok := that.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		that.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

func (that *Hub) Leave(roomID, connID string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if members, ok := that.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(that.rooms, roomID)
		}
	}
}

// Disconnect closes the connection; its read loop then runs the usual cleanup.
func (that *Hub) Disconnect(connID string) {
	that.mu.RLock()
	c, ok := that.clients[connID]
	that.mu.RUnlock()

	if ok {
		c.close()
	}
}

func (that *Hub) Connections() int {
	that.mu.RLock()
	defer that.mu.RUnlock()

	return len(that.clients)
}

func (that *Hub) encode(envelope Envelope) ([]byte, bool) {
	frame, err := json.Marshal(envelope)
	if err != nil {
		that.logger.Error("failed to marshal envelope", "type", envelope.Response.Type, "error", err)
		return nil, false
	}
	return frame, true
}
