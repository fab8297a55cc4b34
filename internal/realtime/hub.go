package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Frame is one inbound websocket message: an event name plus its payload.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type outFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub tracks websocket participants and their room memberships, and is the
// game engine's outbound channel. A message addressed to a room reaches
// every member; a message addressed to a participant reaches only them.
type Hub struct {
	mu           sync.RWMutex
	participants map[string]*client
	rooms        map[string]map[string]*client
}

func NewHub() *Hub {
	return &Hub{
		participants: make(map[string]*client),
		rooms:        make(map[string]map[string]*client),
	}
}

// Join subscribes a connected participant to a room. Joining an unknown
// participant is a no-op; the connection is gone already.
func (h *Hub) Join(room, participant string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c, ok := h.participants[participant]
	if !ok {
		return
	}

	if h.rooms[room] == nil {
		h.rooms[room] = make(map[string]*client)
	}
	h.rooms[room][participant] = c
	c.rooms[room] = struct{}{}
}

// ToRoom sends an event to every member of a room. Fire-and-forget: the
// payload is queued per connection and slow consumers lose messages.
func (h *Hub) ToRoom(room, event string, data any) {
	payload, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		slog.Error("realtime: marshal room event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	members := make([]*client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		c.trySend(payload)
	}
}

// ToParticipant sends an event to a single participant.
func (h *Hub) ToParticipant(participant, event string, data any) {
	payload, err := json.Marshal(outFrame{Event: event, Data: data})
	if err != nil {
		slog.Error("realtime: marshal participant event failed", "event", event, "error", err)
		return
	}

	h.mu.RLock()
	c, ok := h.participants[participant]
	h.mu.RUnlock()

	if ok {
		c.trySend(payload)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.participants[c.id] = c
}

// unregister drops a participant from the hub and every room it joined,
// deleting rooms that become empty. Closing the send queue stops the writer;
// a broadcast holding an older member snapshot sees the closed flag and
// drops the message instead of sending.
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.participants[c.id]; !ok {
		return
	}
	delete(h.participants, c.id)

	for room := range c.rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, c.id)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}

	c.close()
}

// Close disconnects every participant. Used on server shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.participants))
	for _, c := range h.participants {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.unregister(c)
	}
}
