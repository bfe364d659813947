package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/auth"
	"gitlab.ozon.dev/pupkingeorgij/fooddelivery/internal/metrics"
)

// Bridge carries a published event to the other serving processes. The hub
// treats it as fire-and-forget: a failed cross-process publish is logged and
// dropped, never retried.
type Bridge interface {
	Publish(ctx context.Context, room Room, payload []byte) error
}

// Hub owns room membership and delivers published events to the local
// connections of each room. Per-connection send buffers are bounded; a
// connection that cannot keep up is disconnected rather than allowed to
// stall publishers.
type Hub struct {
	bridge  Bridge
	sendBuf int

	mu    sync.RWMutex
	rooms map[Room]map[*Conn]struct{}
	conns map[*Conn]map[Room]struct{}
	users map[string]map[*Conn]struct{}
}

func NewHub(bridge Bridge, sendBuf int) *Hub {
	return &Hub{
		bridge:  bridge,
		sendBuf: sendBuf,
		rooms:   make(map[Room]map[*Conn]struct{}),
		conns:   make(map[*Conn]map[Room]struct{}),
		users:   make(map[string]map[*Conn]struct{}),
	}
}

// SetBridge attaches the cross-process bridge. Called once during startup,
// before the hub serves its first connection.
func (h *Hub) SetBridge(b Bridge) {
	h.bridge = b
}

// NewConn builds a connection with the hub's configured send buffer.
func (h *Hub) NewConn(identity auth.Identity, ws *websocket.Conn) *Conn {
	return newConn(identity, ws, h.sendBuf)
}

// Register admits a connection into the hub. It must be called exactly once
// per admitted connection, before any Subscribe.
func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; ok {
		return
	}
	h.conns[c] = make(map[Room]struct{})

	uid := c.identity.UserID
	if h.users[uid] == nil {
		h.users[uid] = make(map[*Conn]struct{})
	}
	h.users[uid][c] = struct{}{}

	metrics.ConnectionsActive.Inc()
}

// Unregister removes the connection from every room and closes its send
// buffer, which ends its write loop. Idempotent.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unregisterLocked(c)
}

func (h *Hub) unregisterLocked(c *Conn) {
	membership, ok := h.conns[c]
	if !ok {
		return
	}
	delete(h.conns, c)

	for room := range membership {
		delete(h.rooms[room], c)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}

	uid := c.identity.UserID
	delete(h.users[uid], c)
	if len(h.users[uid]) == 0 {
		delete(h.users, uid)
	}

	close(c.send)
	metrics.ConnectionsActive.Dec()
}

// Subscribe joins the connection to a room. Authorization happens at the
// gate; the hub only tracks membership.
func (h *Hub) Subscribe(c *Conn, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	membership, ok := h.conns[c]
	if !ok {
		return
	}
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Conn]struct{})
	}
	h.rooms[room][c] = struct{}{}
	membership[room] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Conn, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if membership, ok := h.conns[c]; ok {
		delete(membership, room)
	}
	delete(h.rooms[room], c)
	if len(h.rooms[room]) == 0 {
		delete(h.rooms, room)
	}
}

// JoinUser subscribes every live connection of a user to a room. This is how
// a courier assigned mid-flight starts receiving the order's events without
// reconnecting.
func (h *Hub) JoinUser(userID string, room Room) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.users[userID] {
		if membership, ok := h.conns[c]; ok {
			if h.rooms[room] == nil {
				h.rooms[room] = make(map[*Conn]struct{})
			}
			h.rooms[room][c] = struct{}{}
			membership[room] = struct{}{}
		}
	}
}

// Publish delivers an event to the room's local connections and forwards it
// to the other processes through the bridge. It never blocks on a slow
// subscriber. Callers publish only after the underlying state change has
// been committed.
func (h *Hub) Publish(ctx context.Context, room Room, e Event) {
	payload, err := e.Marshal()
	if err != nil {
		log.Printf("realtime: dropping unmarshalable %s event: %v", e.Type, err)
		metrics.EventsDroppedTotal.WithLabelValues("marshal").Inc()
		return
	}

	h.DeliverLocal(room, payload)

	if h.bridge != nil {
		if err := h.bridge.Publish(ctx, room, payload); err != nil {
			log.Printf("realtime: cross-process publish to %s dropped: %v", room, err)
			metrics.EventsDroppedTotal.WithLabelValues("bridge").Inc()
		}
	}

	metrics.EventsPublishedTotal.WithLabelValues(string(e.Type)).Inc()
}

// DeliverLocal pushes an already-serialized event to the room's connections
// on this process. The bridge calls it for events published elsewhere.
func (h *Hub) DeliverLocal(room Room, payload []byte) {
	h.mu.RLock()
	var overflowed []*Conn
	for c := range h.rooms[room] {
		select {
		case c.send <- payload:
		default:
			overflowed = append(overflowed, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range overflowed {
		log.Printf("realtime: send buffer full for user %s, disconnecting", c.identity.UserID)
		metrics.OverflowDisconnectsTotal.Inc()
		h.Unregister(c)
		c.forceClose()
	}
}

// SendTo queues an event for a single connection, bypassing rooms. Used for
// per-connection error replies.
func (h *Hub) SendTo(c *Conn, e Event) {
	payload, err := e.Marshal()
	if err != nil {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, registered := h.conns[c]; !registered {
		return
	}
	select {
	case c.send <- payload:
	default:
		metrics.EventsDroppedTotal.WithLabelValues("buffer").Inc()
	}
}

// InRoom reports current membership. Intended for tests and presence checks.
func (h *Hub) InRoom(c *Conn, room Room) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[room][c]
	return ok
}

// Shutdown force-closes every connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	for _, c := range conns {
		h.unregisterLocked(c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.forceClose()
	}
}
