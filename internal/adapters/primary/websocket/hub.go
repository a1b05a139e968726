package websocket

import (
	"context"
	"log/slog"
	"sync"

	"github.com/navbat/queue-backend/internal/core/domain"
	"github.com/navbat/queue-backend/internal/core/ports"
)

// Hub maintains the set of active Clients and broadcasts messages to them.
type Hub struct {
	// clients maps actor IDs to their active connections.
	// A single actor can have multiple connections (display screen, phone, dashboard).
	clients map[string]map[*Client]bool

	// rooms maps organization IDs to subscribed clients
	rooms map[string]map[*Client]bool

	// Broadcast channel for events
	broadcast chan domain.Event

	// Register requests from clients
	Register chan *Client

	// Unregister requests from clients
	Unregister chan *Client

	// done is closed when Run returns
	done chan struct{}

	// mu protects the clients and rooms maps
	mu sync.RWMutex

	logger *slog.Logger
}

// Ensure Hub implements the EventBroadcaster interface.
var _ ports.EventBroadcaster = (*Hub)(nil)

// NewHub creates a new WebSocket hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan domain.Event, 256),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger.With("component", "websocket_hub"),
	}
}

// Broadcast queues an event for delivery to the organization's room.
// It never blocks; events are dropped when the hub is saturated and
// clients catch up on their next poll.
func (h *Hub) Broadcast(event domain.Event) error {
	select {
	case h.broadcast <- event:
	default:
		h.logger.Warn("broadcast channel full, dropping event",
			"event_type", event.Type,
			"org_id", event.OrganizationID,
		)
	}
	return nil
}

// Run starts the hub's event loop and returns when ctx is cancelled,
// disconnecting every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			h.logger.Info("websocket hub stopped")
			return

		case client := <-h.Register:
			h.registerClient(client)

		case client := <-h.Unregister:
			h.unregisterClient(client)

		case event := <-h.broadcast:
			h.broadcastEvent(event)
		}
	}
}

// Done is closed once the hub has stopped.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// registerClient adds a client to the hub
func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.ActorID] == nil {
		h.clients[client.ActorID] = make(map[*Client]bool)
	}
	h.clients[client.ActorID][client] = true

	h.logger.Info("client registered",
		"actor_id", client.ActorID,
		"total_connections", len(h.clients[client.ActorID]),
	)
}

// unregisterClient removes a client from the hub and all rooms.
// Unregistering the same client twice is a no-op.
func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	actorClients, ok := h.clients[client.ActorID]
	if !ok || !actorClients[client] {
		return
	}
	delete(actorClients, client)
	if len(actorClients) == 0 {
		delete(h.clients, client.ActorID)
	}

	for _, orgID := range client.GetSubscriptions() {
		h.leaveRoom(client, orgID)
	}

	client.CloseSend()

	h.logger.Info("client unregistered", "actor_id", client.ActorID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, actorClients := range h.clients {
		for client := range actorClients {
			client.CloseSend()
		}
	}
	h.clients = make(map[string]map[*Client]bool)
	h.rooms = make(map[string]map[*Client]bool)
}

// broadcastEvent sends an event to all clients subscribed to the organization
func (h *Hub) broadcastEvent(event domain.Event) {
	h.mu.RLock()
	room, ok := h.rooms[event.OrganizationID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	// Copy the client list to avoid holding the lock while sending
	clients := make([]*Client, 0, len(room))
	for client := range room {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	h.logger.Debug("broadcasting event",
		"event_type", event.Type,
		"org_id", event.OrganizationID,
		"client_count", len(clients),
	)

	var slow []*Client
	for _, client := range clients {
		if !client.enqueue(event) {
			slow = append(slow, client)
		}
	}

	// Run owns the maps, so slow clients are dropped here rather than via
	// the Unregister channel.
	for _, client := range slow {
		h.logger.Warn("client send buffer full, unregistering", "actor_id", client.ActorID)
		h.unregisterClient(client)
	}
}

// Subscribe adds a registered client to an organization's room
func (h *Hub) Subscribe(client *Client, orgID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.clients[client.ActorID][client] {
		return
	}

	if h.rooms[orgID] == nil {
		h.rooms[orgID] = make(map[*Client]bool)
	}
	h.rooms[orgID][client] = true
	client.AddSubscription(orgID)

	h.logger.Debug("client subscribed to organization",
		"actor_id", client.ActorID,
		"org_id", orgID,
	)
}

// Unsubscribe removes a client from an organization's room
func (h *Hub) Unsubscribe(client *Client, orgID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.leaveRoom(client, orgID)

	h.logger.Debug("client unsubscribed from organization",
		"actor_id", client.ActorID,
		"org_id", orgID,
	)
}

// leaveRoom must be called with mu held.
func (h *Hub) leaveRoom(client *Client, orgID string) {
	if room, ok := h.rooms[orgID]; ok {
		delete(room, client)
		if len(room) == 0 {
			delete(h.rooms, orgID)
		}
	}
	client.RemoveSubscription(orgID)
}

// ClientCount returns the total number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	count := 0
	for _, actorClients := range h.clients {
		count += len(actorClients)
	}
	return count
}

// RoomCount returns the number of organizations with at least one subscriber
func (h *Hub) RoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// ClientsInRoom returns the number of clients subscribed to an organization
func (h *Hub) ClientsInRoom(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[orgID])
}
