package websocket

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/navbat/queue-backend/internal/core/domain"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 1024

	sendBufferSize = 256
)

// Server-side message types. Queue events keep their domain types.
const (
	MessageHello        domain.EventType = "HELLO"
	MessageSubscribed   domain.EventType = "SUBSCRIBED"
	MessageUnsubscribed domain.EventType = "UNSUBSCRIBED"
	MessagePong         domain.EventType = "PONG"
	MessageError        domain.EventType = "ERROR"
)

// Client message types.
const (
	ClientSubscribe   = "SUBSCRIBE"
	ClientUnsubscribe = "UNSUBSCRIBE"
	ClientPing        = "PING"
)

// HelloPayload tells a new connection how often to poll when the socket is
// unavailable.
type HelloPayload struct {
	ActorID        string `json:"actorId"`
	PollIntervalMs int64  `json:"pollIntervalMs"`
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan domain.Event

	// ActorID is the authenticated caller.
	ActorID string

	// subscriptions holds the organization IDs the client watches.
	subscriptions map[string]bool

	// closed is set once Send has been closed
	closed bool

	// mu protects subscriptions and closed
	mu sync.Mutex

	logger *slog.Logger
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, actorID string, logger *slog.Logger) *Client {
	return &Client{
		Hub:           hub,
		Conn:          conn,
		Send:          make(chan domain.Event, sendBufferSize),
		ActorID:       actorID,
		subscriptions: make(map[string]bool),
		logger:        logger.With("actor_id", actorID),
	}
}

// Serve registers a freshly upgraded connection, greets it and starts its
// I/O pumps.
func Serve(hub *Hub, conn *websocket.Conn, actorID string, pollInterval time.Duration, logger *slog.Logger) *Client {
	client := NewClient(hub, conn, actorID, logger)

	select {
	case hub.Register <- client:
	case <-hub.Done():
		_ = conn.Close()
		return client
	}

	client.enqueue(domain.Event{
		Type: MessageHello,
		Payload: HelloPayload{
			ActorID:        actorID,
			PollIntervalMs: pollInterval.Milliseconds(),
		},
		OccurredAt: time.Now().UTC(),
	})

	go client.WritePump()
	go client.ReadPump()
	return client
}

// CloseSend safely closes the Send channel exactly once
func (c *Client) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

// enqueue queues an outbound message. It returns false when the buffer is
// full; messages to a closed client are discarded.
func (c *Client) enqueue(event domain.Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.Send <- event:
		return true
	default:
		return false
	}
}

// AddSubscription records a subscription to an organization
func (c *Client) AddSubscription(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscriptions[orgID] = true
}

// RemoveSubscription forgets a subscription to an organization
func (c *Client) RemoveSubscription(orgID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subscriptions, orgID)
}

// HasSubscription checks if the client watches an organization
func (c *Client) HasSubscription(orgID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscriptions[orgID]
}

// GetSubscriptions returns a copy of all subscriptions
func (c *Client) GetSubscriptions() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs := make([]string, 0, len(c.subscriptions))
	for orgID := range c.subscriptions {
		subs = append(subs, orgID)
	}
	return subs
}

// ReadPump pumps messages from the websocket connection to the hub.
// This method runs in its own goroutine.
func (c *Client) ReadPump() {
	defer func() {
		select {
		case c.Hub.Unregister <- c:
		case <-c.Hub.Done():
		}
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", "error", err)
		return
	}

	c.Conn.SetPongHandler(func(string) error {
		if err := c.Conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.logger.Error("failed to set read deadline in pong handler", "error", err)
		}
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("websocket read error", "error", err)
			}
			break
		}

		c.handleIncomingMessage(message)
	}
}

// WritePump pumps messages from the hub to the websocket connection.
// This method runs in its own goroutine.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline", "error", err)
				return
			}

			if !ok {
				// The hub closed the channel. Send close message.
				if err := c.Conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
					c.logger.Debug("failed to send close message", "error", err)
				}
				return
			}

			if err := c.writeJSON(event); err != nil {
				c.logger.Error("failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			if err := c.Conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.logger.Error("failed to set write deadline for ping", "error", err)
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
				return
			}
		}
	}
}

// writeJSON writes a JSON message to the websocket connection
func (c *Client) writeJSON(event domain.Event) error {
	w, err := c.Conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}

	if err := json.NewEncoder(w).Encode(event); err != nil {
		_ = w.Close()
		return err
	}

	return w.Close()
}

// --- Incoming Message Handling ---

// ClientMessage is the structure for messages sent from the client.
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// SubscribePayload is the payload for subscribe/unsubscribe messages
type SubscribePayload struct {
	OrganizationID string `json:"organizationId"`
}

// handleIncomingMessage processes messages received from the client
func (c *Client) handleIncomingMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Warn("failed to unmarshal client message", "error", err)
		c.reply(MessageError, "malformed message")
		return
	}

	switch msg.Type {
	case ClientSubscribe:
		if orgID, ok := c.organizationFrom(msg.Payload); ok {
			c.Hub.Subscribe(c, orgID)
			c.reply(MessageSubscribed, SubscribePayload{OrganizationID: orgID})
		}

	case ClientUnsubscribe:
		if orgID, ok := c.organizationFrom(msg.Payload); ok {
			c.Hub.Unsubscribe(c, orgID)
			c.reply(MessageUnsubscribed, SubscribePayload{OrganizationID: orgID})
		}

	case ClientPing:
		c.reply(MessagePong, nil)

	default:
		c.logger.Debug("received unknown message type", "type", msg.Type)
		c.reply(MessageError, "unknown message type")
	}
}

func (c *Client) organizationFrom(payload json.RawMessage) (string, bool) {
	var p SubscribePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.logger.Warn("failed to unmarshal subscribe payload", "error", err)
		c.reply(MessageError, "malformed subscription")
		return "", false
	}

	orgID := strings.TrimSpace(p.OrganizationID)
	if orgID == "" || len(orgID) > domain.MaxIdentifierLength {
		c.logger.Warn("invalid organization ID in subscription", "org_id", p.OrganizationID)
		c.reply(MessageError, "organizationId is required")
		return "", false
	}
	return orgID, true
}

func (c *Client) reply(msgType domain.EventType, payload interface{}) {
	if !c.enqueue(domain.Event{Type: msgType, Payload: payload, OccurredAt: time.Now().UTC()}) {
		c.logger.Debug("send buffer full, dropping reply", "type", msgType)
	}
}
