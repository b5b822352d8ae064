package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openbid/auctiond/internal/auction/events"
)

// Role identifies what a websocket client may do. Bidders place bids,
// control drives the auction, display is public read-only.
type Role string

const (
	RoleBidder  Role = "bidder"
	RoleControl Role = "control"
	RoleDisplay Role = "display"
)

// Hub manages websocket connections across the three client roles and fans
// auction events out to them.
type Hub struct {
	mu    sync.RWMutex
	conns map[*Connection]bool

	upgrader websocket.Upgrader
	config   ConnectionConfig

	broadcastCh chan outboundMessage

	// onMessage handles a parsed inbound client frame.
	onMessage func(ctx context.Context, conn *Connection, data []byte)
	// onDisconnect runs after a connection unregisters.
	onDisconnect func(conn *Connection)
}

// Connection represents one websocket client.
type Connection struct {
	ID      string
	Role    Role
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *Hub

	ConnectedAt time.Time
	LastPing    time.Time

	mu            sync.Mutex
	authenticated bool
	bidderID      uuid.UUID
	bidderName    string
}

// Authenticated reports whether the connection has passed auth.
func (c *Connection) Authenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticated
}

// BidderID returns the authenticated bidder id, or uuid.Nil.
func (c *Connection) BidderID() uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bidderID
}

// BidderName returns the authenticated bidder's display name.
func (c *Connection) BidderName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bidderName
}

func (c *Connection) setAuthenticated(id uuid.UUID, name string) {
	c.mu.Lock()
	c.authenticated = true
	c.bidderID = id
	c.bidderName = name
	c.mu.Unlock()
}

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// outboundMessage is a queued fan-out. A non-empty role restricts delivery
// to that role; a non-nil target restricts delivery to one connection.
type outboundMessage struct {
	event  events.Event
	role   Role
	target *Connection
}

// NewHub creates a websocket hub.
func NewHub(config ConnectionConfig) *Hub {
	return &Hub{
		conns: make(map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		broadcastCh: make(chan outboundMessage, 1000),
	}
}

// Start begins processing broadcast messages.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("gateway hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("gateway hub shutting down")
			return
		case message := <-h.broadcastCh:
			h.handleBroadcast(message)
		}
	}
}

// Upgrade upgrades an HTTP request to a websocket connection for the given
// role and starts its pumps.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request, role Role) (*Connection, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Role:        role,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     h,
		ConnectedAt: time.Now(),
		LastPing:    time.Now(),
	}

	h.register(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("role", string(role)).
		Msg("websocket connection established")

	return connection, nil
}

func (h *Hub) register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[conn] = true
}

func (h *Hub) unregister(conn *Connection) {
	h.mu.Lock()
	_, exists := h.conns[conn]
	if exists {
		delete(h.conns, conn)
		close(conn.Send)
	}
	h.mu.Unlock()

	if exists {
		log.Info().
			Str("connection_id", conn.ID).
			Str("role", string(conn.Role)).
			Msg("connection unregistered")
		if h.onDisconnect != nil {
			h.onDisconnect(conn)
		}
	}
}

// Broadcast sends an event to every connected client, all roles.
func (h *Hub) Broadcast(evt events.Event) {
	h.enqueue(outboundMessage{event: evt})
}

// BroadcastControl sends an event to control connections only.
func (h *Hub) BroadcastControl(evt events.Event) {
	h.enqueue(outboundMessage{event: evt, role: RoleControl})
}

// SendTo sends an event to a single connection, for auth results and
// rejection notices that must not reach anyone else.
func (h *Hub) SendTo(conn *Connection, evt events.Event) {
	h.enqueue(outboundMessage{event: evt, target: conn})
}

func (h *Hub) enqueue(message outboundMessage) {
	select {
	case h.broadcastCh <- message:
	default:
		log.Warn().Str("event_type", string(message.event.Type)).Msg("broadcast channel full, dropping message")
	}
}

func (h *Hub) handleBroadcast(message outboundMessage) {
	h.mu.RLock()
	var targets []*Connection
	for conn := range h.conns {
		if message.target != nil && conn != message.target {
			continue
		}
		if message.role != "" && conn.Role != message.role {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	data, err := json.Marshal(message.event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	for _, conn := range targets {
		select {
		case conn.Send <- data:
		default:
			// Connection is slow or dead, close it.
			log.Warn().
				Str("connection_id", conn.ID).
				Str("role", string(conn.Role)).
				Msg("connection send buffer full, closing connection")
			h.unregister(conn)
			conn.Conn.Close()
		}
	}
}

// Stats returns per-role connection counts.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := map[string]int{"total": len(h.conns)}
	for conn := range h.conns {
		stats[string(conn.Role)]++
	}
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
			c.LastPing = time.Now()
		}
	}
}

func (c *Connection) readPump() {
	// The upgrade request's context dies with the HTTP handler; commands
	// run against the background context instead.
	ctx := context.Background()

	defer func() {
		c.Manager.unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = time.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		if c.Manager.onMessage != nil {
			c.Manager.onMessage(ctx, c, message)
		}
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}
