// internal/transport/hub.go
package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/voicepilot/api/schemas"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum message size allowed from peer.
	maxMessageSize = 512 * 1024
	// Outbound queue depth per client.
	sendBuffer = 256
)

// Handler processes one raw inbound message. send reaches the originating
// client only.
type Handler interface {
	HandleMessage(ctx context.Context, raw []byte, send schemas.Sender) error
}

// Client is a middleman between the websocket connection and the hub.
type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
	// Buffered channel of outbound messages.
	send chan []byte
}

// ID returns the connection identifier used in logs.
func (c *Client) ID() string { return c.id }

// queue enqueues an encoded frame. It reports false when the client is gone
// or its buffer is full.
func (c *Client) queue(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// closeSend closes the outbound channel once; writePump then ends the connection.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Send encodes msg and queues it for this client. Messages for a departed
// client are dropped.
func (c *Client) Send(msg schemas.Message) {
	frame, err := schemas.EncodeMessage(msg)
	if err != nil {
		c.hub.logger.Error("Failed to encode outbound message", zap.String("client_id", c.id), zap.Error(err))
		return
	}
	if !c.queue(frame) {
		c.hub.logger.Warn("Dropped outbound message", zap.String("client_id", c.id), zap.String("type", string(msg.MessageType())))
	}
}

// readPump pumps messages from the websocket connection to the handler.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket client read error", zap.String("client_id", c.id), zap.Error(err))
			}
			break
		}
		c.hub.dispatch(c, message)
	}
}

// writePump pumps messages from the hub to the websocket connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// One JSON document per frame; clients parse each frame on its own.
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Hub tracks connected clients and routes their messages to a Handler.
type Hub struct {
	handler  Handler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex

	// ctx is the hub's lifetime; handlers observe it.
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	inflight sync.WaitGroup
}

// NewHub creates a hub. Origins are checked against allowedOrigins when the
// list is non-empty.
func NewHub(handler Handler, logger *zap.Logger, allowedOrigins []string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		handler:    handler,
		logger:     logger.Named("ws_hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Run serves registrations and broadcasts until ctx is done. On exit every
// client is closed and in-flight handlers are awaited.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("WebSocket hub started.")
	defer h.logger.Info("WebSocket hub stopped.")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.cancel()
			h.mu.Lock()
			for client := range h.clients {
				client.closeSend()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			h.inflight.Wait()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.logger.Info("New WebSocket client connected.", zap.String("client_id", client.id))
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.closeSend()
				h.logger.Info("WebSocket client disconnected.", zap.String("client_id", client.id))
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.queue(message) {
					client.closeSend()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// leave unregisters c unless the hub has already stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected client. It is a schemas.Sender.
func (h *Hub) Broadcast(msg schemas.Message) {
	frame, err := schemas.EncodeMessage(msg)
	if err != nil {
		h.logger.Error("Failed to encode broadcast message", zap.Error(err))
		return
	}
	select {
	case h.broadcast <- frame:
	case <-h.done:
	}
}

// dispatch hands one inbound message to the handler. Voice commands can wait
// on a confirmation that arrives on this same connection, so they run on
// their own goroutine while the read loop keeps going.
func (h *Hub) dispatch(c *Client, raw []byte) {
	msg, err := schemas.DecodeInbound(raw)
	if err != nil {
		h.logger.Warn("Ignoring malformed client message", zap.String("client_id", c.id), zap.Error(err))
		return
	}
	h.logger.Debug("Received message from client", zap.String("client_id", c.id), zap.String("type", string(msg.Type)))

	handle := func() {
		if err := h.handler.HandleMessage(h.ctx, raw, c.Send); err != nil {
			h.logger.Warn("Failed to handle client message", zap.String("client_id", c.id), zap.String("type", string(msg.Type)), zap.Error(err))
		}
	}
	if msg.Type != schemas.MsgVoiceCommand {
		handle()
		return
	}

	h.mu.RLock()
	if h.ctx.Err() != nil {
		h.mu.RUnlock()
		return
	}
	h.inflight.Add(1)
	h.mu.RUnlock()
	go func() {
		defer h.inflight.Done()
		handle()
	}()
}

// ServeWS upgrades the request and starts the client's pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade websocket", zap.Error(err))
		return
	}
	client := &Client{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	// Allow collection of memory referenced by the caller by doing all work in
	// new goroutines.
	go client.writePump()
	go client.readPump()
}
