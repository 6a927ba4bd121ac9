package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/FocuswithJustin/LeadSheetML/internal/convert"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 64
)

// Message is sent to websocket clients. Type is "result" (a reply to the
// client's own request), "preview" (a broadcast after a watched file
// changed) or "error".
type Message struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Result    *convert.Result `json:"result,omitempty"`
	Error     *APIError       `json:"error,omitempty"`
	Timestamp string          `json:"timestamp"`
}

// wsRequest is a render request from a websocket client. ID is echoed back
// so clients can match replies to requests.
type wsRequest struct {
	ID string `json:"id,omitempty"`
	convert.Request
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

type outbound struct {
	client *Client
	data   []byte
}

// Hub tracks websocket clients and fans messages out to them. All writes to
// a client's send channel happen on the Run goroutine.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan outbound
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	metrics    *metrics
	mu         sync.RWMutex
}

// NewHub creates a hub. m may be nil.
func NewHub(m *metrics) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		direct:     make(chan outbound, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		metrics:    m,
	}
}

// Run handles registration and delivery until ctx is cancelled, then closes
// every client. A hub cannot be restarted.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		h.mu.Lock()
		for client := range h.clients {
			h.drop(client)
		}
		h.mu.Unlock()
		close(h.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.setGauge(n)
			logging.WebSocketEvent("client_connected", n)

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.drop(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.setGauge(n)
			logging.WebSocketEvent("client_disconnected", n)

		case out := <-h.direct:
			h.mu.Lock()
			if h.clients[out.client] {
				h.deliver(out.client, out.data)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				h.deliver(client, message)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.setGauge(n)
		}
	}
}

// deliver queues data for client, dropping clients that fall behind.
// Callers hold h.mu.
func (h *Hub) deliver(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		h.drop(client)
		logging.WebSocketEvent("client_dropped", len(h.clients), "reason", "send buffer full")
	}
}

// drop removes client. Callers hold h.mu.
func (h *Hub) drop(client *Client) {
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) setGauge(n int) {
	if h.metrics != nil {
		h.metrics.wsClients.Set(float64(n))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every connected client. Messages are dropped when
// the hub is not running or its queue is full.
func (h *Hub) Broadcast(msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return
	}

	select {
	case h.broadcast <- data:
	default:
		logging.Warn("broadcast channel full, dropping message", "type", msg.Type)
	}
}

func (h *Hub) reply(c *Client, msg Message) {
	data, err := encodeMessage(msg)
	if err != nil {
		logging.Error("failed to marshal websocket message", "error", err)
		return
	}
	select {
	case h.direct <- outbound{client: c, data: data}:
	case <-h.done:
	}
}

func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func encodeMessage(msg Message) ([]byte, error) {
	if msg.Timestamp == "" {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	}
	return json.Marshal(msg)
}

// Publish renders req and broadcasts the result as a preview. Render errors
// are broadcast too and returned.
func (s *Server) Publish(req convert.Request) error {
	res, err := s.conv.Convert(req)
	if err != nil {
		_, apiErr := classify(err)
		s.metrics.observeFailure(apiErr.Code)
		s.hub.Broadcast(Message{Type: "error", Name: req.Name, Error: apiErr})
		return err
	}
	s.metrics.observeRender("watch", res.Format, res.CacheHit, res.Duration)
	s.hub.Broadcast(Message{Type: "preview", Name: req.Name, Result: res})
	return nil
}

// readPump renders each text message and replies on the same connection.
func (c *Client) readPump(s *Server) {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(s.cfg.MaxSourceBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logging.Error("websocket unexpected close", "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))

		if messageType != websocket.TextMessage {
			c.hub.reply(c, Message{Type: "error", Error: &APIError{Code: "INVALID_REQUEST", Message: "expected a text message"}})
			continue
		}
		c.hub.reply(c, s.renderMessage(data))
	}
}

func (s *Server) renderMessage(data []byte) Message {
	var req wsRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.metrics.observeFailure("INVALID_REQUEST")
		return Message{Type: "error", Error: &APIError{Code: "INVALID_REQUEST", Message: "Invalid message: " + err.Error()}}
	}
	if req.Name == "" {
		req.Name = "ws"
	}

	res, err := s.conv.Convert(req.Request)
	if err != nil {
		_, apiErr := classify(err)
		s.metrics.observeFailure(apiErr.Code)
		return Message{Type: "error", ID: req.ID, Name: req.Name, Error: apiErr}
	}
	s.metrics.observeRender("ws", res.Format, res.CacheHit, res.Duration)
	return Message{Type: "result", ID: req.ID, Name: req.Name, Result: res}
}

// writePump writes one message per frame and keeps the connection alive
// with pings.
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
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
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

// handleWebSocket upgrades the connection after checking its origin against
// the configured allow list.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if !originAllowed(s.cfg.AllowedOrigins, origin) {
				logging.Warn("websocket origin rejected", "origin", origin)
				return false
			}
			return true
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Error("websocket upgrade failed", "error", err)
		return
	}

	client := &Client{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !s.hub.join(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump(s)
}
