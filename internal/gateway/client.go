package gateway

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/eventhost/internal/logging"
	"github.com/soyeahso/eventhost/internal/plugin"
)

// writeWait bounds one frame write so a stalled watcher cannot hold up the
// outcome fan-out to everyone else.
const writeWait = 10 * time.Second

// Client is an authenticated WebSocket connection. Writes are serialized;
// reads happen only on the connection's own loop.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Socket      *websocket.Conn
	AuthResult  AuthResult
	ConnectedAt time.Time

	mu       sync.Mutex
	closed   bool
	outcomes atomic.Uint64
}

// NewClient wraps an upgraded connection that passed the handshake.
func NewClient(conn *websocket.Conn, info ClientInfo, authResult AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Socket:      conn,
		AuthResult:  authResult,
		ConnectedAt: time.Now(),
	}
}

// Send writes one frame, failing with ErrClientClosed after Close.
func (c *Client) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteJSON(frame)
}

// Respond sends a success response for the given request ID.
func (c *Client) Respond(reqID string, payload any) error {
	f, err := NewResponse(reqID, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends an error response for the given request ID.
func (c *Client) RespondError(reqID string, errShape ErrorShape) error {
	return c.Send(NewErrorResponse(reqID, errShape))
}

// ReadFrame reads the next frame from the WebSocket.
func (c *Client) ReadFrame() (Frame, error) {
	var f Frame
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return f, err
	}
	err = json.Unmarshal(msg, &f)
	return f, err
}

// Outcomes returns how many outcome frames this client was sent.
func (c *Client) Outcomes() uint64 { return c.outcomes.Load() }

// Close closes the connection once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry tracks connected watchers and fans dispatch outcomes out to
// them. Outcome frames carry a registry-wide sequence number.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	seq     atomic.Int64
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

// Remove unregisters a client. Unknown IDs are ignored.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	_, ok := r.clients[connID]
	delete(r.clients, connID)
	r.mu.Unlock()
	if ok {
		r.log.Info().Str("connId", connID).Msg("client disconnected")
	}
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

func (r *ClientRegistry) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		out = append(out, c)
	}
	return out
}

// PublishOutcome sends an event.outcome frame to every client and returns
// how many received it. A client whose write fails is dropped and closed.
func (r *ClientRegistry) PublishOutcome(out plugin.Outcome) int {
	f, err := NewEvent(EventOutcome, out, r.seq.Add(1))
	if err != nil {
		r.log.Warn().Err(err).Str("eventId", out.EventID).Msg("outcome encode failed")
		return 0
	}

	sent := 0
	for _, c := range r.snapshot() {
		if err := c.Send(f); err != nil {
			if !errors.Is(err, ErrClientClosed) {
				r.log.Warn().Err(err).Str("connId", c.ConnID).Msg("dropping client after failed write")
			}
			r.Remove(c.ConnID)
			c.Close()
			continue
		}
		c.outcomes.Add(1)
		sent++
	}
	return sent
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()
	for _, c := range clients {
		c.Close()
	}
}
