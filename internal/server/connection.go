package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/protocol"
)

// Connection represents a WebSocket connection to a client
type Connection struct {
	conn          *websocket.Conn
	send          chan []byte
	participantID string
	server        *Server
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	closeOnce     sync.Once
}

var _ dispatch.Client = (*Connection)(nil)

// NewConnection creates a new connection wrapper
func NewConnection(conn *websocket.Conn, server *Server, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())

	return &Connection{
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		server: server,
		logger: logger.WithPrefix("conn"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins handling the connection
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Done is closed once the connection is shut down
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close closes the connection
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		close(c.send)
		err = c.conn.Close()
	})
	return err
}

// ParticipantID returns the participant bound to this connection, if any
func (c *Connection) ParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

// Bind associates this connection with a participant so that events for
// that participant are routed here.
func (c *Connection) Bind(participantID string) {
	c.mu.Lock()
	c.participantID = participantID
	c.mu.Unlock()
	c.server.bind(participantID, c)
}

// Unbind drops the participant association
func (c *Connection) Unbind() {
	c.mu.Lock()
	id := c.participantID
	c.participantID = ""
	c.mu.Unlock()
	if id != "" {
		c.server.unbind(id, c)
	}
}

// Send encodes an event and queues it for the client
func (c *Connection) Send(ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error("Failed to encode event", "type", ev.EventType(), "error", err)
		return
	}
	_ = c.SendRaw(data) // dropped events are logged by SendRaw
}

// SendRaw queues an encoded message. It never blocks: a client that cannot
// keep up is disconnected.
func (c *Connection) SendRaw(data []byte) error {
	defer func() {
		if r := recover(); r != nil {
			// Channel was closed, this is expected during shutdown
			c.logger.Debug("Attempted to send message on closed connection", "error", r)
		}
	}()

	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("Connection send buffer full, closing connection", "participant", c.ParticipantID())
		_ = c.Close() // Ignore close errors
		return ErrConnectionClosed
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBufferSize = 256
)

var (
	ErrConnectionClosed = errors.New("connection closed")
)

// readPump feeds client messages to the dispatcher one at a time
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		c.logger.Debug("Received message", "participant", c.ParticipantID(), "bytes", len(data))
		c.server.dispatcher.Handle(c, data)
	}
}

// writePump handles outgoing messages to the client
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
