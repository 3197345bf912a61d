// Package client is the WebSocket client for the quodpot server.
package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/iKenshu/quodpot-game/internal/protocol"
)

// AllEvents registers a handler for every event type
const AllEvents protocol.MessageType = "*"

// Client represents a WebSocket client for the game server
type Client struct {
	serverURL     string
	conn          *websocket.Conn
	send          chan []byte
	receive       chan protocol.Event
	logger        *log.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	mu            sync.RWMutex
	connected     bool
	playerName    string
	participantID string
	sessionID     string
	closeOnce     sync.Once

	// Event handlers
	eventHandlers map[protocol.MessageType][]registeredHandler
	nextHandlerID int
}

// EventHandler handles one incoming event. Handlers run in arrival order on
// a single goroutine and must not block.
type EventHandler func(protocol.Event)

type registeredHandler struct {
	id int
	fn EventHandler
}

// NewClient creates a new WebSocket client
func NewClient(serverURL string, logger *log.Logger) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	return &Client{
		serverURL:     serverURL,
		send:          make(chan []byte, 256),
		receive:       make(chan protocol.Event, 256),
		logger:        logger.WithPrefix("client"),
		ctx:           ctx,
		cancel:        cancel,
		eventHandlers: make(map[protocol.MessageType][]registeredHandler),
	}
}

// WebSocketURL converts an http(s) or ws(s) server URL to the /ws endpoint
func WebSocketURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	u.Path = "/ws"
	return u.String(), nil
}

// Connect establishes a WebSocket connection to the server
func (c *Client) Connect(ctx context.Context) error {
	c.logger.Info("Connecting to server", "url", c.serverURL)

	wsURL, err := WebSocketURL(c.serverURL)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	go c.readPump()
	go c.writePump()
	go c.eventProcessor()

	c.logger.Info("Connected to server")
	return nil
}

// Disconnect closes the WebSocket connection
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		c.cancel()

		c.mu.Lock()
		defer c.mu.Unlock()

		if c.conn != nil {
			_ = c.conn.Close() // Ignore close errors during shutdown
			c.connected = false
		}

		c.logger.Info("Disconnected from server")
	})
	return nil
}

// Done is closed once the client is disconnected
func (c *Client) Done() <-chan struct{} {
	return c.ctx.Done()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Send queues an action for the server
func (c *Client) Send(a protocol.Action) error {
	data, err := protocol.EncodeAction(a)
	if err != nil {
		return err
	}

	select {
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return fmt.Errorf("send buffer full")
	}
}

// readPump handles incoming messages from the server
func (c *Client) readPump() {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
		_ = c.Disconnect()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Error("WebSocket error", "error", err)
			}
			return
		}

		ev, err := protocol.DecodeEvent(data)
		if err != nil {
			c.logger.Warn("Ignoring undecodable message", "error", err)
			continue
		}
		c.logger.Debug("Received message", "type", ev.EventType())

		select {
		case c.receive <- ev:
		case <-c.ctx.Done():
			return
		}
	}
}

// writePump handles outgoing messages to the server
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second) // Ping interval
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Error("Failed to write message", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
			_ = c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// eventProcessor processes incoming events and dispatches to handlers
func (c *Client) eventProcessor() {
	for {
		select {
		case ev := <-c.receive:
			c.handleEvent(ev)
		case <-c.ctx.Done():
			return
		}
	}
}

// handleEvent runs the handlers for the event's type, then the catch-all ones
func (c *Client) handleEvent(ev protocol.Event) {
	c.track(ev)

	c.mu.RLock()
	handlers := append([]registeredHandler(nil), c.eventHandlers[ev.EventType()]...)
	handlers = append(handlers, c.eventHandlers[AllEvents]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debug("No handler for message type", "type", ev.EventType())
	}
	for _, h := range handlers {
		h.fn(ev)
	}
}

// AddEventHandler adds an event handler for a specific message type and
// returns a function that removes it.
func (c *Client) AddEventHandler(messageType protocol.MessageType, handler EventHandler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextHandlerID++
	id := c.nextHandlerID
	c.eventHandlers[messageType] = append(c.eventHandlers[messageType], registeredHandler{id: id, fn: handler})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		handlers := c.eventHandlers[messageType]
		for i, h := range handlers {
			if h.id == id {
				c.eventHandlers[messageType] = append(handlers[:i:i], handlers[i+1:]...)
				return
			}
		}
	}
}

// track keeps the participant and session ids current
func (c *Client) track(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev := ev.(type) {
	case protocol.Joined:
		c.participantID = ev.ParticipantID
		c.sessionID = ev.SessionID
	case protocol.SessionStart:
		c.sessionID = ev.SessionID
	case protocol.DuelStart:
		c.sessionID = ev.SessionID
	}
}

// Join enters the queue of a game type. Mode only applies to duels.
func (c *Client) Join(playerName, gameType, mode string) error {
	c.mu.Lock()
	c.playerName = playerName
	c.mu.Unlock()

	return c.Send(protocol.Join{PlayerName: playerName, GameType: gameType, Mode: mode})
}

// Leave withdraws from the queue or the running session
func (c *Client) Leave() error {
	c.mu.Lock()
	c.participantID = ""
	c.sessionID = ""
	c.mu.Unlock()

	return c.Send(protocol.Leave{})
}

// Guess submits a letter in a race
func (c *Client) Guess(letter string) error {
	return c.Send(protocol.Guess{Letter: letter})
}

// Cast submits a spell in a duel
func (c *Client) Cast(spell string) error {
	return c.Send(protocol.CastAction{Action: spell})
}

// GetPlayerName returns the player name
func (c *Client) GetPlayerName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.playerName
}

// ParticipantID returns the id assigned by the server after joining
func (c *Client) ParticipantID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.participantID
}

// SessionID returns the session the client plays in, if any
func (c *Client) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// WaitForMessage waits for a specific message type with timeout
func (c *Client) WaitForMessage(messageType protocol.MessageType, timeout time.Duration) (protocol.Event, error) {
	responseChan := make(chan protocol.Event, 1)

	remove := c.AddEventHandler(messageType, func(ev protocol.Event) {
		select {
		case responseChan <- ev:
		default:
		}
	})
	defer remove()

	// Wait for response or timeout
	select {
	case ev := <-responseChan:
		return ev, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("timeout waiting for %s", messageType)
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}
