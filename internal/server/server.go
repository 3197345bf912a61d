// Package server exposes the session broker over WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
)

// Server represents the WebSocket server. It is also the session.Transport
// the state machines publish through.
type Server struct {
	addr         string
	upgrader     websocket.Upgrader
	connections  map[*Connection]bool
	participants map[string]*Connection
	register     chan *Connection
	unregister   chan *Connection
	logger       *log.Logger
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
	dispatcher   *dispatch.Dispatcher
	queueMembers func(gameType string) []string
}

var _ session.Transport = (*Server)(nil)

// NewServer creates a new WebSocket server
func NewServer(addr string, logger *log.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Terminal and browser clients connect from anywhere
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections:  make(map[*Connection]bool),
		participants: make(map[string]*Connection),
		register:     make(chan *Connection),
		unregister:   make(chan *Connection),
		logger:       logger.WithPrefix("server"),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetDispatcher sets the dispatcher every connection feeds
func (s *Server) SetDispatcher(d *dispatch.Dispatcher) {
	s.dispatcher = d
}

// SetQueueMembers sets how queue broadcasts find their recipients
func (s *Server) SetQueueMembers(fn func(gameType string) []string) {
	s.queueMembers = fn
}

// Handler returns the HTTP routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/stats", s.handleStats)
	return mux
}

// Run serves until the context is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if s.dispatcher == nil {
		return errors.New("server: no dispatcher configured")
	}
	go s.run()

	httpServer := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting WebSocket server", "addr", s.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		_ = s.Stop()
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := httpServer.Shutdown(shutdownCtx)
	_ = s.Stop()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Start runs the connection loop without an HTTP listener, for callers that
// mount Handler themselves.
func (s *Server) Start() {
	go s.run()
}

// Stop stops the WebSocket server
func (s *Server) Stop() error {
	s.cancel()

	// Close all connections
	s.mu.Lock()
	conns := make([]*Connection, 0, len(s.connections))
	for conn := range s.connections {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	return nil
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			_, ok := s.connections[conn]
			delete(s.connections, conn)
			total := len(s.connections)
			s.mu.Unlock()

			if ok {
				// Leave publishes through this server, so it must run unlocked
				if id := conn.ParticipantID(); id != "" {
					s.logger.Info("Cleaning up disconnected participant", "participant", id)
				}
				s.dispatcher.Leave(conn)
				_ = conn.Close() // Ignore close errors during unregistration
			}
			s.logger.Info("Client disconnected", "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// handleWebSocket handles WebSocket upgrade requests
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, s, s.logger)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = client.Close()
		return
	}
	client.Start()

	// Connection cleanup is handled by the connection itself
	go func() {
		<-client.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}

// StatsResponse is served on /stats
type StatsResponse struct {
	Connections int `json:"connections"`
	dispatch.Stats
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	resp := StatsResponse{Connections: len(s.connections)}
	s.mu.RUnlock()
	resp.Stats = s.dispatcher.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Error("Failed to write stats", "error", err)
	}
}

func (s *Server) bind(participantID string, c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.participants[participantID] = c
}

func (s *Server) unbind(participantID string, c *Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.participants[participantID] == c {
		delete(s.participants, participantID)
	}
}

func (s *Server) connectionFor(participantID string) *Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participants[participantID]
}

// SendTo sends an event to one participant. Unknown participants are
// skipped; the send never blocks.
func (s *Server) SendTo(participantID string, ev protocol.Event) {
	data, err := protocol.Encode(ev)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", ev.EventType(), "error", err)
		return
	}
	s.sendRaw(participantID, data)
}

func (s *Server) sendRaw(participantID string, data []byte) bool {
	conn := s.connectionFor(participantID)
	if conn == nil {
		return false
	}
	if err := conn.SendRaw(data); err != nil {
		s.logger.Debug("Dropped event", "participant", participantID, "error", err)
		return false
	}
	return true
}

// BroadcastToSession sends an event to every connected person in a session
func (s *Server) BroadcastToSession(sess session.Session, ev protocol.Event) {
	s.BroadcastToSessionExcept(sess, ev, "")
}

// BroadcastToSessionExcept is BroadcastToSession skipping one participant
func (s *Server) BroadcastToSessionExcept(sess session.Session, ev protocol.Event, excludedID string) {
	var ids []string
	for _, p := range sess.ConnectedParticipants() {
		if p.ID != excludedID && !p.Automated() {
			ids = append(ids, p.ID)
		}
	}
	s.broadcast(ids, ev)
	s.logger.Debug("Broadcasted event to session", "session", sess.ID(), "type", ev.EventType(), "recipients", len(ids))
}

// BroadcastToQueue sends an event to everyone waiting for a game type
func (s *Server) BroadcastToQueue(ev protocol.Event, gameType string) {
	if s.queueMembers == nil {
		return
	}
	s.broadcast(s.queueMembers(gameType), ev)
}

func (s *Server) broadcast(ids []string, ev protocol.Event) {
	if len(ids) == 0 {
		return
	}
	data, err := protocol.Encode(ev)
	if err != nil {
		s.logger.Error("Failed to encode event", "type", ev.EventType(), "error", err)
		return
	}
	for _, id := range ids {
		s.sendRaw(id, data)
	}
}

// ConnectionCount returns the number of open connections
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}
