// Package testing drives a real server with terminal clients in test mode.
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/require"

	"github.com/iKenshu/quodpot-game/internal/client"
	"github.com/iKenshu/quodpot-game/internal/dispatch"
	"github.com/iKenshu/quodpot-game/internal/duel"
	"github.com/iKenshu/quodpot-game/internal/matchmaking"
	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/race"
	"github.com/iKenshu/quodpot-game/internal/server"
	"github.com/iKenshu/quodpot-game/internal/tui"
)

// Test constants
const (
	EventTimeout       = 5 * time.Second
	ServerReadyTimeout = 5 * time.Second
	PollInterval       = 5 * time.Millisecond
)

// TestServer is a running server on a free local port, driven by a mock clock
type TestServer struct {
	URL    string
	Clock  *quartz.Mock
	Config *server.ServerConfig
	Duels  *duel.Manager
	Races  *race.Manager

	cancel context.CancelFunc
	done   chan error
}

// fixedWords hands every race the same words
type fixedWords []string

func (w fixedWords) SelectWords(count int) ([]string, error) {
	if count > len(w) {
		return nil, fmt.Errorf("want %d words, have %d", count, len(w))
	}
	return append([]string(nil), w[:count]...), nil
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.ErrorLevel})
}

func findFreePort(t *testing.T) int {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	_ = listener.Close()
	return port
}

// serverOptions adjusts the stack startTestServer builds
type serverOptions struct {
	words     []string
	configure func(*server.ServerConfig)
	opponent  duel.Strategy
	timeout   duel.Strategy
}

// startTestServer wires the full stack the way the server binary does, with
// the race words fixed.
func startTestServer(t *testing.T, opts serverOptions) *TestServer {
	t.Helper()

	cfg := server.DefaultServerConfig()
	cfg.Server.Address = "127.0.0.1"
	cfg.Server.Port = findFreePort(t)
	cfg.Server.LogLevel = "error" // Quiet logs during tests
	if opts.configure != nil {
		opts.configure(cfg)
	}
	require.NoError(t, cfg.Validate())

	logger := quietLogger()
	clock := quartz.NewMock(t)

	wsServer := server.NewServer(cfg.GetServerAddress(), logger)
	mm := matchmaking.New(clock, logger)
	duels := duel.NewManager(cfg.DuelConfig(), clock, wsServer, logger, cfg.Server.Seed)
	if opts.opponent != nil {
		duels.SetOpponentStrategy(opts.opponent)
	}
	if opts.timeout != nil {
		duels.SetTimeoutStrategy(opts.timeout)
	}
	races := race.NewManager(cfg.RaceConfig(), clock, wsServer, fixedWords(opts.words), logger)

	d, err := dispatch.New(cfg.DispatchConfig(), mm, duels, races, wsServer, logger)
	require.NoError(t, err)
	wsServer.SetDispatcher(d)
	wsServer.SetQueueMembers(mm.Queued)

	ctx, cancel := context.WithCancel(context.Background())
	ts := &TestServer{
		URL:    fmt.Sprintf("http://%s", cfg.GetServerAddress()),
		Clock:  clock,
		Config: cfg,
		Duels:  duels,
		Races:  races,
		cancel: cancel,
		done:   make(chan error, 1),
	}
	go func() {
		ts.done <- wsServer.Run(ctx)
	}()
	t.Cleanup(ts.Stop)

	waitForServerReady(t, ts.URL, ServerReadyTimeout)
	return ts
}

// Stop shuts the server down and waits for it to exit
func (s *TestServer) Stop() {
	s.cancel()
	select {
	case <-s.done:
	case <-time.After(ServerReadyTimeout):
	}
}

// AdvanceWhenArmed waits until the next pending timer is d away, then fires
// it. Timers are armed by server goroutines, so advancing blindly could run
// ahead of them.
func (s *TestServer) AdvanceWhenArmed(t *testing.T, d time.Duration) {
	t.Helper()
	require.Eventually(t, func() bool {
		next, ok := s.Clock.Peek()
		return ok && next == d
	}, EventTimeout, PollInterval, "no timer armed %s ahead", d)

	ctx, cancel := context.WithTimeout(context.Background(), EventTimeout)
	defer cancel()
	s.Clock.Advance(d).MustWait(ctx)
}

func waitForServerReady(t *testing.T, serverURL string, timeout time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	require.NoError(t, server.WaitForHealthy(ctx, serverURL))
}

// lockedSender applies messages to a test-mode model one at a time, so the
// test goroutine can inspect it between events.
type lockedSender struct {
	mu    *sync.Mutex
	model *tui.TUIModel
}

func (s lockedSender) Send(msg tea.Msg) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tui.Direct{Model: s.model}.Send(msg)
}

// TestClient is a connected client whose events feed a test-mode TUI
type TestClient struct {
	t      *testing.T
	name   string
	client *client.Client

	mu     sync.Mutex
	tui    *tui.TUIModel
	events chan protocol.Event
}

func connectTestClient(t *testing.T, ts *TestServer, name, gameType string) *TestClient {
	t.Helper()
	logger := quietLogger()
	wsClient := client.NewClient(ts.URL, logger)

	ctx, cancel := context.WithTimeout(context.Background(), EventTimeout)
	defer cancel()
	require.NoError(t, wsClient.Connect(ctx), "Failed to connect test client")

	tc := &TestClient{
		t:      t,
		name:   name,
		client: wsClient,
		tui:    tui.NewTUIModelWithOptions(gameType, logger, true),
		events: make(chan protocol.Event, 256), // Large buffer to prevent blocking
	}

	// The model sees each event before the test does
	tui.SetupNetworkHandlers(wsClient, lockedSender{mu: &tc.mu, model: tc.tui})
	wsClient.AddEventHandler(client.AllEvents, func(ev protocol.Event) {
		select {
		case tc.events <- ev:
		default:
			// Buffer full, the test has stopped reading
		}
	})
	tui.StartCommandHandler(wsClient, wsClient.Done(), tc.tui)

	t.Cleanup(func() { _ = wsClient.Disconnect() })
	return tc
}

// Join sends the join request for the client's game
func (c *TestClient) Join(gameType, mode string) {
	c.t.Helper()
	require.NoError(c.t, c.client.Join(c.name, gameType, mode))
}

// Type submits input through the TUI as if the player had typed it
func (c *TestClient) Type(input string) {
	c.t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NoError(c.t, c.tui.InjectAction(input))
}

// Log returns the TUI log captured so far
func (c *TestClient) Log() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tui.GetCapturedLog()
}

// Sidebar returns the rendered sidebar
func (c *TestClient) Sidebar() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tui.GetSidebarContent()
}

// Phase returns the TUI phase
func (c *TestClient) Phase() tui.Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tui.Phase()
}

var errEventTimeout = errors.New("timed out waiting for event")

func (c *TestClient) next(timeout <-chan time.Time) (protocol.Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-timeout:
		return nil, errEventTimeout
	}
}

// awaitEvent skips events until one of type T arrives
func awaitEvent[T protocol.Event](c *TestClient) T {
	c.t.Helper()
	timeout := time.After(EventTimeout)
	for {
		ev, err := c.next(timeout)
		if err != nil {
			var zero T
			c.t.Fatalf("%s: no %T within %s", c.name, zero, EventTimeout)
		}
		if v, ok := ev.(T); ok {
			return v
		}
	}
}
