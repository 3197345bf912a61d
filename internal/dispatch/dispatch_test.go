package dispatch

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iKenshu/quodpot-game/internal/duel"
	"github.com/iKenshu/quodpot-game/internal/matchmaking"
	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/race"
	"github.com/iKenshu/quodpot-game/internal/session"
	"github.com/iKenshu/quodpot-game/internal/session/sessiontest"
)

type testWords []string

func (w testWords) SelectWords(count int) ([]string, error) {
	return append([]string(nil), w[:count]...), nil
}

type fakeClient struct {
	mu     sync.Mutex
	id     string
	events []protocol.Event
}

func (c *fakeClient) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

func (c *fakeClient) Bind(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = id
}

func (c *fakeClient) Unbind() { c.Bind("") }

func (c *fakeClient) Send(ev protocol.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *fakeClient) last() protocol.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return nil
	}
	return c.events[len(c.events)-1]
}

func (c *fakeClient) lastError(t *testing.T) string {
	t.Helper()
	ev, ok := c.last().(protocol.Error)
	require.True(t, ok, "expected an error event, got %#v", c.last())
	return ev.Message
}

type harness struct {
	t     *testing.T
	clock *quartz.Mock
	rec   *sessiontest.Recorder
	mm    *matchmaking.Matchmaker
	duels *duel.Manager
	races *race.Manager
	d     *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := quartz.NewMock(t)
	rec := sessiontest.NewRecorder()
	logger := log.NewWithOptions(io.Discard, log.Options{})

	raceCfg := race.DefaultConfig()
	raceCfg.Stages = 2
	raceCfg.MaxPlayers = 3

	mm := matchmaking.New(clock, logger)
	rec.QueueMembers = mm.Queued
	duels := duel.NewManager(duel.DefaultConfig(), clock, rec, logger, 7)
	races := race.NewManager(raceCfg, clock, rec, testWords{"SOL", "MAR"}, logger)

	d, err := New(Config{Race: raceCfg, DuelStartTimeout: time.Minute}, mm, duels, races, rec, logger)
	require.NoError(t, err)

	return &harness{t: t, clock: clock, rec: rec, mm: mm, duels: duels, races: races, d: d}
}

func (h *harness) send(c *fakeClient, a protocol.Action) {
	h.t.Helper()
	data, err := protocol.EncodeAction(a)
	require.NoError(h.t, err)
	h.d.Handle(c, data)
}

func (h *harness) join(name, gameType, mode string) (*fakeClient, protocol.Joined) {
	h.t.Helper()
	c := &fakeClient{}
	h.send(c, protocol.Join{PlayerName: name, GameType: gameType, Mode: mode})
	joined, ok := c.last().(protocol.Joined)
	require.True(h.t, ok, "expected joined, got %#v", c.last())
	return c, joined
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.clock.Advance(d).MustWait(ctx)
}

func TestNewRegistersBothGameTypes(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	assert.True(t, h.mm.Registered(race.GameType))
	assert.True(t, h.mm.Registered(duel.GameType))
}

func TestHandleRejectsBadMessages(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &fakeClient{}

	h.d.Handle(c, []byte(`not json`))
	assert.Contains(t, c.lastError(t), "malformed")

	h.d.Handle(c, []byte(`{"type":"rematch"}`))
	assert.Contains(t, c.lastError(t), "rematch")
}

func TestJoinValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	tests := []struct {
		name string
		join protocol.Join
		want string
	}{
		{"empty name", protocol.Join{PlayerName: "   "}, "name must be"},
		{"long name", protocol.Join{PlayerName: strings.Repeat("x", MaxNameLength+1)}, "name must be"},
		{"unknown game", protocol.Join{PlayerName: "Ana", GameType: "chess"}, "unknown game type"},
		{"unknown mode", protocol.Join{PlayerName: "Ana", GameType: duel.GameType, Mode: "coop"}, "unknown mode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeClient{}
			h.send(c, tt.join)
			assert.Contains(t, c.lastError(t), tt.want)
			assert.Empty(t, c.ParticipantID())
		})
	}
	assert.Zero(t, h.mm.QueueSize(race.GameType))
}

func TestJoinTwiceIsRejected(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	c, joined := h.join("Ana", "", "")
	h.send(c, protocol.Join{PlayerName: "Ana"})

	assert.Contains(t, c.lastError(t), "already joined")
	assert.Equal(t, joined.ParticipantID, c.ParticipantID())
	assert.Equal(t, 1, h.mm.QueueSize(race.GameType))
}

func TestJoinDefaultsToRaceAndWaits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	c, joined := h.join("  Ana ", "", "")
	assert.Equal(t, "Ana", joined.Name)
	assert.Empty(t, joined.SessionID)
	assert.Equal(t, joined.ParticipantID, c.ParticipantID())

	gameType, ok := h.mm.GameTypeOf(joined.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, race.GameType, gameType)

	waiting, ok := sessiontest.Last[protocol.Waiting](h.rec, joined.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, 1, waiting.QueueSize)
}

func TestRaceStartsAfterTimeout(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, a := h.join("Ana", race.GameType, "")
	_, b := h.join("Luis", race.GameType, "")

	waiting, _ := sessiontest.Last[protocol.Waiting](h.rec, a.ParticipantID)
	assert.Equal(t, 2, waiting.QueueSize)

	h.advance(race.DefaultConfig().StartTimeout)

	sa, ok := h.mm.SessionOf(a.ParticipantID)
	require.True(t, ok)
	sb, _ := h.mm.SessionOf(b.ParticipantID)
	assert.Equal(t, sa, sb)

	start, ok := sessiontest.Last[protocol.SessionStart](h.rec, b.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, sa, start.SessionID)

	// late joiner goes straight in
	_, late := h.join("Eva", race.GameType, "")
	assert.Equal(t, sa, late.SessionID)
}

func TestRaceGuessRouting(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ca, a := h.join("Ana", race.GameType, "")
	h.send(ca, protocol.Guess{Letter: "s"})
	assert.Contains(t, ca.lastError(t), "not started")

	cb, _ := h.join("Luis", race.GameType, "")
	h.join("Eva", race.GameType, "")

	h.send(ca, protocol.Guess{Letter: "s"})
	correct, ok := sessiontest.Last[protocol.CorrectGuess](h.rec, a.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, "S _ _", correct.Revealed)

	h.send(cb, protocol.Guess{Letter: "12"})
	assert.Contains(t, cb.lastError(t), race.ErrInvalidLetter.Error())

	h.send(ca, protocol.CastAction{Action: "ignis"})
	assert.Contains(t, ca.lastError(t), "not valid in race")
}

func TestActionsBeforeJoin(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	c := &fakeClient{}

	h.send(c, protocol.Guess{Letter: "a"})
	assert.Contains(t, c.lastError(t), "join a game first")

	h.send(c, protocol.CastAction{Action: "aqua"})
	assert.Contains(t, c.lastError(t), "join a game first")

	h.send(c, protocol.Leave{})
	assert.Len(t, c.events, 2)
}

func TestDuelPVPPairsTwo(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ca, a := h.join("Ana", duel.GameType, "")
	assert.Empty(t, a.SessionID)

	cb, b := h.join("Beto", duel.GameType, "pvp")
	require.NotEmpty(t, b.SessionID)

	sa, _ := h.mm.SessionOf(a.ParticipantID)
	assert.Equal(t, b.SessionID, sa)

	start, ok := sessiontest.Last[protocol.DuelStart](h.rec, a.ParticipantID)
	require.True(t, ok)
	assert.Equal(t, "Beto", start.OpponentName)

	h.send(ca, protocol.CastAction{Action: "ignis"})
	acted, ok := sessiontest.Last[protocol.OpponentActed](h.rec, b.ParticipantID)
	require.True(t, ok)
	assert.NotEmpty(t, acted.Message)

	h.send(ca, protocol.CastAction{Action: "aqua"})
	assert.Contains(t, ca.lastError(t), duel.ErrDuplicateCast.Error())

	h.send(cb, protocol.CastAction{Action: "fuego"})
	assert.Contains(t, cb.lastError(t), duel.ErrUnknownSpell.Error())

	h.send(cb, protocol.Guess{Letter: "a"})
	assert.Contains(t, cb.lastError(t), "not valid in duels")
}

func TestDuelPVEStartsImmediately(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	_, a := h.join("Ana", duel.GameType, "PVE")
	require.NotEmpty(t, a.SessionID)
	assert.Zero(t, h.mm.QueueSize(duel.GameType))

	s, ok := h.duels.Get(a.SessionID)
	require.True(t, ok)
	assert.Equal(t, duel.PVE, s.Mode)
	assert.Equal(t, session.Playing, s.Status())
}

func TestLeaveWhileQueued(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ca, a := h.join("Ana", race.GameType, "")
	_, b := h.join("Luis", race.GameType, "")

	h.send(ca, protocol.Leave{})
	assert.Empty(t, ca.ParticipantID())
	assert.Equal(t, []string{b.ParticipantID}, h.mm.Queued(race.GameType))
	_, known := h.mm.GameTypeOf(a.ParticipantID)
	assert.False(t, known)

	waiting, _ := sessiontest.Last[protocol.Waiting](h.rec, b.ParticipantID)
	assert.Equal(t, 1, waiting.QueueSize)

	// timeout was cancelled when the queue dropped below the minimum
	h.advance(race.DefaultConfig().StartTimeout)
	assert.Equal(t, 0, h.races.Len())

	// a left connection may join again
	h.send(ca, protocol.Join{PlayerName: "Ana"})
	_, ok := ca.last().(protocol.Joined)
	assert.True(t, ok)
}

func TestDisconnectForfeitsDuel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ca, a := h.join("Ana", duel.GameType, "")
	_, b := h.join("Beto", duel.GameType, "")

	h.d.Leave(ca)

	over, ok := sessiontest.Last[protocol.DuelOver](h.rec, b.ParticipantID)
	require.True(t, ok)
	assert.True(t, over.Forfeit)
	assert.Equal(t, b.ParticipantID, over.WinnerID)

	_, known := h.mm.SessionOf(a.ParticipantID)
	assert.False(t, known)

	assert.Equal(t, 1, h.d.Sweep())
	assert.Zero(t, h.duels.Len())
}

func TestLeaveRacingDuelStartForfeits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	join, err := protocol.EncodeAction(protocol.Join{PlayerName: "Beto", GameType: duel.GameType})
	require.NoError(t, err)

	for i := 0; i < 300; i++ {
		ca, a := h.join("Ana", duel.GameType, "")
		cb := &fakeClient{}

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			h.d.Leave(ca)
		}()
		go func() {
			defer wg.Done()
			h.d.Handle(cb, join)
		}()
		wg.Wait()

		_, known := h.mm.GameTypeOf(a.ParticipantID)
		require.False(t, known, "round %d: the leaver is forgotten", i)

		b, ok := cb.last().(protocol.Joined)
		require.True(t, ok, "round %d: got %#v", i, cb.last())
		sessionID, started := h.mm.SessionOf(b.ParticipantID)
		if !started {
			require.Equal(t, []string{b.ParticipantID}, h.mm.Queued(duel.GameType))
			h.d.Leave(cb)
			continue
		}

		s, ok := h.duels.Get(sessionID)
		require.True(t, ok)
		require.Equal(t, session.Finished, s.Status(), "round %d: a duel started with the leaver is forfeited", i)
		require.Equal(t, b.ParticipantID, s.Winner())
		h.d.Leave(cb)
	}
	assert.Zero(t, h.mm.QueueSize(duel.GameType))
}

func TestStats(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	h.join("Ana", race.GameType, "")
	h.join("Beto", duel.GameType, "pve")

	stats := h.d.Stats()
	require.Len(t, stats.Queues, 2)
	assert.Equal(t, duel.GameType, stats.Queues[0].GameType)
	assert.Equal(t, race.GameType, stats.Queues[1].GameType)
	assert.Equal(t, 1, stats.Queues[1].Queued)
	assert.Equal(t, map[string]int{race.GameType: 0, duel.GameType: 1}, stats.ActiveSessions)
}
