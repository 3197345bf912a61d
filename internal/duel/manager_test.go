package duel

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
	"github.com/iKenshu/quodpot-game/internal/session/sessiontest"
)

type harness struct {
	t     *testing.T
	clock *quartz.Mock
	rec   *sessiontest.Recorder
	m     *Manager
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	clock := quartz.NewMock(t)
	rec := sessiontest.NewRecorder()
	logger := log.NewWithOptions(io.Discard, log.Options{})
	return &harness{
		t:     t,
		clock: clock,
		rec:   rec,
		m:     NewManager(DefaultConfig(), clock, rec, logger, 1),
	}
}

func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	h.clock.Advance(d).MustWait(ctx)
}

// startPVP builds a running duel between a and b the way the matchmaker does
func (h *harness) startPVP() *Session {
	h.t.Helper()
	ss, err := h.m.NewSession()
	require.NoError(h.t, err)
	ss.AddParticipant(session.NewParticipantWithID("a", "Ana", h.rec))
	ss.AddParticipant(session.NewParticipantWithID("b", "Beto", h.rec))
	ss.Advance(session.Playing)
	h.m.Start(ss)
	return ss.(*Session)
}

func fixed(spell Spell) Strategy {
	return StrategyFunc(func(*Session, string) Spell { return spell })
}

func TestDuelToTwoWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startPVP()

	starts := sessiontest.Find[protocol.DuelStart](h.rec, "a")
	require.Len(t, starts, 1)
	assert.Equal(t, "Beto", starts[0].OpponentName)
	assert.Equal(t, 2, starts[0].RoundsToWin)

	for round := 1; round <= 2; round++ {
		require.NoError(t, h.m.Cast(s.ID(), "a", "ignis"))
		last, ok := sessiontest.Last[protocol.OpponentActed](h.rec, "b")
		require.True(t, ok, "b hears that a acted")
		assert.NotEmpty(t, last.Message)
		require.NoError(t, h.m.Cast(s.ID(), "b", "virel"))
	}

	assert.Equal(t, session.Finished, s.Status())
	assert.Equal(t, "a", s.Winner())
	assert.Equal(t, 2, s.ScoreA)
	assert.Equal(t, 0, s.ScoreB)

	results := sessiontest.Find[protocol.RoundResult](h.rec, "a")
	require.Len(t, results, 2)
	assert.Equal(t, protocol.RoundResult{Round: 2, YourSpell: "ignis", OpponentSpell: "virel", Result: "win", YourScore: 2, OpponentScore: 0}, results[1])

	bResults := sessiontest.Find[protocol.RoundResult](h.rec, "b")
	require.Len(t, bResults, 2)
	assert.Equal(t, "lose", bResults[0].Result)
	assert.Equal(t, 1, bResults[0].OpponentScore)

	overA, ok := sessiontest.Last[protocol.DuelOver](h.rec, "a")
	require.True(t, ok)
	assert.Equal(t, "victory", overA.YourResult)
	assert.Equal(t, "2-0", overA.FinalScore)
	overB, ok := sessiontest.Last[protocol.DuelOver](h.rec, "b")
	require.True(t, ok)
	assert.Equal(t, "defeat", overB.YourResult)
	assert.Equal(t, "Ana", overB.WinnerName)

	roundStarts := sessiontest.Find[protocol.RoundStart](h.rec, "a")
	assert.Len(t, roundStarts, 2, "no round opens after the duel ends")

	assert.ErrorIs(t, h.m.Cast(s.ID(), "a", "ignis"), ErrNotPlaying)
}

func TestTieRoundScoresNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startPVP()

	require.NoError(t, h.m.Cast(s.ID(), "a", "aqua"))
	require.NoError(t, h.m.Cast(s.ID(), "b", "aqua"))

	assert.Equal(t, 0, s.ScoreA)
	assert.Equal(t, 0, s.ScoreB)
	assert.Equal(t, 2, s.CurrentRound().Number)
	res, _ := sessiontest.Last[protocol.RoundResult](h.rec, "b")
	assert.Equal(t, "tie", res.Result)
}

func TestCastValidation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startPVP()

	assert.ErrorIs(t, h.m.Cast("NOPE", "a", "ignis"), session.ErrNotFound)
	assert.ErrorIs(t, h.m.Cast(s.ID(), "a", "fuego"), ErrUnknownSpell)
	assert.ErrorIs(t, h.m.Cast(s.ID(), "z", "ignis"), ErrNotInDuel)

	require.NoError(t, h.m.Cast(s.ID(), "a", "ignis"))
	assert.ErrorIs(t, h.m.Cast(s.ID(), "a", "aqua"), ErrDuplicateCast)
	assert.Equal(t, Ignis, s.CurrentRound().CastA.Spell, "a rejected cast leaves the round unchanged")
}

func TestRoundTimeoutAutoCasts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.m.SetTimeoutStrategy(fixed(Aqua))
	s := h.startPVP()

	require.NoError(t, h.m.Cast(s.ID(), "a", "ignis"))
	h.advance(15 * time.Second)

	res, ok := sessiontest.Last[protocol.RoundResult](h.rec, "a")
	require.True(t, ok)
	assert.True(t, res.TimedOut)
	assert.Equal(t, "aqua", res.OpponentSpell)
	assert.Equal(t, "lose", res.Result)
	assert.Equal(t, 1, s.ScoreB)
	assert.Equal(t, 2, s.CurrentRound().Number)

	// Nobody casts in round two either: both sides are filled in
	h.advance(15 * time.Second)
	assert.Equal(t, 3, s.CurrentRound().Number)
	assert.Equal(t, 1, s.ScoreB, "aqua against aqua ties")
}

func TestCompletedRoundCancelsTimer(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.m.SetTimeoutStrategy(fixed(Aqua))
	s := h.startPVP()

	h.advance(10 * time.Second)
	require.NoError(t, h.m.Cast(s.ID(), "a", "ignis"))
	require.NoError(t, h.m.Cast(s.ID(), "b", "virel"))

	// The round-one timer would have fired at 15s; only round two's at 25s remains
	h.advance(15 * time.Second)
	assert.Equal(t, 3, s.CurrentRound().Number)
	results := sessiontest.Find[protocol.RoundResult](h.rec, "a")
	require.Len(t, results, 2)
	assert.False(t, results[0].TimedOut)
	assert.True(t, results[1].TimedOut)
}

func TestPVEOpponentThinksThenCasts(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.m.SetOpponentStrategy(fixed(Virel))

	human := session.NewParticipantWithID("h", "Ana", h.rec)
	s := h.m.StartPVE(human)

	assert.Equal(t, PVE, s.Mode)
	assert.Equal(t, session.Playing, s.Status())
	assert.Equal(t, "ai_"+s.ID(), s.SideB)
	start, ok := sessiontest.Last[protocol.DuelStart](h.rec, "h")
	require.True(t, ok)
	assert.Equal(t, "Guardián Arcano", start.OpponentName)
	assert.Equal(t, "pve", start.Mode)

	require.NoError(t, h.m.Cast(s.ID(), "h", "ignis"))
	assert.False(t, s.CurrentRound().Complete(), "the opponent waits for its thinking delay")

	h.advance(1500 * time.Millisecond)
	res, ok := sessiontest.Last[protocol.RoundResult](h.rec, "h")
	require.True(t, ok)
	assert.Equal(t, "win", res.Result)
	assert.Equal(t, "virel", res.OpponentSpell)
	assert.Equal(t, 2, s.CurrentRound().Number)

	_, found := h.m.Get(s.ID())
	assert.True(t, found)
}

func TestLeaveForfeits(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	s := h.startPVP()

	require.NoError(t, h.m.Cast(s.ID(), "a", "ignis"))
	require.NoError(t, h.m.Cast(s.ID(), "b", "virel"))
	require.NoError(t, h.m.Leave(s.ID(), "a"))

	assert.Equal(t, session.Finished, s.Status())
	assert.Equal(t, "b", s.Winner())
	over, ok := sessiontest.Last[protocol.DuelOver](h.rec, "b")
	require.True(t, ok)
	assert.True(t, over.Forfeit)
	assert.Equal(t, "victory", over.YourResult)
	assert.Equal(t, "0-1", over.FinalScore)

	a, _ := s.Participant("a")
	assert.False(t, a.Connected())

	// Timers are gone: nothing fires and no new round opens
	h.advance(time.Minute)
	assert.Equal(t, 2, s.CurrentRound().Number)

	assert.NoError(t, h.m.Leave(s.ID(), "b"), "leaving a finished duel is harmless")
	assert.ErrorIs(t, h.m.Leave("NOPE", "b"), session.ErrNotFound)
}

func TestSweepRemovesFinishedAndAbandoned(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	finished := h.startPVP()
	require.NoError(t, h.m.Leave(finished.ID(), "a"))

	pve := h.m.StartPVE(session.NewParticipantWithID("h", "Ana", h.rec))
	human, _ := pve.Participant("h")
	human.Disconnect()

	running := h.startPVP()
	pending, err := h.m.NewSession()
	require.NoError(t, err)

	assert.Len(t, h.m.ActiveSessions(), 3)
	assert.Equal(t, 2, h.m.Sweep())

	_, ok := h.m.Get(running.ID())
	assert.True(t, ok)
	_, ok = h.m.Get(pending.ID())
	assert.True(t, ok, "sessions being assembled survive a sweep")
	_, ok = h.m.Get(finished.ID())
	assert.False(t, ok)

	h.m.Remove(running.ID())
	_, ok = h.m.Get(running.ID())
	assert.False(t, ok)
}

func TestStartPanicsWithoutTwoParticipants(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ss, err := h.m.NewSession()
	require.NoError(t, err)
	ss.AddParticipant(session.NewParticipantWithID("a", "Ana", h.rec))
	assert.Panics(t, func() { h.m.Start(ss) })
}
