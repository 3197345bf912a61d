package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
	"github.com/iKenshu/quodpot-game/internal/session/sessiontest"
)

func TestStatusOnlyAdvances(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		b := session.NewBase("race", time.Now())
		moves := rapid.SliceOf(rapid.SampledFrom([]session.Status{session.Waiting, session.Playing, session.Finished})).Draw(rt, "moves")

		prev := b.Status()
		for _, to := range moves {
			changed := b.Advance(to)
			cur := b.Status()
			if cur < prev {
				rt.Fatalf("status went backwards: %s -> %s", prev, cur)
			}
			if changed != (to > prev) {
				rt.Fatalf("advance %s from %s reported %v", to, prev, changed)
			}
			prev = cur
		}
	})
}

func TestSessionIDShape(t *testing.T) {
	t.Parallel()

	id := session.NewBase("duels", time.Now()).ID()
	assert.Regexp(t, `^[0-9A-F]{8}$`, id)
}

func TestParticipantsKeepJoinOrderAndSurviveDisconnect(t *testing.T) {
	t.Parallel()

	rec := sessiontest.NewRecorder()
	b := session.NewBase("race", time.Now())
	ana := session.NewParticipantWithID("p1", "Ana", rec)
	luis := session.NewParticipantWithID("p2", "Luis", rec)
	b.AddParticipant(ana)
	b.AddParticipant(luis)
	b.AddParticipant(ana)

	require.Len(t, b.Participants(), 2)
	assert.Equal(t, "p1", b.Participants()[0].ID)

	assert.True(t, b.MarkDisconnected("p1"))
	assert.False(t, b.MarkDisconnected("ghost"))

	assert.Len(t, b.Participants(), 2, "disconnected participants stay addressable")
	assert.Equal(t, 1, b.ConnectedCount())
	p, ok := b.Participant("p1")
	require.True(t, ok)
	assert.False(t, p.Connected())
}

func TestSinks(t *testing.T) {
	t.Parallel()

	rec := sessiontest.NewRecorder()
	human := session.NewParticipantWithID("h", "Ana", rec)
	bot := session.NewAutomatedParticipant("ai_X", "Guardián Arcano")

	human.Send(protocol.Error{Message: "hi"})
	bot.Send(protocol.Error{Message: "hi"})
	assert.Len(t, rec.Events("h"), 1)
	assert.Empty(t, rec.Events("ai_X"))
	assert.True(t, bot.Automated())
	assert.False(t, human.Automated())

	human.Disconnect()
	human.Send(protocol.Error{Message: "late"})
	assert.Len(t, rec.Events("h"), 1, "events to a disconnected participant are dropped")
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := session.NewRegistry[*session.Base]()
	now := time.Now()
	older := session.NewBase("race", now.Add(-time.Minute))
	newer := session.NewBase("race", now)
	reg.Add(newer)
	reg.Add(older)

	assert.Equal(t, 2, reg.Len())
	got, ok := reg.Get(older.ID())
	require.True(t, ok)
	assert.Same(t, older, got)

	all := reg.All()
	require.Len(t, all, 2)
	assert.Same(t, older, all[0])

	_, ok = reg.Get("NOPE")
	assert.False(t, ok)
	assert.False(t, reg.Remove("NOPE"))

	newer.Advance(session.Finished)
	removed := reg.Sweep(func(s *session.Base) bool { return s.Status() == session.Finished })
	require.Len(t, removed, 1)
	assert.Same(t, newer, removed[0])
	assert.Equal(t, 1, reg.Len())

	assert.True(t, reg.Remove(older.ID()))
	assert.Equal(t, 0, reg.Len())
}
