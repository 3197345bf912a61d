package duel

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/iKenshu/quodpot-game/internal/session"
)

func newTwoSided(t *testing.T) *Session {
	t.Helper()
	s := NewSession(2, 15*time.Second, PVP, time.Now())
	s.AddParticipant(session.NewParticipantWithID("a", "Ana", nil))
	s.AddParticipant(session.NewParticipantWithID("b", "Beto", nil))
	s.AssignSides()
	return s
}

func TestRoundCompleteOnlyWhenBothCast(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		s := NewSession(2, time.Second, PVP, time.Now())
		s.AddParticipant(session.NewParticipantWithID("a", "Ana", nil))
		s.AddParticipant(session.NewParticipantWithID("b", "Beto", nil))
		s.AssignSides()

		castA := rapid.Bool().Draw(rt, "castA")
		castB := rapid.Bool().Draw(rt, "castB")

		var complete bool
		if castA {
			complete, _ = s.CastAction("a", rapid.SampledFrom(Spells).Draw(rt, "spellA"), time.Now())
		}
		if castB {
			complete, _ = s.CastAction("b", rapid.SampledFrom(Spells).Draw(rt, "spellB"), time.Now())
		}
		if s.CurrentRound().Complete() != (castA && castB) {
			rt.Fatalf("complete=%v with castA=%v castB=%v", s.CurrentRound().Complete(), castA, castB)
		}
		if (castA || castB) && complete != (castA && castB) {
			rt.Fatalf("CastAction reported complete=%v", complete)
		}

		// A second cast by the same side always fails
		if castA {
			if _, err := s.CastAction("a", Ignis, time.Now()); err != ErrDuplicateCast {
				rt.Fatalf("second cast by a: %v", err)
			}
		}
	})
}

func TestCastActionRejectsStrangers(t *testing.T) {
	t.Parallel()

	s := newTwoSided(t)
	_, err := s.CastAction("c", Ignis, time.Now())
	assert.ErrorIs(t, err, ErrNotInDuel)
	_, err = s.CastAction("", Ignis, time.Now())
	assert.ErrorIs(t, err, ErrNotInDuel)
}

func TestCheckOver(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b int
		over bool
	}{
		{2, 0, true},
		{0, 2, true},
		{2, 1, true},
		{1, 0, false},
		{1, 1, false},
		{0, 0, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d-%d", tt.a, tt.b), func(t *testing.T) {
			s := NewSession(2, time.Second, PVP, time.Now())
			s.ScoreA, s.ScoreB = tt.a, tt.b
			assert.Equal(t, tt.over, s.CheckOver())
		})
	}
}

func TestResolveAndAdvance(t *testing.T) {
	t.Parallel()

	s := newTwoSided(t)
	require.ErrorIs(t, s.StartNewRound(), ErrRoundNotReady)
	require.Panics(t, func() { s.ResolveRound() })

	_, err := s.CastAction("a", Ignis, time.Now())
	require.NoError(t, err)
	complete, err := s.CastAction("b", Virel, time.Now())
	require.NoError(t, err)
	require.True(t, complete)

	assert.Equal(t, SideAWins, s.ResolveRound())
	assert.Equal(t, 1, s.ScoreA)
	assert.Panics(t, func() { s.ResolveRound() }, "a round resolves once")

	require.NoError(t, s.StartNewRound())
	assert.Equal(t, 2, s.CurrentRound().Number)
	assert.Len(t, s.Rounds(), 2)
	assert.NotNil(t, s.Rounds()[0].Result)
	assert.Nil(t, s.CurrentRound().Result)
}

func TestAssignSidesNeedsTwo(t *testing.T) {
	t.Parallel()

	s := NewSession(2, time.Second, PVP, time.Now())
	s.AddParticipant(session.NewParticipantWithID("a", "Ana", nil))
	assert.Panics(t, s.AssignSides)
}

func TestAutoCastForPending(t *testing.T) {
	t.Parallel()

	s := newTwoSided(t)
	_, err := s.CastAction("a", Aqua, time.Now())
	require.NoError(t, err)

	fixed := StrategyFunc(func(*Session, string) Spell { return Ignis })
	cast := s.AutoCastForPending(fixed, time.Now())
	assert.Equal(t, []string{"b"}, cast)
	require.True(t, s.CurrentRound().Complete())
	assert.Equal(t, Aqua, s.CurrentRound().CastA.Spell, "existing casts are kept")
	assert.Equal(t, Ignis, s.CurrentRound().CastB.Spell)

	assert.Empty(t, s.AutoCastForPending(fixed, time.Now()))
}
