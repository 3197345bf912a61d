package duel

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"

	"github.com/iKenshu/quodpot-game/internal/session"
)

var (
	ErrNotInDuel     = errors.New("participant is not in this duel")
	ErrDuplicateCast = errors.New("spell already cast this round")
	ErrRoundNotReady = errors.New("current round is not complete")
	ErrUnknownSpell  = errors.New("unknown spell")
	ErrNotPlaying    = errors.New("duel is not in progress")
)

// Mode tells whether the opponent is a person or the server
type Mode string

const (
	PVP Mode = "pvp"
	PVE Mode = "pve"
)

// Cast is one side's action in a round
type Cast struct {
	ParticipantID string
	Spell         Spell
	At            time.Time
}

// Round is one simultaneous exchange. Result is set once both casts are in
// and the round has been resolved.
type Round struct {
	Number int
	CastA  *Cast
	CastB  *Cast
	Result *RoundResult
}

// Complete reports whether both sides have cast
func (r *Round) Complete() bool {
	return r.CastA != nil && r.CastB != nil
}

// Session is a two-sided, best-of-N duel.
//
// The state-machine methods do not lock. The Manager holds mu around every
// call, including timer callbacks.
type Session struct {
	*session.Base

	mu          sync.Mutex
	SideA       string
	SideB       string
	ScoreA      int
	ScoreB      int
	RoundsToWin int
	RoundTimer  time.Duration
	Mode        Mode
	rounds      []*Round

	roundTimer  *quartz.Timer
	roundGen    uint64
	opponentRun *quartz.Timer
	opponentGen uint64
}

// NewSession creates a Waiting duel with its first round open
func NewSession(roundsToWin int, roundTimer time.Duration, mode Mode, now time.Time) *Session {
	return &Session{
		Base:        session.NewBase(GameType, now),
		RoundsToWin: roundsToWin,
		RoundTimer:  roundTimer,
		Mode:        mode,
		rounds:      []*Round{{Number: 1}},
	}
}

// AssignSides fixes sides A and B from the participants in join order. It
// panics unless exactly two participants are present.
func (s *Session) AssignSides() {
	participants := s.Participants()
	if len(participants) != 2 {
		panic(fmt.Sprintf("duel %s: need exactly 2 participants, have %d", s.ID(), len(participants)))
	}
	s.SideA = participants[0].ID
	s.SideB = participants[1].ID
}

// CurrentRound is the last round, open or just resolved
func (s *Session) CurrentRound() *Round {
	return s.rounds[len(s.rounds)-1]
}

// Rounds returns a copy of the round history
func (s *Session) Rounds() []Round {
	out := make([]Round, len(s.rounds))
	for i, r := range s.rounds {
		out[i] = *r
	}
	return out
}

// Opponent returns the other side's id, or "" for a non-participant
func (s *Session) Opponent(participantID string) string {
	switch participantID {
	case s.SideA:
		return s.SideB
	case s.SideB:
		return s.SideA
	default:
		return ""
	}
}

// CastAction records a spell for the participant's side and reports whether
// the round is now complete.
func (s *Session) CastAction(participantID string, spell Spell, at time.Time) (bool, error) {
	if participantID == "" || (participantID != s.SideA && participantID != s.SideB) {
		return false, ErrNotInDuel
	}

	round := s.CurrentRound()
	cast := &Cast{ParticipantID: participantID, Spell: spell, At: at}
	if participantID == s.SideA {
		if round.CastA != nil {
			return false, ErrDuplicateCast
		}
		round.CastA = cast
	} else {
		if round.CastB != nil {
			return false, ErrDuplicateCast
		}
		round.CastB = cast
	}
	return round.Complete(), nil
}

// ResolveRound scores the current round. It panics if the round is not
// complete or was already resolved.
func (s *Session) ResolveRound() RoundResult {
	round := s.CurrentRound()
	if !round.Complete() {
		panic(fmt.Sprintf("duel %s: resolving incomplete round %d", s.ID(), round.Number))
	}
	if round.Result != nil {
		panic(fmt.Sprintf("duel %s: round %d already resolved", s.ID(), round.Number))
	}

	result := Outcome(round.CastA.Spell, round.CastB.Spell)
	round.Result = &result
	switch result {
	case SideAWins:
		s.ScoreA++
	case SideBWins:
		s.ScoreB++
	}
	return result
}

// CheckOver reports whether either side reached RoundsToWin
func (s *Session) CheckOver() bool {
	return s.ScoreA >= s.RoundsToWin || s.ScoreB >= s.RoundsToWin
}

// StartNewRound opens the next round
func (s *Session) StartNewRound() error {
	current := s.CurrentRound()
	if !current.Complete() {
		return ErrRoundNotReady
	}
	s.rounds = append(s.rounds, &Round{Number: current.Number + 1})
	return nil
}

// AutoCastForPending casts for every side that has not acted this round and
// returns their ids.
func (s *Session) AutoCastForPending(strategy Strategy, at time.Time) []string {
	var cast []string
	round := s.CurrentRound()
	for _, side := range []struct {
		id   string
		done bool
	}{{s.SideA, round.CastA != nil}, {s.SideB, round.CastB != nil}} {
		if side.done || side.id == "" {
			continue
		}
		if _, err := s.CastAction(side.id, strategy.SelectAction(s, side.id), at); err == nil {
			cast = append(cast, side.id)
		}
	}
	return cast
}

// Pending reports whether the participant still has to cast this round
func (s *Session) Pending(participantID string) bool {
	round := s.CurrentRound()
	switch participantID {
	case s.SideA:
		return round.CastA == nil
	case s.SideB:
		return round.CastB == nil
	default:
		return false
	}
}

// score returns the participant's score followed by the opponent's
func (s *Session) score(participantID string) (mine, theirs int) {
	if participantID == s.SideA {
		return s.ScoreA, s.ScoreB
	}
	return s.ScoreB, s.ScoreA
}

func (s *Session) stopTimers() {
	if s.roundTimer != nil {
		s.roundTimer.Stop()
		s.roundTimer = nil
	}
	s.roundGen++
	if s.opponentRun != nil {
		s.opponentRun.Stop()
		s.opponentRun = nil
	}
	s.opponentGen++
}
