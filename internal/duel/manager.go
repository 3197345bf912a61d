// Package duel implements the best-of-N spell duel between two sides.
package duel

import (
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
)

// GameType is the name duels are registered under
const GameType = "duels"

const opponentActedMessage = "Your opponent has chosen a spell"

// Config holds the duel constants
type Config struct {
	RoundsToWin   int
	RoundTimer    time.Duration
	ThinkingDelay time.Duration
	OpponentName  string
}

// DefaultConfig returns the standard duel settings
func DefaultConfig() Config {
	return Config{
		RoundsToWin:   2,
		RoundTimer:    15 * time.Second,
		ThinkingDelay: 1500 * time.Millisecond,
		OpponentName:  "Guardián Arcano",
	}
}

// Manager runs every duel session: casts, round timers, the automated
// opponent and forfeits.
type Manager struct {
	cfg       Config
	clock     quartz.Clock
	transport session.Transport
	logger    *log.Logger
	sessions  *session.Registry[*Session]

	timeoutStrategy  Strategy
	opponentStrategy Strategy
}

// NewManager constructs a manager. Both strategies default to uniform random
// choices seeded from seed.
func NewManager(cfg Config, clock quartz.Clock, transport session.Transport, logger *log.Logger, seed int64) *Manager {
	return &Manager{
		cfg:              cfg,
		clock:            clock,
		transport:        transport,
		logger:           logger.WithPrefix("duel"),
		sessions:         session.NewRegistry[*Session](),
		timeoutStrategy:  NewRandomStrategy(seed),
		opponentStrategy: NewRandomStrategy(seed + 1),
	}
}

// SetTimeoutStrategy replaces the strategy used for sides that let the
// round timer expire.
func (m *Manager) SetTimeoutStrategy(s Strategy) {
	m.timeoutStrategy = s
}

// SetOpponentStrategy replaces the automated opponent's strategy
func (m *Manager) SetOpponentStrategy(s Strategy) {
	m.opponentStrategy = s
}

// NewSession creates and registers an empty person-vs-person duel
func (m *Manager) NewSession() (session.Session, error) {
	s := NewSession(m.cfg.RoundsToWin, m.cfg.RoundTimer, PVP, m.clock.Now())
	m.sessions.Add(s)
	return s, nil
}

// Start begins a session whose two participants are in place. It panics for
// any other participant count or a session this manager did not create.
func (m *Manager) Start(ss session.Session) {
	s, ok := ss.(*Session)
	if !ok {
		panic(fmt.Sprintf("duel: cannot start %T", ss))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.AssignSides()
	s.Advance(session.Playing)

	a, _ := s.Participant(s.SideA)
	b, _ := s.Participant(s.SideB)
	m.logger.Info("Duel started", "session", s.ID(), "mode", s.Mode, "a", a.Name, "b", b.Name)

	a.Send(protocol.DuelStart{SessionID: s.ID(), OpponentID: b.ID, OpponentName: b.Name, RoundsToWin: s.RoundsToWin, Mode: string(s.Mode)})
	b.Send(protocol.DuelStart{SessionID: s.ID(), OpponentID: a.ID, OpponentName: a.Name, RoundsToWin: s.RoundsToWin, Mode: string(s.Mode)})

	m.beginRoundLocked(s)
}

// StartPVE creates a duel between the participant and the automated
// opponent and starts it at once.
func (m *Manager) StartPVE(human *session.Participant) *Session {
	s := NewSession(m.cfg.RoundsToWin, m.cfg.RoundTimer, PVE, m.clock.Now())
	s.AddParticipant(human)
	s.AddParticipant(session.NewAutomatedParticipant("ai_"+s.ID(), m.cfg.OpponentName))
	m.sessions.Add(s)

	m.Start(s)
	return s
}

// Cast applies a spell from a participant. Validation failures are returned
// for the caller to report; an unknown session is session.ErrNotFound.
func (m *Manager) Cast(sessionID, participantID, action string) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}
	spell, err := ParseSpell(action)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != session.Playing {
		return ErrNotPlaying
	}

	complete, err := s.CastAction(participantID, spell, m.clock.Now())
	if err != nil {
		return err
	}
	m.logger.Debug("Spell cast", "session", s.ID(), "participant", participantID, "round", s.CurrentRound().Number)

	if complete {
		m.finishRoundLocked(s, false)
		return nil
	}

	opponent, _ := s.Participant(s.Opponent(participantID))
	if opponent.Automated() {
		m.scheduleOpponentLocked(s, opponent.ID)
		return nil
	}
	opponent.Send(protocol.OpponentActed{Message: opponentActedMessage})
	return nil
}

// Leave marks the participant disconnected. Leaving a running duel forfeits
// it to the other side.
func (m *Manager) Leave(sessionID, participantID string) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.MarkDisconnected(participantID) {
		return session.ErrNotFound
	}
	if s.Status() != session.Playing {
		return nil
	}

	winnerID := s.Opponent(participantID)
	if winnerID == "" {
		return nil
	}
	s.stopTimers()
	s.SetWinner(winnerID)
	s.Advance(session.Finished)

	winner, _ := s.Participant(winnerID)
	mine, theirs := s.score(winnerID)
	winner.Send(protocol.DuelOver{
		WinnerID:   winnerID,
		WinnerName: winner.Name,
		FinalScore: fmt.Sprintf("%d-%d", mine, theirs),
		YourResult: "victory",
		Forfeit:    true,
	})
	m.logger.Info("Duel forfeited", "session", s.ID(), "left", participantID, "winner", winnerID)
	return nil
}

// beginRoundLocked announces the current round and arms its timer
func (m *Manager) beginRoundLocked(s *Session) {
	round := s.CurrentRound().Number
	m.transport.BroadcastToSession(s, protocol.RoundStart{
		Round:        round,
		TimerSeconds: int(s.RoundTimer / time.Second),
	})

	if s.roundTimer != nil {
		s.roundTimer.Stop()
	}
	s.roundGen++
	gen := s.roundGen
	s.roundTimer = m.clock.AfterFunc(s.RoundTimer, func() {
		m.onRoundTimeout(s, gen, round)
	}, "duel", "round", s.ID())
}

// onRoundTimeout casts for whoever is still pending and resolves the round.
// A fire that raced a completed round or a newer timer does nothing.
func (m *Manager) onRoundTimeout(s *Session, gen uint64, round int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.roundGen || s.Status() != session.Playing {
		return
	}
	current := s.CurrentRound()
	if current.Number != round || current.Complete() {
		return
	}
	s.roundTimer = nil

	auto := s.AutoCastForPending(m.timeoutStrategy, m.clock.Now())
	m.logger.Info("Round timed out", "session", s.ID(), "round", round, "auto_cast", auto)
	m.finishRoundLocked(s, true)
}

func (m *Manager) scheduleOpponentLocked(s *Session, opponentID string) {
	if s.opponentRun != nil {
		return
	}
	s.opponentGen++
	gen := s.opponentGen
	round := s.CurrentRound().Number
	s.opponentRun = m.clock.AfterFunc(m.cfg.ThinkingDelay, func() {
		m.onOpponentCast(s, opponentID, gen, round)
	}, "duel", "opponent", s.ID())
}

func (m *Manager) onOpponentCast(s *Session, opponentID string, gen uint64, round int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.opponentGen {
		return
	}
	s.opponentRun = nil
	if s.Status() != session.Playing || s.CurrentRound().Number != round || !s.Pending(opponentID) {
		return
	}

	spell := m.opponentStrategy.SelectAction(s, opponentID)
	complete, err := s.CastAction(opponentID, spell, m.clock.Now())
	if err != nil {
		m.logger.Warn("Automated cast rejected", "session", s.ID(), "error", err)
		return
	}
	if complete {
		m.finishRoundLocked(s, false)
	}
}

// finishRoundLocked resolves the complete current round, reports it, and
// either ends the duel or opens the next round.
func (m *Manager) finishRoundLocked(s *Session, timedOut bool) {
	s.stopTimers()

	s.ResolveRound()
	round := s.CurrentRound()
	m.sendRoundResult(s, round, s.SideA, round.CastA.Spell, round.CastB.Spell, timedOut)
	m.sendRoundResult(s, round, s.SideB, round.CastB.Spell, round.CastA.Spell, timedOut)

	if s.CheckOver() {
		m.finishDuelLocked(s)
		return
	}

	if err := s.StartNewRound(); err != nil {
		m.logger.Error("Failed to open next round", "session", s.ID(), "error", err)
		return
	}
	m.beginRoundLocked(s)
}

func (m *Manager) sendRoundResult(s *Session, round *Round, participantID string, mine, theirs Spell, timedOut bool) {
	p, ok := s.Participant(participantID)
	if !ok {
		return
	}
	myScore, theirScore := s.score(participantID)

	result := "tie"
	switch {
	case mine.Beats(theirs):
		result = "win"
	case theirs.Beats(mine):
		result = "lose"
	}

	p.Send(protocol.RoundResult{
		Round:         round.Number,
		YourSpell:     string(mine),
		OpponentSpell: string(theirs),
		Result:        result,
		YourScore:     myScore,
		OpponentScore: theirScore,
		TimedOut:      timedOut,
	})
}

func (m *Manager) finishDuelLocked(s *Session) {
	s.stopTimers()

	winnerID, loserID := s.SideA, s.SideB
	if s.ScoreB >= s.RoundsToWin {
		winnerID, loserID = s.SideB, s.SideA
	}
	s.SetWinner(winnerID)
	s.Advance(session.Finished)

	winner, _ := s.Participant(winnerID)
	loser, _ := s.Participant(loserID)
	winScore, loseScore := s.score(winnerID)
	finalScore := fmt.Sprintf("%d-%d", winScore, loseScore)

	winner.Send(protocol.DuelOver{WinnerID: winnerID, WinnerName: winner.Name, FinalScore: finalScore, YourResult: "victory"})
	loser.Send(protocol.DuelOver{WinnerID: winnerID, WinnerName: winner.Name, FinalScore: finalScore, YourResult: "defeat"})

	m.logger.Info("Duel finished", "session", s.ID(), "winner", winner.Name, "score", finalScore)
}

// Get returns a registered duel
func (m *Manager) Get(sessionID string) (*Session, bool) {
	return m.sessions.Get(sessionID)
}

// Remove unregisters a duel and stops its timers
func (m *Manager) Remove(sessionID string) {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.stopTimers()
	s.mu.Unlock()
	m.sessions.Remove(sessionID)
}

// ActiveSessions returns the duels that have not finished
func (m *Manager) ActiveSessions() []*Session {
	var active []*Session
	for _, s := range m.sessions.All() {
		if s.Status() != session.Finished {
			active = append(active, s)
		}
	}
	return active
}

// Len returns the number of registered duels
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Sweep removes finished duels and running duels without a connected
// person. Sessions still being assembled are left alone.
func (m *Manager) Sweep() int {
	removed := m.sessions.Sweep(func(s *Session) bool {
		switch s.Status() {
		case session.Waiting:
			return false
		case session.Finished:
			return true
		}
		for _, p := range s.ConnectedParticipants() {
			if !p.Automated() {
				return false
			}
		}
		return true
	})
	for _, s := range removed {
		s.mu.Lock()
		s.stopTimers()
		s.mu.Unlock()
	}
	return len(removed)
}
