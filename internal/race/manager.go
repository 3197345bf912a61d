// Package race implements the multi-stage word-guessing race.
package race

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
	"github.com/iKenshu/quodpot-game/internal/words"
)

// GameType is the name races are registered under
const GameType = "race"

var (
	ErrNotPlaying          = errors.New("race is not in progress")
	ErrStageNotInitialized = errors.New("no current stage")
	ErrInvalidLetter       = errors.New("guess must be a single letter")
)

// Config holds the race constants
type Config struct {
	Stages       int
	Attempts     int
	MinPlayers   int
	MaxPlayers   int
	StartTimeout time.Duration
}

// DefaultConfig returns the standard race settings
func DefaultConfig() Config {
	return Config{
		Stages:       10,
		Attempts:     6,
		MinPlayers:   2,
		MaxPlayers:   50,
		StartTimeout: 30 * time.Second,
	}
}

// Outcome is what a guess did to the guesser's stage
type Outcome int

const (
	InProgress Outcome = iota
	StageSolved
	StageFailed
	Won
)

func (o Outcome) String() string {
	switch o {
	case StageSolved:
		return "stage_solved"
	case StageFailed:
		return "stage_failed"
	case Won:
		return "won"
	default:
		return "in_progress"
	}
}

// Manager runs every race session
type Manager struct {
	cfg       Config
	clock     quartz.Clock
	transport session.Transport
	words     words.Source
	logger    *log.Logger
	sessions  *session.Registry[*Session]

	// joinMu makes finding a session with room and taking the seat atomic,
	// and excludes Sweep while it happens
	joinMu sync.Mutex
}

// NewManager constructs a race manager drawing words from source
func NewManager(cfg Config, clock quartz.Clock, transport session.Transport, source words.Source, logger *log.Logger) *Manager {
	return &Manager{
		cfg:       cfg,
		clock:     clock,
		transport: transport,
		words:     source,
		logger:    logger.WithPrefix("race"),
		sessions:  session.NewRegistry[*Session](),
	}
}

// NewSession creates and registers an empty race with fresh words
func (m *Manager) NewSession() (session.Session, error) {
	selected, err := m.words.SelectWords(m.cfg.Stages)
	if err != nil {
		return nil, fmt.Errorf("select words: %w", err)
	}
	s := NewSession(selected, m.cfg.Attempts, m.clock.Now())
	m.sessions.Add(s)
	return s, nil
}

// Start puts every participant without progress on stage 1 and announces
// the race.
func (m *Manager) Start(ss session.Session) {
	s, ok := ss.(*Session)
	if !ok {
		panic(fmt.Sprintf("race: cannot start %T", ss))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.Advance(session.Playing)
	for _, p := range s.Participants() {
		if _, started := s.progress[p.ID]; !started {
			s.initStage(p.ID)
		}
	}

	m.transport.BroadcastToSession(s, m.sessionStart(s))
	for _, p := range s.ConnectedParticipants() {
		p.Send(stageUpdate(s.progress[p.ID]))
	}
	m.transport.BroadcastToSession(s, protocol.StageStatus{Stages: s.stageStatus()})

	m.logger.Info("Race started", "session", s.ID(), "participants", len(s.Participants()), "stages", s.StageCount())
}

// InitStage resets the participant's current stage to a fresh instance
func (m *Manager) InitStage(sessionID, participantID string) error {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return session.ErrNotFound
	}
	if _, ok := s.Participant(participantID); !ok {
		return session.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.initStage(participantID)
	return nil
}

// JoinRunning seats the participant in the oldest Playing race with room,
// puts them on stage 1 and announces them. It returns nil when no race has
// room.
func (m *Manager) JoinRunning(p *session.Participant) session.Session {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()

	for _, s := range m.sessions.All() {
		if m.tryJoin(s, p) {
			return s
		}
	}
	return nil
}

func (m *Manager) tryJoin(s *Session, p *session.Participant) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != session.Playing || s.ConnectedCount() >= m.cfg.MaxPlayers {
		return false
	}

	s.AddParticipant(p)
	progress := s.initStage(p.ID)

	p.Send(m.sessionStart(s))
	p.Send(stageUpdate(progress))
	m.transport.BroadcastToSessionExcept(s, protocol.PlayerJoined{
		ParticipantID: p.ID,
		Name:          p.Name,
		Stage:         progress.Stage,
	}, p.ID)
	m.transport.BroadcastToSession(s, protocol.StageStatus{Stages: s.stageStatus()})

	m.logger.Info("Late join", "session", s.ID(), "participant", p.ID, "name", p.Name)
	return true
}

// Guess applies one letter from a participant and reports what it did.
// Rejected guesses leave the session unchanged.
func (m *Manager) Guess(sessionID, participantID, letter string) (Outcome, error) {
	s, ok := m.sessions.Get(sessionID)
	if !ok {
		return InProgress, session.ErrNotFound
	}
	p, ok := s.Participant(participantID)
	if !ok {
		return InProgress, session.ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Status() != session.Playing {
		return InProgress, ErrNotPlaying
	}
	progress, ok := s.progress[participantID]
	if !ok || progress.Current == nil {
		return InProgress, ErrStageNotInitialized
	}

	r, size := utf8.DecodeRuneInString(letter)
	if size == 0 || size != len(letter) || !unicode.IsLetter(r) {
		return InProgress, ErrInvalidLetter
	}
	r = unicode.ToUpper(r)

	stage := progress.Current
	correct, _ := stage.Guess(r)
	if correct {
		p.Send(protocol.CorrectGuess{Letter: string(r), Revealed: stage.Revealed()})
	} else {
		p.Send(protocol.WrongGuess{Letter: string(r), AttemptsLeft: stage.AttemptsLeft})
	}

	switch {
	case stage.Solved():
		p.Send(protocol.StageComplete{Stage: progress.Stage, Word: stage.Word})
		if progress.Stage >= s.StageCount() {
			m.finishLocked(s, p)
			return Won, nil
		}
		progress.Stage++
		s.initStage(participantID)
		m.announceProgressLocked(s, p, progress)
		return StageSolved, nil

	case stage.Failed():
		p.Send(protocol.StageFailed{ResetTo: 1, Word: stage.Word})
		progress.Stage = 1
		s.initStage(participantID)
		m.announceProgressLocked(s, p, progress)
		return StageFailed, nil
	}
	return InProgress, nil
}

func (m *Manager) announceProgressLocked(s *Session, p *session.Participant, progress *Progress) {
	p.Send(stageUpdate(progress))
	m.transport.BroadcastToSessionExcept(s, protocol.PlayerProgress{
		ParticipantID: p.ID,
		Name:          p.Name,
		Stage:         progress.Stage,
	}, p.ID)
	m.transport.BroadcastToSession(s, protocol.StageStatus{Stages: s.stageStatus()})
}

func (m *Manager) finishLocked(s *Session, winner *session.Participant) {
	s.SetWinner(winner.ID)
	s.Advance(session.Finished)
	m.transport.BroadcastToSession(s, protocol.SessionOver{
		WinnerID:   winner.ID,
		WinnerName: winner.Name,
		Words:      s.Words(),
	})
	m.logger.Info("Race won", "session", s.ID(), "winner", winner.Name)
}

// Leave marks the participant disconnected. The race goes on for the rest.
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
	if s.Status() == session.Playing {
		m.transport.BroadcastToSession(s, protocol.StageStatus{Stages: s.stageStatus()})
	}
	m.logger.Debug("Participant left race", "session", s.ID(), "participant", participantID, "connected", s.ConnectedCount())
	return nil
}

func (m *Manager) sessionStart(s *Session) protocol.SessionStart {
	connected := s.ConnectedParticipants()
	infos := make([]protocol.ParticipantInfo, 0, len(connected))
	for _, p := range connected {
		infos = append(infos, protocol.ParticipantInfo{ID: p.ID, Name: p.Name})
	}
	return protocol.SessionStart{SessionID: s.ID(), Participants: infos, StageCount: s.StageCount()}
}

func stageUpdate(p *Progress) protocol.StageUpdate {
	return protocol.StageUpdate{
		Stage:        p.Stage,
		Revealed:     p.Current.Revealed(),
		AttemptsLeft: p.Current.AttemptsLeft,
	}
}

// Get returns a registered race
func (m *Manager) Get(sessionID string) (*Session, bool) {
	return m.sessions.Get(sessionID)
}

// ActiveSessions returns the races that have not finished
func (m *Manager) ActiveSessions() []*Session {
	var active []*Session
	for _, s := range m.sessions.All() {
		if s.Status() != session.Finished {
			active = append(active, s)
		}
	}
	return active
}

// Len returns the number of registered races
func (m *Manager) Len() int {
	return m.sessions.Len()
}

// Sweep removes finished races and running races nobody is connected to.
// It holds joinMu so a late join never lands in a race being removed.
func (m *Manager) Sweep() int {
	m.joinMu.Lock()
	defer m.joinMu.Unlock()

	removed := m.sessions.Sweep(func(s *Session) bool {
		switch s.Status() {
		case session.Finished:
			return true
		case session.Playing:
			return s.ConnectedCount() == 0
		default:
			return false
		}
	})
	return len(removed)
}
