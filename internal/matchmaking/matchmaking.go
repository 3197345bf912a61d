// Package matchmaking pools waiting participants per game type and decides
// when enough of them are present to start a session.
package matchmaking

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/iKenshu/quodpot-game/internal/session"
)

// ErrInvalidGameType is returned by Register for an unusable configuration
var ErrInvalidGameType = errors.New("invalid game type")

// GameType binds a game type name to its admission rules and to the hooks
// that create and start its sessions.
type GameType struct {
	Name         string
	MinPlayers   int
	MaxPlayers   int
	StartTimeout time.Duration

	// NewSession creates an empty Waiting session
	NewSession func() (session.Session, error)
	// OnSessionStart runs once the participants are added and the session is Playing
	OnSessionStart func(session.Session)
	// JoinRunning optionally places a participant straight into a running
	// session. It returns nil when no session has room.
	JoinRunning func(p *session.Participant) session.Session
}

func (gt GameType) validate() error {
	switch {
	case gt.Name == "":
		return fmt.Errorf("%w: empty name", ErrInvalidGameType)
	case gt.MinPlayers < 1:
		return fmt.Errorf("%w: %s: min players must be at least 1", ErrInvalidGameType, gt.Name)
	case gt.MaxPlayers < gt.MinPlayers:
		return fmt.Errorf("%w: %s: max players %d below min %d", ErrInvalidGameType, gt.Name, gt.MaxPlayers, gt.MinPlayers)
	case gt.StartTimeout <= 0:
		return fmt.Errorf("%w: %s: start timeout must be positive", ErrInvalidGameType, gt.Name)
	case gt.NewSession == nil:
		return fmt.Errorf("%w: %s: no session factory", ErrInvalidGameType, gt.Name)
	}
	return nil
}

type entry struct {
	participant *session.Participant
	enqueuedAt  time.Time
}

// queue is the waiting list of one game type. Its mutex serializes joins,
// leaves, timer fires and session starts for that type.
type queue struct {
	mu         sync.Mutex
	config     GameType
	entries    []entry
	timer      *quartz.Timer
	generation uint64
}

func (q *queue) indexOf(id string) int {
	for i, e := range q.entries {
		if e.participant.ID == id {
			return i
		}
	}
	return -1
}

// Matchmaker owns the admission queues of every registered game type. It is
// built once at startup and shared by all connections.
type Matchmaker struct {
	clock  quartz.Clock
	logger *log.Logger

	mu     sync.RWMutex
	queues map[string]*queue

	assignMu  sync.RWMutex
	gameTypes map[string]string // participant -> game type
	sessions  map[string]string // participant -> session id
}

// New constructs a matchmaker with no game types
func New(clock quartz.Clock, logger *log.Logger) *Matchmaker {
	return &Matchmaker{
		clock:     clock,
		logger:    logger.WithPrefix("matchmaking"),
		queues:    make(map[string]*queue),
		gameTypes: make(map[string]string),
		sessions:  make(map[string]string),
	}
}

// Register adds a game type. Registering a known name replaces its
// configuration and keeps whoever is already queued.
func (m *Matchmaker) Register(gt GameType) error {
	if err := gt.validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if q, ok := m.queues[gt.Name]; ok {
		q.mu.Lock()
		q.config = gt
		q.mu.Unlock()
		m.logger.Debug("Updated game type", "game_type", gt.Name)
		return nil
	}

	m.queues[gt.Name] = &queue{config: gt}
	m.logger.Info("Registered game type", "game_type", gt.Name,
		"min", gt.MinPlayers, "max", gt.MaxPlayers, "timeout", gt.StartTimeout)
	return nil
}

// Registered reports whether a game type is known
func (m *Matchmaker) Registered(gameType string) bool {
	return m.queue(gameType) != nil
}

func (m *Matchmaker) queue(gameType string) *queue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.queues[gameType]
}

// TryJoinRunning places the participant into a running session when the
// game type supports late joins and one has room.
func (m *Matchmaker) TryJoinRunning(p *session.Participant, gameType string) session.Session {
	q := m.queue(gameType)
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return m.joinRunningLocked(q, p)
}

func (m *Matchmaker) joinRunningLocked(q *queue, p *session.Participant) session.Session {
	if q.config.JoinRunning == nil {
		return nil
	}
	s := q.config.JoinRunning(p)
	if s == nil {
		return nil
	}
	m.assign(p.ID, q.config.Name, s.ID())
	m.logger.Info("Late join", "participant", p.ID, "session", s.ID(), "game_type", q.config.Name)
	return s
}

// AddAndMaybeStart is the join entrypoint for game types that allow late
// joins. It returns the session and true for a late join, the session and
// false when this join started a new session, and nil while waiting.
// A participant that is already queued is ignored.
func (m *Matchmaker) AddAndMaybeStart(p *session.Participant, gameType string) (session.Session, bool) {
	q := m.queue(gameType)
	if q == nil {
		return nil, false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(p.ID) >= 0 {
		return nil, false
	}
	if s := m.joinRunningLocked(q, p); s != nil {
		return s, true
	}

	m.enqueueLocked(q, p)
	if len(q.entries) >= q.config.MaxPlayers {
		return m.startLocked(q), false
	}
	if len(q.entries) >= q.config.MinPlayers {
		m.armLocked(q)
	}
	return nil, false
}

// Enqueue adds the participant without making a start decision. It
// reports false for an unknown game type or a duplicate.
func (m *Matchmaker) Enqueue(p *session.Participant, gameType string) bool {
	q := m.queue(gameType)
	if q == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.indexOf(p.ID) >= 0 {
		return false
	}
	m.enqueueLocked(q, p)
	return true
}

// TryStart starts a session when the queue is full, and arms the start
// timeout once the minimum is met. It returns nil while waiting.
func (m *Matchmaker) TryStart(gameType string) session.Session {
	q := m.queue(gameType)
	if q == nil {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.config.MaxPlayers {
		return m.startLocked(q)
	}
	if len(q.entries) >= q.config.MinPlayers {
		m.armLocked(q)
	}
	return nil
}

func (m *Matchmaker) enqueueLocked(q *queue, p *session.Participant) {
	q.entries = append(q.entries, entry{participant: p, enqueuedAt: m.clock.Now()})
	m.assign(p.ID, q.config.Name, "")
	m.logger.Debug("Queued participant", "participant", p.ID, "game_type", q.config.Name, "queued", len(q.entries))
}

// Remove withdraws a participant from whichever queue holds it and reports
// whether an entry was removed. When the participant is not queued it
// returns the session they were placed into, read under the queue lock so
// that a start racing this call is never missed.
func (m *Matchmaker) Remove(participantID string) (string, bool) {
	gameType, _ := m.lookup(participantID)
	q := m.queue(gameType)
	if q == nil {
		return "", false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.indexOf(participantID)
	if i < 0 {
		_, sessionID := m.lookup(participantID)
		return sessionID, false
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	m.Forget(participantID)
	if len(q.entries) < q.config.MinPlayers {
		m.cancelLocked(q)
	}
	m.logger.Debug("Removed participant from queue", "participant", participantID, "game_type", gameType, "queued", len(q.entries))
	return "", true
}

func (m *Matchmaker) armLocked(q *queue) {
	if q.timer != nil {
		return
	}
	q.generation++
	gen := q.generation
	q.timer = m.clock.AfterFunc(q.config.StartTimeout, func() {
		m.onStartTimeout(q, gen)
	}, "matchmaking", "start", q.config.Name)
	m.logger.Debug("Armed start timeout", "game_type", q.config.Name, "timeout", q.config.StartTimeout)
}

func (m *Matchmaker) cancelLocked(q *queue) {
	if q.timer == nil {
		return
	}
	q.timer.Stop()
	q.timer = nil
	q.generation++
}

// onStartTimeout runs on the clock's goroutine. A fire that lost the race
// against a cancel sees a newer generation and does nothing.
func (m *Matchmaker) onStartTimeout(q *queue, gen uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if gen != q.generation {
		return
	}
	q.timer = nil
	if len(q.entries) < q.config.MinPlayers {
		return
	}
	m.logger.Info("Start timeout elapsed", "game_type", q.config.Name, "queued", len(q.entries))
	m.startLocked(q)
}

// startLocked moves the first MaxPlayers entries into a new session.
// A failed factory leaves the entries queued and the timeout armed, so the
// start is retried.
func (m *Matchmaker) startLocked(q *queue) session.Session {
	s, err := q.config.NewSession()
	if err != nil {
		m.logger.Error("Failed to create session", "game_type", q.config.Name, "error", err)
		m.armLocked(q)
		return nil
	}
	m.cancelLocked(q)

	n := min(len(q.entries), q.config.MaxPlayers)
	taken := q.entries[:n]
	q.entries = append([]entry(nil), q.entries[n:]...)

	for _, e := range taken {
		s.AddParticipant(e.participant)
		m.assign(e.participant.ID, q.config.Name, s.ID())
	}
	s.Advance(session.Playing)

	m.logger.Info("Session started", "game_type", q.config.Name, "session", s.ID(), "participants", n, "still_queued", len(q.entries))

	if q.config.OnSessionStart != nil {
		q.config.OnSessionStart(s)
	}
	if len(q.entries) >= q.config.MinPlayers {
		m.armLocked(q)
	}
	return s
}

func (m *Matchmaker) assign(participantID, gameType, sessionID string) {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	m.gameTypes[participantID] = gameType
	if sessionID != "" {
		m.sessions[participantID] = sessionID
	} else {
		delete(m.sessions, participantID)
	}
}

func (m *Matchmaker) lookup(participantID string) (gameType, sessionID string) {
	m.assignMu.RLock()
	defer m.assignMu.RUnlock()
	return m.gameTypes[participantID], m.sessions[participantID]
}

// GameTypeOf returns the game type a participant queued for or plays
func (m *Matchmaker) GameTypeOf(participantID string) (string, bool) {
	gameType, _ := m.lookup(participantID)
	return gameType, gameType != ""
}

// SessionOf returns the session a participant was placed into
func (m *Matchmaker) SessionOf(participantID string) (string, bool) {
	_, sessionID := m.lookup(participantID)
	return sessionID, sessionID != ""
}

// Assign records a session created outside the queue, such as a duel
// against an automated opponent.
func (m *Matchmaker) Assign(participantID, gameType, sessionID string) {
	m.assign(participantID, gameType, sessionID)
}

// Forget drops every association of the participant
func (m *Matchmaker) Forget(participantID string) {
	m.assignMu.Lock()
	defer m.assignMu.Unlock()
	delete(m.gameTypes, participantID)
	delete(m.sessions, participantID)
}

// QueueSize returns the number of participants waiting for a game type
func (m *Matchmaker) QueueSize(gameType string) int {
	q := m.queue(gameType)
	if q == nil {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Queued returns the ids waiting for a game type, in arrival order
func (m *Matchmaker) Queued(gameType string) []string {
	q := m.queue(gameType)
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]string, len(q.entries))
	for i, e := range q.entries {
		ids[i] = e.participant.ID
	}
	return ids
}

// QueueStats is a point-in-time view of one queue
type QueueStats struct {
	GameType    string        `json:"game_type"`
	Queued      int           `json:"queued"`
	MinPlayers  int           `json:"min_players"`
	MaxPlayers  int           `json:"max_players"`
	TimerArmed  bool          `json:"timer_armed"`
	LongestWait time.Duration `json:"longest_wait_ns"`
}

// Snapshot returns the state of every queue, sorted by game type
func (m *Matchmaker) Snapshot() []QueueStats {
	m.mu.RLock()
	queues := make([]*queue, 0, len(m.queues))
	for _, q := range m.queues {
		queues = append(queues, q)
	}
	m.mu.RUnlock()

	now := m.clock.Now()
	stats := make([]QueueStats, 0, len(queues))
	for _, q := range queues {
		q.mu.Lock()
		st := QueueStats{
			GameType:   q.config.Name,
			Queued:     len(q.entries),
			MinPlayers: q.config.MinPlayers,
			MaxPlayers: q.config.MaxPlayers,
			TimerArmed: q.timer != nil,
		}
		if len(q.entries) > 0 {
			st.LongestWait = now.Sub(q.entries[0].enqueuedAt)
		}
		q.mu.Unlock()
		stats = append(stats, st)
	}

	sort.Slice(stats, func(i, j int) bool { return stats[i].GameType < stats[j].GameType })
	return stats
}
