// Package dispatch routes client actions to the admission queue and to the
// state machine that owns the sender's session.
package dispatch

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"

	"github.com/iKenshu/quodpot-game/internal/duel"
	"github.com/iKenshu/quodpot-game/internal/matchmaking"
	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/race"
	"github.com/iKenshu/quodpot-game/internal/session"
)

// MaxNameLength bounds display names, in characters
const MaxNameLength = 20

// Client is the dispatcher's view of one connection
type Client interface {
	// ParticipantID is empty until the connection joins
	ParticipantID() string
	Bind(participantID string)
	Unbind()
	Send(ev protocol.Event)
}

// Config holds the admission settings of both game types
type Config struct {
	Race             race.Config
	DuelStartTimeout time.Duration
	DefaultGameType  string
}

// Dispatcher is created once at startup and shared by every connection
type Dispatcher struct {
	matchmaker *matchmaking.Matchmaker
	duels      *duel.Manager
	races      *race.Manager
	transport  session.Transport
	logger     *log.Logger
	defaultGT  string
}

// New registers the race and duel game types with the matchmaker and
// returns the dispatcher that serves them.
func New(cfg Config, mm *matchmaking.Matchmaker, duels *duel.Manager, races *race.Manager, transport session.Transport, logger *log.Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		matchmaker: mm,
		duels:      duels,
		races:      races,
		transport:  transport,
		logger:     logger.WithPrefix("dispatch"),
		defaultGT:  cfg.DefaultGameType,
	}
	if d.defaultGT == "" {
		d.defaultGT = race.GameType
	}

	err := mm.Register(matchmaking.GameType{
		Name:           race.GameType,
		MinPlayers:     cfg.Race.MinPlayers,
		MaxPlayers:     cfg.Race.MaxPlayers,
		StartTimeout:   cfg.Race.StartTimeout,
		NewSession:     races.NewSession,
		OnSessionStart: races.Start,
		JoinRunning:    races.JoinRunning,
	})
	if err != nil {
		return nil, fmt.Errorf("register race: %w", err)
	}

	err = mm.Register(matchmaking.GameType{
		Name:           duel.GameType,
		MinPlayers:     2,
		MaxPlayers:     2,
		StartTimeout:   cfg.DuelStartTimeout,
		NewSession:     duels.NewSession,
		OnSessionStart: duels.Start,
	})
	if err != nil {
		return nil, fmt.Errorf("register duels: %w", err)
	}

	return d, nil
}

// Handle parses one raw client message and acts on it. Calls for the same
// client must not overlap.
func (d *Dispatcher) Handle(c Client, raw []byte) {
	action, err := protocol.ParseAction(raw)
	if err != nil {
		d.logger.Warn("Rejected message", "participant", c.ParticipantID(), "error", err)
		c.Send(protocol.Error{Message: err.Error()})
		return
	}

	switch a := action.(type) {
	case protocol.Join:
		d.join(c, a)
	case protocol.Leave:
		d.Leave(c)
	case protocol.Guess:
		d.guess(c, a)
	case protocol.CastAction:
		d.cast(c, a)
	}
}

func (d *Dispatcher) join(c Client, a protocol.Join) {
	if c.ParticipantID() != "" {
		c.Send(protocol.Error{Message: "already joined"})
		return
	}

	name := strings.TrimSpace(a.PlayerName)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		c.Send(protocol.Error{Message: fmt.Sprintf("name must be 1 to %d characters", MaxNameLength)})
		return
	}

	gameType := a.GameType
	if gameType == "" {
		gameType = d.defaultGT
	}
	if !d.matchmaker.Registered(gameType) {
		c.Send(protocol.Error{Message: fmt.Sprintf("unknown game type %q", gameType)})
		return
	}

	mode := duel.Mode(strings.ToLower(a.Mode))
	if gameType == duel.GameType {
		switch mode {
		case "":
			mode = duel.PVP
		case duel.PVP, duel.PVE:
		default:
			c.Send(protocol.Error{Message: fmt.Sprintf("unknown mode %q", a.Mode)})
			return
		}
	}

	p := session.NewParticipant(name, d.transport)
	c.Bind(p.ID)
	logger := d.logger.With("participant", p.ID, "game_type", gameType)

	switch {
	case gameType == duel.GameType && mode == duel.PVE:
		pve := d.duels.StartPVE(p)
		d.matchmaker.Assign(p.ID, duel.GameType, pve.ID())

	case gameType == duel.GameType:
		d.matchmaker.Enqueue(p, gameType)
		d.matchmaker.TryStart(gameType)

	default:
		if s, late := d.matchmaker.AddAndMaybeStart(p, gameType); late {
			logger.Debug("Joined running session", "session", s.ID())
		}
	}

	// A concurrent join may have started a session that does not include
	// this participant, so ask the matchmaker where it ended up.
	sessionID, _ := d.matchmaker.SessionOf(p.ID)
	c.Send(protocol.Joined{ParticipantID: p.ID, SessionID: sessionID, Name: p.Name})
	logger.Info("Participant joined", "name", name, "session", sessionID)

	if sessionID == "" {
		d.refreshWaiting(gameType)
	}
}

// Leave withdraws the client's participant from its queue or session. It is
// also the disconnect path.
func (d *Dispatcher) Leave(c Client) {
	id := c.ParticipantID()
	if id == "" {
		return
	}
	c.Unbind()

	gameType, known := d.matchmaker.GameTypeOf(id)
	if !known {
		return
	}
	sessionID, removed := d.matchmaker.Remove(id)
	if sessionID != "" {
		var err error
		switch gameType {
		case race.GameType:
			err = d.races.Leave(sessionID, id)
		case duel.GameType:
			err = d.duels.Leave(sessionID, id)
		}
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			d.logger.Error("Leave failed", "participant", id, "session", sessionID, "error", err)
		}
	}
	d.matchmaker.Forget(id)
	d.logger.Info("Participant left", "participant", id, "game_type", gameType, "session", sessionID)

	if removed {
		d.refreshWaiting(gameType)
	}
}

func (d *Dispatcher) guess(c Client, a protocol.Guess) {
	sessionID, ok := d.route(c, race.GameType)
	if !ok {
		return
	}
	_, err := d.races.Guess(sessionID, c.ParticipantID(), a.Letter)
	d.report(c, err)
}

func (d *Dispatcher) cast(c Client, a protocol.CastAction) {
	sessionID, ok := d.route(c, duel.GameType)
	if !ok {
		return
	}
	d.report(c, d.duels.Cast(sessionID, c.ParticipantID(), a.Action))
}

// route finds the session an in-game action belongs to. Out-of-sequence
// actions are answered with an error event.
func (d *Dispatcher) route(c Client, want string) (string, bool) {
	id := c.ParticipantID()
	if id == "" {
		c.Send(protocol.Error{Message: "join a game first"})
		return "", false
	}
	gameType, _ := d.matchmaker.GameTypeOf(id)
	if gameType != want {
		c.Send(protocol.Error{Message: fmt.Sprintf("action not valid in %s", gameType)})
		return "", false
	}
	sessionID, ok := d.matchmaker.SessionOf(id)
	if !ok {
		c.Send(protocol.Error{Message: "game has not started yet"})
		return "", false
	}
	return sessionID, true
}

func (d *Dispatcher) report(c Client, err error) {
	switch {
	case err == nil:
	case errors.Is(err, session.ErrNotFound):
		d.logger.Debug("Action for vanished session", "participant", c.ParticipantID())
	default:
		d.logger.Warn("Action rejected", "participant", c.ParticipantID(), "error", err)
		c.Send(protocol.Error{Message: err.Error()})
	}
}

func (d *Dispatcher) refreshWaiting(gameType string) {
	n := d.matchmaker.QueueSize(gameType)
	if n == 0 {
		return
	}
	d.transport.BroadcastToQueue(protocol.Waiting{
		QueueSize: n,
		Message:   fmt.Sprintf("Waiting for players (%d in queue)", n),
	}, gameType)
}

// Stats is the snapshot served on /stats
type Stats struct {
	Queues         []matchmaking.QueueStats `json:"queues"`
	ActiveSessions map[string]int           `json:"active_sessions"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Queues: d.matchmaker.Snapshot(),
		ActiveSessions: map[string]int{
			race.GameType: len(d.races.ActiveSessions()),
			duel.GameType: len(d.duels.ActiveSessions()),
		},
	}
}

// Sweep drops finished and abandoned sessions from both registries
func (d *Dispatcher) Sweep() int {
	n := d.races.Sweep() + d.duels.Sweep()
	if n > 0 {
		d.logger.Debug("Swept sessions", "removed", n)
	}
	return n
}
