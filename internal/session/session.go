// Package session holds the pieces shared by every game type: participants,
// the session lifecycle and the in-memory registry of running sessions.
package session

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session or participant id is unknown
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a session
type Status int

const (
	Waiting Status = iota
	Playing
	Finished
)

func (s Status) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Playing:
		return "playing"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Session is the behaviour the queue, the registry and the transport need
// from any game session.
type Session interface {
	ID() string
	GameType() string
	Status() Status
	Advance(to Status) bool
	AddParticipant(p *Participant)
	Participant(id string) (*Participant, bool)
	Participants() []*Participant
	ConnectedParticipants() []*Participant
	ConnectedCount() int
	MarkDisconnected(id string) bool
	Winner() string
	SetWinner(id string)
	CreatedAt() time.Time
}

// NewID returns a short upper-case session id
func NewID() string {
	return strings.ToUpper(uuid.NewString()[:8])
}

// Base implements Session. Game sessions embed it.
type Base struct {
	mu           sync.RWMutex
	id           string
	gameType     string
	status       Status
	participants map[string]*Participant
	order        []string
	winner       string
	createdAt    time.Time
}

// NewBase creates a Waiting session of the given game type
func NewBase(gameType string, createdAt time.Time) *Base {
	return &Base{
		id:           NewID(),
		gameType:     gameType,
		status:       Waiting,
		participants: make(map[string]*Participant),
		createdAt:    createdAt,
	}
}

func (b *Base) ID() string           { return b.id }
func (b *Base) GameType() string     { return b.gameType }
func (b *Base) CreatedAt() time.Time { return b.createdAt }

func (b *Base) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// Advance moves the session forward to the given status. Moves backwards or
// to the current status are ignored and report false.
func (b *Base) Advance(to Status) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if to <= b.status {
		return false
	}
	b.status = to
	return true
}

// AddParticipant adds p. Adding an id twice keeps the first entry.
func (b *Base) AddParticipant(p *Participant) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.participants[p.ID]; exists {
		return
	}
	b.participants[p.ID] = p
	b.order = append(b.order, p.ID)
}

func (b *Base) Participant(id string) (*Participant, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.participants[id]
	return p, ok
}

// Participants returns every participant in join order, including the
// disconnected ones.
func (b *Base) Participants() []*Participant {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Participant, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.participants[id])
	}
	return out
}

func (b *Base) ConnectedParticipants() []*Participant {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*Participant, 0, len(b.order))
	for _, id := range b.order {
		if p := b.participants[id]; p.Connected() {
			out = append(out, p)
		}
	}
	return out
}

func (b *Base) ConnectedCount() int {
	return len(b.ConnectedParticipants())
}

// MarkDisconnected flags the participant as gone. It reports false for an
// unknown id.
func (b *Base) MarkDisconnected(id string) bool {
	p, ok := b.Participant(id)
	if !ok {
		return false
	}
	p.Disconnect()
	return true
}

func (b *Base) Winner() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.winner
}

func (b *Base) SetWinner(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.winner = id
}
