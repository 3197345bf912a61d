// Package sessiontest provides an in-memory Transport for tests.
package sessiontest

import (
	"sync"

	"github.com/iKenshu/quodpot-game/internal/protocol"
	"github.com/iKenshu/quodpot-game/internal/session"
)

// Recorder is a session.Transport that keeps every event per recipient
type Recorder struct {
	mu     sync.Mutex
	events map[string][]protocol.Event
	queues map[string][]protocol.Event

	// QueueMembers resolves queue broadcasts to recipients when set
	QueueMembers func(gameType string) []string
}

var _ session.Transport = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		events: make(map[string][]protocol.Event),
		queues: make(map[string][]protocol.Event),
	}
}

func (r *Recorder) SendTo(participantID string, ev protocol.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[participantID] = append(r.events[participantID], ev)
}

func (r *Recorder) BroadcastToSession(s session.Session, ev protocol.Event) {
	r.BroadcastToSessionExcept(s, ev, "")
}

func (r *Recorder) BroadcastToSessionExcept(s session.Session, ev protocol.Event, excludedID string) {
	for _, p := range s.ConnectedParticipants() {
		if p.ID == excludedID || p.Automated() {
			continue
		}
		r.SendTo(p.ID, ev)
	}
}

func (r *Recorder) BroadcastToQueue(ev protocol.Event, gameType string) {
	r.mu.Lock()
	r.queues[gameType] = append(r.queues[gameType], ev)
	members := r.QueueMembers
	r.mu.Unlock()

	if members == nil {
		return
	}
	for _, id := range members(gameType) {
		r.SendTo(id, ev)
	}
}

// Events returns a copy of everything sent to the participant
func (r *Recorder) Events(participantID string) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.events[participantID]...)
}

// Types lists the event types sent to the participant, in order
func (r *Recorder) Types(participantID string) []protocol.MessageType {
	var out []protocol.MessageType
	for _, ev := range r.Events(participantID) {
		out = append(out, ev.EventType())
	}
	return out
}

// QueueEvents returns the broadcasts made to a game type's queue
func (r *Recorder) QueueEvents(gameType string) []protocol.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Event(nil), r.queues[gameType]...)
}

// Reset forgets everything recorded so far
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = make(map[string][]protocol.Event)
	r.queues = make(map[string][]protocol.Event)
}

// Find returns the events of type T sent to the participant
func Find[T protocol.Event](r *Recorder, participantID string) []T {
	var out []T
	for _, ev := range r.Events(participantID) {
		if v, ok := ev.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

// Last returns the most recent event of type T sent to the participant
func Last[T protocol.Event](r *Recorder, participantID string) (T, bool) {
	found := Find[T](r, participantID)
	if len(found) == 0 {
		var zero T
		return zero, false
	}
	return found[len(found)-1], true
}
