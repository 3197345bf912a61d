package session

import (
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/iKenshu/quodpot-game/internal/protocol"
)

// Participant is one player inside a session. After creation the
// connectivity flag is the only field that changes.
type Participant struct {
	ID   string
	Name string

	sink      MessageSink
	connected atomic.Bool
}

// NewParticipant creates a connected human participant whose events are
// delivered through the transport.
func NewParticipant(name string, transport Transport) *Participant {
	return NewParticipantWithID(uuid.NewString(), name, transport)
}

// NewParticipantWithID is NewParticipant with a caller chosen id
func NewParticipantWithID(id, name string, transport Transport) *Participant {
	p := &Participant{ID: id, Name: name}
	p.sink = HumanSink{transport: transport, participant: p}
	p.connected.Store(true)
	return p
}

// NewAutomatedParticipant creates a participant driven by the server. Events
// sent to it are discarded.
func NewAutomatedParticipant(id, name string) *Participant {
	p := &Participant{ID: id, Name: name, sink: AutomatedSink{}}
	p.connected.Store(true)
	return p
}

// Connected reports whether the participant is still attached
func (p *Participant) Connected() bool {
	return p.connected.Load()
}

// Disconnect marks the participant as gone. It is never undone.
func (p *Participant) Disconnect() {
	p.connected.Store(false)
}

// Automated reports whether a strategy plays for this participant
func (p *Participant) Automated() bool {
	_, ok := p.sink.(AutomatedSink)
	return ok
}

// Send delivers a personal event to the participant
func (p *Participant) Send(ev protocol.Event) {
	p.sink.Send(ev)
}
