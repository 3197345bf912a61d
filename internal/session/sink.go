package session

import "github.com/iKenshu/quodpot-game/internal/protocol"

// MessageSink receives the events addressed to a single participant
type MessageSink interface {
	Send(ev protocol.Event)
}

// HumanSink forwards events to the participant's connection
type HumanSink struct {
	transport   Transport
	participant *Participant
}

func (s HumanSink) Send(ev protocol.Event) {
	if s.transport == nil || !s.participant.Connected() {
		return
	}
	s.transport.SendTo(s.participant.ID, ev)
}

// AutomatedSink drops everything
type AutomatedSink struct{}

func (AutomatedSink) Send(protocol.Event) {}
