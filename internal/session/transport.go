package session

import "github.com/iKenshu/quodpot-game/internal/protocol"

// Transport delivers events to connected participants. Implementations
// must not block: events for a slow or closed connection are dropped.
type Transport interface {
	SendTo(participantID string, ev protocol.Event)
	BroadcastToSession(s Session, ev protocol.Event)
	BroadcastToSessionExcept(s Session, ev protocol.Event, excludedID string)
	BroadcastToQueue(ev protocol.Event, gameType string)
}
