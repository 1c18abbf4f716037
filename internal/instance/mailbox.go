package instance

import (
	"github.com/google/uuid"
	"github.com/relayforge/hostess/internal/simulation"
)

// mailboxMsg is the closed set of internal (non-wire) messages a session or
// the lobby may send to a running instance (spec.md §4.C).
type mailboxMsg interface{ isMailboxMsg() }

// transferMsg offers a client's sink for join. Capacity is checked when
// this is dispatched, not when it is sent — the instance's single
// goroutine is the only place current_players is mutated.
type transferMsg struct {
	clientID   uuid.UUID
	clientName string
	sink       Sink
	ret        chan<- Sink
}

func (transferMsg) isMailboxMsg() {}

// inMsgEnvelope carries a ClientLeft or CustomMsg in-message. ClientJoined
// is produced only by the runtime itself on a successful transfer — a
// session never sends one.
type inMsgEnvelope struct {
	msg simulation.InMsg
}

func (inMsgEnvelope) isMailboxMsg() {}

// pingMsg asks the instance to reply with a Pong on the registered
// client's sink, reading that sink's current rate meter.
type pingMsg struct {
	clientID uuid.UUID
	tick     float64
}

func (pingMsg) isMailboxMsg() {}
