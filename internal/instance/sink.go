package instance

import (
	"github.com/google/uuid"
	"github.com/relayforge/hostess/internal/wire"
)

// Sink is the outbound half of a client's duplex connection. Implementations
// (transport/ws.Conn) must update their rate meter on every successful send.
// Send is expected to block until the write completes or fails — a slow
// client slows only its own fan-out for the current tick, never the tick
// clock itself (spec.md §5).
type Sink interface {
	Send(msg wire.ServerMsg) error
	BytesPerSecond() float32
}

// Stream is the inbound half of a client's duplex connection, owned by the
// client session for as long as the client is not transferred to an
// instance.
type Stream interface {
	Next() (wire.ClientMsg, error)
}

// clientEntry is what the instance holds per registered client: the
// borrowed sink and the one-shot it owes back to the lending session.
type clientEntry struct {
	clientID   uuid.UUID
	clientName string
	sink       Sink
	ret        chan<- Sink
}
