// Package simulation is the abstract contract the instance runtime invokes
// once per tick (spec.md §4.E). It owns no concurrency of its own: the
// instance runtime calls Init once and Tick synchronously, from its single
// owning goroutine, every tick period.
package simulation

import "github.com/google/uuid"

// Config is returned by Init and fixes the instance's tick rate and
// capacity for its whole lifetime.
type Config struct {
	// TickRate is ticks per second. Period is 1000/TickRate milliseconds.
	TickRate uint64
	// MaxPlayers bounds concurrent clients; ClientTransfer beyond this is
	// rejected without mutating any state.
	MaxPlayers uint32
}

// InMsg is a mailbox-originated message the simulation observes during a
// tick, drained in exact mailbox arrival order.
type InMsg struct {
	Kind       InMsgKind
	ClientID   uuid.UUID
	ClientName string // set only for Kind == InMsgClientJoined
	Payload    []byte // set only for Kind == InMsgCustomMsg
}

type InMsgKind int

const (
	InMsgClientJoined InMsgKind = iota
	InMsgClientLeft
	InMsgCustomMsg
)

// OutMsg is appended by the simulation during Tick and fanned out by the
// runtime immediately after Tick returns.
type OutMsg struct {
	Kind     OutMsgKind
	ClientID uuid.UUID // set only for Kind == OutMsgCustomTo
	Payload  []byte
}

type OutMsgKind int

const (
	OutMsgCustomToAll OutMsgKind = iota
	OutMsgCustomTo
)

// Context is passed to Tick by reference; the simulation must not retain
// it past the call (spec.md §4.E).
type Context struct {
	in  []InMsg
	out []OutMsg

	// Delta is real elapsed seconds since the previous tick completed. It
	// can be arbitrarily large after a stall; simulations that integrate
	// motion are responsible for clamping it themselves.
	Delta float64
	// Time is monotonically increasing seconds since instance start.
	Time float64
}

// NewContext constructs an empty tick context. Used by the instance
// runtime; simulation authors only ever receive one through Tick.
func NewContext() *Context {
	return &Context{}
}

// PushIn appends a mailbox-originated message, to be drained by the
// simulation during the next Tick. Called only by the instance runtime.
func (c *Context) PushIn(m InMsg) {
	c.in = append(c.in, m)
}

// PopIn removes and returns the oldest undrained in-message. The
// simulation MUST fully drain these during Tick (spec.md §4.E); ok is
// false once the queue is empty.
func (c *Context) PopIn() (InMsg, bool) {
	if len(c.in) == 0 {
		return InMsg{}, false
	}
	m := c.in[0]
	c.in = c.in[1:]
	return m, true
}

// ClearIn discards any undrained in-messages. Called by the runtime after
// Tick returns — in-messages are tick-scoped and never carry over
// (spec.md §9).
func (c *Context) ClearIn() {
	c.in = nil
}

// PushOut appends an outbound fan-out message. Called by the simulation
// during Tick; any number of calls is permitted.
func (c *Context) PushOut(m OutMsg) {
	c.out = append(c.out, m)
}

// DrainOut removes and returns all outbound messages accumulated during
// the tick that just completed. Called only by the instance runtime.
func (c *Context) DrainOut() []OutMsg {
	out := c.out
	c.out = nil
	return out
}

// Simulation is the plug-in contract a game supplies to the lobby at
// instance-creation time (spec.md §4.E, §6).
type Simulation interface {
	Init() Config
	Tick(ctx *Context)
}

// Constructor is a zero-argument factory producing a fresh Simulation,
// supplied to the lobby so each instance gets its own simulation state.
type Constructor func() Simulation
