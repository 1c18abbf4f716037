// Package instance implements the per-instance actor (spec.md §4.C): a
// single owning goroutine coupling a fixed-rate tick clock with an
// asynchronous mailbox, a client sink registry, and at-most-one-delivery
// fan-out. External parties talk to it only by sending mailbox messages —
// modeled here as one buffered channel of a small closed interface.
package instance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/relayforge/hostess/internal/eventbus"
	"github.com/relayforge/hostess/internal/simulation"
	"github.com/relayforge/hostess/internal/wire"
)

// Options configures a spawned instance. Zero value is usable; MailboxSize
// falls back to 1024 (spec.md §5's recommended floor).
type Options struct {
	MailboxSize int
	// IdleGrace, when > 0, auto-terminates the instance after this long
	// with zero connected players (spec.md §9 Open Question — resolved,
	// see DESIGN.md). Zero disables auto-termination.
	IdleGrace time.Duration
}

func (o Options) withDefaults() Options {
	if o.MailboxSize <= 0 {
		o.MailboxSize = 1024
	}
	return o
}

// SharedInfo is the reader/writer-lockable metadata cell every instance
// exposes (spec.md §3): the owning instance goroutine is the sole writer,
// the lobby and join attempts are readers.
type SharedInfo struct {
	mu sync.RWMutex
	v  wire.InstanceInfo
}

// Snapshot returns a copy safe to hand to any reader.
func (s *SharedInfo) Snapshot() wire.InstanceInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v
}

// Instance is a cheap, clonable handle: cloning it just copies the pointer
// and the channel sender, sharing the one goroutine underneath. Its
// lifetime is driven by that goroutine, not by reference counting
// (spec.md §9 Design Notes).
type Instance struct {
	ID   uuid.UUID
	Info *SharedInfo

	mailbox chan mailboxMsg
	done    chan struct{}
	cancel  context.CancelFunc
}

// Spawn starts the instance's goroutine and returns immediately; Init and
// the first tick happen asynchronously.
func Spawn(id uuid.UUID, constructor simulation.Constructor, opts Options, logger *slog.Logger, bus eventbus.Publisher) *Instance {
	opts = opts.withDefaults()
	runCtx, cancel := context.WithCancel(context.Background())

	inst := &Instance{
		ID:      id,
		Info:    &SharedInfo{},
		mailbox: make(chan mailboxMsg, opts.MailboxSize),
		done:    make(chan struct{}),
		cancel:  cancel,
	}

	go inst.run(runCtx, constructor, opts, logger, bus)
	return inst
}

// Stop requests termination; it does not block for the goroutine to exit.
// Use Done to observe completion. All held sinks are returned through
// their one-shots before the goroutine exits, per spec.md §5.
func (i *Instance) Stop() { i.cancel() }

// Done closes once the instance goroutine has fully exited.
func (i *Instance) Done() <-chan struct{} { return i.done }

// Transfer offers sink for join. The returned channel receives the sink
// back exactly once, whether the join is accepted or rejected — the
// caller (a client session) awaits it to know when it regains ownership.
func (i *Instance) Transfer(ctx context.Context, clientID uuid.UUID, clientName string, sink Sink) (<-chan Sink, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ret := make(chan Sink, 1)
	msg := transferMsg{clientID: clientID, clientName: clientName, sink: sink, ret: ret}
	select {
	case i.mailbox <- msg:
		return ret, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-i.done:
		return nil, errInstanceTerminated
	}
}

// NotifyLeft tells the instance a client is leaving; the instance removes
// it from its registry and returns the sink through its one-shot.
func (i *Instance) NotifyLeft(ctx context.Context, clientID uuid.UUID) error {
	return i.send(ctx, inMsgEnvelope{msg: simulation.InMsg{Kind: simulation.InMsgClientLeft, ClientID: clientID}})
}

// NotifyCustom forwards an opaque client payload into the simulation's
// next tick.
func (i *Instance) NotifyCustom(ctx context.Context, clientID uuid.UUID, payload []byte) error {
	return i.send(ctx, inMsgEnvelope{msg: simulation.InMsg{Kind: simulation.InMsgCustomMsg, ClientID: clientID, Payload: payload}})
}

// NotifyPing asks the instance to reply with a Pong on clientID's sink.
func (i *Instance) NotifyPing(ctx context.Context, clientID uuid.UUID, tick float64) error {
	return i.send(ctx, pingMsg{clientID: clientID, tick: tick})
}

func (i *Instance) send(ctx context.Context, msg mailboxMsg) error {
	select {
	case i.mailbox <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-i.done:
		return errInstanceTerminated
	}
}

type instanceTerminatedError struct{}

func (instanceTerminatedError) Error() string { return "instance: mailbox send to terminated instance" }

var errInstanceTerminated error = instanceTerminatedError{}

// ErrTerminated is returned by Transfer/Notify* once the instance's
// goroutine has exited. Per spec.md §7, a session that observes this
// treats it exactly like a leave.
func ErrTerminated() error { return errInstanceTerminated }
