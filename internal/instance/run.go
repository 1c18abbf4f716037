package instance

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/relayforge/hostess/internal/eventbus"
	"github.com/relayforge/hostess/internal/simulation"
	"github.com/relayforge/hostess/internal/wire"
)

// run is the instance's single goroutine. It owns every piece of mutable
// state below — clients, sim, the simulation.Context — without any
// locking; the only synchronized state is i.Info, written here and read
// by everyone else.
func (i *Instance) run(ctx context.Context, constructor simulation.Constructor, opts Options, logger *slog.Logger, bus eventbus.Publisher) {
	logger = logger.With("instance_id", i.ID)
	defer close(i.done)

	sim := constructor()
	cfg := sim.Init()
	if cfg.TickRate == 0 {
		cfg.TickRate = 20
	}
	i.Info.mu.Lock()
	i.Info.v = wire.InstanceInfo{ID: i.ID, MaxPlayers: cfg.MaxPlayers}
	i.Info.mu.Unlock()

	publish(bus, logger, eventbus.Event{Kind: eventbus.KindInstanceCreated, InstanceID: i.ID})

	clients := make(map[uuid.UUID]*clientEntry)
	simCtx := simulation.NewContext()
	simCtx.Delta = 1.0 / float64(cfg.TickRate)

	start := time.Now()
	lastTick := start

	ticker := time.NewTicker(time.Second / time.Duration(cfg.TickRate))
	defer ticker.Stop()

	var idleTimer *time.Timer
	var idleC <-chan time.Time
	if opts.IdleGrace > 0 {
		idleTimer = time.NewTimer(opts.IdleGrace)
		idleC = idleTimer.C
		defer idleTimer.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			i.terminate(clients, bus, logger)
			return

		case <-idleC:
			if len(clients) == 0 {
				logger.Info("instance idle grace expired, terminating")
				i.terminate(clients, bus, logger)
				return
			}

		case now := <-ticker.C:
			simCtx.Delta = now.Sub(lastTick).Seconds()
			simCtx.Time = now.Sub(start).Seconds()
			lastTick = now
			if panicked := i.doTick(sim, simCtx, clients, logger); panicked {
				i.terminate(clients, bus, logger)
				return
			}

		case msg := <-i.mailbox:
			i.handleMailbox(msg, clients, simCtx, &i.Info.v, bus, logger)
			if idleTimer != nil {
				if len(clients) > 0 {
					if !idleTimer.Stop() {
						select {
						case <-idleTimer.C:
						default:
						}
					}
				} else {
					idleTimer.Reset(opts.IdleGrace)
				}
			}
		}
	}
}

// doTick advances the simulation by one step and delivers its outbound
// fan-out. A panic inside sim.Tick is isolated here: it reports back to
// run, which terminates only this instance — never the process — per
// spec.md §9's "simulation panics must not crash the host".
func (i *Instance) doTick(sim simulation.Simulation, ctx *simulation.Context, clients map[uuid.UUID]*clientEntry, logger *slog.Logger) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("simulation panicked during tick, instance terminating", "panic", r)
			ctx.ClearIn()
			panicked = true
		}
	}()

	sim.Tick(ctx)
	ctx.ClearIn()

	for _, out := range ctx.DrainOut() {
		deliver(out, clients, logger)
	}
	return false
}

func deliver(out simulation.OutMsg, clients map[uuid.UUID]*clientEntry, logger *slog.Logger) {
	send := func(c *clientEntry) {
		msg := wire.ServerMsg{Tag: wire.TagCustom, Payload: out.Payload}
		if err := c.sink.Send(msg); err != nil {
			logger.Warn("client send failed, keeping client until it leaves", "client_id", c.clientID, "error", err)
		}
	}

	switch out.Kind {
	case simulation.OutMsgCustomToAll:
		for _, c := range clients {
			send(c)
		}
	case simulation.OutMsgCustomTo:
		if c, ok := clients[out.ClientID]; ok {
			send(c)
		}
	}
}

// handleMailbox dispatches one mailbox message. It is the only place
// current_players is mutated, and the only place sinks change hands.
func (i *Instance) handleMailbox(msg mailboxMsg, clients map[uuid.UUID]*clientEntry, simCtx *simulation.Context, info *wire.InstanceInfo, bus eventbus.Publisher, logger *slog.Logger) {
	switch m := msg.(type) {
	case transferMsg:
		i.handleTransfer(m, clients, simCtx, info, bus, logger)

	case inMsgEnvelope:
		switch m.msg.Kind {
		case simulation.InMsgClientLeft:
			i.handleLeave(m.msg.ClientID, clients, simCtx, info, bus, logger)
		case simulation.InMsgCustomMsg:
			if _, ok := clients[m.msg.ClientID]; ok {
				simCtx.PushIn(m.msg)
			}
		}

	case pingMsg:
		if c, ok := clients[m.clientID]; ok {
			pong := wire.ServerMsg{Tag: wire.TagPong, Tick: m.tick, ServerBytesSec: c.sink.BytesPerSecond()}
			pong.ClientBytesSec = pong.ServerBytesSec
			if err := c.sink.Send(pong); err != nil {
				logger.Warn("pong send failed", "client_id", m.clientID, "error", err)
			}
		}
	}
}

func (i *Instance) handleTransfer(m transferMsg, clients map[uuid.UUID]*clientEntry, simCtx *simulation.Context, info *wire.InstanceInfo, bus eventbus.Publisher, logger *slog.Logger) {
	i.Info.mu.RLock()
	full := info.CurrentPlayers >= info.MaxPlayers
	snapshot := *info
	i.Info.mu.RUnlock()

	if full {
		if err := m.sink.Send(wire.ServerMsg{Tag: wire.TagJoinRejected, Instance: snapshot}); err != nil {
			logger.Warn("join-rejected send failed", "client_id", m.clientID, "error", err)
		}
		m.ret <- m.sink
		return
	}

	clients[m.clientID] = &clientEntry{clientID: m.clientID, clientName: m.clientName, sink: m.sink, ret: m.ret}

	i.Info.mu.Lock()
	info.CurrentPlayers = uint32(len(clients))
	snapshot = *info
	i.Info.mu.Unlock()

	if err := m.sink.Send(wire.ServerMsg{Tag: wire.TagJoinedInstance, Instance: snapshot}); err != nil {
		logger.Warn("joined-instance send failed", "client_id", m.clientID, "error", err)
	}

	simCtx.PushIn(simulation.InMsg{Kind: simulation.InMsgClientJoined, ClientID: m.clientID, ClientName: m.clientName})

	publish(bus, logger, eventbus.Event{Kind: eventbus.KindClientJoined, InstanceID: i.ID, ClientID: m.clientID, ClientName: m.clientName})
}

func (i *Instance) handleLeave(clientID uuid.UUID, clients map[uuid.UUID]*clientEntry, simCtx *simulation.Context, info *wire.InstanceInfo, bus eventbus.Publisher, logger *slog.Logger) {
	c, ok := clients[clientID]
	if !ok {
		return
	}
	delete(clients, clientID)

	i.Info.mu.Lock()
	info.CurrentPlayers = uint32(len(clients))
	i.Info.mu.Unlock()

	simCtx.PushIn(simulation.InMsg{Kind: simulation.InMsgClientLeft, ClientID: clientID})
	c.ret <- c.sink

	publish(bus, logger, eventbus.Event{Kind: eventbus.KindClientLeft, InstanceID: i.ID, ClientID: clientID})
}

// terminate returns every still-held sink to its session, drains any
// transferMsg still sitting unread in the mailbox (returning those sinks
// too, with a JoinRejected — an instance that's gone is full in every
// sense that matters to a joiner), and publishes the terminal lifecycle
// event. Called by run on Stop (context cancellation), on idle-grace
// expiry, and after doTick's own recover reports a simulation panic.
func (i *Instance) terminate(clients map[uuid.UUID]*clientEntry, bus eventbus.Publisher, logger *slog.Logger) {
	for id, c := range clients {
		c.ret <- c.sink
		delete(clients, id)
	}

	for {
		select {
		case msg := <-i.mailbox:
			if m, ok := msg.(transferMsg); ok {
				if err := m.sink.Send(wire.ServerMsg{Tag: wire.TagJoinRejected}); err != nil {
					logger.Warn("join-rejected send failed during terminate", "client_id", m.clientID, "error", err)
				}
				m.ret <- m.sink
			}
		default:
			publish(bus, logger, eventbus.Event{Kind: eventbus.KindInstanceTerminated, InstanceID: i.ID})
			return
		}
	}
}

func publish(bus eventbus.Publisher, logger *slog.Logger, ev eventbus.Event) {
	if bus == nil {
		return
	}
	if err := bus.Publish(context.Background(), ev); err != nil {
		logger.Warn("lifecycle event publish failed", "kind", ev.Kind, "error", err)
	}
}
