// Package lobby is the multi-tenant instance registry (spec.md §4.D): it
// creates instances, hands out join attempts, lists instances for
// discovery, and reclaims terminated ones. Unlike the instance runtime it
// guards, the lobby's own state is plain RWMutex-guarded maps — creation
// and removal are rare relative to the tick-rate traffic happening inside
// each instance.
package lobby

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/relayforge/hostess/internal/eventbus"
	"github.com/relayforge/hostess/internal/instance"
	"github.com/relayforge/hostess/internal/simulation"
	"github.com/relayforge/hostess/internal/wire"
)

// Lobby is the process-wide registry of running instances.
type Lobby struct {
	mu        sync.RWMutex
	instances map[uuid.UUID]*instance.Instance

	tombstones    *lru.Cache[uuid.UUID, time.Time]
	tombstoneSize int

	mailboxSize int
	idleGrace   time.Duration

	logger *slog.Logger
	bus    eventbus.Publisher
}

// New builds an empty Lobby. bus may be nil, in which case lifecycle
// events are simply not published.
func New(logger *slog.Logger, bus eventbus.Publisher, opts ...Option) (*Lobby, error) {
	l := &Lobby{
		instances:     make(map[uuid.UUID]*instance.Instance),
		tombstoneSize: 256,
		logger:        logger,
		bus:           bus,
	}
	for _, opt := range opts {
		opt(l)
	}

	cache, err := lru.New[uuid.UUID, time.Time](l.tombstoneSize)
	if err != nil {
		return nil, fmt.Errorf("lobby: build tombstone cache: %w", err)
	}
	l.tombstones = cache

	return l, nil
}

// CreateInstance spawns a fresh instance backed by constructor and
// registers it for discovery. The returned id is generated here (spec.md
// §3: instances are identified by an opaque random id the lobby assigns).
func (l *Lobby) CreateInstance(constructor simulation.Constructor) *instance.Instance {
	id := uuid.New()
	inst := instance.Spawn(id, constructor, instance.Options{
		MailboxSize: l.mailboxSize,
		IdleGrace:   l.idleGrace,
	}, l.logger, l.bus)

	l.mu.Lock()
	l.instances[id] = inst
	l.mu.Unlock()

	go l.reapWhenDone(inst)

	l.logger.Info("instance created", "instance_id", id)
	return inst
}

// reapWhenDone removes inst from the live registry once its goroutine has
// exited, whether from an explicit Stop, idle-grace, or a simulation
// panic, and tombstones its id.
func (l *Lobby) reapWhenDone(inst *instance.Instance) {
	<-inst.Done()

	l.mu.Lock()
	delete(l.instances, inst.ID)
	l.mu.Unlock()

	l.tombstones.Add(inst.ID, time.Now())
	l.logger.Info("instance removed", "instance_id", inst.ID)
}

// Get looks up a live instance by id. ok is false both when the id never
// existed and when it has since terminated — spec.md §4.B defines a
// single "not found" outcome for a missing instance; the tombstone lookup
// below exists purely to make that distinction visible in logs.
func (l *Lobby) Get(id uuid.UUID) (*instance.Instance, bool) {
	l.mu.RLock()
	inst, ok := l.instances[id]
	l.mu.RUnlock()

	if !ok {
		if _, tombstoned := l.tombstones.Get(id); tombstoned {
			l.logger.Debug("join attempt against a removed instance", "instance_id", id)
		}
	}
	return inst, ok
}

// List returns a snapshot of every live instance's info, for the
// RefreshInstances wire operation.
func (l *Lobby) List() []wire.InstanceInfo {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]wire.InstanceInfo, 0, len(l.instances))
	for _, inst := range l.instances {
		out = append(out, inst.Info.Snapshot())
	}
	return out
}

// Shutdown stops every live instance and waits for each to finish
// returning its clients' sinks.
func (l *Lobby) Shutdown(ctx context.Context) error {
	l.mu.RLock()
	insts := make([]*instance.Instance, 0, len(l.instances))
	for _, inst := range l.instances {
		insts = append(insts, inst)
	}
	l.mu.RUnlock()

	for _, inst := range insts {
		inst.Stop()
	}
	for _, inst := range insts {
		select {
		case <-inst.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
