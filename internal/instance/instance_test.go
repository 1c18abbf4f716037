package instance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/relayforge/hostess/internal/simulation"
	"github.com/relayforge/hostess/internal/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSink records every message sent to it and can be told to fail.
type fakeSink struct {
	mu      sync.Mutex
	sent    []wire.ServerMsg
	failErr error
}

func (s *fakeSink) Send(msg wire.ServerMsg) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failErr != nil {
		return s.failErr
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *fakeSink) BytesPerSecond() float32 { return 42 }

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// echoSim bounces every CustomMsg back to its sender via OutMsgCustomTo.
type echoSim struct {
	maxPlayers uint32
	tickRate   uint64
}

func (s *echoSim) Init() simulation.Config {
	rate := s.tickRate
	if rate == 0 {
		rate = 1000 // fast ticks keep tests quick
	}
	return simulation.Config{TickRate: rate, MaxPlayers: s.maxPlayers}
}

func (s *echoSim) Tick(ctx *simulation.Context) {
	for {
		m, ok := ctx.PopIn()
		if !ok {
			break
		}
		if m.Kind == simulation.InMsgCustomMsg {
			ctx.PushOut(simulation.OutMsg{Kind: simulation.OutMsgCustomTo, ClientID: m.ClientID, Payload: m.Payload})
		}
	}
}

// panicSim panics on the tick that observes a client join, so the panic is
// deterministically ordered after a Transfer has been dispatched rather
// than racing the ticker.
type panicSim struct{}

func (panicSim) Init() simulation.Config { return simulation.Config{TickRate: 1000, MaxPlayers: 4} }
func (panicSim) Tick(ctx *simulation.Context) {
	for {
		m, ok := ctx.PopIn()
		if !ok {
			return
		}
		if m.Kind == simulation.InMsgClientJoined {
			panic("boom")
		}
	}
}

func waitForInt(t *testing.T, get func() int, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if get() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for condition (last value %d, want >= %d)", get(), want)
}

func TestTransferAcceptedIncrementsCurrentPlayers(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 2} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	clientID := uuid.New()
	sink := &fakeSink{}
	ret, err := inst.Transfer(context.Background(), clientID, "alice", sink)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	select {
	case got := <-ret:
		t.Fatalf("sink returned unexpectedly early: %v", got)
	case <-time.After(20 * time.Millisecond):
	}

	waitForInt(t, func() int {
		return int(inst.Info.Snapshot().CurrentPlayers)
	}, 1, time.Second)

	waitForInt(t, sink.count, 1, time.Second)
	sink.mu.Lock()
	got := sink.sent[0]
	sink.mu.Unlock()
	if got.Tag != wire.TagJoinedInstance || got.Instance.CurrentPlayers != 1 {
		t.Fatalf("got %+v, want JoinedInstance with current_players=1", got)
	}
}

func TestTransferRejectedWhenFull(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 1} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	firstID := uuid.New()
	ret1, err := inst.Transfer(context.Background(), firstID, "first", &fakeSink{})
	if err != nil {
		t.Fatalf("transfer 1: %v", err)
	}
	waitForInt(t, func() int { return int(inst.Info.Snapshot().CurrentPlayers) }, 1, time.Second)

	secondSink := &fakeSink{}
	ret2, err := inst.Transfer(context.Background(), uuid.New(), "second", secondSink)
	if err != nil {
		t.Fatalf("transfer 2: %v", err)
	}

	select {
	case got := <-ret2:
		if got != secondSink {
			t.Fatalf("rejected transfer returned wrong sink")
		}
	case <-time.After(time.Second):
		t.Fatal("rejected transfer's sink was never returned")
	}

	if got := inst.Info.Snapshot().CurrentPlayers; got != 1 {
		t.Fatalf("current players = %d, want 1 (reject must not mutate state)", got)
	}

	select {
	case <-ret1:
		t.Fatal("accepted client's sink must not be returned while still joined")
	default:
	}

	waitForInt(t, secondSink.count, 1, time.Second)
	secondSink.mu.Lock()
	got := secondSink.sent[0]
	secondSink.mu.Unlock()
	if got.Tag != wire.TagJoinRejected {
		t.Fatalf("got tag %v, want JoinRejected", got.Tag)
	}
}

func TestLeaveReturnsSinkAndDecrements(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 4} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	clientID := uuid.New()
	sink := &fakeSink{}
	ret, err := inst.Transfer(context.Background(), clientID, "alice", sink)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	waitForInt(t, func() int { return int(inst.Info.Snapshot().CurrentPlayers) }, 1, time.Second)

	if err := inst.NotifyLeft(context.Background(), clientID); err != nil {
		t.Fatalf("notify left: %v", err)
	}

	select {
	case got := <-ret:
		if got != sink {
			t.Fatal("leave returned the wrong sink")
		}
	case <-time.After(time.Second):
		t.Fatal("sink was never returned on leave")
	}

	waitForInt(t, func() int { return int(inst.Info.Snapshot().MaxPlayers) }, 4, time.Second)
	if got := inst.Info.Snapshot().CurrentPlayers; got != 0 {
		t.Fatalf("current players = %d, want 0 after leave", got)
	}
}

func TestCustomMsgRoundTripsThroughSimulation(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 4} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	clientID := uuid.New()
	sink := &fakeSink{}
	if _, err := inst.Transfer(context.Background(), clientID, "alice", sink); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	waitForInt(t, func() int { return int(inst.Info.Snapshot().CurrentPlayers) }, 1, time.Second)

	if err := inst.NotifyCustom(context.Background(), clientID, []byte("ping")); err != nil {
		t.Fatalf("notify custom: %v", err)
	}

	// sent[0] is the JoinedInstance reply; the echo is the second message.
	waitForInt(t, sink.count, 2, time.Second)
}

func TestPingRepliesWithPongOnSameSink(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 4} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	clientID := uuid.New()
	sink := &fakeSink{}
	if _, err := inst.Transfer(context.Background(), clientID, "alice", sink); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	waitForInt(t, func() int { return int(inst.Info.Snapshot().CurrentPlayers) }, 1, time.Second)

	if err := inst.NotifyPing(context.Background(), clientID, 7); err != nil {
		t.Fatalf("notify ping: %v", err)
	}

	// sent[0] is the JoinedInstance reply; the Pong follows it.
	waitForInt(t, sink.count, 2, time.Second)
	sink.mu.Lock()
	got := sink.sent[1]
	sink.mu.Unlock()
	if got.Tag != wire.TagPong || got.Tick != 7 {
		t.Fatalf("got %+v, want a Pong echoing tick 7", got)
	}
	if got.ClientBytesSec != got.ServerBytesSec {
		t.Fatalf("got ClientBytesSec=%v ServerBytesSec=%v, want them equal", got.ClientBytesSec, got.ServerBytesSec)
	}
}

// recordingSim captures ctx.Time/ctx.Delta on every tick so tests can
// assert on the real-elapsed-time contract instead of just behavior.
type recordingSim struct {
	mu     sync.Mutex
	times  []float64
	deltas []float64
}

func (s *recordingSim) Init() simulation.Config { return simulation.Config{TickRate: 50, MaxPlayers: 4} }

func (s *recordingSim) Tick(ctx *simulation.Context) {
	s.mu.Lock()
	s.times = append(s.times, ctx.Time)
	s.deltas = append(s.deltas, ctx.Delta)
	s.mu.Unlock()
}

func (s *recordingSim) snapshot() (times, deltas []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.times...), append([]float64(nil), s.deltas...)
}

func TestTickTimeIsSecondsSinceInstanceStart(t *testing.T) {
	sim := &recordingSim{}
	inst := Spawn(uuid.New(), func() simulation.Simulation { return sim }, Options{}, testLogger(), nil)
	defer inst.Stop()

	waitForInt(t, func() int { times, _ := sim.snapshot(); return len(times) }, 1, time.Second)

	times, _ := sim.snapshot()
	if times[0] < 0 || times[0] > 1.0 {
		t.Fatalf("first tick's ctx.Time = %v, want a small value near 0 (seconds since instance start), not an absolute timestamp", times[0])
	}
}

func TestTickDeltaReflectsRealElapsedTime(t *testing.T) {
	sim := &recordingSim{}
	inst := Spawn(uuid.New(), func() simulation.Simulation { return sim }, Options{}, testLogger(), nil)
	defer inst.Stop()

	waitForInt(t, func() int { _, deltas := sim.snapshot(); return len(deltas) }, 3, time.Second)

	_, deltas := sim.snapshot()
	nominal := 1.0 / 50.0
	for i, d := range deltas {
		if d <= 0 || d > nominal*10 {
			t.Fatalf("tick %d: ctx.Delta = %v, want a small positive value near the nominal tick period %v (real elapsed time, not frozen)", i, d, nominal)
		}
	}
}

func TestSimulationPanicTerminatesInstanceAndReturnsSinks(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return panicSim{} }, Options{}, testLogger(), nil)

	clientID := uuid.New()
	sink := &fakeSink{}
	ret, err := inst.Transfer(context.Background(), clientID, "alice", sink)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	select {
	case got := <-ret:
		if got != sink {
			t.Fatal("panic cleanup returned the wrong sink")
		}
	case <-time.After(time.Second):
		t.Fatal("sink was never returned after simulation panic")
	}

	select {
	case <-inst.Done():
	case <-time.After(time.Second):
		t.Fatal("instance goroutine never exited after simulation panic")
	}
}

func TestTransferContextCanceledReturnsError(t *testing.T) {
	inst := Spawn(uuid.New(), func() simulation.Simulation { return &echoSim{maxPlayers: 1} }, Options{}, testLogger(), nil)
	defer inst.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The mailbox has room, so only Transfer's up-front context check
	// keeps the sink from being enqueued.
	_, err := inst.Transfer(ctx, uuid.New(), "x", &fakeSink{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}
