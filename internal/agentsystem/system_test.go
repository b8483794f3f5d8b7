package agentsystem

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/agentmesh/agentmesh/internal/message"
)

// greeting is the payload used throughout this file's tests: a single
// byte of content, trivially self-describing.
type greeting struct{ v uint8 }

func (g greeting) Encode() ([]byte, error) { return []byte{g.v}, nil }

var errDecode = errors.New("greeting: want exactly 1 byte")

func decodeGreeting(b []byte) (greeting, error) {
	if len(b) != 1 {
		return greeting{}, errDecode
	}
	return greeting{v: b[0]}, nil
}

// recordingAgent emits, on its first Act call, the messages built by
// makeOutgoing (nil means "emit nothing"), and records every message
// it is handed via HandleMessage.
type recordingAgent struct {
	id          message.AgentId
	dead        bool
	makeOutgoing func(self message.AgentId) []message.Envelope[greeting]
	acted       bool

	mu       sync.Mutex
	received []message.Envelope[greeting]
}

func (a *recordingAgent) ID() message.AgentId      { return a.id }
func (a *recordingAgent) SetID(id message.AgentId) { a.id = id }
func (a *recordingAgent) IsDead() bool             { return a.dead }

func (a *recordingAgent) HandleMessage(m *message.Envelope[greeting]) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.received = append(a.received, *m)
}

func (a *recordingAgent) Act() []message.Envelope[greeting] {
	if a.acted || a.makeOutgoing == nil {
		return nil
	}
	a.acted = true
	return a.makeOutgoing(a.id)
}

func (a *recordingAgent) receivedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.received)
}

func newSystem(t *testing.T, id message.SystemId) *System[greeting] {
	t.Helper()
	return newSystemWithBroadcaster(t, id, nil)
}

func newSystemWithBroadcaster(t *testing.T, id message.SystemId, b Broadcaster) *System[greeting] {
	t.Helper()
	factory := FactoryFunc[greeting](func(aid message.AgentId) Agent[greeting] {
		return &recordingAgent{id: aid}
	})
	sys, err := New[greeting](Config{SystemID: id, Broadcaster: b}, factory, decodeGreeting)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sys
}

// --- Unicast, same system ---

func TestUnicastSameSystem(t *testing.T) {
	sys := newSystem(t, 0)
	var a0, a1 *recordingAgent
	a0 = &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAgent(0, 1), 0, 0, greeting{v: 0}),
			}
		},
	}
	a1 = &recordingAgent{}
	spawnInto(sys, a0)
	spawnInto(sys, a1)

	sys.Tick(context.Background())
	sys.Tick(context.Background())

	if got := a1.receivedCount(); got != 1 {
		t.Fatalf("a1 received %d messages, want 1", got)
	}
	if got := a0.receivedCount(); got != 0 {
		t.Fatalf("a0 (sender) received %d messages, want 0", got)
	}
}

// --- Broadcast, same system ---

func TestBroadcastSameSystem(t *testing.T) {
	sys := newSystem(t, 0)
	const n = 10
	agents := make([]*recordingAgent, n)
	for i := range agents {
		a := &recordingAgent{
			makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
				return []message.Envelope[greeting]{
					message.New(message.Inform, message.ToAll(), 0, 1, greeting{v: uint8(self)}),
				}
			},
		}
		agents[i] = a
		spawnInto(sys, a)
	}

	sys.Tick(context.Background())
	sys.Tick(context.Background())

	for i, a := range agents {
		if got := a.receivedCount(); got != n-1 {
			t.Fatalf("agent %d received %d greetings, want %d", i, got, n-1)
		}
	}
}

// --- Unicast across in-process sibling systems ---

func TestUnicastAcrossSystems(t *testing.T) {
	sysA := newSystem(t, 0)
	sysB := newSystem(t, 1)
	sysA.AddLocalObserver(1, sysB.IngressSender())
	sysB.AddLocalObserver(0, sysA.IngressSender())

	a0 := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAgent(1, 0), 0, 0, greeting{v: 123}),
			}
		},
	}
	spawnInto(sysA, a0)
	b0 := &recordingAgent{}
	spawnInto(sysB, b0)

	for i := 0; i < 3; i++ {
		sysA.Tick(context.Background())
		sysB.Tick(context.Background())
	}

	if got := b0.receivedCount(); got != 1 {
		t.Fatalf("b0 received %d messages, want 1", got)
	}
	if got := a0.receivedCount(); got != 0 {
		t.Fatalf("a0 received %d messages, want 0", got)
	}
}

// --- Remote broadcast over a fake broker standing in for
// internal/transport/mqtt ---

// fakeBroker is an in-memory stand-in for an MQTT broker: Publish
// fans out to every subscriber whose installed filters admit the
// prefix, exactly as a real broker would admit by topic match.
type fakeBroker struct {
	mu   sync.Mutex
	subs []*fakeRemote
}

type fakeRemote struct {
	filters [][]byte
	frames  chan message.Frame
}

func (r *fakeRemote) Frames() <-chan message.Frame { return r.frames }

func (b *fakeBroker) subscribe(systemID message.SystemId) *fakeRemote {
	r := &fakeRemote{filters: message.SubscriptionFilters(systemID), frames: make(chan message.Frame, 64)}
	b.mu.Lock()
	b.subs = append(b.subs, r)
	b.mu.Unlock()
	return r
}

func (b *fakeBroker) Publish(_ context.Context, prefix message.FilterPrefix, body []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	wire := prefix.Bytes()
	for _, r := range b.subs {
		if admits(r.filters, wire[:]) {
			select {
			case r.frames <- message.Frame{Prefix: prefix, Body: body}:
			default:
			}
		}
	}
	return nil
}

// admits reports whether any installed filter is a byte-prefix of wire,
// mirroring real pub/sub prefix-match admission.
func admits(filters [][]byte, wire []byte) bool {
	for _, f := range filters {
		if len(f) > len(wire) {
			continue
		}
		match := true
		for i, b := range f {
			if wire[i] != b {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func TestTargetedRemoteBroadcast(t *testing.T) {
	broker := &fakeBroker{}

	sysS := newSystemWithBroadcaster(t, 0, broker)

	sys1 := newSystem(t, 1)
	sys1.AddRemoteObserver(broker.subscribe(1))
	agents1 := make([]*recordingAgent, 2)
	for i := range agents1 {
		agents1[i] = &recordingAgent{}
		spawnInto(sys1, agents1[i])
	}

	sys2 := newSystem(t, 2)
	sys2.AddRemoteObserver(broker.subscribe(2))
	agents2 := make([]*recordingAgent, 2)
	for i := range agents2 {
		agents2[i] = &recordingAgent{}
		spawnInto(sys2, agents2[i])
	}

	emitter := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToSystem(1), 0, 0, greeting{v: 123}),
			}
		},
	}
	spawnInto(sysS, emitter)

	for i := 0; i < 3; i++ {
		sysS.Tick(context.Background())
		sys1.Tick(context.Background())
		sys2.Tick(context.Background())
	}

	for i, a := range agents1 {
		if got := a.receivedCount(); got != 1 {
			t.Fatalf("sys1 agent %d received %d messages, want 1", i, got)
		}
	}
	for i, a := range agents2 {
		if got := a.receivedCount(); got != 0 {
			t.Fatalf("sys2 agent %d received %d messages, want 0", i, got)
		}
	}
}

func TestGlobalRemoteBroadcast(t *testing.T) {
	broker := &fakeBroker{}

	sysS := newSystemWithBroadcaster(t, 0, broker)

	sys1 := newSystem(t, 1)
	sys1.AddRemoteObserver(broker.subscribe(1))
	sys2 := newSystem(t, 2)
	sys2.AddRemoteObserver(broker.subscribe(2))

	var observers []*recordingAgent
	for _, sys := range []*System[greeting]{sys1, sys2} {
		for i := 0; i < 2; i++ {
			a := &recordingAgent{}
			observers = append(observers, a)
			spawnInto(sys, a)
		}
	}

	emitter := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAll(), 0, 0, greeting{v: 123}),
			}
		},
	}
	spawnInto(sysS, emitter)

	for i := 0; i < 3; i++ {
		sysS.Tick(context.Background())
		sys1.Tick(context.Background())
		sys2.Tick(context.Background())
	}

	for i, a := range observers {
		if got := a.receivedCount(); got != 1 {
			t.Fatalf("observer %d received %d messages, want 1", i, got)
		}
	}
}

// --- Invariants ---

func TestTickStampsSenderAndOccurred(t *testing.T) {
	sys := newSystem(t, 7)
	a := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAgent(7, 99), 0, 0, greeting{v: 1}),
			}
		},
	}
	spawnInto(sys, a)

	before := time.Now().Unix()
	sys.act()
	after := time.Now().Unix()

	if len(sys.outbox) != 1 {
		t.Fatalf("outbox len = %d, want 1", len(sys.outbox))
	}
	e := sys.outbox[0]
	if e.Sender.SystemID != 7 || e.Sender.AgentID != a.ID() {
		t.Fatalf("sender = %+v, want system=7 agent=%d", e.Sender, a.ID())
	}
	if e.Occurred < before || e.Occurred > after {
		t.Fatalf("occurred = %d, want in [%d,%d]", e.Occurred, before, after)
	}
}

func TestOutboxSortedByPriorityDescendingStable(t *testing.T) {
	sys := newSystem(t, 0)
	a := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAgent(0, 9), 0, 1, greeting{v: 1}),
				message.New(message.Inform, message.ToAgent(0, 9), 0, 5, greeting{v: 2}),
				message.New(message.Inform, message.ToAgent(0, 9), 0, 5, greeting{v: 3}),
				message.New(message.Inform, message.ToAgent(0, 9), 0, 2, greeting{v: 4}),
			}
		},
	}
	spawnInto(sys, a)
	sys.act()

	got := make([]uint8, len(sys.outbox))
	for i, e := range sys.outbox {
		got[i] = e.Content.v
	}
	want := []uint8{2, 3, 4, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("outbox order = %v, want %v", got, want)
		}
	}
}

func TestDeadAgentPrunedBeforeNextAct(t *testing.T) {
	sys := newSystem(t, 0)
	a := &recordingAgent{}
	id := spawnInto(sys, a)
	a.dead = true

	sys.Tick(context.Background())

	if _, ok := sys.table.Get(id); ok {
		t.Fatalf("dead agent %d still present after a tick", id)
	}
}

// spawnInto inserts a pre-built agent into sys's table, bypassing the
// system's factory (which would create a fresh recordingAgent the test
// holds no reference to).
func spawnInto(sys *System[greeting], a *recordingAgent) message.AgentId {
	return sys.table.Spawn(FactoryFunc[greeting](func(message.AgentId) Agent[greeting] { return a }))
}

func TestCloseDrainsOutboxAndInbox(t *testing.T) {
	sys := newSystem(t, 0)
	a := &recordingAgent{
		makeOutgoing: func(self message.AgentId) []message.Envelope[greeting] {
			return []message.Envelope[greeting]{
				message.New(message.Inform, message.ToAgent(0, 99), 0, 1, greeting{v: 1}),
			}
		},
	}
	spawnInto(sys, a)
	sys.act()

	if sys.OutboxLen() == 0 {
		t.Fatal("expected a non-empty outbox before Close")
	}
	sys.IngressSender() <- message.New(message.Inform, message.ToAgent(0, 99), 0, 1, greeting{v: 2})
	sys.collect(context.Background())
	if sys.collector.InboxLen() == 0 {
		t.Fatal("expected a non-empty inbox before Close")
	}
	if err := sys.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if sys.OutboxLen() != 0 {
		t.Errorf("OutboxLen() after Close = %d, want 0", sys.OutboxLen())
	}
	if got := sys.collector.InboxLen(); got != 0 {
		t.Errorf("inbox length after Close = %d, want 0", got)
	}
}
