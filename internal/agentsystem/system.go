package agentsystem

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/agentmesh/agentmesh/internal/collector"
	"github.com/agentmesh/agentmesh/internal/dispatcher"
	"github.com/agentmesh/agentmesh/internal/events"
	"github.com/agentmesh/agentmesh/internal/message"
)

// levelTrace mirrors internal/config's sub-Debug trace level.
const levelTrace = slog.Level(-8)

// Event source/kind constants published on Config.Events, naming the
// scheduling lifecycle rather than any particular application concern.
const (
	EventSource = "agentsystem"

	EventKindDispatch    = "dispatch"
	EventKindCollect     = "collect"
	EventKindDeliver     = "deliver"
	EventKindDecodeError = "decode_error"
	EventKindInboxFull   = "inbox_full"
)

// Broadcaster is re-exported so callers wiring a System don't need to
// import internal/dispatcher directly.
type Broadcaster = dispatcher.Broadcaster

// RemoteSource is re-exported so callers wiring a System don't need to
// import internal/collector directly.
type RemoteSource = collector.RemoteSource

// Config configures a System.
type Config struct {
	// SystemID is this system's identity within the topology.
	SystemID message.SystemId

	// InboxCapacity bounds the collector's inbox. Zero means
	// collector.DefaultInboxCapacity.
	InboxCapacity int

	// Broadcaster publishes outbound remote traffic. May be nil, in
	// which case remote-bound messages are dropped (trace-logged) —
	// useful for single-process demos and tests.
	Broadcaster Broadcaster

	// PruneDead, when true (the default), removes agents whose IsDead
	// reports true at the start of each act phase.
	PruneDead *bool

	// Events, if non-nil, receives lifecycle events for dispatch,
	// collect, and deliver. EventKindDecodeError and EventKindInboxFull
	// are not published: the collector only logs decode failures and
	// capacity drops. A nil Events is a no-op, matching
	// internal/events' own nil-safety.
	Events *events.Bus

	// Logger receives ERROR/TRACE diagnostics. A nil Logger uses
	// slog.Default().
	Logger *slog.Logger

	// Now returns the current wall-clock time, used to stamp Occurred
	// during the act phase. Defaults to time.Now; tests may override it
	// for deterministic timestamps.
	Now func() time.Time
}

// System is the AgentSystem composite: an agent table, an outbox, a
// dispatcher, a collector, and the four-phase tick that drives them.
type System[C message.Payload] struct {
	id      message.SystemId
	table   *Table[C]
	factory Factory[C]

	dispatcher *dispatcher.Dispatcher[C]
	collector  *collector.Collector[C]

	outbox []message.Envelope[C]

	pruneDead bool
	events    *events.Bus
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a System. factory is consulted by SpawnAgent/SpawnSwarm;
// decodeContent reconstructs remote payloads. The system registers
// itself as a local observer of itself at construction, so intra-system
// delivery travels through the same dispatch→collect→deliver path as
// cross-system delivery instead of a separate short-circuit.
func New[C message.Payload](cfg Config, factory Factory[C], decodeContent func([]byte) (C, error)) (*System[C], error) {
	if factory == nil {
		return nil, fmt.Errorf("agentsystem: New requires a non-nil factory")
	}
	if decodeContent == nil {
		return nil, fmt.Errorf("agentsystem: New requires a non-nil decodeContent function")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	pruneDead := true
	if cfg.PruneDead != nil {
		pruneDead = *cfg.PruneDead
	}

	d := dispatcher.New[C](cfg.SystemID, cfg.Broadcaster, logger)
	col := collector.New(collector.Config{
		InboxCapacity: cfg.InboxCapacity,
		Logger:        logger,
	}, decodeContent)

	s := &System[C]{
		id:         cfg.SystemID,
		table:      NewTable[C](),
		factory:    factory,
		dispatcher: d,
		collector:  col,
		pruneDead:  pruneDead,
		events:     cfg.Events,
		logger:     logger,
		now:        now,
	}

	d.AddLocalObserver(cfg.SystemID, col.IngressSender())

	return s, nil
}

// ID returns this system's SystemId.
func (s *System[C]) ID() message.SystemId { return s.id }

// AgentCount returns the number of occupied agent-table slots.
func (s *System[C]) AgentCount() int { return s.table.Len() }

// OutboxLen returns the number of messages staged for dispatch at this
// instant (mostly useful for tests and metrics; emptied every tick).
func (s *System[C]) OutboxLen() int { return len(s.outbox) }

// SpawnAgent creates one agent via the system's factory and returns its
// assigned id.
func (s *System[C]) SpawnAgent() message.AgentId {
	return s.table.Spawn(s.factory)
}

// SpawnSwarm creates count agents and returns their assigned ids.
func (s *System[C]) SpawnSwarm(count int) []message.AgentId {
	ids := make([]message.AgentId, 0, count)
	for i := 0; i < count; i++ {
		ids = append(ids, s.SpawnAgent())
	}
	return ids
}

// AddLocalObserver registers sibling's ingress sender as the in-process
// delivery route for sibling's SystemId. Two systems wishing to
// exchange messages in-process each call this with the other's id and
// ingress sender.
func (s *System[C]) AddLocalObserver(siblingID message.SystemId, sink dispatcher.Sink[C]) {
	s.dispatcher.AddLocalObserver(siblingID, sink)
}

// IngressSender exposes this system's local ingress channel so a
// sibling system can register it via AddLocalObserver.
func (s *System[C]) IngressSender() dispatcher.Sink[C] {
	return s.collector.IngressSender()
}

// AddRemoteObserver subscribes this system to a remote publisher.
// remote is any RemoteSource already filtered to this system's
// subscription prefixes; internal/transport/mqtt.Subscriber satisfies
// this interface, installing three topic filters (unicast, targeted
// broadcast, global broadcast) for the system id it was created with.
func (s *System[C]) AddRemoteObserver(remote RemoteSource) {
	s.collector.AddRemoteSource(remote)
}

// Close tears the system down. Go has no destructor equivalent to a
// Drop impl, so callers call Close explicitly, after stopping any
// transport (Publisher/Subscriber) that feeds this system — Close
// itself only drains the in-process outbox and inbox, since socket
// ownership lives with the caller-supplied transport.
func (s *System[C]) Close() error {
	s.outbox = nil
	s.collector.DrainInbox()
	return nil
}

// Tick runs one four-phase scheduler round: act, dispatch, collect,
// deliver. It never blocks; every phase drains what's available and
// returns.
func (s *System[C]) Tick(ctx context.Context) {
	if s.pruneDead {
		if pruned := s.table.PruneDead(); len(pruned) > 0 {
			s.logger.Log(ctx, levelTrace, "agentsystem: pruned dead agents", "system", s.id, "ids", pruned)
		}
	}

	s.act()
	s.dispatch(ctx)
	s.collect(ctx)
	s.deliver()
}

// act invokes Act on every agent in table order, stamps sender and
// occurred, and appends the results to the outbox. After every agent
// has acted, the outbox is sorted by priority descending with a stable
// sort so ties preserve insertion (and therefore table) order.
func (s *System[C]) act() {
	occurred := s.now().Unix()
	s.table.Range(func(a Agent[C]) bool {
		batch := a.Act()
		for _, e := range batch {
			e.Sender = message.Sender{SystemID: s.id, AgentID: a.ID()}
			e.Occurred = occurred
			s.outbox = append(s.outbox, e)
		}
		return true
	})

	sort.SliceStable(s.outbox, func(i, j int) bool {
		return s.outbox[i].Priority > s.outbox[j].Priority
	})
}

// dispatch drains the outbox into the Dispatcher.
func (s *System[C]) dispatch(ctx context.Context) {
	if len(s.outbox) == 0 {
		return
	}
	batch := s.outbox
	s.outbox = nil
	s.dispatcher.Dispatch(ctx, batch)
	s.publish(EventKindDispatch, map[string]any{"count": len(batch)})
}

// collect drives the Collector.
func (s *System[C]) collect(ctx context.Context) {
	s.collector.Collect(ctx)
	s.publish(EventKindCollect, map[string]any{"inbox_len": s.collector.InboxLen()})
}

// deliver drains the collector's inbox and routes each message to zero
// or more local agents, honoring the anti-self-echo rule.
func (s *System[C]) deliver() {
	inbox := s.collector.DrainInbox()
	for _, m := range inbox {
		s.deliverOne(m)
	}
	if len(inbox) > 0 {
		s.publish(EventKindDeliver, map[string]any{"count": len(inbox)})
	}
}

func (s *System[C]) deliverOne(m message.Envelope[C]) {
	switch m.Recipient.Kind {
	case message.RecipientAgent:
		agent, ok := s.table.Get(m.Recipient.AgentID)
		if !ok {
			return
		}
		if s.isSelfEcho(agent, m) {
			return
		}
		agent.HandleMessage(&m)
	case message.RecipientBroadcastSystem, message.RecipientBroadcastAll:
		s.table.Range(func(agent Agent[C]) bool {
			if !s.isSelfEcho(agent, m) {
				agent.HandleMessage(&m)
			}
			return true
		})
	}
}

// isSelfEcho reports whether m originated from agent itself: an agent
// should never receive its own broadcast back as if it were a reply.
func (s *System[C]) isSelfEcho(agent Agent[C], m message.Envelope[C]) bool {
	return m.Sender.SystemID == s.id && m.Sender.AgentID == agent.ID()
}

func (s *System[C]) publish(kind string, data map[string]any) {
	if s.events == nil {
		return
	}
	s.events.Publish(events.Event{
		Timestamp: s.now(),
		Source:    EventSource,
		Kind:      kind,
		Data:      data,
	})
}
