// Package dispatcher routes a tick's outbox to local sibling systems
// and/or the broadcast transport.
package dispatcher

import (
	"context"
	"log/slog"

	"github.com/agentmesh/agentmesh/internal/message"
)

// Sink is the in-process delivery route into a sibling AgentSystem's
// collector. Send must not block indefinitely; a buffered channel
// satisfies this in practice.
type Sink[C message.Payload] chan<- message.Envelope[C]

// Broadcaster publishes an encoded envelope body under the given
// filter prefix to every remote subscriber admitted by that prefix.
// Implementations must not block the caller for long —
// internal/transport/mqtt's Publisher satisfies this via autopaho's
// asynchronous publish queue.
type Broadcaster interface {
	Publish(ctx context.Context, prefix message.FilterPrefix, body []byte) error
}

// Dispatcher is the per-system component that routes an AgentSystem's
// outbound envelopes to local sibling sinks and the broadcast transport.
type Dispatcher[C message.Payload] struct {
	systemID    message.SystemId
	broadcaster Broadcaster
	logger      *slog.Logger

	localObservers map[message.SystemId]Sink[C]
}

// New creates a Dispatcher for systemID. broadcaster may be nil, in
// which case messages addressed to non-local systems are dropped and
// trace-logged (useful for single-process demos and tests that never
// exercise the remote transport).
func New[C message.Payload](systemID message.SystemId, broadcaster Broadcaster, logger *slog.Logger) *Dispatcher[C] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher[C]{
		systemID:       systemID,
		broadcaster:    broadcaster,
		logger:         logger,
		localObservers: make(map[message.SystemId]Sink[C]),
	}
}

// AddLocalObserver registers sink as the in-process delivery route for
// systemID. An AgentSystem registers itself this way at construction,
// so a message addressed back to its own system id is delivered
// in-process instead of round-tripping through the broadcast transport.
func (d *Dispatcher[C]) AddLocalObserver(systemID message.SystemId, sink Sink[C]) {
	d.localObservers[systemID] = sink
}

// Dispatch routes each message in envelopes:
//
//   - Agent{system_id} or Broadcast{Some(system_id)}: the local queue
//     for system_id if registered, else the broadcast transport.
//   - Broadcast{None}: every registered local queue, plus one
//     broadcast-transport publish.
func (d *Dispatcher[C]) Dispatch(ctx context.Context, envelopes []message.Envelope[C]) {
	for _, e := range envelopes {
		switch e.Recipient.Kind {
		case message.RecipientAgent, message.RecipientBroadcastSystem:
			if sink, ok := d.localObservers[e.Recipient.SystemID]; ok {
				d.sendLocal(sink, e)
			} else {
				d.publishRemote(ctx, e)
			}
		case message.RecipientBroadcastAll:
			for _, sink := range d.localObservers {
				d.sendLocal(sink, e)
			}
			d.publishRemote(ctx, e)
		default:
			d.logger.Error("dispatcher: dropping envelope with unknown recipient kind",
				"kind", e.Recipient.Kind, "id", e.ID)
		}
	}
}

func (d *Dispatcher[C]) sendLocal(sink Sink[C], e message.Envelope[C]) {
	select {
	case sink <- e:
	default:
		d.logger.Log(context.Background(), levelTrace, "dispatcher: local sink full, dropping envelope",
			"id", e.ID, "recipient", e.Recipient.String())
	}
}

func (d *Dispatcher[C]) publishRemote(ctx context.Context, e message.Envelope[C]) {
	if d.broadcaster == nil {
		d.logger.Log(context.Background(), levelTrace, "dispatcher: no broadcaster configured, dropping remote envelope",
			"id", e.ID, "recipient", e.Recipient.String())
		return
	}

	body, err := message.Encode(e)
	if err != nil {
		d.logger.Error("dispatcher: encode envelope for broadcast", "id", e.ID, "error", err)
		return
	}

	prefix := message.PrefixFor(e.Recipient)
	if err := d.broadcaster.Publish(ctx, prefix, body); err != nil {
		d.logger.Error("dispatcher: broadcast publish failed",
			"id", e.ID, "prefix", prefix.String(), "error", err)
	}
}

// levelTrace mirrors internal/config's sub-Debug trace level without
// introducing an import-cycle-prone dependency on the config package.
const levelTrace = slog.Level(-8)
