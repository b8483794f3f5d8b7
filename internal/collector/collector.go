// Package collector ingests local and remote traffic into a bounded
// per-system inbox.
package collector

import (
	"context"
	"log/slog"

	"github.com/agentmesh/agentmesh/internal/message"
)

// DefaultInboxCapacity is used when Config.InboxCapacity is zero.
const DefaultInboxCapacity = 128

// levelTrace mirrors internal/config's sub-Debug trace level.
const levelTrace = slog.Level(-8)

// RemoteSource is a remote subscriber socket, already filtered to the
// traffic this system's collector should admit. Frames() must never
// block the caller — a background goroutine owned by the transport
// (internal/transport/mqtt) feeds it from async broker callbacks.
type RemoteSource interface {
	Frames() <-chan message.Frame
}

// Config configures a Collector.
type Config struct {
	// InboxCapacity bounds the inbox. Zero means DefaultInboxCapacity.
	InboxCapacity int
	// Logger receives ERROR/TRACE diagnostics. A nil Logger uses
	// slog.Default().
	Logger *slog.Logger
}

// Collector is the per-system component that owns a bounded inbox,
// draining local delivery and any registered remote sources into it
// once per tick.
type Collector[C message.Payload] struct {
	capacity      int
	logger        *slog.Logger
	decodeContent func([]byte) (C, error)

	ingress chan message.Envelope[C] // local MPSC ingress, fed by sibling dispatchers
	remotes []RemoteSource

	inbox []message.Envelope[C]
}

// New creates a Collector. decodeContent reconstructs a message's
// Content field from its encoded payload bytes; it is only invoked for
// frames received over a remote transport, since local deliveries
// never leave process memory.
func New[C message.Payload](cfg Config, decodeContent func([]byte) (C, error)) *Collector[C] {
	capacity := cfg.InboxCapacity
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector[C]{
		capacity:      capacity,
		logger:        logger,
		decodeContent: decodeContent,
		ingress:       make(chan message.Envelope[C], capacity),
	}
}

// IngressSender returns the channel sibling systems' dispatchers use
// to deliver messages into this system in-process. The return type is
// the bare channel-direction type so callers can convert it to
// dispatcher.Sink[C] without this package needing to import the
// dispatcher package.
func (c *Collector[C]) IngressSender() chan<- message.Envelope[C] {
	return c.ingress
}

// AddRemoteSource registers a remote subscriber whose Frames() should
// be polled on every Collect call.
func (c *Collector[C]) AddRemoteSource(r RemoteSource) {
	c.remotes = append(c.remotes, r)
}

// Collect drains remote sources and the local ingress queue into the
// inbox without blocking. Overflow is dropped silently (trace-logged);
// no back-pressure is propagated upstream.
func (c *Collector[C]) Collect(ctx context.Context) {
	c.collectRemote(ctx)
	c.collectLocal()
}

func (c *Collector[C]) collectRemote(ctx context.Context) {
	for _, r := range c.remotes {
		for len(c.inbox) < c.capacity {
			frame, ok := recvNonBlocking(r.Frames())
			if !ok {
				break
			}
			c.decodeAndAppend(frame)
		}
	}
	_ = ctx // reserved for future deadline-aware transports; current ones are always non-blocking
}

// recvNonBlocking receives from ch without blocking. The second
// return value is false if ch would have blocked or is closed.
func recvNonBlocking[T any](ch <-chan T) (T, bool) {
	select {
	case v, ok := <-ch:
		if !ok {
			var zero T
			return zero, false
		}
		return v, true
	default:
		var zero T
		return zero, false
	}
}

func (c *Collector[C]) decodeAndAppend(frame message.Frame) {
	if len(c.inbox) >= c.capacity {
		c.logger.Log(context.Background(), levelTrace, "collector: inbox at capacity, dropping remote frame",
			"prefix", frame.Prefix.String())
		return
	}
	env, err := message.Decode(frame.Body, c.decodeContent)
	if err != nil {
		c.logger.Error("collector: decode remote frame failed", "prefix", frame.Prefix.String(), "error", err)
		return
	}
	c.inbox = append(c.inbox, env)
}

func (c *Collector[C]) collectLocal() {
	for len(c.inbox) < c.capacity {
		env, ok := recvNonBlocking(c.ingress)
		if !ok {
			return
		}
		c.inbox = append(c.inbox, env)
	}
	// Capacity reached; drain and drop remaining queued envelopes so a
	// burst doesn't wedge the channel for the next tick.
	for {
		if _, ok := recvNonBlocking(c.ingress); !ok {
			return
		}
		c.logger.Log(context.Background(), levelTrace, "collector: inbox at capacity, dropping local envelope")
	}
}

// DrainInbox returns the inbox contents for this tick and empties it.
func (c *Collector[C]) DrainInbox() []message.Envelope[C] {
	drained := c.inbox
	c.inbox = nil
	return drained
}

// InboxLen reports the current inbox size, for tests and metrics.
func (c *Collector[C]) InboxLen() int {
	return len(c.inbox)
}
