// Package agentsystem implements the core scheduling loop: the
// stable-index agent table and the four-phase tick (act, dispatch,
// collect, deliver) that drives it.
package agentsystem

import "github.com/agentmesh/agentmesh/internal/message"

// Agent is the contract every user-defined agent satisfies. C is fixed
// per AgentSystem instantiation.
type Agent[C message.Payload] interface {
	// ID returns the agent's assigned identifier.
	ID() message.AgentId

	// SetID is called exactly once, at spawn time.
	SetID(message.AgentId)

	// IsDead is advisory. A System configured to prune dead agents
	// (the default — see Config.PruneDead) removes an agent from its
	// table at the start of the next act phase once IsDead returns
	// true.
	IsDead() bool

	// HandleMessage is invoked synchronously during the deliver phase
	// for every message routed to this agent. It must not block.
	HandleMessage(*message.Envelope[C])

	// Act is invoked once per tick. Returned envelopes have their
	// Recipient, Performative, Priority, Content, and correlation tags
	// set by the agent; Sender and Occurred are filled in by the
	// System before dispatch.
	Act() []message.Envelope[C]
}

// Factory creates agents for a Table on demand, assigning the next
// free AgentId — the table's lowest unoccupied slot.
type Factory[C message.Payload] interface {
	Create(id message.AgentId) Agent[C]
}

// FactoryFunc adapts a plain function to a Factory.
type FactoryFunc[C message.Payload] func(id message.AgentId) Agent[C]

// Create implements Factory.
func (f FactoryFunc[C]) Create(id message.AgentId) Agent[C] { return f(id) }
