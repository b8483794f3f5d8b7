package message

import "fmt"

// SystemId uniquely identifies an AgentSystem within a topology.
// Enforcement of uniqueness is the deployer's responsibility, not the
// core's: config.Validate checks it for one process's own config file,
// but nothing stops two separately configured processes from colliding.
type SystemId = uint8

// AgentId uniquely identifies an agent within a SystemId. Ids are
// assigned at spawn time from the agent table's lowest free slot and
// are stable across the agent's lifetime.
type AgentId = uint64

// RecipientKind discriminates the two Recipient cases on the wire.
type RecipientKind uint8

const (
	// RecipientAgent targets a single agent in a single system.
	RecipientAgent RecipientKind = iota
	// RecipientBroadcastSystem targets every agent in one system.
	RecipientBroadcastSystem
	// RecipientBroadcastAll targets every agent in every system.
	RecipientBroadcastAll
)

// Recipient is the tagged variant addressing a message's destination.
// Exactly one of the following holds:
//   - Kind == RecipientAgent: SystemID and AgentID are both meaningful.
//   - Kind == RecipientBroadcastSystem: SystemID is meaningful, AgentID is not.
//   - Kind == RecipientBroadcastAll: neither field is meaningful.
type Recipient struct {
	Kind     RecipientKind
	SystemID SystemId
	AgentID  AgentId
}

// ToAgent builds a unicast Recipient.
func ToAgent(systemID SystemId, agentID AgentId) Recipient {
	return Recipient{Kind: RecipientAgent, SystemID: systemID, AgentID: agentID}
}

// ToSystem builds a Recipient broadcasting to every agent in one system.
func ToSystem(systemID SystemId) Recipient {
	return Recipient{Kind: RecipientBroadcastSystem, SystemID: systemID}
}

// ToAll builds a Recipient broadcasting to every agent everywhere.
func ToAll() Recipient {
	return Recipient{Kind: RecipientBroadcastAll}
}

// IsBroadcast reports whether r targets more than one agent.
func (r Recipient) IsBroadcast() bool {
	return r.Kind != RecipientAgent
}

// String implements fmt.Stringer for log output.
func (r Recipient) String() string {
	switch r.Kind {
	case RecipientAgent:
		return fmt.Sprintf("Agent{system=%d, agent=%d}", r.SystemID, r.AgentID)
	case RecipientBroadcastSystem:
		return fmt.Sprintf("Broadcast{system=%d}", r.SystemID)
	case RecipientBroadcastAll:
		return "Broadcast{all}"
	default:
		return "Recipient{invalid}"
	}
}
