package message

import "fmt"

// Tag identifies how a published message should be pre-filtered by
// subscribers, before the envelope body is decoded.
type Tag uint8

const (
	// SendToAgent targets a single agent in a single system.
	SendToAgent Tag = 0
	// BroadcastToSystem targets every agent in one system.
	BroadcastToSystem Tag = 1
	// BroadcastToAll targets every agent everywhere.
	BroadcastToAll Tag = 2
)

// FilterPrefix is the 2-byte [tag, system_byte] prefix published ahead
// of every envelope body. system_byte is 0 for BroadcastToAll, which
// targets no particular system.
type FilterPrefix struct {
	Tag        Tag
	SystemByte SystemId
}

// PrefixFor derives the filter prefix a publisher must attach when
// broadcasting r to remote subscribers.
func PrefixFor(r Recipient) FilterPrefix {
	switch r.Kind {
	case RecipientAgent:
		return FilterPrefix{Tag: SendToAgent, SystemByte: r.SystemID}
	case RecipientBroadcastSystem:
		return FilterPrefix{Tag: BroadcastToSystem, SystemByte: r.SystemID}
	default:
		return FilterPrefix{Tag: BroadcastToAll, SystemByte: 0}
	}
}

// Bytes returns the 2-byte wire form of the prefix.
func (p FilterPrefix) Bytes() [2]byte {
	return [2]byte{byte(p.Tag), p.SystemByte}
}

// String implements fmt.Stringer for log output.
func (p FilterPrefix) String() string {
	return fmt.Sprintf("[%d,%d]", p.Tag, p.SystemByte)
}

// SubscriptionFilters returns the four byte-prefix filters a collector
// installs to receive the traffic addressed to system s:
//
//   - a single byte [s]            (legacy/compat filter; it matches any
//     prefix whose tag byte equals s, so it also admits traffic
//     addressed to other systems)
//   - [SendToAgent, s]
//   - [BroadcastToSystem, s]
//   - [BroadcastToAll]             (system byte is always 0)
func SubscriptionFilters(s SystemId) [][]byte {
	return [][]byte{
		{s},
		{byte(SendToAgent), s},
		{byte(BroadcastToSystem), s},
		{byte(BroadcastToAll)},
	}
}
