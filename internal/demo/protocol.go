// Package demo implements a subject/observer walkthrough: a Subject
// agent emits an incrementing event counter to a named Observer agent
// in a remote system, exercising cross-system unicast over the remote
// transport end to end.
package demo

import "fmt"

// Protocol is the one-variant application payload the walkthrough
// exchanges: an event counter. Real payloads are defined by whatever
// application builds on top of this module; this one exists only to
// give the demo command something concrete to encode.
type Protocol struct {
	Event uint8
}

// Encode implements message.Payload.
func (p Protocol) Encode() ([]byte, error) {
	return []byte{p.Event}, nil
}

// DecodeProtocol reverses Protocol.Encode.
func DecodeProtocol(b []byte) (Protocol, error) {
	if len(b) != 1 {
		return Protocol{}, fmt.Errorf("demo: protocol payload wants exactly 1 byte, got %d", len(b))
	}
	return Protocol{Event: b[0]}, nil
}
