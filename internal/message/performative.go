// Package message defines the wire envelope exchanged between agents:
// the FIPA ACL performative enumeration, the tagged Recipient variant,
// the Envelope itself, and its binary codec.
package message

// Performative is a FIPA ACL speech act carried by an Envelope. The
// core never interprets a Performative's meaning — it is preserved
// end-to-end as an opaque byte.
type Performative uint8

// The closed enumeration of 23 speech acts. Order is part of the wire
// format (see codec.go) and must not change once agents depend on it.
const (
	AcceptProposal Performative = iota
	Agree
	Cancel
	CallForProposal
	Confirm
	Disconfirm
	Failure
	Inform
	InformIf
	InformRef
	NotUnderstood
	Propagate
	Propose
	Proxy
	QueryIf
	QueryRef
	Refuse
	RejectProposal
	Request
	RequestWhen
	RequestWhenever
	Subscribe
	Ping
)

var performativeNames = [...]string{
	"AcceptProposal",
	"Agree",
	"Cancel",
	"CallForProposal",
	"Confirm",
	"Disconfirm",
	"Failure",
	"Inform",
	"InformIf",
	"InformRef",
	"NotUnderstood",
	"Propagate",
	"Propose",
	"Proxy",
	"QueryIf",
	"QueryRef",
	"Refuse",
	"RejectProposal",
	"Request",
	"RequestWhen",
	"RequestWhenever",
	"Subscribe",
	"Ping",
}

// String implements fmt.Stringer for log output.
func (p Performative) String() string {
	if int(p) < len(performativeNames) {
		return performativeNames[p]
	}
	return "Unknown"
}

// Valid reports whether p is one of the 23 defined speech acts.
func (p Performative) Valid() bool {
	return int(p) < len(performativeNames)
}
