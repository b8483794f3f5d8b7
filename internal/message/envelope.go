package message

import "github.com/google/uuid"

// Sender identifies the system and agent that emitted a message. It is
// assigned by the emitting AgentSystem before dispatch; agents never
// set it themselves, so a message's sender can always be trusted by
// its recipient.
type Sender struct {
	SystemID SystemId
	AgentID  AgentId
}

// Payload is the contract required of every application content type
// carried inside an Envelope: it must be round-trippable to bytes.
// Decoding is supplied separately as a free function (see Decode in
// codec.go) because Go has no way to express a "decode into your own
// type" method on an interface without reflection.
type Payload interface {
	Encode() ([]byte, error)
}

// Envelope is the typed message exchanged between agents. C is fixed
// per AgentSystem instantiation (monomorphic within one system), but
// the wire format carries no type tag, so two systems running
// different content types can still interoperate over the shared
// Sender/Recipient/Performative fields as long as each decodes its own
// Content.
type Envelope[C Payload] struct {
	// ID uniquely identifies this message.
	ID uuid.UUID

	// Performative is the speech act this message performs.
	Performative Performative

	// Sender is filled in by the emitting system, never by the agent.
	Sender Sender

	// Recipient addresses the message's destination.
	Recipient Recipient

	// Ontology is a semantic namespace tag for Content interpretation.
	Ontology uint8

	// Priority orders delivery within a tick; higher value wins, ties
	// go to insertion order.
	Priority uint8

	// ConversationID, ReplyWith, InReplyTo, and ReplyBy are optional
	// FIPA ACL correlation tags. The core preserves them end-to-end but
	// never interprets them; agents use them to track conversations.
	ConversationID *uint8
	ReplyWith      *uint8
	InReplyTo      *uint8
	ReplyBy        *uint8

	// Occurred is the UNIX-seconds timestamp stamped at emit time.
	Occurred int64

	// Content is the application payload.
	Content C
}

// New builds an Envelope with a fresh ID. Sender and Occurred are left
// zero-valued; the emitting AgentSystem fills them in during the act
// phase of a tick.
func New[C Payload](performative Performative, recipient Recipient, ontology, priority uint8, content C) Envelope[C] {
	return Envelope[C]{
		ID:           uuid.New(),
		Performative: performative,
		Recipient:    recipient,
		Ontology:     ontology,
		Priority:     priority,
		Content:      content,
	}
}

// WithCorrelation returns a copy of e with the given correlation tags
// set. Any argument left nil leaves the corresponding field untouched.
func (e Envelope[C]) WithCorrelation(conversationID, replyWith, inReplyTo, replyBy *uint8) Envelope[C] {
	if conversationID != nil {
		e.ConversationID = conversationID
	}
	if replyWith != nil {
		e.ReplyWith = replyWith
	}
	if inReplyTo != nil {
		e.InReplyTo = inReplyTo
	}
	if replyBy != nil {
		e.ReplyBy = replyBy
	}
	return e
}
