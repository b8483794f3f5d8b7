package message

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Encode serializes e into a binary, little-endian, length-prefixed
// wire layout. Decode(Encode(e)) == e for every well-formed e.
func Encode[C Payload](e Envelope[C]) ([]byte, error) {
	payload, err := e.Content.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode envelope content: %w", err)
	}

	buf := make([]byte, 0, 64+len(payload))

	// Recipient discriminator + body.
	switch e.Recipient.Kind {
	case RecipientAgent:
		buf = append(buf, byte(RecipientAgent), e.Recipient.SystemID)
		buf = binary.LittleEndian.AppendUint64(buf, e.Recipient.AgentID)
	case RecipientBroadcastSystem:
		buf = append(buf, byte(RecipientBroadcastSystem), e.Recipient.SystemID)
	case RecipientBroadcastAll:
		buf = append(buf, byte(RecipientBroadcastAll))
	default:
		return nil, fmt.Errorf("encode envelope: unknown recipient kind %d", e.Recipient.Kind)
	}

	// Sender.
	buf = append(buf, e.Sender.SystemID)
	buf = binary.LittleEndian.AppendUint64(buf, e.Sender.AgentID)

	// Priority, occurred, payload length + payload.
	buf = append(buf, e.Priority)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(e.Occurred))
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(payload)))
	buf = append(buf, payload...)

	// Remaining fields, in stable order: id, performative, ontology,
	// then the four optional correlation tags.
	idBytes, err := e.ID.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode envelope id: %w", err)
	}
	buf = append(buf, idBytes...)
	buf = append(buf, byte(e.Performative), e.Ontology)
	buf = appendOptionalByte(buf, e.ConversationID)
	buf = appendOptionalByte(buf, e.ReplyWith)
	buf = appendOptionalByte(buf, e.InReplyTo)
	buf = appendOptionalByte(buf, e.ReplyBy)

	return buf, nil
}

// Decode reverses Encode, reconstructing the Content field with the
// caller-supplied decode function.
func Decode[C Payload](data []byte, decodeContent func([]byte) (C, error)) (Envelope[C], error) {
	var e Envelope[C]

	r := reader{data: data}

	kind := RecipientKind(r.byte())
	switch kind {
	case RecipientAgent:
		sysID := r.byte()
		agentID := r.uint64()
		e.Recipient = ToAgent(sysID, agentID)
	case RecipientBroadcastSystem:
		e.Recipient = ToSystem(r.byte())
	case RecipientBroadcastAll:
		e.Recipient = ToAll()
	default:
		return e, fmt.Errorf("decode envelope: unknown recipient discriminator %d", kind)
	}
	if r.err != nil {
		return e, r.err
	}

	e.Sender.SystemID = r.byte()
	e.Sender.AgentID = r.uint64()
	e.Priority = r.byte()
	e.Occurred = int64(r.uint64())

	payloadLen := r.uint64()
	payload := r.bytes(int(payloadLen))
	if r.err != nil {
		return e, fmt.Errorf("decode envelope: %w", r.err)
	}

	content, err := decodeContent(payload)
	if err != nil {
		return e, fmt.Errorf("decode envelope content: %w", err)
	}
	e.Content = content

	idBytes := r.bytes(16)
	if r.err != nil {
		return e, fmt.Errorf("decode envelope: %w", r.err)
	}
	id, err := uuid.FromBytes(idBytes)
	if err != nil {
		return e, fmt.Errorf("decode envelope id: %w", err)
	}
	e.ID = id

	e.Performative = Performative(r.byte())
	e.Ontology = r.byte()
	e.ConversationID = r.optionalByte()
	e.ReplyWith = r.optionalByte()
	e.InReplyTo = r.optionalByte()
	e.ReplyBy = r.optionalByte()

	if r.err != nil {
		return e, fmt.Errorf("decode envelope: %w", r.err)
	}
	if !r.atEnd() {
		return e, fmt.Errorf("decode envelope: %d trailing bytes", len(r.data)-r.pos)
	}

	return e, nil
}

func appendOptionalByte(buf []byte, v *uint8) []byte {
	if v == nil {
		return append(buf, 0, 0)
	}
	return append(buf, 1, *v)
}

// reader is a small cursor over a byte slice that sticks at the first
// error encountered, so callers can chain reads and check r.err once.
type reader struct {
	data []byte
	pos  int
	err  error
}

func (r *reader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.data) {
		r.err = fmt.Errorf("unexpected end of envelope at byte %d, need %d more", r.pos, n)
		return false
	}
	return true
}

func (r *reader) byte() uint8 {
	if !r.need(1) {
		return 0
	}
	b := r.data[r.pos]
	r.pos++
	return b
}

func (r *reader) uint64() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos : r.pos+8])
	r.pos += 8
	return v
}

func (r *reader) bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	if !r.need(n) {
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) optionalByte() *uint8 {
	present := r.byte()
	v := r.byte()
	if r.err != nil || present == 0 {
		return nil
	}
	vv := v
	return &vv
}

func (r *reader) atEnd() bool {
	return r.err == nil && r.pos == len(r.data)
}
