package message

// Frame is a received wire frame before envelope decoding: the filter
// prefix a transport used to pre-admit it, and the encoded envelope
// body. Transports (internal/transport/mqtt) produce Frames; the
// collector decodes the body only after filter admission, so a frame
// destined for another system never pays the decode cost.
type Frame struct {
	Prefix FilterPrefix
	Body   []byte
}
