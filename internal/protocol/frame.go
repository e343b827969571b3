package protocol

import "errors"

var (
	ErrMalformedFrame = errors.New("protocol: malformed frame")
	ErrMissingOpcode  = errors.New("protocol: frame has no op")
)

// Frame is the outbound envelope {op, d, s?, t?}.
type Frame struct {
	Op       Opcode `json:"op" cbor:"op"`
	D        any    `json:"d" cbor:"d"`
	Sequence *int64 `json:"s,omitempty" cbor:"s,omitempty"`
	Event    string `json:"t,omitempty" cbor:"t,omitempty"`
}

// Inbound is a decoded client frame whose payload is still encoded.
// Bind decodes the payload with the codec that produced the frame.
type Inbound struct {
	Op   Opcode
	raw  []byte
	bind func(raw []byte, v any) error
}

// Bind decodes d into v. A missing or null payload leaves v untouched.
func (in *Inbound) Bind(v any) error {
	if len(in.raw) == 0 {
		return nil
	}
	if err := in.bind(in.raw, v); err != nil {
		return errors.Join(ErrMalformedFrame, err)
	}
	return nil
}
