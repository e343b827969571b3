package protocol

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

type Encoding string

const (
	EncodingJSON Encoding = "json"
	// EncodingETF is the binary encoding. Payloads are CBOR with core
	// deterministic encoding.
	EncodingETF Encoding = "etf"
)

type Codec interface {
	Encoding() Encoding
	// Binary reports whether frames travel as binary WebSocket messages.
	Binary() bool
	Encode(f Frame) ([]byte, error)
	Decode(data []byte) (*Inbound, error)
}

// NewCodec returns the codec for enc, falling back to JSON.
func NewCodec(enc Encoding) Codec {
	if enc == EncodingETF {
		return cborCodec{}
	}
	return jsonCodec{}
}

type jsonCodec struct{}

func (jsonCodec) Encoding() Encoding { return EncodingJSON }
func (jsonCodec) Binary() bool       { return false }

func (jsonCodec) Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

func (jsonCodec) Decode(data []byte) (*Inbound, error) {
	var env struct {
		Op *Opcode         `json:"op"`
		D  json.RawMessage `json:"d"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedFrame
	}
	if env.Op == nil {
		return nil, ErrMissingOpcode
	}
	raw := []byte(env.D)
	if bytes.Equal(raw, []byte("null")) {
		raw = nil
	}
	return &Inbound{Op: *env.Op, raw: raw, bind: json.Unmarshal}, nil
}

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("protocol: CBOR encoder initialization failed: " + err.Error())
	}

	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("protocol: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Encoding() Encoding { return EncodingETF }
func (cborCodec) Binary() bool       { return true }

func (cborCodec) Encode(f Frame) ([]byte, error) {
	return cborEnc.Marshal(f)
}

func (cborCodec) Decode(data []byte) (*Inbound, error) {
	var env struct {
		Op *Opcode         `cbor:"op"`
		D  cbor.RawMessage `cbor:"d"`
	}
	if err := cborDec.Unmarshal(data, &env); err != nil {
		return nil, ErrMalformedFrame
	}
	if env.Op == nil {
		return nil, ErrMissingOpcode
	}
	raw := []byte(env.D)
	// 0xf6 is CBOR null.
	if len(raw) == 1 && raw[0] == 0xf6 {
		raw = nil
	}
	return &Inbound{Op: *env.Op, raw: raw, bind: cborDec.Unmarshal}, nil
}
