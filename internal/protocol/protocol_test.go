package protocol

import (
	"bytes"
	"errors"
	"io"
	"math"
	"net/url"
	"testing"

	"github.com/klauspost/compress/zlib"
)

func TestNegotiate(t *testing.T) {
	tests := []struct {
		query string
		enc   Encoding
		comp  Compression
	}{
		{"", EncodingJSON, CompressZlibStream},
		{"encoding=etf&compress=none", EncodingETF, CompressNone},
		{"encoding=xml&compress=gzip", EncodingJSON, CompressZlibStream},
		{"encoding=json&compress=zlib-stream", EncodingJSON, CompressZlibStream},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		enc, comp := Negotiate(q)
		if enc != tt.enc || comp != tt.comp {
			t.Fatalf("Negotiate(%q) = %s,%s want %s,%s", tt.query, enc, comp, tt.enc, tt.comp)
		}
	}
}

func TestJSONDecodeAndBind(t *testing.T) {
	in, err := NewCodec(EncodingJSON).Decode([]byte(`{"op":2,"d":{"token":"abc"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if in.Op != OpIdentify {
		t.Fatalf("op = %v", in.Op)
	}
	var id Identify
	if err := in.Bind(&id); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if id.Token != "abc" {
		t.Fatalf("token = %q", id.Token)
	}
}

func TestJSONDecodeRejectsGarbage(t *testing.T) {
	codec := NewCodec(EncodingJSON)
	if _, err := codec.Decode([]byte(`not json`)); !errors.Is(err, ErrMalformedFrame) {
		t.Fatalf("err = %v, want ErrMalformedFrame", err)
	}
	if _, err := codec.Decode([]byte(`{"d":{}}`)); !errors.Is(err, ErrMissingOpcode) {
		t.Fatalf("err = %v, want ErrMissingOpcode", err)
	}
}

func TestNullPayloadLeavesTargetUntouched(t *testing.T) {
	in, err := NewCodec(EncodingJSON).Decode([]byte(`{"op":1,"d":null}`))
	if err != nil {
		t.Fatal(err)
	}
	v := Identify{Token: "keep"}
	if err := in.Bind(&v); err != nil {
		t.Fatal(err)
	}
	if v.Token != "keep" {
		t.Fatalf("token = %q", v.Token)
	}
}

func TestCBORFrameEncodesSequenceAndEvent(t *testing.T) {
	codec := NewCodec(EncodingETF)
	seq := int64(7)
	data, err := codec.Encode(Frame{Op: OpDispatch, D: Ready{SessionID: "s1"}, Sequence: &seq, Event: EventReady})
	if err != nil {
		t.Fatal(err)
	}

	var out struct {
		Op int64          `cbor:"op"`
		S  int64          `cbor:"s"`
		T  string         `cbor:"t"`
		D  map[string]any `cbor:"d"`
	}
	if err := cborDec.Unmarshal(data, &out); err != nil {
		t.Fatal(err)
	}
	if out.Op != 0 || out.S != 7 || out.T != EventReady || out.D["session_id"] != "s1" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestLazyRequestKeepsWireOrderJSON(t *testing.T) {
	in, err := NewCodec(EncodingJSON).Decode([]byte(
		`{"op":14,"d":{"space_id":"s","channels":{"zeta":[[0,99]],"alpha":[[0,9],[10,19]]}}}`))
	if err != nil {
		t.Fatal(err)
	}
	var req LazyRequest
	if err := in.Bind(&req); err != nil {
		t.Fatal(err)
	}
	id, ranges, ok := req.Channels.First()
	if !ok || id != "zeta" {
		t.Fatalf("First() = %q, %v", id, ok)
	}
	if len(ranges) != 1 || ranges[0] != (Range{0, 99}) {
		t.Fatalf("ranges = %v", ranges)
	}
	if req.Channels.Len() != 2 {
		t.Fatalf("Len() = %d", req.Channels.Len())
	}
}

func TestLazyRequestKeepsWireOrderCBOR(t *testing.T) {
	// Hand-built map so "zeta" precedes "alpha" on the wire.
	var channels bytes.Buffer
	channels.WriteByte(0xa2)
	for _, kv := range []struct {
		key    string
		ranges []Range
	}{
		{"zeta", []Range{{0, 99}}},
		{"alpha", []Range{{0, 9}}},
	} {
		k, _ := cborEnc.Marshal(kv.key)
		v, _ := cborEnc.Marshal(kv.ranges)
		channels.Write(k)
		channels.Write(v)
	}

	var cr ChannelRanges
	if err := cr.UnmarshalCBOR(channels.Bytes()); err != nil {
		t.Fatalf("UnmarshalCBOR: %v", err)
	}
	id, ranges, ok := cr.First()
	if !ok || id != "zeta" || ranges[0] != (Range{0, 99}) {
		t.Fatalf("First() = %q %v %v", id, ranges, ok)
	}
}

func TestZlibStreamSharedInflater(t *testing.T) {
	z := NewZlibStream()
	first, err := z.Compress([]byte(`{"op":10}`))
	if err != nil {
		t.Fatal(err)
	}
	second, err := z.Compress([]byte(`{"op":11}`))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasSuffix(first, []byte{0x00, 0x00, 0xff, 0xff}) {
		t.Fatalf("message not sync-flushed: % x", first)
	}

	r, err := zlib.NewReader(bytes.NewReader(append(first, second...)))
	if err != nil {
		t.Fatal(err)
	}
	out, err := io.ReadAll(r)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatal(err)
	}
	if string(out) != `{"op":10}{"op":11}` {
		t.Fatalf("inflated %q", out)
	}
}

func TestZlibDecompressFallsBackToRaw(t *testing.T) {
	z := NewZlibStream()
	raw := []byte(`{"op":1,"d":null}`)
	out, err := z.Decompress(raw)
	if err != nil || !bytes.Equal(out, raw) {
		t.Fatalf("Decompress(raw) = %q, %v", out, err)
	}

	compressed, err := NewZlibStream().Compress(raw)
	if err != nil {
		t.Fatal(err)
	}
	out, err = z.Decompress(compressed)
	if err != nil || !bytes.Equal(out, raw) {
		t.Fatalf("Decompress(compressed) = %q, %v", out, err)
	}
}

func TestRangeClamp(t *testing.T) {
	tcs := map[string]struct {
		in   Range
		want Range
	}{
		"narrow":    {in: Range{0, 99}, want: Range{0, 99}},
		"wide":      {in: Range{100, 400}, want: Range{100, 199}},
		"unbounded": {in: Range{0, math.MaxInt}, want: Range{0, 99}},
		"far end":   {in: Range{math.MaxInt - 5, math.MaxInt}, want: Range{math.MaxInt - 5, math.MaxInt}},
	}
	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			if got := tc.in.Clamp(); got != tc.want {
				t.Fatalf("Clamp(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}
