package protocol

import (
	"bytes"
	"errors"
	"io"
	"net/url"
	"sync"

	"github.com/klauspost/compress/zlib"
)

type Compression string

const (
	CompressNone       Compression = "none"
	CompressZlibStream Compression = "zlib-stream"
)

// Negotiate reads encoding and compress from the connection URL query.
// Unknown values fall back to json and zlib-stream.
func Negotiate(q url.Values) (Encoding, Compression) {
	enc := EncodingJSON
	if Encoding(q.Get("encoding")) == EncodingETF {
		enc = EncodingETF
	}

	comp := CompressZlibStream
	if Compression(q.Get("compress")) == CompressNone {
		comp = CompressNone
	}
	return enc, comp
}

// Compressor turns encoded frames into what goes on the socket and back.
type Compressor interface {
	Compress(p []byte) ([]byte, error)
	Decompress(p []byte) ([]byte, error)
}

func NewCompressor(c Compression) Compressor {
	if c == CompressZlibStream {
		return NewZlibStream()
	}
	return identity{}
}

type identity struct{}

func (identity) Compress(p []byte) ([]byte, error)   { return p, nil }
func (identity) Decompress(p []byte) ([]byte, error) { return p, nil }

// ZlibStream compresses every outbound frame into one long-lived zlib
// stream. Each message ends at a sync flush (00 00 ff ff) so clients
// can inflate it as soon as it arrives with a single shared inflater.
type ZlibStream struct {
	mu  sync.Mutex
	buf bytes.Buffer
	w   *zlib.Writer
}

func NewZlibStream() *ZlibStream {
	z := &ZlibStream{}
	z.w = zlib.NewWriter(&z.buf)
	return z
}

func (z *ZlibStream) Compress(p []byte) ([]byte, error) {
	z.mu.Lock()
	defer z.mu.Unlock()

	if _, err := z.w.Write(p); err != nil {
		return nil, err
	}
	if err := z.w.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, z.buf.Len())
	copy(out, z.buf.Bytes())
	z.buf.Reset()
	return out, nil
}

// Decompress inflates one inbound message. Clients may send frames
// uncompressed even on a zlib-stream connection, so anything without a
// zlib header is returned as-is.
func (z *ZlibStream) Decompress(p []byte) ([]byte, error) {
	if !looksZlib(p) {
		return p, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(p))
	if err != nil {
		return p, nil
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	// A sync-flushed message has no final block.
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrMalformedFrame
	}
	return out, nil
}

// looksZlib checks the RFC 1950 header: CM=8 and the FCHECK multiple.
func looksZlib(p []byte) bool {
	if len(p) < 2 {
		return false
	}
	return p[0]&0x0f == 8 && (uint16(p[0])<<8|uint16(p[1]))%31 == 0
}
