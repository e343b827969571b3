package gateway

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/realtime-gateway/internal/metrics"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type outbound struct {
	data   []byte
	binary bool
}

// Conn owns one WebSocket. Frames are encoded by the caller and
// compressed by the writer goroutine so the zlib stream keeps send order.
type Conn struct {
	id      string
	ws      *websocket.Conn
	session *Session
	codec   protocol.Codec
	comp    protocol.Compressor
	limiter *RateLimiter
	lists   *service.ListState

	writeTimeout time.Duration
	m            *metrics.Metrics
	l            logger.Logger

	// sendMu orders sequence assignment with enqueueing.
	sendMu    sync.Mutex
	send      chan outbound
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeCode int
	closeText string
}

func newConn(ws *websocket.Conn, session *Session, limiter *RateLimiter, queueSize int, writeTimeout time.Duration, m *metrics.Metrics, l logger.Logger) *Conn {
	return &Conn{
		id:           uuid.NewString(),
		ws:           ws,
		session:      session,
		codec:        protocol.NewCodec(session.encoding),
		comp:         protocol.NewCompressor(session.compression),
		limiter:      limiter,
		lists:        service.NewListState(),
		writeTimeout: writeTimeout,
		m:            m,
		l:            l,
		send:         make(chan outbound, queueSize),
		closing:      make(chan struct{}),
		done:         make(chan struct{}),
	}
}

func (c *Conn) ID() string                  { return c.id }
func (c *Conn) UserID() string              { return c.session.UserID() }
func (c *Conn) SessionID() string           { return c.session.ID() }
func (c *Conn) Lists() *service.ListState   { return c.lists }
func (c *Conn) Session() *Session           { return c.session }
func (c *Conn) Done() <-chan struct{}       { return c.done }
func (c *Conn) Encoding() protocol.Encoding { return c.session.encoding }

// Dispatch sends an op 0 frame carrying the next sequence number.
func (c *Conn) Dispatch(event string, d any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.isClosing() {
		return ErrConnClosed
	}
	seq := c.session.nextSequence()
	err := c.enqueue(protocol.Frame{Op: protocol.OpDispatch, D: d, Sequence: &seq, Event: event})
	if err == nil {
		c.m.Dispatched(event)
	}
	return err
}

// Send writes a frame that carries no sequence number.
func (c *Conn) Send(op protocol.Opcode, d any) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.isClosing() {
		return ErrConnClosed
	}
	return c.enqueue(protocol.Frame{Op: op, D: d})
}

func (c *Conn) enqueue(f protocol.Frame) error {
	data, err := c.codec.Encode(f)
	if err != nil {
		return err
	}

	select {
	case c.send <- outbound{data: data, binary: c.codec.Binary()}:
		return nil
	default:
		c.l.Warnf(context.Background(), "gateway.Conn.enqueue: send queue full for %s", c.id)
		c.Close(protocol.CloseUnknownError, "send queue full")
		return ErrSendQueueFull
	}
}

// Close flushes queued frames, then sends a close frame with code. Only
// the first call has any effect.
func (c *Conn) Close(code int, text string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeText = text
		close(c.closing)
	})
}

func (c *Conn) isClosing() bool {
	select {
	case <-c.closing:
		return true
	default:
		return false
	}
}

// CloseCode is valid once Done is closed.
func (c *Conn) CloseCode() int {
	<-c.done
	return c.closeCode
}

func (c *Conn) writeLoop() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		select {
		case out := <-c.send:
			if err := c.write(out); err != nil {
				c.l.Debugf(context.Background(), "gateway.Conn.writeLoop: %v", err)
				c.Close(websocket.CloseAbnormalClosure, "")
				c.m.ConnClosed(strconv.Itoa(websocket.CloseAbnormalClosure))
				return
			}
		case <-c.closing:
			c.flush()
			deadline := time.Now().Add(c.writeTimeout)
			msg := websocket.FormatCloseMessage(c.closeCode, c.closeText)
			if err := c.ws.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
				c.l.Debugf(context.Background(), "gateway.Conn.writeLoop: close frame: %v", err)
			}
			c.m.ConnClosed(strconv.Itoa(c.closeCode))
			return
		}
	}
}

func (c *Conn) flush() {
	for {
		select {
		case out := <-c.send:
			if err := c.write(out); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) write(out outbound) error {
	data, err := c.comp.Compress(out.data)
	if err != nil {
		c.l.Errorf(context.Background(), "gateway.Conn.write: %v", err)
		return err
	}

	msgType := websocket.TextMessage
	if out.binary || c.session.compression == protocol.CompressZlibStream {
		msgType = websocket.BinaryMessage
	}

	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(msgType, data)
}
