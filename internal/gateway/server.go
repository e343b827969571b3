package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/metrics"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const maxMessageSize = 1 << 20

// Services are the domain collaborators a socket dispatches into.
type Services struct {
	Sessions service.SessionService
	Presence service.PresenceService
	Lists    service.MemberListService
	Voice    service.VoiceService
}

// Server accepts gateway sockets and runs one read loop per socket.
type Server struct {
	cfg      config.GatewayConfig
	svc      Services
	registry *Registry
	upgrader websocket.Upgrader
	clk      clock.Clock
	m        *metrics.Metrics
	l        logger.Logger

	wg sync.WaitGroup
}

func NewServer(cfg config.GatewayConfig, svc Services, registry *Registry, clk clock.Clock, m *metrics.Metrics, l logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		svc:      svc,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clk: clk,
		m:   m,
		l:   l,
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.l.Warnf(r.Context(), "gateway.Server.ServeHTTP: upgrade: %v", err)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()

	enc, comp := protocol.Negotiate(r.URL.Query())
	session := newSession(enc, comp)
	limiter := NewRateLimiter(s.clk, s.cfg.RateLimitWindow, s.cfg.RateLimitPerOpcode, s.cfg.RateLimitGlobal)
	c := newConn(ws, session, limiter, s.cfg.SendQueueSize, s.cfg.WriteTimeout, s.m, s.l)
	go c.writeLoop()

	s.m.ConnOpened()
	ctx := s.l.With(context.Background(), "conn_id", c.ID())

	if r.RemoteAddr == "" || r.UserAgent() == "" {
		s.l.Warnf(ctx, "gateway.Server.ServeHTTP: rejecting connection without remote address or user agent")
		c.Close(protocol.CloseInvalidConnection, "invalid connection")
		<-c.Done()
		return
	}

	session.armReady(s.clk.AfterFunc(s.timeout(), func() {
		if !session.Authenticated() {
			c.Close(protocol.CloseSessionTimedOut, "ready timeout")
		}
	}))
	s.armHeartbeat(c)
	if err := c.Send(protocol.OpHello, protocol.Hello{HeartbeatInterval: s.cfg.HeartbeatInterval.Milliseconds()}); err != nil {
		s.l.Errorf(ctx, "gateway.Server.ServeHTTP: hello: %v", err)
		c.Close(protocol.CloseUnknownError, "hello failed")
	}

	s.readLoop(ctx, c)
	s.teardown(ctx, c)
}

// timeout is how long a socket may stay silent, both before it
// authenticates and between heartbeats.
func (s *Server) timeout() time.Duration {
	return 2 * s.cfg.HeartbeatInterval
}

func (s *Server) armHeartbeat(c *Conn) {
	c.session.armHeartbeat(s.clk.AfterFunc(s.timeout(), func() {
		c.Close(protocol.CloseSessionTimedOut, "heartbeat timeout")
	}))
}

func (s *Server) readLoop(ctx context.Context, c *Conn) {
	c.ws.SetReadLimit(maxMessageSize)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) && !c.isClosing() {
				s.l.Debugf(ctx, "gateway.Server.readLoop: %v", err)
			}
			return
		}

		raw, err := c.comp.Decompress(data)
		if err != nil {
			s.l.Warnf(ctx, "gateway.Server.readLoop: decompress: %v", err)
			continue
		}
		in, err := c.codec.Decode(raw)
		if err != nil {
			s.l.Warnf(ctx, "gateway.Server.readLoop: decode: %v", err)
			continue
		}
		if !in.Op.Known() {
			s.l.Warnf(ctx, "gateway.Server.readLoop: unknown opcode %d", in.Op)
			continue
		}

		s.m.Opcode(in.Op.String())
		if !c.limiter.Allow(in.Op) {
			s.m.Limited(in.Op.String())
			s.l.Warnf(ctx, "gateway.Server.readLoop: rate limited %s for %s", in.Op, c.UserID())
			continue
		}

		s.dispatch(ctx, c, in)
	}
}

// dispatch runs one handler. Failures and panics are logged and never
// end the read loop.
func (s *Server) dispatch(ctx context.Context, c *Conn, in *protocol.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			s.l.Errorf(ctx, "gateway.Server.dispatch: panic handling %s: %v", in.Op, r)
		}
	}()

	if err := s.handle(ctx, c, in); err != nil {
		if errors.Is(err, ErrConnClosed) {
			return
		}
		s.l.Warnf(ctx, "gateway.Server.dispatch: %s: %v", in.Op, err)
	}
}

func (s *Server) teardown(ctx context.Context, c *Conn) {
	c.session.stopTimers()
	c.Close(websocket.CloseNormalClosure, "")
	<-c.Done()

	if !c.session.Authenticated() {
		return
	}

	uID := c.UserID()
	s.registry.Remove(c)
	s.svc.Lists.Release(c)
	if err := s.svc.Sessions.Persist(ctx, c.session.snapshot()); err != nil {
		s.l.Warnf(ctx, "gateway.Server.teardown: %v", err)
	}
	s.svc.Presence.OnDisconnect(ctx, uID)
}

// Shutdown closes every registered socket and waits for their read loops
// to finish or ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, c := range s.registry.all() {
		c.Close(websocket.CloseGoingAway, "server shutting down")
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("gateway.Server.Shutdown: %w", ctx.Err())
	}
}
