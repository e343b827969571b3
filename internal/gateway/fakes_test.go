package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/config"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	repository "github.com/vogiaan1904/realtime-gateway/internal/repository/redis"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const (
	testSecret    = "identify-secret"
	testHeartbeat = time.Second
	readTimeout   = 2 * time.Second
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type fakePresence struct {
	mu            sync.Mutex
	authenticated []string
	updates       []service.PresenceUpdateInput
	schedules     []models.PresenceStatus
	disconnected  chan string
}

func newFakePresence() *fakePresence {
	return &fakePresence{disconnected: make(chan string, 8)}
}

func (p *fakePresence) OnAuthenticated(_ context.Context, conn service.Conn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = append(p.authenticated, conn.UserID())
	return nil
}

func (p *fakePresence) HandleUpdate(_ context.Context, _ service.Conn, in service.PresenceUpdateInput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, in)
	return nil
}

func (p *fakePresence) OnDisconnect(_ context.Context, uID string) {
	p.disconnected <- uID
}

func (p *fakePresence) SetScheduledStatus(_ context.Context, _ string, status models.PresenceStatus, _ int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.schedules = append(p.schedules, status)
	return nil
}

func (p *fakePresence) ClearScheduledStatus(context.Context, string) error { return nil }

func (p *fakePresence) Get(_ context.Context, uID string) (models.Presence, error) {
	return models.Presence{UserID: uID, Status: models.StatusOnline}, nil
}

func (p *fakePresence) Sweep(context.Context) (int, error) { return 0, nil }
func (p *fakePresence) GC(context.Context) error           { return nil }
func (p *fakePresence) Start(context.Context) error        { return nil }
func (p *fakePresence) Stop() error                        { return nil }

func (p *fakePresence) updateCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func (p *fakePresence) scheduleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.schedules)
}

type fakeLists struct {
	mu       sync.Mutex
	requests []protocol.LazyRequest
	released int
}

func (f *fakeLists) HandleLazyRequest(_ context.Context, _ service.Conn, in protocol.LazyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, in)
	return nil
}

func (f *fakeLists) Resync(context.Context, service.Conn, string) error { return nil }
func (f *fakeLists) ScheduleResync(service.Conn, string)                {}
func (f *fakeLists) ResyncSpace(string)                                 {}
func (f *fakeLists) OnUserChanged(service.Conn, string)                 {}

func (f *fakeLists) Release(conn service.Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	conn.Lists().Close()
}

type fakeVoice struct {
	mu      sync.Mutex
	touched []string
	err     error
	updates int
}

func (v *fakeVoice) HandleStateUpdate(context.Context, service.Conn, protocol.VoiceStateUpdate) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates++
	return v.err
}

func (v *fakeVoice) ApplyModeration(context.Context, kafka.VoiceModerationEvent) error { return nil }
func (v *fakeVoice) DeliverStateEvent(context.Context, kafka.VoiceStateEvent)         {}
func (v *fakeVoice) DeliverLeftEvent(context.Context, kafka.VoiceLeftEvent)           {}

func (v *fakeVoice) Touch(_ context.Context, uID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.touched = append(v.touched, uID)
}

func (v *fakeVoice) VerifySession(context.Context, string) (*models.VoiceSession, error) {
	return nil, service.ErrVoiceSessionNotFound
}

func (v *fakeVoice) Sweep(context.Context) (int, error) { return 0, nil }
func (v *fakeVoice) Start(context.Context) error        { return nil }
func (v *fakeVoice) Stop() error                        { return nil }

type harness struct {
	srv      *Server
	ts       *httptest.Server
	clk      *clock.Fake
	mr       *miniredis.Miniredis
	registry *Registry
	presence *fakePresence
	lists    *fakeLists
	voice    *fakeVoice
}

func testGatewayConfig() config.GatewayConfig {
	return config.GatewayConfig{
		HeartbeatInterval:  testHeartbeat,
		SendQueueSize:      64,
		WriteTimeout:       time.Second,
		SessionTTL:         time.Minute,
		RateLimitWindow:    time.Minute,
		RateLimitPerOpcode: 60,
		RateLimitGlobal:    120,
		ResyncDelay:        250 * time.Millisecond,
	}
}

func newHarness(t *testing.T, cfg config.GatewayConfig) *harness {
	t.Helper()

	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cli.Close() })

	l := logger.NewNop()
	clk := clock.NewFake(epoch)
	tokens := service.NewTokenService(testSecret, "voice-secret", time.Minute, clk)
	sessions := service.NewSessionService(repository.NewRedisSessionRepository(cli, l), tokens, clk, l, cfg.SessionTTL)

	h := &harness{
		clk:      clk,
		mr:       mr,
		registry: NewRegistry(),
		presence: newFakePresence(),
		lists:    &fakeLists{},
		voice:    &fakeVoice{},
	}
	h.srv = NewServer(cfg, Services{
		Sessions: sessions,
		Presence: h.presence,
		Lists:    h.lists,
		Voice:    h.voice,
	}, h.registry, clk, nil, l)
	h.ts = httptest.NewServer(h.srv)
	t.Cleanup(h.ts.Close)
	return h
}

func (h *harness) dial(t *testing.T, query string, header http.Header) *websocket.Conn {
	t.Helper()
	if header == nil {
		header = http.Header{"User-Agent": {"gateway-test"}}
	}
	u := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/?" + query
	ws, _, err := websocket.DefaultDialer.Dial(u, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

// connect dials a plain JSON socket and consumes Hello.
func (h *harness) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	ws := h.dial(t, "encoding=json&compress=none", nil)
	if f := readFrame(t, ws); f.Op != protocol.OpHello {
		t.Fatalf("first frame op = %d, want Hello", f.Op)
	}
	return ws
}

func (h *harness) identify(t *testing.T, uID, ssID string) *websocket.Conn {
	t.Helper()
	ws := h.connect(t)
	sendFrame(t, ws, protocol.OpIdentify, protocol.Identify{Token: signToken(t, uID, ssID)})
	if f := readFrame(t, ws); f.Event != protocol.EventReady {
		t.Fatalf("expected READY, got op=%d t=%q", f.Op, f.Event)
	}
	return ws
}

type clientFrame struct {
	Op    protocol.Opcode `json:"op"`
	D     json.RawMessage `json:"d"`
	S     *int64          `json:"s"`
	Event string          `json:"t"`
}

func readFrame(t *testing.T, ws *websocket.Conn) clientFrame {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(readTimeout))
	var f clientFrame
	if err := ws.ReadJSON(&f); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return f
}

func sendFrame(t *testing.T, ws *websocket.Conn, op protocol.Opcode, d any) {
	t.Helper()
	if err := ws.WriteJSON(map[string]any{"op": op, "d": d}); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// expectClose reads until the server closes the socket and checks the
// close code.
func expectClose(t *testing.T, ws *websocket.Conn, code int) {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(readTimeout))
	for {
		_, _, err := ws.ReadMessage()
		if err == nil {
			continue
		}
		ce, ok := err.(*websocket.CloseError)
		if !ok {
			t.Fatalf("read error %v, want close %d", err, code)
		}
		if ce.Code != code {
			t.Fatalf("close code = %d, want %d", ce.Code, code)
		}
		return
	}
}

func signToken(t *testing.T, uID, ssID string) string {
	t.Helper()
	claims := jwt.MapClaims{"user_id": uID, "exp": epoch.Add(time.Hour).Unix()}
	if ssID != "" {
		claims["session_id"] = ssID
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
