package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/internal/sfu"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
	"github.com/vogiaan1904/realtime-gateway/pkg/response"
)

type fakeVoice struct {
	service.VoiceService
	sessions map[string]*models.VoiceSession
}

func (f *fakeVoice) VerifySession(_ context.Context, token string) (*models.VoiceSession, error) {
	vs, ok := f.sessions[token]
	if !ok {
		return nil, service.ErrInvalidToken
	}
	return vs, nil
}

type fakeRooms struct {
	lastRoom string
	lastUser string
	closed   []string
	paused   map[string]bool
	dropped  []string
}

func (f *fakeRooms) CreateTransport(_ context.Context, roomID, uID string, dir sfu.Direction, offer string) (*sfu.TransportInfo, error) {
	if !dir.Valid() {
		return nil, sfu.ErrInvalidDirection
	}
	f.lastRoom, f.lastUser = roomID, uID
	return &sfu.TransportInfo{ID: "t1", Direction: dir, Answer: "answer:" + offer, Producers: []sfu.Producer{}}, nil
}

func (f *fakeRooms) Produce(context.Context, string, string, string, sfu.Kind) (*sfu.Producer, error) {
	return nil, sfu.ErrTransportNotFound
}

func (f *fakeRooms) Consume(context.Context, string, string, string, string) (*sfu.Consumer, error) {
	return nil, sfu.ErrOwnProducer
}

func (f *fakeRooms) ResumeConsumer(_ context.Context, _, _, consumerID, _ string) (*sfu.Consumer, error) {
	return &sfu.Consumer{ID: consumerID}, nil
}

func (f *fakeRooms) PauseProducer(_ context.Context, _, uID, producerID string, paused bool) (*sfu.Producer, error) {
	if producerID != "p1" {
		return nil, sfu.ErrProducerNotFound
	}
	if f.paused == nil {
		f.paused = make(map[string]bool)
	}
	f.paused[producerID] = paused
	return &sfu.Producer{ID: producerID, UserID: uID, Paused: paused}, nil
}

func (f *fakeRooms) CloseProducer(_ context.Context, _, _, producerID string) error {
	if producerID != "p1" {
		return sfu.ErrProducerNotFound
	}
	f.dropped = append(f.dropped, "producer/"+producerID)
	return nil
}

func (f *fakeRooms) CloseConsumer(_ context.Context, _, _, consumerID string) error {
	if consumerID != "c1" {
		return sfu.ErrConsumerNotFound
	}
	f.dropped = append(f.dropped, "consumer/"+consumerID)
	return nil
}

func (f *fakeRooms) ClosePeer(roomID, uID string) {
	f.closed = append(f.closed, roomID+"/"+uID)
}

type fixedCounter int

func (n fixedCounter) Len() int { return int(n) }

func newTestRouter(rooms *fakeRooms) *gin.Engine {
	gin.SetMode(gin.TestMode)
	voice := &fakeVoice{sessions: map[string]*models.VoiceSession{
		"good": {UserID: "u1", SessionID: "ss1", RoomID: "s1:c1"},
	}}
	h := NewHandler(voice, rooms, fixedCounter(3), logger.NewNop())
	gateway := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	return NewRouter(h, gateway, prometheus.NewRegistry(), logger.InitializeTestZapLogger())
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Resp {
	t.Helper()
	var resp response.Resp
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestVoiceRoutesRequireSession(t *testing.T) {
	r := newTestRouter(&fakeRooms{})

	tests := []struct {
		name       string
		token      string
		wantStatus int
		wantCode   int
	}{
		{"missing token", "", http.StatusUnauthorized, 110},
		{"unknown token", "forged", http.StatusUnauthorized, 111},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/voice/transports", tt.token, `{"direction":"send","offer":"x"}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if resp := decode(t, w); resp.ErrorCode != tt.wantCode {
				t.Fatalf("error_code = %d, want %d", resp.ErrorCode, tt.wantCode)
			}
		})
	}
}

func TestCreateTransportUsesSessionRoom(t *testing.T) {
	rooms := &fakeRooms{}
	r := newTestRouter(rooms)

	w := do(r, http.MethodPost, "/voice/transports", "good", `{"direction":"send","offer":"sdp"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
	}
	if rooms.lastRoom != "s1:c1" || rooms.lastUser != "u1" {
		t.Fatalf("transport created for %s/%s", rooms.lastRoom, rooms.lastUser)
	}

	w = do(r, http.MethodPost, "/voice/transports", "good", `{"direction":"sideways","offer":"sdp"}`)
	if w.Code != http.StatusBadRequest || decode(t, w).ErrorCode != 120 {
		t.Fatalf("bad direction: status = %d body = %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/voice/transports", "good", `{"offer":"sdp"}`)
	if w.Code != http.StatusBadRequest || decode(t, w).ErrorCode != 100 {
		t.Fatalf("missing direction: status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestSFUErrorsMapToHTTP(t *testing.T) {
	r := newTestRouter(&fakeRooms{})

	w := do(r, http.MethodPost, "/voice/produce", "good", `{"transport_id":"t9","kind":"audio"}`)
	if w.Code != http.StatusNotFound || decode(t, w).ErrorCode != 131 {
		t.Fatalf("produce: status = %d body = %s", w.Code, w.Body.String())
	}

	w = do(r, http.MethodPost, "/voice/consume", "good", `{"transport_id":"t1","producer_id":"p1"}`)
	if w.Code != http.StatusBadRequest || decode(t, w).ErrorCode != 123 {
		t.Fatalf("consume: status = %d body = %s", w.Code, w.Body.String())
	}
}

func TestResumeAndLeave(t *testing.T) {
	rooms := &fakeRooms{}
	r := newTestRouter(rooms)

	w := do(r, http.MethodPost, "/voice/consumers/c42/resume", "good", "")
	if w.Code != http.StatusOK {
		t.Fatalf("resume: status = %d body = %s", w.Code, w.Body.String())
	}
	data, _ := json.Marshal(decode(t, w).Data)
	if !strings.Contains(string(data), `"id":"c42"`) {
		t.Fatalf("resume data = %s", data)
	}

	if w := do(r, http.MethodPost, "/voice/leave", "good", ""); w.Code != http.StatusOK {
		t.Fatalf("leave: status = %d", w.Code)
	}
	if len(rooms.closed) != 1 || rooms.closed[0] != "s1:c1/u1" {
		t.Fatalf("closed peers = %v", rooms.closed)
	}
}

func TestProducerAndConsumerControls(t *testing.T) {
	rooms := &fakeRooms{}
	r := newTestRouter(rooms)

	w := do(r, http.MethodPost, "/voice/producers/p1/pause", "good", "")
	if w.Code != http.StatusOK || !rooms.paused["p1"] {
		t.Fatalf("pause: status = %d body = %s", w.Code, w.Body.String())
	}
	data, _ := json.Marshal(decode(t, w).Data)
	if !strings.Contains(string(data), `"paused":true`) {
		t.Fatalf("pause data = %s", data)
	}
	if w := do(r, http.MethodPost, "/voice/producers/p1/resume", "good", ""); w.Code != http.StatusOK || rooms.paused["p1"] {
		t.Fatalf("resume: status = %d body = %s", w.Code, w.Body.String())
	}

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantCode   int
	}{
		{"pause foreign producer", "/voice/producers/p2/pause", http.StatusNotFound, 132},
		{"close foreign producer", "/voice/producers/p2/close", http.StatusNotFound, 132},
		{"close foreign consumer", "/voice/consumers/c2/close", http.StatusNotFound, 133},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, tt.path, "good", "")
			if w.Code != tt.wantStatus || decode(t, w).ErrorCode != tt.wantCode {
				t.Fatalf("status = %d body = %s", w.Code, w.Body.String())
			}
		})
	}

	for _, path := range []string{"/voice/producers/p1/close", "/voice/consumers/c1/close"} {
		if w := do(r, http.MethodPost, path, "good", ""); w.Code != http.StatusOK {
			t.Fatalf("%s: status = %d body = %s", path, w.Code, w.Body.String())
		}
	}
	if len(rooms.dropped) != 2 || rooms.dropped[0] != "producer/p1" || rooms.dropped[1] != "consumer/c1" {
		t.Fatalf("dropped = %v", rooms.dropped)
	}
	if w := do(r, http.MethodPost, "/voice/producers/p1/close", "", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("close without token: status = %d", w.Code)
	}
}

func TestHealthMetricsAndGateway(t *testing.T) {
	r := newTestRouter(&fakeRooms{})

	w := do(r, http.MethodGet, "/healthz", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"connections":3`) {
		t.Fatalf("healthz: %d %s", w.Code, w.Body.String())
	}
	if w := do(r, http.MethodGet, "/metrics", "", ""); w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
	if w := do(r, http.MethodGet, "/gateway", "", ""); w.Code != http.StatusTeapot {
		t.Fatalf("gateway route not mounted: %d", w.Code)
	}
}
