package gateway

import (
	"sync"

	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/protocol"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

// Session is the per-socket protocol state. userID stays empty until
// Identify or Resume succeeds.
type Session struct {
	mu          sync.Mutex
	id          string
	userID      string
	sequence    int64
	encoding    protocol.Encoding
	compression protocol.Compression

	heartbeat clock.Timer
	ready     clock.Timer
}

func newSession(enc protocol.Encoding, comp protocol.Compression) *Session {
	return &Session{encoding: enc, compression: comp}
}

func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Session) Authenticated() bool {
	return s.UserID() != ""
}

func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// authenticate binds the socket to a user session and continues its
// sequence from seq.
func (s *Session) authenticate(id, userID string, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.userID = userID
	s.sequence = seq
}

func (s *Session) nextSequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequence++
	return s.sequence
}

func (s *Session) snapshot() *models.GatewaySession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &models.GatewaySession{ID: s.id, UserID: s.userID, Sequence: s.sequence}
}

// armHeartbeat replaces the heartbeat timer.
func (s *Session) armHeartbeat(t clock.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeat != nil {
		s.heartbeat.Stop()
	}
	s.heartbeat = t
}

func (s *Session) armReady(t clock.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready != nil {
		s.ready.Stop()
	}
	s.ready = t
}

func (s *Session) disarmReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready != nil {
		s.ready.Stop()
		s.ready = nil
	}
}

func (s *Session) stopTimers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.heartbeat != nil {
		s.heartbeat.Stop()
		s.heartbeat = nil
	}
	if s.ready != nil {
		s.ready.Stop()
		s.ready = nil
	}
}
