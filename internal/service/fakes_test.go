package service

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/vogiaan1904/realtime-gateway/internal/delivery/kafka"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/repository/postgres"
	"github.com/vogiaan1904/realtime-gateway/pkg/clock"
)

var (
	epoch         = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	errConnClosed = errors.New("connection closed")
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	cli := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cli.Close() })
	return mr, cli
}

func newFakeClock() *clock.Fake {
	return clock.NewFake(epoch)
}

type sentEvent struct {
	event string
	d     any
}

type fakeConn struct {
	id    string
	uID   string
	ssID  string
	lists *ListState

	mu     sync.Mutex
	sent   []sentEvent
	closed bool
}

func newFakeConn(id, uID string) *fakeConn {
	return &fakeConn{id: id, uID: uID, ssID: "ss-" + id, lists: NewListState()}
}

func (c *fakeConn) ID() string        { return c.id }
func (c *fakeConn) UserID() string    { return c.uID }
func (c *fakeConn) SessionID() string { return c.ssID }
func (c *fakeConn) Lists() *ListState { return c.lists }

func (c *fakeConn) Dispatch(event string, d any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnClosed
	}
	c.sent = append(c.sent, sentEvent{event: event, d: d})
	return nil
}

func (c *fakeConn) events(name string) []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []any
	for _, e := range c.sent {
		if e.event == name {
			out = append(out, e.d)
		}
	}
	return out
}

func (c *fakeConn) order() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, e := range c.sent {
		out = append(out, e.event)
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type fakeHub struct {
	mu    sync.Mutex
	conns []*fakeConn
}

func (h *fakeHub) add(cs ...*fakeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns = append(h.conns, cs...)
}

func (h *fakeHub) remove(c *fakeConn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, x := range h.conns {
		if x == c {
			h.conns = append(h.conns[:i], h.conns[i+1:]...)
			return
		}
	}
}

func (h *fakeHub) Conns() []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		out = append(out, c)
	}
	return out
}

func (h *fakeHub) UserConns(uID string) []Conn {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []Conn
	for _, c := range h.conns {
		if c.uID == uID {
			out = append(out, c)
		}
	}
	return out
}

func (h *fakeHub) HasUser(uID string) bool {
	return len(h.UserConns(uID)) > 0
}

func (h *fakeHub) Users() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	var out []string
	for _, c := range h.conns {
		if _, ok := seen[c.uID]; !ok {
			seen[c.uID] = struct{}{}
			out = append(out, c.uID)
		}
	}
	sort.Strings(out)
	return out
}

// fakeSpaceStore is an in-memory SpaceStore. Members list in insertion
// order.
type fakeSpaceStore struct {
	spaces   map[string]*models.Space
	channels map[string]*models.Channel
	roles    map[string][]models.Role
	members  map[string][]models.Member
	limits   []int
}

func newFakeSpaceStore() *fakeSpaceStore {
	return &fakeSpaceStore{
		spaces:   make(map[string]*models.Space),
		channels: make(map[string]*models.Channel),
		roles:    make(map[string][]models.Role),
		members:  make(map[string][]models.Member),
	}
}

func (f *fakeSpaceStore) GetSpace(_ context.Context, spaceID string) (*models.Space, error) {
	s, ok := f.spaces[spaceID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	return s, nil
}

func (f *fakeSpaceStore) GetChannel(_ context.Context, channelID string) (*models.Channel, error) {
	c, ok := f.channels[channelID]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (f *fakeSpaceStore) ListRoles(_ context.Context, spaceID string) ([]models.Role, error) {
	return f.roles[spaceID], nil
}

func (f *fakeSpaceStore) GetMember(_ context.Context, spaceID, userID string) (*models.Member, error) {
	for _, m := range f.members[spaceID] {
		if m.User.ID == userID {
			m := m
			return &m, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (f *fakeSpaceStore) ListMembers(_ context.Context, spaceID string, offset, limit int) ([]models.Member, error) {
	f.limits = append(f.limits, limit)
	all := f.members[spaceID]
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return append([]models.Member(nil), all[offset:end]...), nil
}

func (f *fakeSpaceStore) CountMembers(_ context.Context, spaceID string) (int, error) {
	return len(f.members[spaceID]), nil
}

func (f *fakeSpaceStore) addMember(spaceID, uID string, roleIDs ...string) {
	f.members[spaceID] = append(f.members[spaceID], models.Member{
		User:    models.User{ID: uID, Username: uID},
		SpaceID: spaceID,
		RoleIDs: roleIDs,
	})
}

type fakeBus struct {
	mu     sync.Mutex
	states []kafka.VoiceStateEvent
	left   []kafka.VoiceLeftEvent
}

func (b *fakeBus) PublishVoiceState(_ context.Context, e kafka.VoiceStateEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states = append(b.states, e)
	return nil
}

func (b *fakeBus) PublishVoiceLeft(_ context.Context, e kafka.VoiceLeftEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.left = append(b.left, e)
	return nil
}

type fakeStream struct {
	mu   sync.Mutex
	subs map[string][]func([]byte)
	n    int
}

func newFakeStream() *fakeStream {
	return &fakeStream{subs: make(map[string][]func([]byte))}
}

func (s *fakeStream) Subscribe(subject string, fn func([]byte)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	s.subs[subject] = append(s.subs[subject], fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, subject)
	}, nil
}

func (s *fakeStream) publish(subject string) {
	s.mu.Lock()
	fns := slices.Clone(s.subs[subject])
	s.mu.Unlock()
	for _, fn := range fns {
		fn(nil)
	}
}

func (s *fakeStream) subscriptions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

type closedPeer struct{ room, uID string }

type fakePeers struct {
	mu     sync.Mutex
	closed []closedPeer
}

func (p *fakePeers) ClosePeer(roomID, uID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = append(p.closed, closedPeer{roomID, uID})
}

type resyncCall struct{ conn, key string }

type recordingResyncer struct {
	mu    sync.Mutex
	calls []resyncCall
}

func (r *recordingResyncer) ScheduleResync(conn Conn, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, resyncCall{conn.ID(), key})
}
