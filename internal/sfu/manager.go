package sfu

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

type transport struct {
	id        string
	direction Direction
}

type peer struct {
	userID     string
	transports map[string]*transport
	producers  map[string]*Producer
	consumers  map[string]*Consumer
}

func newPeer(uID string) *peer {
	return &peer{
		userID:     uID,
		transports: make(map[string]*transport),
		producers:  make(map[string]*Producer),
		consumers:  make(map[string]*Consumer),
	}
}

type room struct {
	id    string
	peers map[string]*peer
}

// Manager is the in-process registry of rooms on this instance. A room
// exists while at least one peer is in it.
type Manager struct {
	router Router
	l      logger.Logger

	mu    sync.Mutex
	rooms map[string]*room
}

func NewManager(router Router, l logger.Logger) *Manager {
	return &Manager{
		router: router,
		l:      l,
		rooms:  make(map[string]*room),
	}
}

// CreateTransport negotiates a transport for uID in roomID, creating the
// room and peer on first use. The reply lists the producers the caller
// can consume.
func (m *Manager) CreateTransport(ctx context.Context, roomID, uID string, dir Direction, offer string) (*TransportInfo, error) {
	if !dir.Valid() {
		return nil, ErrInvalidDirection
	}

	id := uuid.NewString()
	answer, err := m.router.Connect(ctx, id, offer)
	if err != nil {
		m.l.Errorf(ctx, "sfu.Manager.CreateTransport: %v", err)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		r = &room{id: roomID, peers: make(map[string]*peer)}
		m.rooms[roomID] = r
	}
	p, ok := r.peers[uID]
	if !ok {
		p = newPeer(uID)
		r.peers[uID] = p
	}
	p.transports[id] = &transport{id: id, direction: dir}

	return &TransportInfo{
		ID:        id,
		Direction: dir,
		Answer:    answer,
		Producers: r.producersExcept(uID),
	}, nil
}

func (m *Manager) Produce(ctx context.Context, roomID, uID, transportID string, kind Kind) (*Producer, error) {
	if !kind.Valid() {
		return nil, ErrInvalidKind
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.peer(roomID, uID)
	if err != nil {
		return nil, err
	}
	t, ok := p.transports[transportID]
	if !ok {
		return nil, ErrTransportNotFound
	}
	if t.direction != DirectionSend {
		return nil, ErrWrongDirection
	}

	prod := &Producer{ID: uuid.NewString(), UserID: uID, TransportID: transportID, Kind: kind}
	p.producers[prod.ID] = prod
	m.l.Debugf(ctx, "sfu.Manager.Produce: %s %s in %s", uID, kind, roomID)
	return prod, nil
}

// Consume creates a paused consumer of producerID on the caller's receive
// transport.
func (m *Manager) Consume(ctx context.Context, roomID, uID, transportID, producerID string) (*Consumer, error) {
	m.mu.Lock()
	p, err := m.peer(roomID, uID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	t, ok := p.transports[transportID]
	if !ok {
		m.mu.Unlock()
		return nil, ErrTransportNotFound
	}
	if t.direction != DirectionRecv {
		m.mu.Unlock()
		return nil, ErrWrongDirection
	}
	prod := m.rooms[roomID].producer(producerID)
	if prod == nil {
		m.mu.Unlock()
		return nil, ErrProducerNotFound
	}
	if prod.UserID == uID {
		m.mu.Unlock()
		return nil, ErrOwnProducer
	}
	cons := &Consumer{
		ID:          uuid.NewString(),
		ProducerID:  prod.ID,
		TransportID: transportID,
		Kind:        prod.Kind,
		Paused:      true,
	}
	producerTransport := prod.TransportID
	m.mu.Unlock()

	offer, err := m.router.Forward(ctx, producerTransport, cons.Kind, transportID, cons.ID)
	if err != nil {
		m.l.Errorf(ctx, "sfu.Manager.Consume: %v", err)
		return nil, err
	}
	cons.Offer = offer

	m.mu.Lock()
	// The peer may have left while the router was busy; its transports
	// are closed already.
	p, err = m.peer(roomID, uID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if m.rooms[roomID].producer(cons.ProducerID) == nil {
		m.mu.Unlock()
		m.router.CloseConsumer(cons.ID)
		return nil, ErrProducerNotFound
	}
	p.consumers[cons.ID] = cons
	m.mu.Unlock()
	return cons, nil
}

func (m *Manager) ResumeConsumer(ctx context.Context, roomID, uID, consumerID, answer string) (*Consumer, error) {
	m.mu.Lock()
	p, err := m.peer(roomID, uID)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	cons, ok := p.consumers[consumerID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrConsumerNotFound
	}

	if err := m.router.Resume(ctx, consumerID, answer); err != nil {
		m.l.Errorf(ctx, "sfu.Manager.ResumeConsumer: %v", err)
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	cons.Paused = false
	out := *cons
	return &out, nil
}

// PauseProducer stops or restarts the media of one of uID's producers for
// every consumer in the room.
func (m *Manager) PauseProducer(ctx context.Context, roomID, uID, producerID string, paused bool) (*Producer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, err := m.peer(roomID, uID)
	if err != nil {
		return nil, err
	}
	prod, ok := p.producers[producerID]
	if !ok {
		return nil, ErrProducerNotFound
	}
	if prod.Paused != paused {
		prod.Paused = paused
		m.router.PauseProducer(prod.TransportID, prod.Kind, paused)
	}
	m.l.Debugf(ctx, "sfu.Manager.PauseProducer: %s paused=%t in %s", producerID, paused, roomID)
	out := *prod
	return &out, nil
}

// CloseProducer removes one of uID's producers and every consumer of it.
func (m *Manager) CloseProducer(ctx context.Context, roomID, uID, producerID string) error {
	m.mu.Lock()
	p, err := m.peer(roomID, uID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	prod, ok := p.producers[producerID]
	if !ok {
		m.mu.Unlock()
		return ErrProducerNotFound
	}
	delete(p.producers, producerID)
	dropped := m.rooms[roomID].dropConsumers(func(cons *Consumer) bool {
		return cons.ProducerID == producerID
	})
	m.mu.Unlock()

	for _, id := range dropped {
		m.router.CloseConsumer(id)
	}
	// A later producer on the same transport starts live.
	if prod.Paused {
		m.router.PauseProducer(prod.TransportID, prod.Kind, false)
	}
	m.l.Debugf(ctx, "sfu.Manager.CloseProducer: %s closed %s with %d consumers", uID, producerID, len(dropped))
	return nil
}

// CloseConsumer removes one of uID's consumers.
func (m *Manager) CloseConsumer(ctx context.Context, roomID, uID, consumerID string) error {
	m.mu.Lock()
	p, err := m.peer(roomID, uID)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if _, ok := p.consumers[consumerID]; !ok {
		m.mu.Unlock()
		return ErrConsumerNotFound
	}
	delete(p.consumers, consumerID)
	m.mu.Unlock()

	m.router.CloseConsumer(consumerID)
	m.l.Debugf(ctx, "sfu.Manager.CloseConsumer: %s closed %s", uID, consumerID)
	return nil
}

// ClosePeer closes every transport uID holds in roomID and drops the
// consumers other peers had on its producers. The room goes away with
// its last peer.
func (m *Manager) ClosePeer(roomID, uID string) {
	m.mu.Lock()
	r, ok := m.rooms[roomID]
	if !ok {
		m.mu.Unlock()
		return
	}
	p, ok := r.peers[uID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(r.peers, uID)

	dropped := r.dropConsumers(func(cons *Consumer) bool {
		_, gone := p.producers[cons.ProducerID]
		return gone
	})
	if len(r.peers) == 0 {
		delete(m.rooms, roomID)
	}

	ids := make([]string, 0, len(p.transports))
	for id := range p.transports {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	// Tracks forwarded to the remaining peers sit on transports that stay open.
	for _, id := range dropped {
		m.router.CloseConsumer(id)
	}
	for _, id := range ids {
		m.router.CloseTransport(id)
	}
	m.l.Debugf(context.Background(), "sfu.Manager.ClosePeer: %s left %s", uID, roomID)
}

// Peers returns the users in roomID, sorted.
func (m *Manager) Peers(roomID string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(r.peers))
	for uID := range r.peers {
		out = append(out, uID)
	}
	sort.Strings(out)
	return out
}

func (m *Manager) RoomCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Close tears down every room.
func (m *Manager) Close() {
	m.mu.Lock()
	var ids []string
	for _, r := range m.rooms {
		for _, p := range r.peers {
			for id := range p.transports {
				ids = append(ids, id)
			}
		}
	}
	m.rooms = make(map[string]*room)
	m.mu.Unlock()

	for _, id := range ids {
		m.router.CloseTransport(id)
	}
}

func (m *Manager) peer(roomID, uID string) (*peer, error) {
	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	p, ok := r.peers[uID]
	if !ok {
		return nil, ErrTransportNotFound
	}
	return p, nil
}

func (r *room) producer(id string) *Producer {
	for _, p := range r.peers {
		if prod, ok := p.producers[id]; ok {
			return prod
		}
	}
	return nil
}

// dropConsumers removes the consumers matching drop and returns their ids.
func (r *room) dropConsumers(drop func(*Consumer) bool) []string {
	var ids []string
	for _, p := range r.peers {
		for id, cons := range p.consumers {
			if drop(cons) {
				delete(p.consumers, id)
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func (r *room) producersExcept(uID string) []Producer {
	out := []Producer{}
	for _, p := range r.peers {
		if p.userID == uID {
			continue
		}
		for _, prod := range p.producers {
			out = append(out, *prod)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
