package sfu

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const iceGatherTimeout = 10 * time.Second

// PionRouter forwards RTP between pion PeerConnections in this process.
type PionRouter struct {
	api    *webrtc.API
	config webrtc.Configuration
	l      logger.Logger

	mu         sync.Mutex
	transports map[string]*pionTransport
	consumers  map[string]*pionConsumer
}

type pionTransport struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	fanouts map[Kind]*fanout
}

type pionConsumer struct {
	transportID string
	sender      *webrtc.RTPSender
	source      *fanout
	sink        *sink
}

// fanout copies one inbound track to every active sink while not paused.
type fanout struct {
	paused atomic.Bool

	mu    sync.RWMutex
	sinks map[string]*sink
}

type sink struct {
	track  *webrtc.TrackLocalStaticRTP
	active atomic.Bool
}

func NewPionRouter(iceServers []string, l logger.Logger) (*PionRouter, error) {
	me := &webrtc.MediaEngine{}
	if err := me.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("sfu.NewPionRouter: %w", err)
	}

	var servers []webrtc.ICEServer
	if len(iceServers) > 0 {
		servers = []webrtc.ICEServer{{URLs: iceServers}}
	}

	return &PionRouter{
		api:        webrtc.NewAPI(webrtc.WithMediaEngine(me)),
		config:     webrtc.Configuration{ICEServers: servers},
		l:          l,
		transports: make(map[string]*pionTransport),
		consumers:  make(map[string]*pionConsumer),
	}, nil
}

func (r *PionRouter) Connect(ctx context.Context, transportID, offer string) (string, error) {
	pc, err := r.api.NewPeerConnection(r.config)
	if err != nil {
		return "", fmt.Errorf("creating PeerConnection: %w", err)
	}
	t := &pionTransport{pc: pc, fanouts: make(map[Kind]*fanout)}

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		r.l.Debugf(context.Background(), "sfu.PionRouter: %s track on %s", remote.Kind(), transportID)
		go t.fanout(Kind(remote.Kind().String())).pump(remote)
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if state == webrtc.PeerConnectionStateFailed {
			r.l.Warnf(context.Background(), "sfu.PionRouter: transport %s failed", transportID)
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer}); err != nil {
		pc.Close()
		return "", fmt.Errorf("setting remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		return "", fmt.Errorf("creating SDP answer: %w", err)
	}
	sdp, err := setLocalAndGather(ctx, pc, answer)
	if err != nil {
		pc.Close()
		return "", err
	}

	r.mu.Lock()
	r.transports[transportID] = t
	r.mu.Unlock()
	return sdp, nil
}

func (r *PionRouter) Forward(ctx context.Context, producerTransportID string, kind Kind, consumerTransportID, consumerID string) (string, error) {
	r.mu.Lock()
	src, ok := r.transports[producerTransportID]
	dst, ok2 := r.transports[consumerTransportID]
	r.mu.Unlock()
	if !ok || !ok2 {
		return "", ErrTransportNotFound
	}

	mime := webrtc.MimeTypeOpus
	if kind == KindVideo {
		mime = webrtc.MimeTypeVP8
	}
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, consumerID, producerTransportID)
	if err != nil {
		return "", fmt.Errorf("creating local track: %w", err)
	}
	sender, err := dst.pc.AddTrack(track)
	if err != nil {
		return "", fmt.Errorf("adding track: %w", err)
	}
	go drainRTCP(sender)

	offer, err := dst.pc.CreateOffer(nil)
	if err != nil {
		return "", fmt.Errorf("creating SDP offer: %w", err)
	}
	sdp, err := setLocalAndGather(ctx, dst.pc, offer)
	if err != nil {
		return "", err
	}

	s := &sink{track: track}
	source := src.fanout(kind)
	source.add(consumerID, s)

	r.mu.Lock()
	r.consumers[consumerID] = &pionConsumer{transportID: consumerTransportID, sender: sender, source: source, sink: s}
	r.mu.Unlock()
	return sdp, nil
}

func (r *PionRouter) Resume(_ context.Context, consumerID, answer string) error {
	r.mu.Lock()
	c, ok := r.consumers[consumerID]
	var t *pionTransport
	if ok {
		t = r.transports[c.transportID]
	}
	r.mu.Unlock()
	if !ok || t == nil {
		return ErrConsumerNotFound
	}

	if answer != "" {
		if err := t.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
			return fmt.Errorf("setting remote description: %w", err)
		}
	}
	c.sink.active.Store(true)
	return nil
}

func (r *PionRouter) PauseProducer(producerTransportID string, kind Kind, paused bool) {
	r.mu.Lock()
	t, ok := r.transports[producerTransportID]
	r.mu.Unlock()
	if !ok {
		return
	}
	t.fanout(kind).paused.Store(paused)
}

func (r *PionRouter) CloseConsumer(consumerID string) {
	r.mu.Lock()
	c, ok := r.consumers[consumerID]
	delete(r.consumers, consumerID)
	var t *pionTransport
	if ok {
		t = r.transports[c.transportID]
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	c.source.remove(consumerID)
	if t == nil {
		return
	}
	if err := t.pc.RemoveTrack(c.sender); err != nil {
		r.l.Warnf(context.Background(), "sfu.PionRouter.CloseConsumer: %v", err)
	}
}

func (r *PionRouter) CloseTransport(transportID string) {
	r.mu.Lock()
	t, ok := r.transports[transportID]
	delete(r.transports, transportID)
	for id, c := range r.consumers {
		if c.transportID == transportID {
			c.source.remove(id)
			delete(r.consumers, id)
		}
	}
	r.mu.Unlock()

	if ok {
		if err := t.pc.Close(); err != nil {
			r.l.Warnf(context.Background(), "sfu.PionRouter.CloseTransport: %v", err)
		}
	}
}

func (r *PionRouter) Close() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.transports))
	for id := range r.transports {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		r.CloseTransport(id)
	}
}

func (t *pionTransport) fanout(kind Kind) *fanout {
	t.mu.Lock()
	defer t.mu.Unlock()
	f, ok := t.fanouts[kind]
	if !ok {
		f = &fanout{sinks: make(map[string]*sink)}
		t.fanouts[kind] = f
	}
	return f
}

func (f *fanout) add(id string, s *sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[id] = s
}

func (f *fanout) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, id)
}

func (f *fanout) pump(remote *webrtc.TrackRemote) {
	for {
		pkt, _, err := remote.ReadRTP()
		if err != nil {
			return
		}
		if f.paused.Load() {
			continue
		}
		f.mu.RLock()
		for _, s := range f.sinks {
			if !s.active.Load() {
				continue
			}
			// Write errors come from consumers being torn down.
			_ = s.track.WriteRTP(pkt)
		}
		f.mu.RUnlock()
	}
}

func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// setLocalAndGather applies desc and waits for ICE gathering so the
// returned SDP carries every candidate.
func setLocalAndGather(ctx context.Context, pc *webrtc.PeerConnection, desc webrtc.SessionDescription) (string, error) {
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(desc); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gathered:
	case <-time.After(iceGatherTimeout):
		return "", fmt.Errorf("ICE gathering timed out after %s", iceGatherTimeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return pc.LocalDescription().SDP, nil
}
