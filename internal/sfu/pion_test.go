package sfu

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

func TestPionRouterAnswersOffer(t *testing.T) {
	if testing.Short() {
		t.Skip("gathers ICE candidates")
	}

	router, err := NewPionRouter(nil, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer router.Close()

	client, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	if _, err := client.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		t.Fatal(err)
	}

	offer, err := client.CreateOffer(nil)
	if err != nil {
		t.Fatal(err)
	}
	gathered := webrtc.GatheringCompletePromise(client)
	if err := client.SetLocalDescription(offer); err != nil {
		t.Fatal(err)
	}
	select {
	case <-gathered:
	case <-time.After(iceGatherTimeout):
		t.Fatal("client gathering timed out")
	}

	answer, err := router.Connect(context.Background(), "t1", client.LocalDescription().SDP)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(answer, "m=audio") {
		t.Fatalf("answer has no audio section:\n%s", answer)
	}
	if err := client.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer}); err != nil {
		t.Fatal(err)
	}

	router.CloseTransport("t1")
	if _, err := router.Forward(context.Background(), "t1", KindAudio, "t1", "c1"); err != ErrTransportNotFound {
		t.Fatalf("Forward on closed transport err = %v", err)
	}
	if err := router.Resume(context.Background(), "c1", ""); err != ErrConsumerNotFound {
		t.Fatalf("Resume unknown consumer err = %v", err)
	}
}

func TestPionRouterIgnoresUnknownIDs(t *testing.T) {
	router, err := NewPionRouter(nil, logger.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer router.Close()

	router.PauseProducer("t1", KindAudio, true)
	router.CloseConsumer("c1")
	if len(router.transports) != 0 || len(router.consumers) != 0 {
		t.Fatalf("transports = %d, consumers = %d", len(router.transports), len(router.consumers))
	}
}

func TestFanoutPausedPerKind(t *testing.T) {
	tr := &pionTransport{fanouts: make(map[Kind]*fanout)}
	tr.fanout(KindAudio).paused.Store(true)

	if !tr.fanout(KindAudio).paused.Load() {
		t.Fatal("audio fanout lost its paused flag")
	}
	if tr.fanout(KindVideo).paused.Load() {
		t.Fatal("video fanout paused with audio")
	}

	f := tr.fanout(KindAudio)
	f.add("c1", &sink{})
	f.remove("c1")
	if len(f.sinks) != 0 {
		t.Fatalf("sinks = %d after remove", len(f.sinks))
	}
}
