// Package nats adapts core NATS subjects to the per-user change streams
// the member list listens on.
package nats

import (
	"context"

	"github.com/nats-io/nats.go"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

const (
	pendingMsgLimit   = 1_000_000
	pendingBytesLimit = 64 * 1024 * 1024
)

type subscriber interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

// Stream implements service.ChangeStream over core NATS.
type Stream struct {
	nc subscriber
	l  logger.Logger
}

func NewStream(nc *nats.Conn, l logger.Logger) *Stream {
	return &Stream{nc: nc, l: l}
}

func (s *Stream) Subscribe(subject string, fn func(data []byte)) (func(), error) {
	sub, err := s.nc.Subscribe(subject, deliver(fn))
	if err != nil {
		s.l.Errorf(context.Background(), "delivery.nats.Stream.Subscribe: %v", err)
		return nil, err
	}
	if err := sub.SetPendingLimits(pendingMsgLimit, pendingBytesLimit); err != nil {
		s.l.Warnf(context.Background(), "delivery.nats.Stream.Subscribe: %v", err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil && err != nats.ErrConnectionClosed {
			s.l.Warnf(context.Background(), "delivery.nats.Stream.Unsubscribe %s: %v", subject, err)
		}
	}, nil
}

// deliver hands fn a copy of the payload; nats reuses message buffers.
func deliver(fn func(data []byte)) nats.MsgHandler {
	return func(m *nats.Msg) {
		fn(append([]byte(nil), m.Data...))
	}
}
