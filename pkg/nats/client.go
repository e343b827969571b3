package nats

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/vogiaan1904/realtime-gateway/config"
)

func NewConn(cfg config.NATSConfig) (*nats.Conn, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("nats servers missing")
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("NATS disconnected: %v\n", err)
			}
		}),
	}

	nc, err := nats.Connect(strings.Join(cfg.Servers, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	log.Printf("NATS connected to servers: %v\n", cfg.Servers)

	return nc, nil
}
