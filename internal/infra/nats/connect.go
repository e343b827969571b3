package nats

import (
	"log"

	"github.com/nats-io/nats.go"
	"github.com/vogiaan1904/realtime-gateway/config"
	pkgNats "github.com/vogiaan1904/realtime-gateway/pkg/nats"
)

func Connect(cfg config.NATSConfig) (*nats.Conn, error) {
	return pkgNats.NewConn(cfg)
}

// Disconnect drains pending subscriptions before closing.
func Disconnect(nc *nats.Conn) {
	if nc == nil {
		return
	}

	if err := nc.Drain(); err != nil {
		nc.Close()
	}

	log.Println("Connection to NATS closed.")
}
