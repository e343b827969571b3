// Package sfu tracks voice rooms, their peers and the media routes between
// them. Media is moved by a Router; the Manager owns ids, ownership checks
// and room lifetime.
package sfu

import (
	"context"
	"errors"
)

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

func (k Kind) Valid() bool {
	return k == KindAudio || k == KindVideo
}

type Direction string

const (
	DirectionSend Direction = "send"
	DirectionRecv Direction = "recv"
)

func (d Direction) Valid() bool {
	return d == DirectionSend || d == DirectionRecv
}

var (
	ErrRoomNotFound      = errors.New("sfu: room not found")
	ErrTransportNotFound = errors.New("sfu: transport not found")
	ErrProducerNotFound  = errors.New("sfu: producer not found")
	ErrConsumerNotFound  = errors.New("sfu: consumer not found")
	ErrWrongDirection    = errors.New("sfu: transport direction does not allow this")
	ErrOwnProducer       = errors.New("sfu: cannot consume own producer")
	ErrInvalidKind       = errors.New("sfu: invalid media kind")
	ErrInvalidDirection  = errors.New("sfu: invalid transport direction")
)

// Router moves media between transports.
type Router interface {
	// Connect answers a client offer for a new transport.
	Connect(ctx context.Context, transportID, offer string) (answer string, err error)
	// Forward routes kind media received on the producer transport into a
	// new paused track on the consumer transport and returns the offer
	// renegotiating that transport.
	Forward(ctx context.Context, producerTransportID string, kind Kind, consumerTransportID, consumerID string) (offer string, err error)
	// Resume applies the client's answer, if any, and starts the consumer.
	Resume(ctx context.Context, consumerID, answer string) error
	// PauseProducer stops or restarts forwarding kind media received on
	// the producer transport to every consumer.
	PauseProducer(producerTransportID string, kind Kind, paused bool)
	// CloseConsumer stops forwarding to the consumer and removes its track.
	CloseConsumer(consumerID string)
	CloseTransport(transportID string)
}

type TransportInfo struct {
	ID        string     `json:"id"`
	Direction Direction  `json:"direction"`
	Answer    string     `json:"answer"`
	Producers []Producer `json:"producers"`
}

type Producer struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	TransportID string `json:"transport_id"`
	Kind        Kind   `json:"kind"`
	Paused      bool   `json:"paused"`
}

type Consumer struct {
	ID          string `json:"id"`
	ProducerID  string `json:"producer_id"`
	TransportID string `json:"transport_id"`
	Kind        Kind   `json:"kind"`
	Paused      bool   `json:"paused"`
	Offer       string `json:"offer,omitempty"`
}
