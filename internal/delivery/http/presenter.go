package http

import "github.com/vogiaan1904/realtime-gateway/internal/sfu"

type createTransportReq struct {
	Direction sfu.Direction `json:"direction" binding:"required"`
	Offer     string        `json:"offer" binding:"required"`
}

type produceReq struct {
	TransportID string   `json:"transport_id" binding:"required"`
	Kind        sfu.Kind `json:"kind" binding:"required"`
}

type consumeReq struct {
	TransportID string `json:"transport_id" binding:"required"`
	ProducerID  string `json:"producer_id" binding:"required"`
}

type resumeConsumerReq struct {
	// Answer is the client's reply to the consumer's renegotiation offer.
	Answer string `json:"answer"`
}

type healthResp struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
