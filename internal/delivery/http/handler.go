package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/vogiaan1904/realtime-gateway/internal/models"
	"github.com/vogiaan1904/realtime-gateway/internal/service"
	"github.com/vogiaan1904/realtime-gateway/internal/sfu"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
	"github.com/vogiaan1904/realtime-gateway/pkg/response"
)

// Rooms is the SFU surface the voice endpoints drive.
type Rooms interface {
	CreateTransport(ctx context.Context, roomID, uID string, dir sfu.Direction, offer string) (*sfu.TransportInfo, error)
	Produce(ctx context.Context, roomID, uID, transportID string, kind sfu.Kind) (*sfu.Producer, error)
	Consume(ctx context.Context, roomID, uID, transportID, producerID string) (*sfu.Consumer, error)
	ResumeConsumer(ctx context.Context, roomID, uID, consumerID, answer string) (*sfu.Consumer, error)
	PauseProducer(ctx context.Context, roomID, uID, producerID string, paused bool) (*sfu.Producer, error)
	CloseProducer(ctx context.Context, roomID, uID, producerID string) error
	CloseConsumer(ctx context.Context, roomID, uID, consumerID string) error
	ClosePeer(roomID, uID string)
}

// Counter reports the number of open gateway sockets.
type Counter interface {
	Len() int
}

type Handler struct {
	voice service.VoiceService
	rooms Rooms
	conns Counter
	l     logger.Logger
}

func NewHandler(voice service.VoiceService, rooms Rooms, conns Counter, l logger.Logger) *Handler {
	return &Handler{
		voice: voice,
		rooms: rooms,
		conns: conns,
		l:     l,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResp{Status: "ok", Connections: h.conns.Len()})
}

func (h *Handler) CreateTransport(c *gin.Context) {
	ctx := c.Request.Context()
	vs := voiceSession(c)

	var req createTransportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.l.Warnf(ctx, "delivery.http.handler.CreateTransport: %v", err)
		response.Error(c, errWrongBody)
		return
	}

	out, err := h.rooms.CreateTransport(ctx, vs.RoomID, vs.UserID, req.Direction, req.Offer)
	if err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, out)
}

func (h *Handler) Produce(c *gin.Context) {
	ctx := c.Request.Context()
	vs := voiceSession(c)

	var req produceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.l.Warnf(ctx, "delivery.http.handler.Produce: %v", err)
		response.Error(c, errWrongBody)
		return
	}

	out, err := h.rooms.Produce(ctx, vs.RoomID, vs.UserID, req.TransportID, req.Kind)
	if err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, out)
}

func (h *Handler) Consume(c *gin.Context) {
	ctx := c.Request.Context()
	vs := voiceSession(c)

	var req consumeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.l.Warnf(ctx, "delivery.http.handler.Consume: %v", err)
		response.Error(c, errWrongBody)
		return
	}

	out, err := h.rooms.Consume(ctx, vs.RoomID, vs.UserID, req.TransportID, req.ProducerID)
	if err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, out)
}

func (h *Handler) ResumeConsumer(c *gin.Context) {
	ctx := c.Request.Context()
	vs := voiceSession(c)

	var req resumeConsumerReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.l.Warnf(ctx, "delivery.http.handler.ResumeConsumer: %v", err)
			response.Error(c, errWrongBody)
			return
		}
	}

	out, err := h.rooms.ResumeConsumer(ctx, vs.RoomID, vs.UserID, c.Param("id"), req.Answer)
	if err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, out)
}

func (h *Handler) PauseProducer(c *gin.Context) {
	h.setProducerPaused(c, true)
}

func (h *Handler) ResumeProducer(c *gin.Context) {
	h.setProducerPaused(c, false)
}

func (h *Handler) setProducerPaused(c *gin.Context, paused bool) {
	vs := voiceSession(c)
	out, err := h.rooms.PauseProducer(c.Request.Context(), vs.RoomID, vs.UserID, c.Param("id"), paused)
	if err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, out)
}

func (h *Handler) CloseProducer(c *gin.Context) {
	vs := voiceSession(c)
	if err := h.rooms.CloseProducer(c.Request.Context(), vs.RoomID, vs.UserID, c.Param("id")); err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, nil)
}

func (h *Handler) CloseConsumer(c *gin.Context) {
	vs := voiceSession(c)
	if err := h.rooms.CloseConsumer(c.Request.Context(), vs.RoomID, vs.UserID, c.Param("id")); err != nil {
		response.Error(c, h.mapError(err))
		return
	}
	response.OK(c, nil)
}

func (h *Handler) Leave(c *gin.Context) {
	vs := voiceSession(c)
	h.rooms.ClosePeer(vs.RoomID, vs.UserID)
	response.OK(c, nil)
}

func voiceSession(c *gin.Context) *models.VoiceSession {
	return c.MustGet(voiceSessionKey).(*models.VoiceSession)
}
