package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vogiaan1904/realtime-gateway/pkg/logger"
)

// NewRouter mounts the gateway socket, health, metrics and voice
// signaling routes.
func NewRouter(h *Handler, gateway http.Handler, gatherer prometheus.Gatherer, l logger.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.GinLogger(l))

	r.GET("/gateway", gin.WrapH(gateway))
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	voice := r.Group("/voice", h.voiceAuth())
	{
		voice.POST("/transports", h.CreateTransport)
		voice.POST("/produce", h.Produce)
		voice.POST("/consume", h.Consume)
		voice.POST("/consumers/:id/resume", h.ResumeConsumer)
		voice.POST("/consumers/:id/close", h.CloseConsumer)
		voice.POST("/producers/:id/pause", h.PauseProducer)
		voice.POST("/producers/:id/resume", h.ResumeProducer)
		voice.POST("/producers/:id/close", h.CloseProducer)
		voice.POST("/leave", h.Leave)
	}

	return r
}
