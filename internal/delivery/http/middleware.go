package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/vogiaan1904/realtime-gateway/pkg/response"
)

const voiceSessionKey = "voice_session"

// voiceAuth accepts a voice token only while it matches the user's
// current voice session record.
func (h *Handler) voiceAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || token == "" {
			response.Error(c, errMissingToken)
			return
		}

		vs, err := h.voice.VerifySession(c.Request.Context(), token)
		if err != nil {
			h.l.Infof(c.Request.Context(), "delivery.http.middleware.voiceAuth: %v", err)
			response.Error(c, h.mapError(err))
			return
		}

		c.Set(voiceSessionKey, vs)
		c.Next()
	}
}
