package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	pkgErrors "github.com/vogiaan1904/realtime-gateway/pkg/errors"
)

type Resp struct {
	ErrorCode int    `json:"error_code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	Errors    any    `json:"errors,omitempty"`
}

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Resp{
		ErrorCode: 0,
		Message:   "Success",
		Data:      data,
	})
}

// Error aborts the request. Errors that are not *errors.HTTPError are
// reported as a bare 500.
func Error(c *gin.Context, err error) {
	status, resp := parseHttpError(err)
	c.AbortWithStatusJSON(status, resp)
}

func parseHttpError(err error) (int, Resp) {
	var httpErr *pkgErrors.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Status(), Resp{
			ErrorCode: httpErr.Code,
			Message:   httpErr.Message,
		}
	}
	return http.StatusInternalServerError, Resp{
		ErrorCode: 500,
		Message:   "Internal server error",
	}
}
