package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	pkgErrors "github.com/vogiaan1904/realtime-gateway/pkg/errors"
)

func TestError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   int
	}{
		{"default status", pkgErrors.NewHTTPError(120, "bad kind"), http.StatusBadRequest, 120},
		{"explicit status", pkgErrors.NewHTTPError(110, "no session").WithStatus(http.StatusUnauthorized), http.StatusUnauthorized, 110},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			Error(c, tt.err)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp Resp
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.ErrorCode != tt.wantCode {
				t.Fatalf("error_code = %d, want %d", resp.ErrorCode, tt.wantCode)
			}
		})
	}
}
