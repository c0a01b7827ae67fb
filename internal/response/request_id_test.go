package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func newRequestIDRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		Success(c, http.StatusOK, gin.H{"id": RequestID(c)})
	})
	return r
}

func TestRequestIDMiddleware(t *testing.T) {
	r := newRequestIDRouter()

	cases := []struct {
		name     string
		header   string
		keepsHdr bool
	}{
		{"reuses caller id", "trace-abc-123", true},
		{"generates when absent", "", false},
		{"rejects whitespace", "bad id", false},
		{"rejects oversized", strings.Repeat("a", maxRequestIDLength+1), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("X-Request-ID", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get("X-Request-ID")
			if tc.keepsHdr {
				assert.Equal(t, tc.header, got)
				return
			}
			_, err := uuid.Parse(got)
			assert.NoError(t, err)
			assert.Contains(t, w.Body.String(), got)
		})
	}
}
