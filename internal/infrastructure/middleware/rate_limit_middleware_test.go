package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newLimitedRouter(rps float64, burst int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RateLimit(rps, burst))
	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
	return router
}

func get(router *gin.Engine, remoteAddr string) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.RemoteAddr = remoteAddr
	router.ServeHTTP(w, req)
	return w.Code
}

func TestRateLimitBlocksBurstOverflow(t *testing.T) {
	router := newLimitedRouter(1, 2)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234"))
}

func TestRateLimitIsPerClient(t *testing.T) {
	router := newLimitedRouter(1, 1)

	assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, get(router, "10.0.0.1:1234"))
	assert.Equal(t, http.StatusOK, get(router, "10.0.0.2:1234"))
}

func TestRateLimitDisabled(t *testing.T) {
	router := newLimitedRouter(0, 0)

	for i := 0; i < 20; i++ {
		assert.Equal(t, http.StatusOK, get(router, "10.0.0.1:1234"))
	}
}
