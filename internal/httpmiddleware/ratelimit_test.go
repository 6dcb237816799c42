package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestAllowExhaustsAndRefills(t *testing.T) {
	l := NewTokenBucket(3, 60)

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow("ip"), "request %d within capacity", i)
	}
	assert.False(t, l.allow("ip"), "capacity spent")

	// A minute of quiet refills the bucket.
	l.state["ip"].last = time.Now().Add(-time.Minute)
	assert.True(t, l.allow("ip"))
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	l := NewTokenBucket(1, 1)
	assert.True(t, l.allow("a"))
	assert.False(t, l.allow("a"))
	assert.True(t, l.allow("b"))
}

func TestPruneDropsIdleBuckets(t *testing.T) {
	l := NewTokenBucket(1, 1)
	assert.True(t, l.allow("old"))

	l.state["old"].last = time.Now().Add(-2 * bucketIdleTTL)
	l.lastPrune = time.Now().Add(-2 * bucketIdleTTL)
	assert.True(t, l.allow("fresh"))

	_, kept := l.state["old"]
	assert.False(t, kept)
}

func TestGinMiddlewareExemptsProbeEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewTokenBucket(1, 1).GinMiddleware())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/v1/classes", func(c *gin.Context) { c.Status(http.StatusOK) })

	// The single token goes to the API call; the next one is throttled.
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/classes", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/classes", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Health checks keep answering regardless.
	for i := 0; i < 5; i++ {
		w = httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}
