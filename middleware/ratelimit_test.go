package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func rateLimited(t *testing.T, limit rate.Limit, burst int) func(ip string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RateLimit(limit, burst))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	return func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}
}

func TestRateLimit_WithinBudget(t *testing.T) {
	do := rateLimited(t, 100, 5)
	assert.Equal(t, http.StatusOK, do("10.0.0.1"))
}

func TestRateLimit_BurstExhausted(t *testing.T) {
	// Refill is effectively zero, so only the burst is spendable.
	do := rateLimited(t, 0.001, 3)
	for i := 0; i < 3; i++ {
		assert.Equalf(t, http.StatusOK, do("10.0.1.1"), "request %d within burst", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.1.1"))
}

func TestRateLimit_BucketsAreIndependentPerIP(t *testing.T) {
	do := rateLimited(t, 0.001, 1)

	assert.Equal(t, http.StatusOK, do("10.1.1.1"))
	assert.Equal(t, http.StatusOK, do("10.1.1.2"), "second IP has its own bucket")
	assert.Equal(t, http.StatusTooManyRequests, do("10.1.1.1"))
}
