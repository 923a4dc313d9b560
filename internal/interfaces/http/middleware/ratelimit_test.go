package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiter(t *testing.T) {
	t.Run("burst then blocked", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 3)

		for i := 0; i < 3; i++ {
			assert.True(t, rl.Allow("a"), "request %d", i+1)
		}
		assert.False(t, rl.Allow("a"))
	})

	t.Run("separate buckets per key", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)

		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		assert.True(t, rl.Allow("b"))
	})

	t.Run("refills over time", func(t *testing.T) {
		rl := NewRateLimiter(100, 1)

		assert.True(t, rl.Allow("a"))
		assert.False(t, rl.Allow("a"))
		time.Sleep(20 * time.Millisecond)
		assert.True(t, rl.Allow("a"))
	})

	t.Run("idle buckets are evicted", func(t *testing.T) {
		rl := NewRateLimiter(1, 1)
		now := time.Now()
		rl.now = func() time.Time { return now }
		rl.Allow("a")
		rl.Allow("b")
		assert.Equal(t, 2, rl.Len())

		now = now.Add(idleLimiterTTL + time.Second)
		rl.Allow("c")

		assert.Equal(t, 1, rl.Len())
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("keys by principal", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		ids := []uuid.UUID{uuid.New(), uuid.New()}
		current := 0
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(PrincipalRefKey, principal.AnonymousRef(ids[current]))
		}, RateLimit(rl))
		r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, serve(r, "GET", "/test", nil).Code)
		w := serve(r, "GET", "/test", nil)
		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Contains(t, w.Body.String(), "RATE_LIMITED")

		current = 1
		assert.Equal(t, http.StatusOK, serve(r, "GET", "/test", nil).Code)
	})

	t.Run("falls back to client IP", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 2)
		r := okRouter(RateLimit(rl))

		w := serve(r, "GET", "/test", nil)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, http.StatusOK, serve(r, "GET", "/test", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, "GET", "/test", nil).Code)
	})

	t.Run("by IP ignores the principal", func(t *testing.T) {
		rl := NewRateLimiter(0.001, 1)
		r := gin.New()
		r.Use(func(c *gin.Context) {
			c.Set(PrincipalRefKey, principal.AnonymousRef(uuid.New()))
		}, RateLimitByIP(rl))
		r.GET("/test", func(c *gin.Context) { c.Status(http.StatusOK) })

		assert.Equal(t, http.StatusOK, serve(r, "GET", "/test", nil).Code)
		assert.Equal(t, http.StatusTooManyRequests, serve(r, "GET", "/test", nil).Code)
		assert.Equal(t, 1, rl.Len())
	})
}
