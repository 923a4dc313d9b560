package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func okRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return r
}

func TestCORSWithConfig(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowOrigins = []string{"http://app.example.com"}

	t.Run("allowed origin receives headers", func(t *testing.T) {
		w := serve(okRouter(CORSWithConfig(cfg)), "GET", "/test", map[string]string{"Origin": "http://app.example.com"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
		assert.Contains(t, w.Header().Get("Access-Control-Expose-Headers"), "X-Anonymous-ID")
		assert.Equal(t, "43200", w.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("other origin gets no headers", func(t *testing.T) {
		w := serve(okRouter(CORSWithConfig(cfg)), "GET", "/test", map[string]string{"Origin": "http://evil.example.com"})

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight answers 204", func(t *testing.T) {
		w := serve(okRouter(CORSWithConfig(cfg)), "OPTIONS", "/test", map[string]string{"Origin": "http://app.example.com"})

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Anonymous-ID")
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		wild := DefaultCORSConfig()
		wild.AllowOrigins = []string{"*"}

		w := serve(okRouter(CORSWithConfig(wild)), "GET", "/test", map[string]string{"Origin": "http://any.example.com"})

		assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("preflight from unknown origin answers 204 without headers", func(t *testing.T) {
		w := serve(okRouter(CORSWithConfig(cfg)), "OPTIONS", "/test", map[string]string{"Origin": "http://evil.example.com"})

		assert.Equal(t, http.StatusNoContent, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("default config refuses cross-origin", func(t *testing.T) {
		w := serve(okRouter(CORS()), "GET", "/test", map[string]string{"Origin": "http://app.example.com"})

		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestRequestID(t *testing.T) {
	t.Run("generates request ID", func(t *testing.T) {
		w := serve(okRouter(RequestID()), "GET", "/test", nil)

		assert.Len(t, w.Header().Get("X-Request-ID"), 32)
	})

	t.Run("uses provided request ID", func(t *testing.T) {
		w := serve(okRouter(RequestID()), "GET", "/test", map[string]string{"X-Request-ID": "req-42"})

		assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))
	})

	t.Run("truncates oversized IDs", func(t *testing.T) {
		w := serve(okRouter(RequestID()), "GET", "/test", map[string]string{"X-Request-ID": strings.Repeat("a", 500)})

		assert.Len(t, w.Header().Get("X-Request-ID"), MaxRequestIDLength)
	})
}

func TestSecureWithConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		w := serve(okRouter(Secure()), "GET", "/test", nil)

		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		assert.Equal(t, "default-src 'none'; frame-ancestors 'none'", w.Header().Get("Content-Security-Policy"))
		assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
	})

	t.Run("docs get a relaxed policy", func(t *testing.T) {
		r := gin.New()
		r.Use(Secure())
		r.GET("/swagger/*any", func(c *gin.Context) { c.String(http.StatusOK, "ui") })

		w := serve(r, "GET", "/swagger/index.html", nil)

		assert.Contains(t, w.Header().Get("Content-Security-Policy"), "script-src 'self' 'unsafe-inline'")
		assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	})

	t.Run("HSTS enabled", func(t *testing.T) {
		cfg := DefaultSecurityConfig()
		cfg.HSTSEnabled = true
		cfg.HSTSPreload = true

		w := serve(okRouter(SecureWithConfig(cfg)), "GET", "/test", nil)

		assert.Equal(t, "max-age=31536000; includeSubDomains; preload", w.Header().Get("Strict-Transport-Security"))
	})
}

func TestDefaultCORSConfig(t *testing.T) {
	cfg := DefaultCORSConfig()

	assert.Empty(t, cfg.AllowOrigins)
	assert.Contains(t, cfg.AllowHeaders, "Authorization")
	assert.Contains(t, cfg.AllowHeaders, "X-Anonymous-ID")
	assert.Equal(t, 12*time.Hour, cfg.MaxAge)
}
