package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func docsRouter(cfg DocsConfig, guards ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/swagger/*any", DocsProtection(cfg, guards...), func(c *gin.Context) {
		c.String(http.StatusOK, "docs")
	})
	return router
}

func getDocs(router *gin.Engine, remoteAddr string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	router.ServeHTTP(w, req)
	return w
}

func TestDocsProtection(t *testing.T) {
	t.Run("disabled answers not found", func(t *testing.T) {
		w := getDocs(docsRouter(DocsConfig{}), "")

		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Contains(t, w.Body.String(), "NOT_FOUND")
	})

	t.Run("enabled without restrictions", func(t *testing.T) {
		w := getDocs(docsRouter(DocsConfig{Enabled: true}), "")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "docs", w.Body.String())
	})

	t.Run("allow list", func(t *testing.T) {
		router := docsRouter(DocsConfig{Enabled: true, AllowedIPs: []string{"127.0.0.1", "10.0.0.0/8", "not-an-ip"}})

		assert.Equal(t, http.StatusOK, getDocs(router, "127.0.0.1:1234").Code)
		assert.Equal(t, http.StatusOK, getDocs(router, "10.20.30.40:1234").Code)
		w := getDocs(router, "192.168.1.1:1234")
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), "FORBIDDEN")
	})

	t.Run("guards run after the IP check", func(t *testing.T) {
		calls := 0
		deny := func(c *gin.Context) {
			calls++
			c.AbortWithStatus(http.StatusUnauthorized)
		}
		router := docsRouter(DocsConfig{Enabled: true, AllowedIPs: []string{"127.0.0.1"}}, deny)

		assert.Equal(t, http.StatusForbidden, getDocs(router, "192.168.1.1:1234").Code)
		assert.Equal(t, 0, calls)
		assert.Equal(t, http.StatusUnauthorized, getDocs(router, "127.0.0.1:1234").Code)
		assert.Equal(t, 1, calls)
	})

	t.Run("passing guards reach the handler", func(t *testing.T) {
		allow := func(c *gin.Context) { c.Set("checked", true) }
		router := docsRouter(DocsConfig{Enabled: true}, allow)

		assert.Equal(t, http.StatusOK, getDocs(router, "").Code)
	})
}

func TestParseAllowList(t *testing.T) {
	ips, nets := parseAllowList([]string{"192.168.1.1", "::1", "10.0.0.0/8", "bad", "300.0.0.0/8"})

	assert.Len(t, ips, 2)
	assert.Len(t, nets, 1)

	tests := []struct {
		ip   string
		want bool
	}{
		{"192.168.1.1", true},
		{"192.168.1.2", false},
		{"::1", true},
		{"10.0.0.5", true},
		{"11.0.0.5", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.want, isIPAllowed(net.ParseIP(tt.ip), ips, nets))
		})
	}
}
