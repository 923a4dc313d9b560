package router

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	t.Run("defaults to v1", func(t *testing.T) {
		r := NewRouter(gin.New())

		assert.Equal(t, "v1", r.apiVersion)
		assert.Empty(t, r.registrars)
	})

	t.Run("with API version", func(t *testing.T) {
		r := NewRouter(gin.New(), WithAPIVersion("v2"))

		assert.Equal(t, "v2", r.apiVersion)
	})
}

func TestRouter_Setup(t *testing.T) {
	engine := gin.New()
	r := NewRouter(engine)

	credits := NewDomainGroup("credits", "/credits")
	credits.GET("/balance", func(c *gin.Context) { c.String(http.StatusOK, "balance") })
	coupons := NewDomainGroup("coupons", "/coupons")
	coupons.POST("/redeem", func(c *gin.Context) { c.String(http.StatusOK, "redeemed") })

	r.Register(credits).Register(coupons)
	assert.Len(t, r.registrars, 2)
	routes := r.Setup()
	assert.Equal(t, []RouteInfo{
		{Method: http.MethodGet, Path: "/api/v1/credits/balance", Group: "credits"},
		{Method: http.MethodPost, Path: "/api/v1/coupons/redeem", Group: "coupons"},
	}, routes)

	w := serve(engine, http.MethodGet, "/api/v1/credits/balance")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "balance", w.Body.String())

	w = serve(engine, http.MethodPost, "/api/v1/coupons/redeem")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "redeemed", w.Body.String())

	assert.Equal(t, http.StatusNotFound, serve(engine, http.MethodGet, "/credits/balance").Code)
}

func TestDomainGroup(t *testing.T) {
	t.Run("name and prefix", func(t *testing.T) {
		g := NewDomainGroup("gamification", "/gamification")

		assert.Equal(t, "gamification", g.Name())
		assert.Equal(t, "/gamification", g.Prefix())
	})

	t.Run("registers every verb", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("event-types", "/event-types")
		ok := func(c *gin.Context) { c.Status(http.StatusOK) }
		g.GET("/:id", ok).
			POST("", ok).
			PUT("/:id", ok).
			PATCH("/:id", ok).
			DELETE("/:id", ok)
		g.RegisterRoutes(engine.Group("/api/v1"))

		tests := []struct {
			method string
			path   string
		}{
			{http.MethodGet, "/api/v1/event-types/1"},
			{http.MethodPost, "/api/v1/event-types"},
			{http.MethodPut, "/api/v1/event-types/1"},
			{http.MethodPatch, "/api/v1/event-types/1"},
			{http.MethodDelete, "/api/v1/event-types/1"},
		}
		for _, tt := range tests {
			assert.Equal(t, http.StatusOK, serve(engine, tt.method, tt.path).Code, "%s %s", tt.method, tt.path)
		}
	})

	t.Run("middleware runs before route handlers in order", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("admin", "/admin")
		g.Use(func(c *gin.Context) {
			c.Header("X-First", "1")
			c.Next()
		}).Use(func(c *gin.Context) {
			if c.GetHeader("X-Block") != "" {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
			c.Next()
		})
		g.GET("/settings", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
		g.RegisterRoutes(engine.Group("/api/v1"))

		w := serve(engine, http.MethodGet, "/api/v1/admin/settings")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "1", w.Header().Get("X-First"))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/settings", nil)
		req.Header.Set("X-Block", "yes")
		w = httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("per-route handlers chain after group middleware", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("auth", "/auth")
		g.POST("/logout", func(c *gin.Context) {
			c.AbortWithStatus(http.StatusUnauthorized)
		}, func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, http.StatusUnauthorized, serve(engine, http.MethodPost, "/api/v1/auth/logout").Code)
	})

	t.Run("subgroups nest under the parent prefix", func(t *testing.T) {
		engine := gin.New()
		g := NewDomainGroup("admin", "/admin")
		g.Group("coupons", "/coupons").GET("", func(c *gin.Context) { c.String(http.StatusOK, "coupons") })
		g.Group("packages", "/packages").GET("", func(c *gin.Context) { c.String(http.StatusOK, "packages") })
		g.RegisterRoutes(engine.Group("/api/v1"))

		assert.Equal(t, "coupons", serve(engine, http.MethodGet, "/api/v1/admin/coupons").Body.String())
		assert.Equal(t, "packages", serve(engine, http.MethodGet, "/api/v1/admin/packages").Body.String())
	})
}

func TestDomainGroup_Describe(t *testing.T) {
	g := NewDomainGroup("admin", "/admin")
	g.GET("/settings", func(c *gin.Context) {})
	g.Group("coupon-types", "/coupon-types").
		GET("", func(c *gin.Context) {}).
		DELETE("/:id", func(c *gin.Context) {})

	assert.Equal(t, []RouteInfo{
		{Method: http.MethodGet, Path: "/api/v2/admin/settings", Group: "admin"},
		{Method: http.MethodGet, Path: "/api/v2/admin/coupon-types", Group: "coupon-types"},
		{Method: http.MethodDelete, Path: "/api/v2/admin/coupon-types/:id", Group: "coupon-types"},
	}, g.describe("/api/v2"))
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		base, rel, want string
	}{
		{"/api/v1", "", "/api/v1"},
		{"/api/v1", "/credits", "/api/v1/credits"},
		{"/api/v1/credits", "/balance/", "/api/v1/credits/balance/"},
		{"/api/v1", "/", "/api/v1/"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, joinPath(tt.base, tt.rel), "%q + %q", tt.base, tt.rel)
	}
}
