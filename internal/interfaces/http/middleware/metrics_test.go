package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/meterly/backend/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(t.Context(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics(t *testing.T) {
	t.Run("nil meter passes through", func(t *testing.T) {
		h, err := HTTPMetrics(nil)
		require.NoError(t, err)

		engine := gin.New()
		engine.Use(h)
		engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusNoContent) })
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("records route and principal kind", func(t *testing.T) {
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		h, err := HTTPMetrics(provider.Meter("test"))
		require.NoError(t, err)

		engine := gin.New()
		engine.Use(h)
		engine.GET("/api/v1/credits/:id", func(c *gin.Context) {
			c.Set(PrincipalKey, principal.Registered{User: &principal.User{BaseEntity: shared.BaseEntity{ID: uuid.New()}}})
			c.String(http.StatusOK, "balance")
		})
		for range 3 {
			engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/credits/abc", nil))
		}
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

		metrics := collect(t, reader)

		total, ok := metrics["http.server.request.total"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		byRoute := map[string]int64{}
		for _, dp := range total.DataPoints {
			route, _ := dp.Attributes.Value(attrHTTPRoute)
			byRoute[route.AsString()] += dp.Value
			if route.AsString() == "/api/v1/credits/:id" {
				kind, found := dp.Attributes.Value(attrPrincipalKind)
				assert.True(t, found)
				assert.Equal(t, "registered", kind.AsString())
			}
		}
		assert.Equal(t, int64(3), byRoute["/api/v1/credits/:id"])
		assert.Equal(t, int64(1), byRoute["unknown"])

		duration, ok := metrics["http.server.request.duration"].Data.(metricdata.Histogram[float64])
		require.True(t, ok)
		var count uint64
		for _, dp := range duration.DataPoints {
			count += dp.Count
			if class, found := dp.Attributes.Value(attrStatusClass); found && class.AsString() == "4xx" {
				route, _ := dp.Attributes.Value(attrHTTPRoute)
				assert.Equal(t, attribute.StringValue("unknown"), route)
			}
		}
		assert.Equal(t, uint64(4), count)

		active, ok := metrics["http.server.active_requests"].Data.(metricdata.Sum[int64])
		require.True(t, ok)
		for _, dp := range active.DataPoints {
			assert.Zero(t, dp.Value)
		}
	})
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 302: "3xx", 404: "4xx", 402: "4xx", 503: "5xx", 100: "other"}
	for code, want := range tests {
		assert.Equal(t, want, statusClass(code), "status %d", code)
	}
}
