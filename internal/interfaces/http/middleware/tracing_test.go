package middleware

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meterly/backend/internal/domain/principal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer installs a recording tracer provider for the test.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
		otel.SetTracerProvider(prev)
	})
	return sr
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func TestTracingWithConfig(t *testing.T) {
	t.Run("disabled passes through", func(t *testing.T) {
		sr := setupTestTracer(t)
		r := okRouter(TracingWithConfig(TracingConfig{Enabled: false}))

		assert.Equal(t, http.StatusOK, serve(r, "GET", "/test", nil).Code)
		assert.Empty(t, sr.Ended())
	})

	t.Run("span carries request and principal attributes", func(t *testing.T) {
		sr := setupTestTracer(t)
		id := uuid.New()
		r := gin.New()
		r.Use(RequestID(), TracingWithConfig(DefaultTracingConfig()), func(c *gin.Context) {
			c.Set(PrincipalRefKey, principal.RegisteredRef(id))
		}, TracingAttributeInjector())
		r.GET("/credits/balance", func(c *gin.Context) { c.Status(http.StatusOK) })

		serve(r, "GET", "/credits/balance", map[string]string{"X-Request-ID": "req-7"})

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, "req-7", attrValue(spans[0].Attributes(), "request_id"))
		assert.Equal(t, "registered", attrValue(spans[0].Attributes(), "principal.kind"))
		assert.Equal(t, id.String(), attrValue(spans[0].Attributes(), "principal.id"))
	})

	t.Run("error responses mark the span", func(t *testing.T) {
		sr := setupTestTracer(t)
		r := gin.New()
		r.Use(TracingWithConfig(DefaultTracingConfig()), SpanErrorMarker())
		r.GET("/fail", func(c *gin.Context) { c.Status(http.StatusUnprocessableEntity) })

		serve(r, "GET", "/fail", nil)

		spans := sr.Ended()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status().Code)
	})
}
